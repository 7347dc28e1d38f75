package errors

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// RenderError is the closed set of outcomes a failed render can report.
// Only RedirectSignal, NotFound and RenderFailure implement it.
type RenderError interface {
	error
	renderError()
}

// RedirectSignal asks the HTTP layer to redirect the client. It is a control
// flow signal, not a fault.
type RedirectSignal struct {
	URL string
}

func (e *RedirectSignal) Error() string { return "redirect to " + e.URL }
func (*RedirectSignal) renderError()    {}

// NotFound reports that no content exists for the requested path.
type NotFound struct {
	Path string
}

func (e *NotFound) Error() string { return "page not found: " + e.Path }
func (*NotFound) renderError()    {}

// RenderFailure is any other failure during rendering.
type RenderFailure struct {
	Message string
	Cause   error
	Stack   []byte
	Context map[string]interface{}
}

func (e *RenderFailure) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *RenderFailure) Unwrap() error { return e.Cause }
func (*RenderFailure) renderError()    {}

// NewRedirect returns a redirect signal for url.
func NewRedirect(url string) *RedirectSignal {
	return &RedirectSignal{URL: url}
}

// NewNotFound returns a not-found marker for path.
func NewNotFound(path string) *NotFound {
	return &NotFound{Path: path}
}

// NewRenderFailure wraps cause as a render failure and captures the stack.
func NewRenderFailure(message string, cause error) *RenderFailure {
	return &RenderFailure{
		Message: message,
		Cause:   cause,
		Stack:   debug.Stack(),
	}
}

// IsSignal reports whether err carries a RedirectSignal or a NotFound.
func IsSignal(err error) bool {
	var redirect *RedirectSignal
	var notFound *NotFound

	return errors.As(err, &redirect) || errors.As(err, &notFound)
}

// AsRenderFailure finds a RenderFailure in err's chain.
func AsRenderFailure(err error) (*RenderFailure, bool) {
	var failure *RenderFailure
	ok := errors.As(err, &failure)

	return failure, ok
}

// Classify maps any error onto a RenderError variant. Wrapped variants are
// found with errors.As; everything else becomes a RenderFailure. A nil error
// yields nil.
func Classify(err error) RenderError {
	if err == nil {
		return nil
	}

	var redirect *RedirectSignal
	if errors.As(err, &redirect) {
		return redirect
	}

	var notFound *NotFound
	if errors.As(err, &notFound) {
		return notFound
	}

	var failure *RenderFailure
	if errors.As(err, &failure) {
		return failure
	}

	return NewRenderFailure("render failed", err)
}
