// Package errors defines the error types used by docsite.
//
// Two families live here. DocsiteError is a structured error with a type
// and a code, used for start-up and infrastructure failures (configuration,
// file I/O, template loading). RenderError is a closed set of variants that
// the renderer hands back to the HTTP layer: a redirect signal, a not-found
// marker and a generic render failure.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeInternal   ErrorType = "internal"
)

// Error codes used across packages.
const (
	ErrCodeConfigLoad      = "CONFIG_LOAD"
	ErrCodeConfigInvalid   = "CONFIG_INVALID"
	ErrCodeRedirectsLoad   = "REDIRECTS_LOAD"
	ErrCodeLanguagesLoad   = "LANGUAGES_LOAD"
	ErrCodeTemplateLoad    = "TEMPLATE_LOAD"
	ErrCodeManifestLoad    = "MANIFEST_LOAD"
	ErrCodeContentRead     = "CONTENT_READ"
	ErrCodeTranslationIO   = "TRANSLATION_IO"
	ErrCodeWatcherStart    = "WATCHER_START"
	ErrCodeInternalFailure = "INTERNAL"
)

// DocsiteError is a structured error type with context.
type DocsiteError struct {
	Type     ErrorType
	Code     string
	Message  string
	Cause    error
	Context  map[string]interface{}
	FilePath string
}

// Error implements the error interface.
func (e *DocsiteError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *DocsiteError) Unwrap() error {
	return e.Cause
}

// Is matches on type and code.
func (e *DocsiteError) Is(target error) bool {
	var t *DocsiteError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *DocsiteError) WithContext(key string, value interface{}) *DocsiteError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile records the file the error relates to.
func (e *DocsiteError) WithFile(path string) *DocsiteError {
	e.FilePath = path

	return e
}

// Wrap wraps err with a type, code and message. A nil err yields nil.
func Wrap(err error, errType ErrorType, code, message string) *DocsiteError {
	if err == nil {
		return nil
	}

	wrapped := &DocsiteError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}

	var de *DocsiteError
	if errors.As(err, &de) {
		wrapped.FilePath = de.FilePath
		wrapped.Context = de.Context
	}

	return wrapped
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *DocsiteError {
	return Wrap(err, ErrorTypeConfig, code, message)
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *DocsiteError {
	return Wrap(err, ErrorTypeIO, code, message)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(err error, code, message string) *DocsiteError {
	return Wrap(err, ErrorTypeInternal, code, message)
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *DocsiteError {
	return &DocsiteError{
		Type:    ErrorTypeValidation,
		Code:    code,
		Message: message,
	}
}

// IsType reports whether err is a DocsiteError of the given type.
func IsType(err error, errType ErrorType) bool {
	var de *DocsiteError
	if errors.As(err, &de) {
		return de.Type == errType
	}

	return false
}

// Chain returns the messages of err and every error it wraps, outermost first.
func Chain(err error) []string {
	var chain []string
	for err != nil {
		chain = append(chain, err.Error())
		err = errors.Unwrap(err)
	}

	return chain
}
