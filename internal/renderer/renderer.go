// Package renderer turns a request context into a complete HTML document.
//
// A Renderer is the only thing the HTTP layer knows about rendering. The
// bundle implementation fills a page template with templ components, the
// asset links of a client manifest and the per-request context, and keeps
// an LRU cache of component output.
package renderer

import (
	"context"
	"fmt"

	"github.com/conneroisu/docsite/internal/errors"
)

// DefaultTitle is used when the context carries no title.
const DefaultTitle = "Docsite"

// Context is the per-request data handed to the renderer. One request owns
// it; it is discarded once the response is written.
type Context struct {
	Title     string
	Hostname  string
	URL       string
	Lang      string
	Path      string
	Hreflangs string
	Store     bool

	// Head is extra markup for the document head. Page components may
	// append to it while rendering.
	Head string
}

// Renderer renders a full document for rc. Failures are reported as one of
// the errors.RenderError variants, or any error Classify can map.
type Renderer interface {
	RenderToString(ctx context.Context, rc *Context) (string, error)
}

// Func adapts a function to the Renderer interface.
type Func func(ctx context.Context, rc *Context) (string, error)

// RenderToString calls f.
func (f Func) RenderToString(ctx context.Context, rc *Context) (string, error) {
	return f(ctx, rc)
}

// Result is the outcome of one asynchronous render. Exactly one of HTML
// and Err is meaningful.
type Result struct {
	HTML string
	Err  error
}

// Render starts r in its own goroutine and returns a channel that receives
// exactly one Result. The channel is buffered, so a caller that stops
// listening does not leak the goroutine.
func Render(ctx context.Context, r Renderer, rc *Context) <-chan Result {
	out := make(chan Result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				out <- Result{Err: errors.NewRenderFailure(fmt.Sprintf("renderer panicked: %v", p), nil)}
			}
		}()

		html, err := r.RenderToString(ctx, rc)
		out <- Result{HTML: html, Err: err}
	}()

	return out
}
