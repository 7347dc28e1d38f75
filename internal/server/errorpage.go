package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"

	"github.com/a-h/templ"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/renderer"
)

const notFoundBody = "404 | Page Not Found"

// present answers a failed render. Redirects and missing pages are ordinary
// outcomes; everything else gets the diagnostic page and an error log.
func (s *Server) present(w http.ResponseWriter, r *http.Request, rc *renderer.Context, err error) {
	h := w.Header()
	h.Del("Last-Modified")
	h.Del("Cache-Control")

	switch e := errors.Classify(err).(type) {
	case *errors.RedirectSignal:
		http.Redirect(w, r, e.URL, http.StatusFound)

	case *errors.NotFound:
		h.Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, notFoundBody)

	case *errors.RenderFailure:
		s.logger.Error(r.Context(), err, "Error handled",
			"method", r.Method,
			"url", r.URL.RequestURI())

		var buf bytes.Buffer
		if renderErr := failurePage(r, rc, e).Render(r.Context(), &buf); renderErr != nil {
			buf.Reset()
			buf.WriteString(templ.EscapeString(e.Error()))
		}
		h.Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write(buf.Bytes())

	default:
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// failurePage is the diagnostic page for a render failure.
func failurePage(r *http.Request, rc *renderer.Context, failure *errors.RenderFailure) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b bytes.Buffer
		b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><title>500 | Internal Server Error</title>`)
		b.WriteString(`<style>body{font-family:monospace;margin:2em}h2{margin-top:1.5em}pre{background:#f6f8fa;padding:1em;overflow:auto}th{text-align:left;padding-right:1em}</style>`)
		b.WriteString(`</head><body><h1>500 | Internal Server Error</h1>`)
		fmt.Fprintf(&b, `<p class="message">%s</p>`, templ.EscapeString(failure.Message))

		b.WriteString(`<h2>Error chain</h2><ol class="chain">`)
		for _, msg := range errors.Chain(failure) {
			fmt.Fprintf(&b, `<li>%s</li>`, templ.EscapeString(msg))
		}
		b.WriteString(`</ol>`)

		b.WriteString(`<h2>Request</h2><table class="request">`)
		row(&b, "Method", r.Method)
		row(&b, "URL", r.URL.RequestURI())
		for _, name := range slices.Sorted(maps.Keys(r.Header)) {
			for _, v := range r.Header[name] {
				row(&b, name, v)
			}
		}
		b.WriteString(`</table>`)

		b.WriteString(`<h2>Render context</h2><table class="context">`)
		if rc != nil {
			row(&b, "lang", rc.Lang)
			row(&b, "path", rc.Path)
			row(&b, "url", rc.URL)
			row(&b, "hostname", rc.Hostname)
			row(&b, "title", rc.Title)
		}
		for _, key := range slices.Sorted(maps.Keys(failure.Context)) {
			row(&b, key, fmt.Sprint(failure.Context[key]))
		}
		b.WriteString(`</table>`)

		if len(failure.Stack) > 0 {
			fmt.Fprintf(&b, `<h2>Stack</h2><pre class="stack">%s</pre>`, templ.EscapeString(string(failure.Stack)))
		}
		b.WriteString(`</body></html>`)

		_, err := w.Write(b.Bytes())
		return err
	})
}

func row(b *bytes.Buffer, key, value string) {
	fmt.Fprintf(b, `<tr><th>%s</th><td>%s</td></tr>`, templ.EscapeString(key), templ.EscapeString(value))
}
