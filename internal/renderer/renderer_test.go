package renderer

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	derrors "github.com/conneroisu/docsite/internal/errors"
)

const testTemplate = `<!DOCTYPE html>
<html lang="{{ lang }}">
<head>
<title>{{ title }}</title>
{{{ hreflangs }}}
</head>
<body>
<!--ssr-outlet-->
</body>
</html>`

func text(s string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, s)
		return err
	})
}

func newBundle(t *testing.T, entry Entry, prefetch bool) *BundleRenderer {
	t.Helper()

	tmpl, err := ParseTemplate(testTemplate)
	require.NoError(t, err)

	r, err := NewBundleRenderer(BundleOptions{
		Template: tmpl,
		Manifest: &ClientManifest{
			PublicPath: "/dist/",
			Initial:    []string{"app.js", "app.css"},
			Async:      []string{"0.js", "1.js"},
		},
		Entry:          entry,
		ShouldPrefetch: prefetch,
	})
	require.NoError(t, err)

	return r
}

func TestParseTemplate_RequiresOutlet(t *testing.T) {
	_, err := ParseTemplate("<html><body></body></html>")
	require.Error(t, err)
	assert.True(t, derrors.IsType(err, derrors.ErrorTypeValidation))
}

func TestLoadTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.template.html")
	require.NoError(t, os.WriteFile(path, []byte(testTemplate), 0o644))

	tmpl, err := LoadTemplate(path)
	require.NoError(t, err)
	assert.NotNil(t, tmpl)

	_, err = LoadTemplate(filepath.Join(dir, "missing.html"))
	assert.True(t, derrors.IsType(err, derrors.ErrorTypeIO))
}

func TestPageTemplate_Execute(t *testing.T) {
	tmpl, err := ParseTemplate(testTemplate)
	require.NoError(t, err)

	doc := tmpl.Execute(PageData{
		Values: map[string]string{
			"title":     "A <b>title</b>",
			"lang":      "fr",
			"hreflangs": `<link rel="alternate" hreflang="fr" href="https://x/fr/" />`,
			"head":      `<meta name="x">`,
		},
		Scripts: `<script src="/dist/app.js" defer></script>`,
	}, `<div id="app">hello</div>`)

	assert.Contains(t, doc, `<html lang="fr">`)
	assert.Contains(t, doc, `<title>A &lt;b&gt;title&lt;/b&gt;</title>`)
	assert.Contains(t, doc, `<link rel="alternate" hreflang="fr" href="https://x/fr/" />`)
	assert.Contains(t, doc, `<meta name="x"></head>`)
	assert.Contains(t, doc, `<div id="app">hello</div><script src="/dist/app.js" defer></script>`)
	assert.NotContains(t, doc, OutletMarker)
}

func TestPageTemplate_HeadPlaceholder(t *testing.T) {
	tmpl, err := ParseTemplate(`<head>{{ head }}<title>t</title></head><!--ssr-outlet-->`)
	require.NoError(t, err)

	doc := tmpl.Execute(PageData{Values: map[string]string{"head": `<meta name="x">`}}, "")
	assert.Equal(t, `<head><meta name="x"><title>t</title></head>`, doc)
}

func TestClientManifest_Links(t *testing.T) {
	m := &ClientManifest{
		PublicPath: "/dist/",
		Initial:    []string{"app.js", "app.css", "logo.svg"},
		Async:      []string{"0.js", "0.js.map"},
	}

	hints := m.ResourceHints(false)
	assert.Contains(t, hints, `<link rel="preload" href="/dist/app.js" as="script">`)
	assert.Contains(t, hints, `<link rel="preload" href="/dist/app.css" as="style">`)
	assert.NotContains(t, hints, "logo.svg")
	assert.NotContains(t, hints, "prefetch")

	withPrefetch := m.ResourceHints(true)
	assert.Contains(t, withPrefetch, `<link rel="prefetch" href="/dist/0.js">`)
	assert.NotContains(t, withPrefetch, "0.js.map")

	assert.Equal(t, `<link rel="stylesheet" href="/dist/app.css">`, m.Styles())
	assert.Equal(t, `<script src="/dist/app.js" defer></script>`, m.Scripts())

	cdn := &ClientManifest{PublicPath: "https://cdn.example.com/dist/", Initial: []string{"app.js"}}
	assert.Equal(t, `<script src="https://cdn.example.com/dist/app.js" defer></script>`, cdn.Scripts())

	var none *ClientManifest
	assert.Empty(t, none.ResourceHints(true))
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ssr-client-manifest.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "publicPath": "/dist/",
  "all": ["app.js", "0.js"],
  "initial": ["app.js"],
  "async": ["0.js"],
  "modules": {"a1b2": [0]}
}`), 0o644))

	m, err := LoadManifest(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"app.js"}, m.Initial)
	assert.Equal(t, []string{"0.js"}, m.Async)

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadManifest(path)
	assert.True(t, derrors.IsType(err, derrors.ErrorTypeConfig))
}

func TestBundleRenderer_RenderToString(t *testing.T) {
	r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
		return text(`<main>` + rc.Path + `</main>`), nil
	}, false)

	doc, err := r.RenderToString(context.Background(), &Context{
		Lang:      "en",
		URL:       "/en/guide",
		Path:      "/guide",
		Hreflangs: `<link rel="alternate" hreflang="en" href="https://h/en/guide" />`,
	})
	require.NoError(t, err)

	node, err := html.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.NotNil(t, node)

	assert.Contains(t, doc, "<title>"+DefaultTitle+"</title>")
	assert.Contains(t, doc, "<main>/guide</main>")
	assert.Contains(t, doc, `rel="preload"`)
	assert.NotContains(t, doc, `rel="prefetch"`)
	assert.Contains(t, doc, `hreflang="en"`)
}

func TestBundleRenderer_ShouldPrefetch(t *testing.T) {
	r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
		return text("ok"), nil
	}, true)

	doc, err := r.RenderToString(context.Background(), &Context{Lang: "en"})
	require.NoError(t, err)
	assert.Contains(t, doc, `<link rel="prefetch" href="/dist/0.js">`)
}

func TestBundleRenderer_Signals(t *testing.T) {
	t.Run("redirect passes through", func(t *testing.T) {
		r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
			return nil, derrors.NewRedirect("/en/new")
		}, false)

		_, err := r.RenderToString(context.Background(), &Context{})
		var redirect *derrors.RedirectSignal
		require.ErrorAs(t, err, &redirect)
		assert.Equal(t, "/en/new", redirect.URL)
	})

	t.Run("not found from component", func(t *testing.T) {
		r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				return derrors.NewNotFound(rc.Path)
			}), nil
		}, false)

		_, err := r.RenderToString(context.Background(), &Context{Path: "/missing"})
		var notFound *derrors.NotFound
		require.ErrorAs(t, err, &notFound)
	})

	t.Run("component failure carries context", func(t *testing.T) {
		r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
			return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
				return errors.New("nil pointer in sidebar")
			}), nil
		}, false)

		_, err := r.RenderToString(context.Background(), &Context{URL: "/en/x", Lang: "en", Path: "/x"})
		var failure *derrors.RenderFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "/en/x", failure.Context["url"])
		assert.Contains(t, failure.Error(), "nil pointer in sidebar")
	})

	t.Run("entry failure is classified in the renderer", func(t *testing.T) {
		r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
			return nil, errors.New("read content: permission denied")
		}, false)

		_, err := r.RenderToString(context.Background(), &Context{URL: "/en/x", Lang: "en", Path: "/x"})
		var failure *derrors.RenderFailure
		require.ErrorAs(t, err, &failure)
		assert.Equal(t, "/en/x", failure.Context["url"])
		assert.Contains(t, string(failure.Stack), "RenderToString")
	})

	t.Run("nil context", func(t *testing.T) {
		r := newBundle(t, func(ctx context.Context, rc *Context) (templ.Component, error) {
			return text(""), nil
		}, false)
		_, err := r.RenderToString(context.Background(), nil)
		var failure *derrors.RenderFailure
		assert.ErrorAs(t, err, &failure)
	})
}

func TestNewBundleRenderer_Validation(t *testing.T) {
	_, err := NewBundleRenderer(BundleOptions{})
	assert.Error(t, err)

	tmpl, _ := ParseTemplate(testTemplate)
	_, err = NewBundleRenderer(BundleOptions{Template: tmpl})
	assert.Error(t, err)
}

func TestCached(t *testing.T) {
	var renders atomic.Int64
	expensive := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		renders.Add(1)
		_, err := io.WriteString(w, "<nav>menu</nav>")
		return err
	})

	cache := NewComponentCache(10, time.Minute)
	ctx := WithCache(context.Background(), cache)

	for i := 0; i < 3; i++ {
		var sb strings.Builder
		require.NoError(t, Cached("nav:en", expensive).Render(ctx, &sb))
		assert.Equal(t, "<nav>menu</nav>", sb.String())
	}

	assert.Equal(t, int64(1), renders.Load())
	assert.Equal(t, int64(2), cache.Hits())
	assert.Equal(t, int64(1), cache.Misses())
	assert.Equal(t, 1, cache.Len())
}

func TestCached_NoCacheOnContext(t *testing.T) {
	var renders atomic.Int64
	c := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		renders.Add(1)
		return nil
	})

	for i := 0; i < 2; i++ {
		require.NoError(t, Cached("k", c).Render(context.Background(), io.Discard))
	}
	assert.Equal(t, int64(2), renders.Load())
}

func TestCached_FailuresNotStored(t *testing.T) {
	cache := NewComponentCache(10, time.Minute)
	ctx := WithCache(context.Background(), cache)
	failing := templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return errors.New("boom")
	})

	assert.Error(t, Cached("k", failing).Render(ctx, io.Discard))
	assert.Zero(t, cache.Len())
}

func TestComponentCache_Capacity(t *testing.T) {
	cache := NewComponentCache(2, time.Minute)
	ctx := WithCache(context.Background(), cache)

	for _, key := range []string{"a", "b", "c"} {
		require.NoError(t, Cached(key, text(key)).Render(ctx, io.Discard))
	}
	assert.Equal(t, 2, cache.Len())
}

func TestRender_Async(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		r := Func(func(ctx context.Context, rc *Context) (string, error) {
			return "<html>" + rc.Lang + "</html>", nil
		})

		res := <-Render(context.Background(), r, &Context{Lang: "fr"})
		require.NoError(t, res.Err)
		assert.Equal(t, "<html>fr</html>", res.HTML)
	})

	t.Run("failure", func(t *testing.T) {
		r := Func(func(ctx context.Context, rc *Context) (string, error) {
			return "", derrors.NewNotFound("/x")
		})

		res := <-Render(context.Background(), r, &Context{})
		var notFound *derrors.NotFound
		assert.ErrorAs(t, res.Err, &notFound)
	})

	t.Run("panic becomes failure", func(t *testing.T) {
		r := Func(func(ctx context.Context, rc *Context) (string, error) {
			panic("renderer exploded")
		})

		res := <-Render(context.Background(), r, &Context{})
		var failure *derrors.RenderFailure
		require.ErrorAs(t, res.Err, &failure)
		assert.Contains(t, failure.Message, "renderer exploded")
	})

	t.Run("abandoned result does not block", func(t *testing.T) {
		done := make(chan struct{})
		r := Func(func(ctx context.Context, rc *Context) (string, error) {
			defer close(done)
			return "late", nil
		})

		_ = Render(context.Background(), r, &Context{})
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("render goroutine blocked")
		}
	})
}
