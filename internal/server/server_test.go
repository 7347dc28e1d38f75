package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/docsite/internal/config"
	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/microcache"
	"github.com/conneroisu/docsite/internal/redirects"
	"github.com/conneroisu/docsite/internal/renderer"
	"github.com/conneroisu/docsite/internal/translation"
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(root string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8095, Host: "127.0.0.1", Environment: config.EnvironmentDevelopment},
		Cache: config.CacheConfig{
			MicroCache:     true,
			MicroCacheTTL:  time.Minute,
			MicroCacheSize: 10,
			StaticMaxAge:   30 * 24 * time.Hour,
		},
		Site: config.SiteConfig{
			PublicDir:       filepath.Join(root, "public"),
			DistDir:         filepath.Join(root, "dist"),
			ReleasesDir:     filepath.Join(root, "releases"),
			ThemesDir:       filepath.Join(root, "themes"),
			Favicon:         filepath.Join(root, "public", "favicon.ico"),
			Sitemap:         filepath.Join(root, "sitemap.xml"),
			DefaultLanguage: "en",
			Title:           "Docsite",
		},
		Translation: config.TranslationConfig{Dir: filepath.Join(root, "translations")},
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// countingRenderer echoes the context and counts calls.
type countingRenderer struct {
	calls atomic.Int32
	err   error
}

func (c *countingRenderer) RenderToString(_ context.Context, rc *renderer.Context) (string, error) {
	c.calls.Add(1)
	if c.err != nil {
		return "", c.err
	}

	return "<html lang=\"" + rc.Lang + "\"><body>" + rc.Path + "</body></html>", nil
}

func newTestServer(t *testing.T, r renderer.Renderer, mutate func(*Options)) *Server {
	t.Helper()
	root := t.TempDir()
	opts := Options{
		Config:     testConfig(root),
		Catalog:    i18n.MustCatalog("en", "fr", "de"),
		Redirects:  redirects.New(map[string]string{"/old": "/en/new"}),
		Renderer:   r,
		MicroCache: microcache.New(10, time.Minute),
		StartTime:  testStart,
	}
	if mutate != nil {
		mutate(&opts)
	}

	s, err := New(opts)
	require.NoError(t, err)

	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	return rec
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = New(Options{Config: testConfig(t.TempDir()), Catalog: i18n.MustCatalog("en")})
	assert.Error(t, err, "a renderer or an update channel is required")
}

func TestRedirectTable(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/old", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/en/new", rec.Header().Get("Location"))

	// Only the path is compared.
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/old?x=1", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/en/new", rec.Header().Get("Location"))
}

func TestRedirectTable_BeatsPrefixAndCache(t *testing.T) {
	r := &countingRenderer{}
	table := redirects.New(map[string]string{})
	s := newTestServer(t, r, func(o *Options) {
		o.Redirects = table
	})

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/en/old", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	_, cached := s.cache.Get(microcache.Key(httptest.NewRequest(http.MethodGet, "/en/old", nil)))
	require.True(t, cached)

	s.redirects = redirects.New(map[string]string{"/en/old": "/en/new"})
	rec = serve(s, httptest.NewRequest(http.MethodGet, "/en/old", nil))
	assert.Equal(t, http.StatusMovedPermanently, rec.Code)
	assert.Equal(t, "/en/new", rec.Header().Get("Location"))
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestNegotiation(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, nil)

	tests := []struct {
		name     string
		target   string
		cookie   string
		accept   string
		expected string
	}{
		{"default", "/", "", "", "/en/"},
		{"accept language", "/docs?x=1", "", "fr", "/fr/docs?x=1"},
		{"cookie beats header", "/docs", "de", "fr", "/de/docs"},
		{"unknown cookie ignored", "/docs", "xx", "fr", "/fr/docs"},
		{"no match falls back", "/docs", "", "ja", "/en/docs"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: CookieLanguage, Value: tt.cookie})
			}
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}

			rec := serve(s, req)
			assert.Equal(t, http.StatusFound, rec.Code)
			assert.Equal(t, tt.expected, rec.Header().Get("Location"))
		})
	}
}

func TestRender_Headers(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, nil)

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/fr/guide", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("Server"), "docsite/"))
	assert.Equal(t, testStart.Format(http.TimeFormat), rec.Header().Get("Last-Modified"))
	assert.Equal(t, "public, must-revalidate", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Contains(t, rec.Body.String(), `<html lang="fr">`)
	assert.Contains(t, rec.Body.String(), "/guide")

	cookie := rec.Result().Cookies()
	require.Len(t, cookie, 1)
	assert.Equal(t, CookieLanguage, cookie[0].Name)
	assert.Equal(t, "fr", cookie[0].Value)
	assert.Equal(t, 7*24*60*60, cookie[0].MaxAge)
}

func TestRender_NotModified(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, nil)

	req := httptest.NewRequest(http.MethodGet, "/en/guide", nil)
	req.Header.Set("If-Modified-Since", testStart.Add(time.Hour).Format(http.TimeFormat))

	rec := serve(s, req)
	assert.Equal(t, http.StatusNotModified, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int32(0), r.calls.Load())

	// A forced reload renders even when the date still matches.
	req = httptest.NewRequest(http.MethodGet, "/en/guide", nil)
	req.Header.Set("If-Modified-Since", testStart.Add(time.Hour).Format(http.TimeFormat))
	req.Header.Set("Cache-Control", "no-cache")
	rec = serve(s, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRender_MicroCache(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, nil)

	first := serve(s, httptest.NewRequest(http.MethodGet, "/en/guide?v=1", nil))
	second := serve(s, httptest.NewRequest(http.MethodGet, "/en/guide?v=1", nil))

	assert.Equal(t, "MISS", first.Header().Get(microcache.HeaderCache))
	assert.Equal(t, "HIT", second.Header().Get(microcache.HeaderCache))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, int32(1), r.calls.Load())

	// Replayed responses still set the language cookie.
	assert.NotEmpty(t, second.Result().Cookies())

	// A different query is a different key.
	serve(s, httptest.NewRequest(http.MethodGet, "/en/guide?v=2", nil))
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestRender_MicroCacheDisabled(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, func(o *Options) {
		o.Config.Cache.MicroCache = false
	})

	serve(s, httptest.NewRequest(http.MethodGet, "/en/guide", nil))
	rec := serve(s, httptest.NewRequest(http.MethodGet, "/en/guide", nil))

	assert.Empty(t, rec.Header().Get(microcache.HeaderCache))
	assert.Equal(t, int32(2), r.calls.Load())
}

func TestRender_Store(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, nil)

	req := httptest.NewRequest(http.MethodGet, "/en/store/widget", nil)
	req.Header.Set("If-Modified-Since", testStart.Add(time.Hour).Format(http.TimeFormat))
	rec := serve(s, req)
	require.Equal(t, http.StatusOK, rec.Code, "store pages ignore conditional requests")
	assert.Empty(t, rec.Header().Get("Last-Modified"))
	assert.Empty(t, rec.Header().Get("Cache-Control"))

	serve(s, httptest.NewRequest(http.MethodGet, "/en/store/widget", nil))
	assert.Equal(t, int32(2), r.calls.Load(), "store pages are never micro-cached")
}

func TestRender_Errors(t *testing.T) {
	t.Run("redirect", func(t *testing.T) {
		s := newTestServer(t, &countingRenderer{err: errors.NewRedirect("/en/")}, nil)
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/zz/guide", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/en/", rec.Header().Get("Location"))
	})

	t.Run("not found", func(t *testing.T) {
		s := newTestServer(t, &countingRenderer{err: errors.NewNotFound("/missing")}, nil)
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/en/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "404 | Page Not Found", rec.Body.String())
		assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
		assert.Empty(t, rec.Header().Get("Last-Modified"))
	})

	t.Run("failure", func(t *testing.T) {
		cause := stderrors.New("template <broken>")
		s := newTestServer(t, &countingRenderer{err: cause}, nil)
		req := httptest.NewRequest(http.MethodGet, "/en/guide", nil)
		req.Header.Set("User-Agent", "docsite-test")

		rec := serve(s, req)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		body := rec.Body.String()
		assert.Contains(t, body, "template &lt;broken&gt;")
		assert.Contains(t, body, "docsite-test")
		assert.Contains(t, body, `<pre class="stack">`)
		assert.NotContains(t, body, "<broken>")

		// Failures are never cached.
		again := serve(s, httptest.NewRequest(http.MethodGet, "/en/guide", nil))
		assert.Equal(t, http.StatusInternalServerError, again.Code)
		assert.NotEqual(t, "HIT", again.Header().Get(microcache.HeaderCache))
	})
}

func TestRender_ClientGone(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	slow := renderer.Func(func(ctx context.Context, rc *renderer.Context) (string, error) {
		defer close(finished)
		close(started)
		<-release
		return "late", ctx.Err()
	})
	s := newTestServer(t, slow, nil)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/en/guide", nil).WithContext(ctx)
	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- serve(s, req) }()

	<-started
	cancel()
	rec := <-done
	assert.Empty(t, rec.Body.String())

	close(release)
	<-finished

	// The abandoned response was not cached.
	_, hit := s.cache.Get("/en/guide")
	assert.False(t, hit)
}

func TestRendererSlot_WaitsForFirstBuild(t *testing.T) {
	updates := make(chan renderer.Renderer)
	s := newTestServer(t, nil, func(o *Options) {
		o.Updates = updates
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.slot.Follow(ctx, updates)

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer waitCancel()
	_, err := s.slot.Wait(waitCtx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	r := &countingRenderer{}
	updates <- r

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/en/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestStaticFiles(t *testing.T) {
	r := &countingRenderer{}
	s := newTestServer(t, r, nil)
	site := s.config.Site

	writeFile(t, filepath.Join(site.PublicDir, "robots.txt"), "User-agent: *")
	writeFile(t, filepath.Join(site.PublicDir, ".env"), "SECRET=1")
	writeFile(t, filepath.Join(site.PublicDir, "favicon.ico"), "icon")
	writeFile(t, filepath.Join(site.DistDir, "app.js"), "console.log(1)")
	writeFile(t, filepath.Join(site.ReleasesDir, "v1.2.0"), "<h1>1.2.0</h1>")
	writeFile(t, filepath.Join(site.ThemesDir, "dark", "theme.css"), "body{}")
	writeFile(t, site.Sitemap, "<urlset></urlset>")

	t.Run("public", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/robots.txt", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "User-agent: *", rec.Body.String())
		assert.Equal(t, "public, max-age=0", rec.Header().Get("Cache-Control"))
	})

	t.Run("dot files fall through", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/.env", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/en/.env", rec.Header().Get("Location"))
	})

	t.Run("dist", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/dist/app.js", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "console.log(1)", rec.Body.String())
	})

	t.Run("missing dist file reaches the page pipeline", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/dist/missing.js", nil))
		assert.Equal(t, http.StatusFound, rec.Code)
	})

	t.Run("release as html", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/releases/v1.2.0", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("unknown release", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/releases/v9", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("themes", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/themes/dark/theme.css", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "body{}", rec.Body.String())
	})

	t.Run("sitemap", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/sitemap.xml", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "text/xml; charset=utf-8", rec.Header().Get("Content-Type"))
	})

	t.Run("favicon", func(t *testing.T) {
		rec := serve(s, httptest.NewRequest(http.MethodGet, "/favicon.ico", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "icon", rec.Body.String())
	})

	assert.Equal(t, int32(0), r.calls.Load())
}

func TestStaticFiles_ProductionMaxAge(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, func(o *Options) {
		o.Config.Server.Environment = config.EnvironmentProduction
	})
	writeFile(t, filepath.Join(s.config.Site.DistDir, "app.css"), "a{}")

	rec := serve(s, httptest.NewRequest(http.MethodGet, "/dist/app.css", nil))
	assert.Equal(t, "public, max-age=2592000", rec.Header().Get("Cache-Control"))
}

func TestCompression(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, nil)

	for _, enc := range []string{"gzip", "br"} {
		t.Run(enc, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/en/"+enc, nil)
			req.Header.Set("Accept-Encoding", enc)
			rec := serve(s, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, enc, rec.Header().Get("Content-Encoding"))
		})
	}
}

func TestHead(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, nil)

	rec := serve(s, httptest.NewRequest(http.MethodHead, "/en/guide", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
}

func TestTranslationMount(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fr.yml"), "hello: bonjour\n")
	handler := translation.NewHandler(translation.NewStore(root), nil)

	enabled := newTestServer(t, &countingRenderer{}, func(o *Options) {
		o.Config.Translation.Enabled = true
		o.Translations = handler
	})
	rec := serve(enabled, httptest.NewRequest(http.MethodGet, "/api/translation/fr", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "bonjour")

	disabled := newTestServer(t, &countingRenderer{}, func(o *Options) {
		o.Translations = handler
	})
	rec = serve(disabled, httptest.NewRequest(http.MethodGet, "/api/translation/fr", nil))
	assert.NotContains(t, rec.Body.String(), "bonjour")
}

func TestShutdown_ComponentCache(t *testing.T) {
	s := newTestServer(t, &countingRenderer{}, nil)
	assert.Nil(t, s.componentCache())
	require.NoError(t, s.Shutdown(context.Background()))

	tmpl, err := renderer.ParseTemplate("<html><body>" + renderer.OutletMarker + "</body></html>")
	require.NoError(t, err)
	cache := renderer.NewComponentCache(10, time.Minute)
	bundle, err := renderer.NewBundleRenderer(renderer.BundleOptions{
		Template: tmpl,
		Entry: func(ctx context.Context, rc *renderer.Context) (templ.Component, error) {
			return templ.Raw("page"), nil
		},
		Cache: cache,
	})
	require.NoError(t, err)

	s = newTestServer(t, bundle, nil)
	assert.Same(t, cache, s.componentCache())
	require.NoError(t, s.Shutdown(context.Background()))
}
