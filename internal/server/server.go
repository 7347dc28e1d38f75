// Package server is the HTTP front of docsite. It serves static assets,
// applies the redirect table, negotiates a language for unprefixed paths and
// hands prefixed paths to the current renderer through the micro-cache.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/conneroisu/docsite/internal/config"
	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/livereload"
	"github.com/conneroisu/docsite/internal/logging"
	"github.com/conneroisu/docsite/internal/microcache"
	"github.com/conneroisu/docsite/internal/redirects"
	"github.com/conneroisu/docsite/internal/renderer"
	"github.com/conneroisu/docsite/internal/translation"
	"github.com/conneroisu/docsite/internal/version"
)

const shutdownTimeout = 10 * time.Second

// compressibleTypes extends chi's defaults with the sitemap.
var compressibleTypes = []string{
	"text/html",
	"text/css",
	"text/plain",
	"text/javascript",
	"text/xml",
	"application/javascript",
	"application/x-javascript",
	"application/json",
	"application/xml",
	"image/svg+xml",
}

// Options wire a Server. Either Renderer or Updates must be set: production
// installs a renderer up front, development follows the reloader.
type Options struct {
	Config       *config.Config
	Catalog      *i18n.Catalog
	Redirects    *redirects.Table
	Renderer     renderer.Renderer
	Updates      <-chan renderer.Renderer
	MicroCache   *microcache.Cache
	Translations *translation.Handler
	LiveReload   *livereload.Hub
	Logger       logging.Logger
	StartTime    time.Time
}

// Server is the docsite HTTP server.
type Server struct {
	config       *config.Config
	catalog      *i18n.Catalog
	redirects    *redirects.Table
	slot         *rendererSlot
	updates      <-chan renderer.Renderer
	cache        *microcache.Cache
	translations *translation.Handler
	hub          *livereload.Hub
	logger       logging.Logger
	startTime    time.Time
	serverHeader string
	defaultLang  string

	pages      http.Handler
	handler    http.Handler
	httpServer *http.Server
}

// New validates opts and builds the router.
func New(opts Options) (*Server, error) {
	if opts.Config == nil {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid, "server needs a configuration")
	}
	if opts.Catalog == nil {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid, "server needs a language catalog")
	}
	if opts.Renderer == nil && opts.Updates == nil {
		return nil, errors.NewValidationError(errors.ErrCodeConfigInvalid, "server needs a renderer or a renderer update channel")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.StartTime.IsZero() {
		opts.StartTime = time.Now()
	}

	defaultLang := opts.Config.Site.DefaultLanguage
	if !i18n.ValidCode(defaultLang) {
		defaultLang = i18n.DefaultLanguage
	}

	s := &Server{
		config:       opts.Config,
		catalog:      opts.Catalog,
		redirects:    opts.Redirects,
		slot:         newRendererSlot(),
		updates:      opts.Updates,
		cache:        opts.MicroCache,
		translations: opts.Translations,
		hub:          opts.LiveReload,
		logger:       opts.Logger.WithComponent("server"),
		startTime:    opts.StartTime,
		serverHeader: version.ServerHeader(),
		defaultLang:  defaultLang,
	}
	if opts.Renderer != nil {
		s.slot.installAt(opts.Renderer, opts.StartTime)
	}

	s.pages = http.HandlerFunc(s.render)
	if s.cache != nil && s.config.Cache.MicroCache {
		s.pages = s.cache.Middleware(s.cacheable)(s.pages)
	}
	s.handler = s.routes()

	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.GetHead)
	r.Use(securityHeaders)

	// The websocket upgrade stays outside the compressor.
	if s.hub != nil && !s.config.IsProduction() {
		r.Handle(livereload.Path, s.hub)
	}

	r.Group(func(r chi.Router) {
		compressor := middleware.NewCompressor(5, compressibleTypes...)
		compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
			return brotli.NewWriterLevel(w, level)
		})
		r.Use(compressor.Handler)
		r.Use(s.publicFiles)

		site := s.config.Site
		r.Get("/favicon.ico", s.serveFile(site.Favicon, s.assetMaxAge(), ""))
		r.Get("/sitemap.xml", s.serveFile(site.Sitemap, 0, "text/xml; charset=utf-8"))

		r.Get("/dist/*", s.staticMount("/dist", site.DistDir, s.assetMaxAge()))
		r.Get("/releases/{release}", s.release)
		r.Get("/releases/*", s.staticMount("/releases", site.ReleasesDir, 0))
		r.Get("/themes/*", s.staticMount("/themes", site.ThemesDir, 0))

		if s.translations != nil && s.config.Translation.Enabled {
			r.Mount("/api/translation", s.translations.Routes())
		}

		r.Get("/*", s.handlePage)
	})

	return r
}

// Start serves until ctx is done and then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	if s.updates != nil {
		go s.slot.Follow(ctx, s.updates)
	}
	if s.hub != nil && !s.config.IsProduction() {
		go s.hub.Run(ctx)
	}

	s.httpServer = &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Server listening",
			"addr", s.httpServer.Addr,
			"environment", s.config.Server.Environment,
			"micro_cache", s.config.Cache.MicroCache)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	return s.Shutdown(shutdownCtx)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "Shutting down server...")
	if s.cache != nil {
		stats := s.cache.Stats()
		s.logger.Info(ctx, "Micro-cache statistics",
			"hits", stats.Hits, "misses", stats.Misses, "sets", stats.Sets, "size", stats.Size,
			"ttl", s.cache.TTL())
	}
	if cache := s.componentCache(); cache != nil {
		s.logger.Info(ctx, "Component cache statistics",
			"hits", cache.Hits(), "misses", cache.Misses(), "size", cache.Len())
	}
	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// componentCache returns the cache of the current renderer, if it has one.
func (s *Server) componentCache() *renderer.ComponentCache {
	v := s.slot.current.Load()
	if v == nil {
		return nil
	}
	cached, ok := v.r.(interface{ Cache() *renderer.ComponentCache })
	if !ok {
		return nil
	}

	return cached.Cache()
}

// assetMaxAge is the cache lifetime for public and bundled assets.
func (s *Server) assetMaxAge() time.Duration {
	if s.config.IsProduction() {
		return s.config.Cache.StaticMaxAge
	}

	return 0
}
