package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/docsite/internal/config"
	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/livereload"
	"github.com/conneroisu/docsite/internal/logging"
	"github.com/conneroisu/docsite/internal/microcache"
	"github.com/conneroisu/docsite/internal/redirects"
	"github.com/conneroisu/docsite/internal/renderer"
	"github.com/conneroisu/docsite/internal/server"
	"github.com/conneroisu/docsite/internal/site"
	"github.com/conneroisu/docsite/internal/translation"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the site server",
	Long: `Start the site server.

In production the page template and client manifest must exist at start-up.
In development the renderer is rebuilt whenever the template, the manifest
or the content tree changes, and open browsers reload.

Examples:
  docsite serve                         # Development server on :8095
  NODE_ENV=production docsite serve     # Production assets and caching
  docsite serve --port 9000 --micro-cache=false`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	flags := serveCmd.Flags()
	flags.IntP("port", "p", 8095, "Port to serve on")
	flags.String("host", "0.0.0.0", "Host to bind to")
	flags.String("env", config.EnvironmentDevelopment, "Environment (development, production)")
	flags.String("content", "./content", "Content directory")
	flags.Bool("micro-cache", true, "Cache rendered pages in memory (production default)")
	flags.Bool("translate", false, "Enable the translation API")
	flags.Bool("prefetch", false, "Emit prefetch links for async chunks")

	bindFlags(flags, map[string]string{
		"port":        "server.port",
		"host":        "server.host",
		"env":         "server.environment",
		"content":     "site.content_dir",
		"micro-cache": "cache.micro_cache",
		"translate":   "translation.enabled",
		"prefetch":    "site.should_prefetch",
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		return err
	}

	return srv.Start(ctx)
}

// buildServer loads the site data and assembles the server. In development
// it also starts the reloader, which lives until ctx is done.
func buildServer(ctx context.Context, cfg *config.Config, logger logging.Logger) (*server.Server, error) {
	catalog, err := i18n.Load(cfg.Site.Languages)
	if err != nil {
		return nil, err
	}
	table, err := redirects.Load(cfg.Site.Redirects)
	if err != nil {
		return nil, err
	}
	logger.Info(ctx, "Site data loaded", "languages", len(catalog.Locales()), "redirects", table.Len())

	pages := site.New(site.Options{
		ContentDir:      cfg.Site.ContentDir,
		Catalog:         catalog,
		DefaultLanguage: cfg.Site.DefaultLanguage,
		Title:           cfg.Site.Title,
		Logger:          logger,
	})

	opts := server.Options{
		Config:    cfg,
		Catalog:   catalog,
		Redirects: table,
		Logger:    logger,
		StartTime: time.Now(),
	}
	if cfg.Cache.MicroCache {
		opts.MicroCache = microcache.New(cfg.Cache.MicroCacheSize, cfg.Cache.MicroCacheTTL)
	}
	if cfg.Translation.Enabled {
		opts.Translations = translation.NewHandler(translation.NewStore(cfg.Translation.Dir), logger)
	}

	build := rendererBuilder(cfg, pages, logger)

	if cfg.IsProduction() {
		r, err := build(ctx)
		if err != nil {
			return nil, err
		}
		opts.Renderer = r
		return server.New(opts)
	}

	hub := livereload.NewHub(logger)
	reloader, err := server.NewReloader(server.ReloaderOptions{
		Template:   cfg.Site.Template,
		Manifest:   cfg.Site.Manifest,
		ContentDir: cfg.Site.ContentDir,
		Build:      build,
		Hub:        hub,
		Logger:     logger,
	})
	if err != nil {
		return nil, err
	}
	opts.Updates = reloader.Updates()
	opts.LiveReload = hub

	srv, err := server.New(opts)
	if err != nil {
		return nil, err
	}
	if err := reloader.Start(ctx); err != nil {
		return nil, err
	}

	return srv, nil
}

// rendererBuilder loads the template and manifest and wraps them with a
// fresh component cache. Development tolerates a missing manifest.
func rendererBuilder(cfg *config.Config, pages *site.Site, logger logging.Logger) server.BuildFunc {
	return func(ctx context.Context) (renderer.Renderer, error) {
		tmpl, err := renderer.LoadTemplate(cfg.Site.Template)
		if err != nil {
			return nil, err
		}

		manifest, err := renderer.LoadManifest(cfg.Site.Manifest)
		if err != nil {
			if cfg.IsProduction() {
				return nil, err
			}
			logger.Warn(ctx, err, "Rendering without client manifest")
			manifest = nil
		}

		r, err := renderer.NewBundleRenderer(renderer.BundleOptions{
			Template:       tmpl,
			Manifest:       manifest,
			Entry:          pages.Entry,
			Cache:          renderer.NewComponentCache(cfg.Cache.RenderCacheMax, cfg.Cache.RenderCacheMaxAge),
			ShouldPrefetch: cfg.Site.ShouldPrefetch,
			Logger:         logger,
		})
		if err != nil {
			return nil, err
		}

		return r, nil
	}
}
