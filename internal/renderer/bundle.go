package renderer

import (
	"bytes"
	"context"

	"github.com/a-h/templ"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/logging"
)

// Entry builds the app component for one request. It may return a
// RedirectSignal or NotFound instead of a component.
type Entry func(ctx context.Context, rc *Context) (templ.Component, error)

// BundleOptions configure a BundleRenderer.
type BundleOptions struct {
	Template *PageTemplate
	Manifest *ClientManifest
	Entry    Entry
	Cache    *ComponentCache

	// ShouldPrefetch emits prefetch links for async chunks. Preload links
	// for initial files are always emitted.
	ShouldPrefetch bool

	Logger logging.Logger
}

// BundleRenderer renders templ components into a page template.
type BundleRenderer struct {
	template       *PageTemplate
	manifest       *ClientManifest
	entry          Entry
	cache          *ComponentCache
	shouldPrefetch bool
	logger         logging.Logger
}

// NewBundleRenderer validates opts and returns a renderer.
func NewBundleRenderer(opts BundleOptions) (*BundleRenderer, error) {
	if opts.Template == nil {
		return nil, errors.NewValidationError(errors.ErrCodeTemplateLoad, "bundle renderer needs a page template")
	}
	if opts.Entry == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInternalFailure, "bundle renderer needs an entry")
	}
	if opts.Cache == nil {
		opts.Cache = NewComponentCache(0, 0)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &BundleRenderer{
		template:       opts.Template,
		manifest:       opts.Manifest,
		entry:          opts.Entry,
		cache:          opts.Cache,
		shouldPrefetch: opts.ShouldPrefetch,
		logger:         opts.Logger.WithComponent("renderer"),
	}, nil
}

// Cache returns the component cache.
func (r *BundleRenderer) Cache() *ComponentCache {
	return r.cache
}

// RenderToString implements Renderer.
func (r *BundleRenderer) RenderToString(ctx context.Context, rc *Context) (string, error) {
	if rc == nil {
		return "", errors.NewRenderFailure("missing render context", nil)
	}

	op := logging.StartOperation(r.logger, "render")

	component, err := r.entry(ctx, rc)
	if err != nil {
		err = classify(rc, "entry failed", err)
		finish(ctx, op, err, rc)
		return "", err
	}

	var app bytes.Buffer
	if err := component.Render(WithCache(ctx, r.cache), &app); err != nil {
		err = classify(rc, "component render failed", err)
		finish(ctx, op, err, rc)
		return "", err
	}

	title := rc.Title
	if title == "" {
		title = DefaultTitle
	}

	head := r.manifest.ResourceHints(r.shouldPrefetch) + r.manifest.Styles() + rc.Head
	doc := r.template.Execute(PageData{
		Values: map[string]string{
			"title":     title,
			"lang":      rc.Lang,
			"hreflangs": rc.Hreflangs,
			"head":      head,
			"url":       rc.URL,
		},
		Scripts: r.manifest.Scripts(),
	}, app.String())

	op.End(ctx, "url", rc.URL, "bytes", len(doc))

	return doc, nil
}

// classify turns err into a RenderFailure where it happened, so the stack
// points into the render. Signals pass through untouched.
func classify(rc *Context, message string, err error) error {
	if errors.IsSignal(err) {
		return err
	}

	failure, ok := errors.AsRenderFailure(err)
	if !ok {
		failure = errors.NewRenderFailure(message, err)
	}
	if failure.Context == nil {
		failure.Context = map[string]interface{}{
			"url":  rc.URL,
			"lang": rc.Lang,
			"path": rc.Path,
		}
	}

	return failure
}

// finish logs redirects and misses quietly and real failures as errors.
func finish(ctx context.Context, op *logging.PerfLogger, err error, rc *Context) {
	if errors.IsSignal(err) {
		op.End(ctx, "url", rc.URL, "outcome", err.Error())
		return
	}
	op.EndWithError(ctx, err, "url", rc.URL)
}
