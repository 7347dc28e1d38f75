package server

import (
	"context"
	"time"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/livereload"
	"github.com/conneroisu/docsite/internal/logging"
	"github.com/conneroisu/docsite/internal/renderer"
	"github.com/conneroisu/docsite/internal/watcher"
)

// BuildFunc builds a fresh renderer from the files on disk.
type BuildFunc func(ctx context.Context) (renderer.Renderer, error)

// ReloaderOptions configure a Reloader.
type ReloaderOptions struct {
	Template   string
	Manifest   string
	ContentDir string
	Build      BuildFunc
	Hub        *livereload.Hub
	Logger     logging.Logger
	Delay      time.Duration
}

// Reloader rebuilds the renderer in development whenever the template, the
// client manifest or the content tree changes. Each successful build is
// published on Updates and connected browsers are told to reload.
type Reloader struct {
	opts    ReloaderOptions
	updates chan renderer.Renderer
	watcher *watcher.FileWatcher
	logger  logging.Logger
}

// NewReloader creates a reloader and its file watcher.
func NewReloader(opts ReloaderOptions) (*Reloader, error) {
	if opts.Build == nil {
		return nil, errors.NewValidationError(errors.ErrCodeInternalFailure, "reloader needs a build function")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Delay <= 0 {
		opts.Delay = 100 * time.Millisecond
	}

	logger := opts.Logger.WithComponent("reloader")
	fw, err := watcher.New(opts.Delay, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.SiteFilter())

	rl := &Reloader{
		opts:    opts,
		updates: make(chan renderer.Renderer, 1),
		watcher: fw,
		logger:  logger,
	}
	fw.AddHandler(rl.onChange)

	return rl, nil
}

// Updates delivers each rebuilt renderer. Only the newest pending build is
// kept.
func (rl *Reloader) Updates() <-chan renderer.Renderer {
	return rl.updates
}

// Start performs the first build and starts watching. A failed first build
// is logged; requests keep waiting until a later change builds cleanly.
func (rl *Reloader) Start(ctx context.Context) error {
	for _, file := range []string{rl.opts.Template, rl.opts.Manifest} {
		if file == "" {
			continue
		}
		if err := rl.watcher.AddPath(file); err != nil {
			rl.logger.Warn(ctx, err, "Not watching file", "file", file)
		}
	}
	if rl.opts.ContentDir != "" {
		if err := rl.watcher.AddRecursive(rl.opts.ContentDir); err != nil {
			rl.logger.Warn(ctx, err, "Not watching content", "dir", rl.opts.ContentDir)
		}
	}

	rl.rebuild(ctx, "initial build")
	rl.watcher.Start(ctx)

	go func() {
		<-ctx.Done()
		if err := rl.watcher.Stop(); err != nil {
			rl.logger.Warn(context.Background(), err, "Stopping watcher failed")
		}
	}()

	return nil
}

func (rl *Reloader) onChange(ctx context.Context, events []watcher.ChangeEvent) error {
	reason := events[0].String()
	if len(events) > 1 {
		reason = events[0].Path + " and others"
	}
	rl.rebuild(ctx, reason)

	return nil
}

func (rl *Reloader) rebuild(ctx context.Context, reason string) {
	op := logging.StartOperation(rl.logger, "rebuild")

	r, err := rl.opts.Build(ctx)
	if err != nil {
		op.EndWithError(ctx, err, "reason", reason)
		if rl.opts.Hub != nil {
			rl.opts.Hub.Broadcast(livereload.Message{Type: livereload.TypeBuildError, Reason: err.Error()})
		}
		return
	}

	rl.publish(r)
	op.End(ctx, "reason", reason)
	if rl.opts.Hub != nil {
		rl.opts.Hub.Reload(reason)
	}
}

// publish replaces any build the server has not picked up yet.
func (rl *Reloader) publish(r renderer.Renderer) {
	select {
	case <-rl.updates:
	default:
	}
	rl.updates <- r
}
