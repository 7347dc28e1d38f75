package server

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/docsite/internal/renderer"
)

// rendererSlot holds the renderer requests use. It starts empty in
// development, where requests wait for the first build, and is replaced
// only through the channel passed to Follow.
type rendererSlot struct {
	current atomic.Pointer[slotValue]
	ready   chan struct{}
	once    sync.Once
	now     func() time.Time
}

type slotValue struct {
	r           renderer.Renderer
	installedAt time.Time
}

func newRendererSlot() *rendererSlot {
	return &rendererSlot{ready: make(chan struct{}), now: time.Now}
}

// install swaps in r and releases waiting requests.
func (s *rendererSlot) install(r renderer.Renderer) {
	s.installAt(r, s.now())
}

func (s *rendererSlot) installAt(r renderer.Renderer, at time.Time) {
	s.current.Store(&slotValue{r: r, installedAt: at.UTC().Truncate(time.Second)})
	s.once.Do(func() { close(s.ready) })
}

// installedAt reports when the current renderer was installed.
func (s *rendererSlot) installedAt() (time.Time, bool) {
	v := s.current.Load()
	if v == nil {
		return time.Time{}, false
	}

	return v.installedAt, true
}

// Wait returns the current renderer, blocking until one is installed or
// ctx is done.
func (s *rendererSlot) Wait(ctx context.Context) (renderer.Renderer, error) {
	select {
	case <-s.ready:
		return s.current.Load().r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Follow installs every renderer received on updates until updates is
// closed or ctx is done.
func (s *rendererSlot) Follow(ctx context.Context, updates <-chan renderer.Renderer) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-updates:
			if !ok {
				return
			}
			if r != nil {
				s.install(r)
			}
		}
	}
}
