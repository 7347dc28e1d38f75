// Package livereload tells connected browsers to reload after the
// development server rebuilds its renderer.
package livereload

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/conneroisu/docsite/internal/logging"
)

// Path is where the reload socket is mounted.
const Path = "/__livereload"

const (
	writeWait      = 10 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16
)

// Message is sent to the browser as JSON.
type Message struct {
	Type      string    `json:"type"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message types.
const (
	TypeReload     = "reload"
	TypeBuildError = "build_error"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans reload messages out to every connected browser.
type Hub struct {
	logger         logging.Logger
	originPatterns []string

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a hub. originPatterns follow websocket.AcceptOptions;
// an empty list only admits same-origin browsers.
func NewHub(logger logging.Logger, originPatterns ...string) *Hub {
	if logger == nil {
		logger = logging.Discard()
	}

	return &Hub{
		logger:         logger.WithComponent("livereload"),
		originPatterns: originPatterns,
		register:       make(chan *client),
		unregister:     make(chan *client),
		broadcast:      make(chan []byte, 8),
		done:           make(chan struct{}),
		clients:        make(map[*client]struct{}),
	}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Run serves the hub until ctx is done, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(ctx, "Browser connected", "clients", n)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug(ctx, "Browser disconnected", "clients", n)

		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Too slow to keep up; it will reconnect.
					delete(h.clients, c)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues msg for every connected browser.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		data = []byte(`{"type":"reload"}`)
	}

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn(context.Background(), nil, "Reload broadcast dropped", "type", msg.Type)
	}
}

// Reload tells every browser to reload the page.
func (h *Hub) Reload(reason string) {
	h.Broadcast(Message{Type: TypeReload, Reason: reason})
}

// ServeHTTP upgrades the request and registers the browser.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	// The request context ends when the handler returns, so the pumps run
	// on their own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	go h.writePump(ctx, c)
	go func() {
		defer cancel()
		h.readPump(ctx, c)
	}()

	select {
	case h.register <- c:
	case <-h.done:
		cancel()
	}
}

// readPump drains the socket; browsers never send anything meaningful.
func (h *Hub) readPump(ctx context.Context, c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		_, _, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway {
				h.logger.Debug(ctx, "WebSocket read ended", "error", err.Error())
			}
			return
		}
	}
}

func (h *Hub) writePump(ctx context.Context, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				return
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// Script is the client snippet injected into development pages.
func Script() string {
	return `<script>(function(){var p=location.protocol==="https:"?"wss:":"ws:";` +
		`function c(){var s=new WebSocket(p+"//"+location.host+"` + Path + `");` +
		`s.onmessage=function(e){var m=JSON.parse(e.data);if(m.type==="reload"){location.reload();}` +
		`else if(m.type==="build_error"){console.error(m.reason);}};` +
		`s.onclose=function(){setTimeout(c,1000);};}c();})();</script>`
}
