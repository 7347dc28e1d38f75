package microcache

import (
	"bytes"
	"net/http"
	"strings"
	"time"
)

// HeaderCache reports whether a response came from the micro-cache.
const HeaderCache = "X-Micro-Cache"

// replayHeaders are the response headers kept with an entry. Cookies are
// deliberately absent; they are set per request ahead of the cache.
var replayHeaders = []string{
	"Content-Type",
	"Content-Language",
	"Server",
	"Last-Modified",
	"Cache-Control",
}

// Predicate decides whether r may use the cache and under which key.
type Predicate func(r *http.Request) (key string, ok bool)

// Key is the normalized URL used as the cache key: path plus raw query as
// received.
func Key(r *http.Request) string {
	return r.URL.RequestURI()
}

// Middleware serves cached 200 responses and captures fresh ones. Requests
// for which cacheable reports false pass straight through. A replayed entry
// still answers conditional requests with 304.
func (c *Cache) Middleware(cacheable Predicate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet && r.Method != http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key, ok := cacheable(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			if entry, hit := c.Get(key); hit {
				c.replay(w, r, entry)
				return
			}

			rec := &recorder{ResponseWriter: w, status: http.StatusOK}
			w.Header().Set(HeaderCache, "MISS")
			next.ServeHTTP(rec, r)

			if !rec.wroteHeader || rec.status != http.StatusOK || r.Method == http.MethodHead {
				return
			}

			header := make(http.Header, len(replayHeaders))
			for _, name := range replayHeaders {
				if v := w.Header().Values(name); len(v) > 0 {
					header[name] = append([]string(nil), v...)
				}
			}
			c.Set(key, &Entry{
				Status: rec.status,
				Header: header,
				Body:   bytes.Clone(rec.body.Bytes()),
			})
		})
	}
}

func (c *Cache) replay(w http.ResponseWriter, r *http.Request, entry *Entry) {
	h := w.Header()
	for name, values := range entry.Header {
		h[name] = append([]string(nil), values...)
	}
	h.Set(HeaderCache, "HIT")

	if lm, err := http.ParseTime(entry.Header.Get("Last-Modified")); err == nil && IsFresh(r, lm) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.WriteHeader(entry.Status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(entry.Body)
	}
}

// IsFresh reports whether r's conditional headers cover lastModified, at
// the one second resolution of HTTP dates. Responses carry no ETag, so any
// If-None-Match other than "*" makes the request stale, as does
// Cache-Control: no-cache.
func IsFresh(r *http.Request, lastModified time.Time) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	ims := r.Header.Get("If-Modified-Since")
	inm := strings.TrimSpace(r.Header.Get("If-None-Match"))
	if (ims == "" && inm == "") || lastModified.IsZero() {
		return false
	}
	if noCache(r.Header.Values("Cache-Control")) {
		return false
	}
	if inm != "" && inm != "*" {
		return false
	}
	if ims == "" {
		return true
	}
	t, err := http.ParseTime(ims)
	if err != nil {
		return false
	}

	return !lastModified.Truncate(time.Second).After(t)
}

func noCache(values []string) bool {
	for _, v := range values {
		for _, directive := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "no-cache") {
				return true
			}
		}
	}

	return false
}

// recorder tees the body while passing everything through.
type recorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(b)

	return r.ResponseWriter.Write(b)
}

func (r *recorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
