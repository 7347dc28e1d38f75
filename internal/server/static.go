package server

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

// publicFiles serves a file from the public directory when one matches the
// request path and hands everything else on.
func (s *Server) publicFiles(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !serveStatic(w, r, s.config.Site.PublicDir, r.URL.Path, s.assetMaxAge(), "") {
			next.ServeHTTP(w, r)
		}
	})
}

// staticMount serves files below prefix from dir. Misses fall through to
// the page handler, as they would past an unmatched static mount.
func (s *Server) staticMount(prefix, dir string, maxAge time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, prefix)
		if !serveStatic(w, r, dir, name, maxAge, "") {
			s.handlePage(w, r)
		}
	}
}

// release serves a release note as HTML whatever its extension.
func (s *Server) release(w http.ResponseWriter, r *http.Request) {
	name := "/" + chi.URLParam(r, "release")
	if !serveStatic(w, r, s.config.Site.ReleasesDir, name, 0, "text/html; charset=utf-8") {
		http.NotFound(w, r)
	}
}

// serveFile serves one configured file.
func (s *Server) serveFile(file string, maxAge time.Duration, contentType string) http.HandlerFunc {
	dir, name := filepath.Split(file)
	if dir == "" {
		dir = "."
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !serveStatic(w, r, dir, "/"+name, maxAge, contentType) {
			http.NotFound(w, r)
		}
	}
}

// serveStatic writes the regular file name below dir and reports whether it
// did. Dot files and directories are never served.
func serveStatic(w http.ResponseWriter, r *http.Request, dir, name string, maxAge time.Duration, contentType string) bool {
	if dir == "" || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
		return false
	}
	if hiddenPath(name) {
		return false
	}

	f, err := http.Dir(dir).Open(name)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		return false
	}

	w.Header().Set("Cache-Control", cacheControl(maxAge))
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)

	return true
}

func hiddenPath(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}

	return false
}

func cacheControl(maxAge time.Duration) string {
	return fmt.Sprintf("public, max-age=%d", int64(maxAge/time.Second))
}
