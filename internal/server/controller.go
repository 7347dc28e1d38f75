package server

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/livereload"
	"github.com/conneroisu/docsite/internal/microcache"
	"github.com/conneroisu/docsite/internal/renderer"
)

const (
	// CookieLanguage remembers the last language a visitor browsed.
	CookieLanguage = "currentLanguage"

	languageCookieAge = 7 * 24 * time.Hour
)

// handlePage runs the page pipeline: redirect table, language prefix,
// negotiation for unprefixed paths, then the cached render.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if target, ok := s.redirects.Lookup(r.URL.Path); ok {
		http.Redirect(w, r, target, http.StatusMovedPermanently)
		return
	}

	lang, _, ok := i18n.ParsePrefix(r.URL.Path)
	if !ok {
		http.Redirect(w, r, "/"+s.negotiate(r)+r.URL.RequestURI(), http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:    CookieLanguage,
		Value:   lang,
		Path:    "/",
		MaxAge:  int(languageCookieAge / time.Second),
		Expires: time.Now().Add(languageCookieAge),
	})

	s.pages.ServeHTTP(w, r)
}

// negotiate picks the language for an unprefixed request: a cookie naming a
// catalog language, then the best Accept-Language match, then the default.
func (s *Server) negotiate(r *http.Request) string {
	lang := s.defaultLang
	if c, err := r.Cookie(CookieLanguage); err == nil && s.catalog.Contains(c.Value) {
		lang = c.Value
	} else if match, ok := s.catalog.Negotiate(r.Header.Get("Accept-Language")); ok {
		lang = match
	}

	if !i18n.ValidCode(lang) {
		lang = i18n.DefaultLanguage
	}

	return lang
}

// cacheable keeps store pages out of the micro-cache.
func (s *Server) cacheable(r *http.Request) (string, bool) {
	_, rest, ok := i18n.ParsePrefix(r.URL.Path)
	if !ok || strings.Contains(rest, "store") {
		return "", false
	}

	return microcache.Key(r), true
}

func isStorePath(rest string) bool {
	return strings.HasPrefix(rest, "/store")
}

// render produces the document for a prefixed path.
func (s *Server) render(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lang, rest, _ := i18n.ParsePrefix(r.URL.Path)

	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Server", s.serverHeader)

	if !isStorePath(rest) {
		modified := s.lastModified()
		h.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
		h.Set("Cache-Control", "public, must-revalidate")
		if microcache.IsFresh(r, modified) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	current, err := s.slot.Wait(r.Context())
	if err != nil {
		return
	}

	rc := s.requestContext(r, lang, rest)

	select {
	case res := <-renderer.Render(context.WithoutCancel(r.Context()), current, rc):
		if res.Err != nil {
			s.present(w, r, rc, res.Err)
			return
		}
		_, _ = w.Write([]byte(res.HTML))
	case <-r.Context().Done():
		s.logger.Debug(r.Context(), "Client went away before render finished", "url", rc.URL)
		return
	}

	if !s.config.IsProduction() {
		s.logger.Info(r.Context(), "Whole request",
			"url", rc.URL,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// lastModified is the process start time. In development it moves to the
// install time of the current renderer so a rebuild is never answered 304.
func (s *Server) lastModified() time.Time {
	if s.config.IsProduction() {
		return s.startTime
	}
	if installed, ok := s.slot.installedAt(); ok && installed.After(s.startTime) {
		return installed
	}

	return s.startTime
}

func (s *Server) requestContext(r *http.Request, lang, rest string) *renderer.Context {
	hostname := hostWithoutPort(r.Host)
	rc := &renderer.Context{
		Title:     s.config.Site.Title,
		Hostname:  hostname,
		URL:       r.URL.RequestURI(),
		Lang:      lang,
		Path:      rest,
		Hreflangs: s.catalog.Alternates(hostname, rest),
		Store:     isStorePath(rest),
	}
	if s.hub != nil && !s.config.IsProduction() {
		rc.Head = livereload.Script()
	}

	return rc
}

func hostWithoutPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}

	return host
}
