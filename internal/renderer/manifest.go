package renderer

import (
	"encoding/json"
	"fmt"
	"html"
	"os"
	"path"
	"strings"

	"github.com/conneroisu/docsite/internal/errors"
)

// ClientManifest lists the client bundle files produced by the front-end
// build. Only the fields the renderer uses are decoded.
type ClientManifest struct {
	PublicPath string   `json:"publicPath"`
	All        []string `json:"all"`
	Initial    []string `json:"initial"`
	Async      []string `json:"async"`
}

// LoadManifest reads a client manifest file.
func LoadManifest(file string) (*ClientManifest, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeManifestLoad, "failed to read client manifest").
			WithFile(file)
	}

	var m ClientManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeManifestLoad, "failed to parse client manifest").
			WithFile(file)
	}
	if m.PublicPath == "" {
		m.PublicPath = "/dist/"
	}

	return &m, nil
}

func (m *ClientManifest) url(file string) string {
	if strings.HasPrefix(m.PublicPath, "http://") || strings.HasPrefix(m.PublicPath, "https://") {
		return strings.TrimSuffix(m.PublicPath, "/") + "/" + file
	}

	return path.Join("/", m.PublicPath, file)
}

// ResourceHints returns preload links for the initial files and, when
// prefetch is set, prefetch links for async chunks.
func (m *ClientManifest) ResourceHints(prefetch bool) string {
	if m == nil {
		return ""
	}

	var b strings.Builder
	for _, file := range m.Initial {
		if as := preloadType(file); as != "" {
			fmt.Fprintf(&b, `<link rel="preload" href="%s" as="%s">`, html.EscapeString(m.url(file)), as)
		}
	}

	if prefetch {
		for _, file := range m.Async {
			if preloadType(file) == "" {
				continue
			}
			fmt.Fprintf(&b, `<link rel="prefetch" href="%s">`, html.EscapeString(m.url(file)))
		}
	}

	return b.String()
}

// Styles returns stylesheet links for the initial CSS files.
func (m *ClientManifest) Styles() string {
	if m == nil {
		return ""
	}

	var b strings.Builder
	for _, file := range m.Initial {
		if strings.HasSuffix(file, ".css") {
			fmt.Fprintf(&b, `<link rel="stylesheet" href="%s">`, html.EscapeString(m.url(file)))
		}
	}

	return b.String()
}

// Scripts returns deferred script tags for the initial JS files.
func (m *ClientManifest) Scripts() string {
	if m == nil {
		return ""
	}

	var b strings.Builder
	for _, file := range m.Initial {
		if strings.HasSuffix(file, ".js") {
			fmt.Fprintf(&b, `<script src="%s" defer></script>`, html.EscapeString(m.url(file)))
		}
	}

	return b.String()
}

func preloadType(file string) string {
	switch {
	case strings.HasSuffix(file, ".js"):
		return "script"
	case strings.HasSuffix(file, ".css"):
		return "style"
	case strings.HasSuffix(file, ".woff2"), strings.HasSuffix(file, ".woff"):
		return "font"
	default:
		return ""
	}
}
