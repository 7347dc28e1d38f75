// Package site builds the page components for the documentation site.
//
// Pages come from Markdown files under content/<lang>/, converted with
// goldmark. A page missing in the requested language falls back to the
// default language. The store section is generated from
// content/store/products.yml, which is re-read on every request.
package site

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/yuin/goldmark"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/docsite/internal/errors"
	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/logging"
	"github.com/conneroisu/docsite/internal/renderer"
)

// Options configure a Site.
type Options struct {
	ContentDir      string
	Catalog         *i18n.Catalog
	DefaultLanguage string
	Title           string
	Logger          logging.Logger
}

// Site resolves request contexts to page components.
type Site struct {
	contentDir  string
	catalog     *i18n.Catalog
	defaultLang string
	title       string
	md          goldmark.Markdown
	logger      logging.Logger
}

// New creates a Site.
func New(opts Options) *Site {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = i18n.DefaultLanguage
	}
	if opts.Title == "" {
		opts.Title = renderer.DefaultTitle
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	return &Site{
		contentDir:  opts.ContentDir,
		catalog:     opts.Catalog,
		defaultLang: opts.DefaultLanguage,
		title:       opts.Title,
		md:          newMarkdown(),
		logger:      opts.Logger.WithComponent("site"),
	}
}

// Entry is the renderer.Entry for the site.
//
// A code that passes the prefix grammar but is not in the catalog is
// redirected to the same path under the default language.
func (s *Site) Entry(ctx context.Context, rc *renderer.Context) (templ.Component, error) {
	if !s.catalog.Contains(rc.Lang) {
		target := "/" + s.defaultLang + rc.Path
		if rc.Path == "" {
			target += "/"
		}
		return nil, errors.NewRedirect(target)
	}

	var (
		title string
		body  templ.Component
		err   error
	)
	if rc.Path == "/store" || strings.HasPrefix(rc.Path, "/store/") {
		title, body, err = s.storePage(rc.Lang, rc.Path)
	} else {
		title, body, err = s.documentPage(rc)
	}
	if err != nil {
		return nil, err
	}

	if title != "" && title != s.title {
		rc.Title = title + " | " + s.title
	} else {
		rc.Title = s.title
	}

	return Layout(rc,
		renderer.Cached("header:"+rc.Lang, Header(s.title, rc.Lang)),
		LanguageSwitcher(s.catalog, rc.Lang, rc.Path),
		body,
		renderer.Cached("footer:"+rc.Lang, Footer(s.title, rc.Lang)),
	), nil
}

func (s *Site) documentPage(rc *renderer.Context) (string, templ.Component, error) {
	slug, err := cleanSlug(rc.Path)
	if err != nil {
		return "", nil, errors.NewNotFound(rc.Path)
	}

	src, err := s.readDocument(rc.Lang, slug)
	if err != nil {
		return "", nil, err
	}
	if src == nil {
		return "", nil, errors.NewNotFound(rc.Path)
	}

	doc, err := convert(s.md, src)
	if err != nil {
		return "", nil, errors.NewRenderFailure("failed to convert "+slug, err)
	}

	if doc.Redirect != "" {
		target := doc.Redirect
		if strings.HasPrefix(target, "/") {
			if _, _, ok := i18n.ParsePrefix(target); !ok {
				target = "/" + rc.Lang + target
			}
		}
		return "", nil, errors.NewRedirect(target)
	}

	body, err := localizeLinks(doc.HTML, rc.Lang)
	if err != nil {
		return "", nil, errors.NewRenderFailure("failed to rewrite links in "+slug, err)
	}

	title := doc.Title
	if title == "" {
		title = titleFromSlug(slug, rc.Lang)
	}
	if doc.Description != "" {
		rc.Head += `<meta name="description" content="` + templ.EscapeString(doc.Description) + `">`
	}

	return title, Article(title, body), nil
}

// readDocument returns the Markdown source for slug in lang, falling back
// to the default language. A nil slice means no such page.
func (s *Site) readDocument(lang, slug string) ([]byte, error) {
	langs := []string{lang}
	if lang != s.defaultLang {
		langs = append(langs, s.defaultLang)
	}

	for _, l := range langs {
		for _, candidate := range []string{slug + ".md", path.Join(slug, "index.md")} {
			file := filepath.Join(s.contentDir, l, filepath.FromSlash(candidate))
			data, err := os.ReadFile(file)
			if err == nil {
				if l != lang {
					s.logger.Debug(context.Background(), "Falling back to default language",
						"lang", lang, "slug", slug)
				}
				return data, nil
			}
			if !os.IsNotExist(err) {
				return nil, errors.WrapIO(err, errors.ErrCodeContentRead, "failed to read document").
					WithFile(file)
			}
		}
	}

	return nil, nil
}

// cleanSlug turns a remainder path into a content slug. "" and "/" are the
// index page. Paths that would leave the content tree are rejected.
func cleanSlug(rest string) (string, error) {
	trimmed := strings.Trim(rest, "/")
	if trimmed == "" {
		return "index", nil
	}

	cleaned := path.Clean("/" + trimmed)
	if cleaned != "/"+trimmed || strings.Contains(trimmed, "\\") {
		return "", errors.NewValidationError(errors.ErrCodeContentRead, "invalid content path "+rest)
	}
	for _, seg := range strings.Split(trimmed, "/") {
		if strings.HasPrefix(seg, ".") || strings.HasPrefix(seg, "_") {
			return "", errors.NewValidationError(errors.ErrCodeContentRead, "hidden content path "+rest)
		}
	}

	return trimmed, nil
}

// titleFromSlug makes "getting-started/quick-start" read "Quick Start".
func titleFromSlug(slug, lang string) string {
	last := path.Base(slug)
	if last == "index" {
		dir := path.Dir(slug)
		if dir == "." {
			return ""
		}
		last = path.Base(dir)
	}

	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}

	return cases.Title(tag).String(strings.ReplaceAll(last, "-", " "))
}
