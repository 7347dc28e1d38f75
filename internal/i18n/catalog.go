// Package i18n owns the language catalog and the URL prefix grammar that
// every rendered page lives under.
package i18n

import (
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docsite/internal/errors"
)

// DefaultLanguage is the fallback when neither the cookie nor the
// Accept-Language header yields a usable code.
const DefaultLanguage = "en"

// prefixPattern matches /<lang>[/<rest>]. A code is 2-3 lowercase letters,
// optionally followed by a 4 letter script subtag or a 2-3 letter uppercase
// region subtag.
var prefixPattern = regexp.MustCompile(`^/([a-z]{2,3}|[a-z]{2,3}-[A-Za-z]{4}|[a-z]{2,3}-[A-Z]{2,3})(/.*)?$`)

// Language is one catalog entry. Only Locale is required.
type Language struct {
	Locale    string `yaml:"locale" json:"locale"`
	Name      string `yaml:"name" json:"name"`
	Title     string `yaml:"title" json:"title"`
	Alternate string `yaml:"alternate" json:"alternate"`
}

// Catalog is the ordered set of languages the site renders.
type Catalog struct {
	languages []Language
	index     map[string]int
	tags      []language.Tag
	matcher   language.Matcher
}

// NewCatalog builds a catalog. Order is preserved; duplicates and codes
// outside the prefix grammar are rejected.
func NewCatalog(languages []Language) (*Catalog, error) {
	c := &Catalog{
		languages: make([]Language, 0, len(languages)),
		index:     make(map[string]int, len(languages)),
		tags:      make([]language.Tag, 0, len(languages)),
	}

	for _, lang := range languages {
		if !ValidCode(lang.Locale) {
			return nil, fmt.Errorf("invalid locale %q", lang.Locale)
		}
		if _, dup := c.index[lang.Locale]; dup {
			return nil, fmt.Errorf("duplicate locale %q", lang.Locale)
		}

		tag, err := language.Parse(lang.Locale)
		if err != nil {
			// The grammar admits codes x/text does not know; they can
			// still be routed, just never negotiated.
			tag = language.Und
		}

		c.index[lang.Locale] = len(c.languages)
		c.languages = append(c.languages, lang)
		c.tags = append(c.tags, tag)
	}
	c.matcher = language.NewMatcher(c.tags)

	return c, nil
}

// MustCatalog is NewCatalog for fixed locale lists known to be valid.
func MustCatalog(locales ...string) *Catalog {
	languages := make([]Language, 0, len(locales))
	for _, l := range locales {
		languages = append(languages, Language{Locale: l})
	}
	c, err := NewCatalog(languages)
	if err != nil {
		panic(err)
	}

	return c
}

// Load reads a catalog file: a JSON or YAML list of language objects.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeLanguagesLoad, "failed to read language catalog").
			WithFile(path)
	}

	var languages []Language
	if err := yaml.Unmarshal(data, &languages); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeLanguagesLoad, "failed to parse language catalog").
			WithFile(path)
	}
	if len(languages) == 0 {
		return nil, errors.NewValidationError(errors.ErrCodeLanguagesLoad, "language catalog is empty").
			WithFile(path)
	}

	c, err := NewCatalog(languages)
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeLanguagesLoad, "invalid language catalog").
			WithFile(path)
	}

	return c, nil
}

// ParsePrefix splits path into its language code and the remainder. The
// remainder keeps its leading slash and is empty for "/<lang>". Catalog
// membership is not checked.
func ParsePrefix(path string) (lang, rest string, ok bool) {
	m := prefixPattern.FindStringSubmatch(path)
	if m == nil {
		return "", "", false
	}

	return m[1], m[2], true
}

// ValidCode reports whether code is acceptable as a URL prefix.
func ValidCode(code string) bool {
	return prefixPattern.MatchString("/" + code)
}

// Contains reports whether code is in the catalog.
func (c *Catalog) Contains(code string) bool {
	_, ok := c.index[code]
	return ok
}

// Locales returns the catalog codes in order.
func (c *Catalog) Locales() []string {
	out := make([]string, len(c.languages))
	for i, l := range c.languages {
		out[i] = l.Locale
	}

	return out
}

// Languages returns a copy of the catalog entries.
func (c *Catalog) Languages() []Language {
	out := make([]Language, len(c.languages))
	copy(out, c.languages)

	return out
}

// Negotiate picks the catalog entry that best serves an Accept-Language
// header value. ok is false when nothing in the header matches.
func (c *Catalog) Negotiate(acceptLanguage string) (string, bool) {
	if strings.TrimSpace(acceptLanguage) == "" || len(c.languages) == 0 {
		return "", false
	}

	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "", false
	}

	_, index, confidence := c.matcher.Match(tags...)
	if confidence == language.No {
		return "", false
	}

	return c.languages[index].Locale, true
}

// Alternates returns one <link rel="alternate"> per catalog entry pointing
// at the same remainder path under each language.
func (c *Catalog) Alternates(hostname, rest string) string {
	var b strings.Builder
	for _, l := range c.languages {
		fmt.Fprintf(&b, `<link rel="alternate" hreflang="%s" href="https://%s/%s%s" />`,
			html.EscapeString(l.Locale), html.EscapeString(hostname),
			html.EscapeString(l.Locale), html.EscapeString(rest))
	}

	return b.String()
}
