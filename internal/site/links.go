package site

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/docsite/internal/i18n"
)

// Paths served outside the language space keep their links untouched.
var unprefixedRoots = []string{"/dist/", "/releases/", "/themes/", "/api/", "/favicon.ico", "/sitemap.xml"}

// localizeLinks prefixes root-relative links in fragment with /<lang> unless
// they already carry a language prefix or point at static files.
func localizeLinks(fragment, lang string) (string, error) {
	context := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), context)
	if err != nil {
		return "", err
	}

	changed := false
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for i, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if href, ok := localizeHref(attr.Val, lang); ok {
					n.Attr[i].Val = href
					changed = true
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}

	if !changed {
		return fragment, nil
	}

	var b strings.Builder
	for _, n := range nodes {
		if err := html.Render(&b, n); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func localizeHref(href, lang string) (string, bool) {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return "", false
	}

	path := href
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if _, _, ok := i18n.ParsePrefix(path); ok {
		return "", false
	}
	for _, root := range unprefixedRoots {
		if path == strings.TrimSuffix(root, "/") || strings.HasPrefix(path, root) {
			return "", false
		}
	}

	return "/" + lang + href, true
}
