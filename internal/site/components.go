package site

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"

	"github.com/conneroisu/docsite/internal/i18n"
	"github.com/conneroisu/docsite/internal/renderer"
)

// write emits each fragment in turn, stopping at the first error.
func write(w io.Writer, parts ...string) error {
	for _, p := range parts {
		if _, err := io.WriteString(w, p); err != nil {
			return err
		}
	}

	return nil
}

// Layout is the application shell around every page.
func Layout(rc *renderer.Context, header, switcher, body, footer templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<div id="app" data-lang="`, templ.EscapeString(rc.Lang), `">`); err != nil {
			return err
		}
		for _, c := range []templ.Component{header, switcher, body, footer} {
			if c == nil {
				continue
			}
			if err := c.Render(ctx, w); err != nil {
				return err
			}
		}

		return write(w, `</div>`)
	})
}

// Header renders the site title and the top navigation for lang.
func Header(siteTitle, lang string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		home := "/" + lang + "/"
		return write(w,
			`<header class="app-header"><a class="brand" href="`, templ.EscapeString(home), `">`,
			templ.EscapeString(siteTitle), `</a><nav><ul>`,
			`<li><a href="`, templ.EscapeString(home), `">Docs</a></li>`,
			`<li><a href="`, templ.EscapeString(home+"store"), `">Store</a></li>`,
			`</ul></nav></header>`)
	})
}

// LanguageSwitcher links the current page in every catalog language.
func LanguageSwitcher(catalog *i18n.Catalog, current, rest string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<ul class="language-switcher">`); err != nil {
			return err
		}
		for _, l := range catalog.Languages() {
			label := l.Title
			if label == "" {
				label = l.Locale
			}
			class := ""
			if l.Locale == current {
				class = ` class="active"`
			}
			href := "/" + l.Locale + rest
			if rest == "" {
				href += "/"
			}
			if err := write(w,
				`<li`, class, `><a href="`, templ.EscapeString(href), `" hreflang="`,
				templ.EscapeString(l.Locale), `">`, templ.EscapeString(label), `</a></li>`); err != nil {
				return err
			}
		}

		return write(w, `</ul>`)
	})
}

// Article wraps converted document markup.
func Article(title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<main class="app-content"><article>`); err != nil {
			return err
		}
		if title != "" {
			if err := write(w, `<h1>`, templ.EscapeString(title), `</h1>`); err != nil {
				return err
			}
		}

		return write(w, body, `</article></main>`)
	})
}

// Footer renders the page footer for lang.
func Footer(siteTitle, lang string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return write(w,
			`<footer class="app-footer" lang="`, templ.EscapeString(lang), `">`,
			templ.EscapeString(fmt.Sprintf("%s documentation", siteTitle)),
			`</footer>`)
	})
}
