package site

import (
	"bytes"
	"fmt"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer/html"
)

// Document is one converted Markdown page.
type Document struct {
	HTML        string
	Title       string
	Description string
	Redirect    string
	Meta        map[string]interface{}
}

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			meta.Meta,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
		goldmark.WithRendererOptions(
			html.WithUnsafe(),
		),
	)
}

// convert renders src and pulls the known front matter keys out.
func convert(md goldmark.Markdown, src []byte) (*Document, error) {
	var buf bytes.Buffer
	pc := parser.NewContext()
	if err := md.Convert(src, &buf, parser.WithContext(pc)); err != nil {
		return nil, fmt.Errorf("convert markdown: %w", err)
	}

	fm, err := meta.TryGet(pc)
	if err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}

	doc := &Document{HTML: buf.String(), Meta: fm}
	doc.Title = stringValue(fm, "title")
	doc.Description = stringValue(fm, "description")
	doc.Redirect = stringValue(fm, "redirect")

	return doc, nil
}

func stringValue(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok && v != nil {
		return fmt.Sprint(v)
	}

	return ""
}
