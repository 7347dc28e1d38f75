package renderer

import (
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/conneroisu/docsite/internal/errors"
)

// OutletMarker is where the rendered app markup goes.
const OutletMarker = "<!--ssr-outlet-->"

// Interpolations look like {{ name }} (escaped) or {{{ name }}} (raw).
var interpolation = regexp.MustCompile(`\{\{\{\s*(\w+)\s*\}\}\}|\{\{\s*(\w+)\s*\}\}`)

// Values that are markup already and are never escaped.
var rawValues = map[string]bool{"head": true, "hreflangs": true}

// PageTemplate is a parsed index template split around the outlet.
type PageTemplate struct {
	head    string
	tail    string
	hasHead bool
}

// LoadTemplate reads and parses a page template file.
func LoadTemplate(file string) (*PageTemplate, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeTemplateLoad, "failed to read page template").
			WithFile(file)
	}

	t, err := ParseTemplate(string(data))
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeTemplateLoad, "invalid page template").
			WithFile(file)
	}

	return t, nil
}

// ParseTemplate splits src around the outlet marker.
func ParseTemplate(src string) (*PageTemplate, error) {
	head, tail, ok := strings.Cut(src, OutletMarker)
	if !ok {
		return nil, errors.NewValidationError(errors.ErrCodeTemplateLoad,
			"page template has no "+OutletMarker+" marker")
	}

	t := &PageTemplate{head: head, tail: tail}
	for _, m := range interpolation.FindAllStringSubmatch(src, -1) {
		if m[1] == "head" || m[2] == "head" {
			t.hasHead = true
		}
	}

	return t, nil
}

// PageData is what the template can interpolate. Values["head"] holds the
// resource links and extra head markup; templates without a head
// placeholder get it injected before </head>.
type PageData struct {
	Values  map[string]string
	Scripts string
}

// Execute assembles the document: the app markup replaces the outlet and
// the scripts follow it.
func (t *PageTemplate) Execute(data PageData, app string) string {
	head := interpolate(t.head, data.Values)
	tail := interpolate(t.tail, data.Values)

	if !t.hasHead {
		if i := strings.Index(strings.ToLower(head), "</head>"); i >= 0 {
			head = head[:i] + data.Values["head"] + head[i:]
		} else {
			head += data.Values["head"]
		}
	}

	var b strings.Builder
	b.Grow(len(head) + len(app) + len(data.Scripts) + len(tail))
	b.WriteString(head)
	b.WriteString(app)
	b.WriteString(data.Scripts)
	b.WriteString(tail)

	return b.String()
}

func interpolate(s string, values map[string]string) string {
	return interpolation.ReplaceAllStringFunc(s, func(match string) string {
		m := interpolation.FindStringSubmatch(match)
		if m[1] != "" {
			return values[m[1]]
		}
		if rawValues[m[2]] {
			return values[m[2]]
		}

		return html.EscapeString(values[m[2]])
	})
}
