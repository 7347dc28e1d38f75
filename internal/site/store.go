package site

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/docsite/internal/errors"
)

// Product is one store item.
type Product struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	Price       float64 `yaml:"price"`
	Currency    string  `yaml:"currency"`
	URL         string  `yaml:"url"`
}

// loadProducts reads the store catalog. It runs on every store request so
// price and stock edits show up without a restart.
func loadProducts(contentDir string) ([]Product, error) {
	path := filepath.Join(contentDir, "store", "products.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO(err, errors.ErrCodeContentRead, "failed to read store products").
			WithFile(path)
	}

	var products []Product
	if err := yaml.Unmarshal(data, &products); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeContentRead, "failed to parse store products").
			WithFile(path)
	}

	return products, nil
}

// storePage resolves /store, /store/ and /store/<id>.
func (s *Site) storePage(lang, rest string) (string, templ.Component, error) {
	products, err := loadProducts(s.contentDir)
	if err != nil {
		return "", nil, err
	}

	id := strings.Trim(strings.TrimPrefix(rest, "/store"), "/")

	if id == "" {
		return "Store", ProductList(lang, products), nil
	}

	for _, p := range products {
		if p.ID == id {
			return p.Name, ProductDetail(p), nil
		}
	}

	return "", nil, errors.NewNotFound(rest)
}

func formatPrice(p Product) string {
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}

	return fmt.Sprintf("%.2f %s", p.Price, currency)
}

// ProductList renders the store index.
func ProductList(lang string, products []Product) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w, `<main class="app-content store"><h1>Store</h1>`); err != nil {
			return err
		}
		if len(products) == 0 {
			return write(w, `<p class="empty">No products available.</p></main>`)
		}
		if err := write(w, `<ul class="products">`); err != nil {
			return err
		}
		for _, p := range products {
			href := "/" + lang + "/store/" + p.ID
			if err := write(w,
				`<li><a href="`, templ.EscapeString(href), `">`, templ.EscapeString(p.Name), `</a>`,
				`<span class="price">`, templ.EscapeString(formatPrice(p)), `</span></li>`); err != nil {
				return err
			}
		}

		return write(w, `</ul></main>`)
	})
}

// ProductDetail renders a single product.
func ProductDetail(p Product) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if err := write(w,
			`<main class="app-content store"><article class="product"><h1>`, templ.EscapeString(p.Name), `</h1>`,
			`<p class="price">`, templ.EscapeString(formatPrice(p)), `</p>`,
			`<p>`, templ.EscapeString(p.Description), `</p>`); err != nil {
			return err
		}
		if p.URL != "" {
			if err := write(w, `<a class="buy" href="`, templ.EscapeString(string(templ.URL(p.URL))), `">Buy</a>`); err != nil {
				return err
			}
		}

		return write(w, `</article></main>`)
	})
}
