// internal/scraper/extractor.go
package scraper

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// FieldExtractor applies a name to CSS selector mapping to page markup.
type FieldExtractor struct {
	selectors map[string]string
}

// NewFieldExtractor creates an extractor for selectors.
func NewFieldExtractor(selectors map[string]string) *FieldExtractor {
	return &FieldExtractor{selectors: selectors}
}

// Selectors returns the configured field names in sorted order.
func (fe *FieldExtractor) Selectors() []string {
	names := make([]string, 0, len(fe.selectors))
	for name := range fe.selectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Enrich parses page.HTML and fills in Title and Fields.
func (fe *FieldExtractor) Enrich(page *Page) error {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.HTML))
	if err != nil {
		return fmt.Errorf("failed to parse HTML: %w", err)
	}
	page.Title = ExtractTitle(doc)
	if len(fe.selectors) > 0 {
		page.Fields = fe.Extract(doc)
	}
	return nil
}

// Extract evaluates every selector. A single match yields its trimmed text, several
// matches yield a list, and no match yields nil. A selector ending in "@attr"
// reads that attribute instead of the text.
func (fe *FieldExtractor) Extract(doc *goquery.Document) map[string]interface{} {
	fields := make(map[string]interface{}, len(fe.selectors))
	for name, selector := range fe.selectors {
		fields[name] = extractValue(doc.Selection, selector)
	}
	return fields
}

func extractValue(root *goquery.Selection, selector string) interface{} {
	css, attr := splitAttrSelector(selector)

	var values []string
	root.Find(css).Each(func(_ int, s *goquery.Selection) {
		if attr != "" {
			if v, ok := s.Attr(attr); ok {
				values = append(values, strings.TrimSpace(v))
			}
			return
		}
		values = append(values, normalizeSpace(s.Text()))
	})

	switch len(values) {
	case 0:
		return nil
	case 1:
		return values[0]
	default:
		return values
	}
}

// splitAttrSelector separates "img.hero@src" into "img.hero" and "src".
func splitAttrSelector(selector string) (string, string) {
	i := strings.LastIndex(selector, "@")
	if i <= 0 || strings.ContainsAny(selector[i+1:], " []=\"'") {
		return selector, ""
	}
	return strings.TrimSpace(selector[:i]), strings.TrimSpace(selector[i+1:])
}

// ExtractTitle returns the document title, falling back to the first h1.
func ExtractTitle(doc *goquery.Document) string {
	if t := normalizeSpace(doc.Find("head title").First().Text()); t != "" {
		return t
	}
	if t := normalizeSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	return normalizeSpace(doc.Find("h1").First().Text())
}

// TextLength counts the visible body text characters.
func TextLength(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	doc.Find("script, style, noscript").Remove()
	return len([]rune(normalizeSpace(doc.Find("body").Text())))
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
