package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// dataAttrAllowList keeps the attributes the parser's fallback selectors and
// price heuristics rely on.
var dataAttrAllowList = map[string]bool{
	"data-price":      true,
	"data-item-id":    true,
	"data-itemid":     true,
	"data-product-id": true,
}

// Sanitize strips active content from rendered HTML: script, style and
// noscript elements, inline event handlers, and data-* attributes outside
// the allow list.
func Sanitize(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, noscript").Remove()

	doc.Find("*").Each(func(_ int, sel *goquery.Selection) {
		for _, node := range sel.Nodes {
			kept := node.Attr[:0]
			for _, attr := range node.Attr {
				key := strings.ToLower(attr.Key)
				if strings.HasPrefix(key, "on") {
					continue
				}
				if strings.HasPrefix(key, "data-") && !dataAttrAllowList[key] {
					continue
				}
				kept = append(kept, attr)
			}
			node.Attr = kept
		}
	})

	return doc.Html()
}
