package parse

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Marketplace wishlist selector set. Containers first; within a container the
// title link, price element, and image are probed in order.
var (
	itemContainerSelectors = []string{
		"li[data-itemid]", "li[data-id]", ".g-item-sortable", ".wishlist-item",
	}
	titleLinkSelectors = []string{
		"a[id^=itemName]", "h2 a", "h3 a", ".item-title a", "a.item-link",
	}
	priceSelectors = []string{
		"[data-price]", ".a-price .a-offscreen", ".price", ".item-price",
	}
	imageSelectors = []string{
		".item-image img", "img[src*=images]", "img",
	}
)

// scrapeMarketplaceWishlist extracts items using the documented selector set.
// It is the deterministic fallback when LLM extraction yields nothing.
func scrapeMarketplaceWishlist(html, pageURL string) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	base, _ := url.Parse(pageURL)

	var items []Item
	for _, containerSel := range itemContainerSelectors {
		doc.Find(containerSel).Each(func(_ int, container *goquery.Selection) {
			item := scrapeContainer(container, base)
			if item != nil {
				items = append(items, *item)
			}
		})
		if len(items) > 0 {
			break
		}
	}
	return items, nil
}

func scrapeContainer(container *goquery.Selection, base *url.URL) *Item {
	var name, link string
	for _, sel := range titleLinkSelectors {
		a := container.Find(sel).First()
		if a.Length() == 0 {
			continue
		}
		name = strings.TrimSpace(a.Text())
		if name == "" {
			name = strings.TrimSpace(a.AttrOr("title", ""))
		}
		link = a.AttrOr("href", "")
		if name != "" {
			break
		}
	}
	if name == "" {
		return nil
	}

	var price string
	for _, sel := range priceSelectors {
		el := container.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		if v, ok := el.Attr("data-price"); ok {
			price = CoercePrice(v)
		} else {
			price = CoercePrice(el.Text())
		}
		if price != "" {
			break
		}
	}

	var image string
	for _, sel := range imageSelectors {
		img := container.Find(sel).First()
		if img.Length() == 0 {
			continue
		}
		image = img.AttrOr("src", "")
		if image != "" {
			break
		}
	}

	return &Item{
		Name:     name,
		Price:    price,
		ImageURL: resolveAgainst(base, NormalizeURL(image)),
		LinkURL:  resolveAgainst(base, NormalizeURL(link)),
	}
}

// resolveAgainst turns a same-origin relative path into an absolute URL.
func resolveAgainst(base *url.URL, raw string) string {
	if raw == "" || base == nil || !strings.HasPrefix(raw, "/") {
		return raw
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return base.ResolveReference(ref).String()
}
