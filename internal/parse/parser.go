// Package parse extracts product items from rendered pages. The primary
// strategy is structured LLM extraction; marketplace wishlists fall back to a
// deterministic selector scraper when the LLM yields nothing.
package parse

import (
	"context"
	"fmt"
	"log/slog"

	"wishlane/api/internal/llm"
)

// Processing methods reported in job results.
const (
	MethodAI      = "ai_parsing"
	MethodScraper = "traditional_scraping"
)

// Item is one extracted product.
type Item struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
	LinkLabel   string `json:"linkLabel,omitempty"`
	Description string `json:"description,omitempty"`
}

// Result is the outcome of a parse, including which strategy produced it.
type Result struct {
	Items            []Item
	ProcessingMethod string
	FallbackReason   string
	Usage            llm.Usage
}

// Completer is the slice of the LLM client the parser needs.
type Completer interface {
	Configured() bool
	Complete(ctx context.Context, prompt string, opts llm.Options) (*llm.Completion, error)
}

// Parser runs the two-strategy extraction.
type Parser struct {
	llm Completer
	log *slog.Logger
}

func NewParser(completer Completer, log *slog.Logger) *Parser {
	return &Parser{llm: completer, log: log}
}

// ParseWishlist extracts all items from a wishlist page. The scraper fallback
// only exists for marketplace layouts; generic pages surface the LLM failure.
func (p *Parser) ParseWishlist(ctx context.Context, html, pageURL string) (*Result, error) {
	var fallbackReason string
	if p.llm.Configured() {
		items, usage, err := p.extractWishlistLLM(ctx, html)
		if err != nil {
			fallbackReason = fmt.Sprintf("llm extraction failed: %v", err)
			p.log.Warn("llm wishlist extraction failed, trying scraper", "url", pageURL, "error", err)
		} else if len(items) == 0 {
			fallbackReason = "llm extraction returned no items"
			p.log.Warn("llm wishlist extraction empty, trying scraper", "url", pageURL)
		} else {
			return &Result{Items: items, ProcessingMethod: MethodAI, Usage: usage}, nil
		}
	} else {
		fallbackReason = "llm not configured"
	}

	items, err := scrapeMarketplaceWishlist(html, pageURL)
	if err != nil {
		return nil, fmt.Errorf("%s; scraper fallback: %w", fallbackReason, err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("%s; scraper fallback found no items", fallbackReason)
	}
	return &Result{Items: items, ProcessingMethod: MethodScraper, FallbackReason: fallbackReason}, nil
}

// ParseItem extracts a single product from a page. There is no deterministic
// fallback for arbitrary product pages.
func (p *Parser) ParseItem(ctx context.Context, html, pageURL string) (*Result, error) {
	if !p.llm.Configured() {
		return nil, fmt.Errorf("llm not configured and no fallback exists for single items")
	}
	item, usage, err := p.extractItemLLM(ctx, html)
	if err != nil {
		return nil, fmt.Errorf("extract item: %w", err)
	}
	return &Result{Items: []Item{*item}, ProcessingMethod: MethodAI, Usage: usage}, nil
}
