package parse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"wishlane/api/internal/llm"
)

const (
	maxHTMLBytes = 2 << 20 // prompts are truncated to this

	wishlistMaxTokens = 32768
	itemMaxTokens     = 50000

	llmTemperature = 0.1
	llmMaxAttempts = 3
)

const wishlistPrompt = `You are given the HTML of a wishlist page. Extract every product on it.
Respond with ONLY a JSON array, no prose. Each element must be an object:
{"name": string, "price": string, "imageUrl": string, "linkUrl": string}
Use empty strings for unknown fields. Do not invent products.

HTML:
`

const itemPrompt = `You are given the HTML of a single product page. Extract the product.
Respond with ONLY a JSON array containing exactly one object, no prose:
{"name": string, "price": string, "imageUrl": string, "linkLabel": string}
linkLabel is the short store name (e.g. "Amazon"). Use empty strings for unknown fields.

HTML:
`

func (p *Parser) extractWishlistLLM(ctx context.Context, html string) ([]Item, llm.Usage, error) {
	raw, usage, err := p.completeWithRetry(ctx, wishlistPrompt+truncate(html), wishlistMaxTokens)
	if err != nil {
		return nil, usage, err
	}
	items, err := decodeItemArray(raw)
	return items, usage, err
}

func (p *Parser) extractItemLLM(ctx context.Context, html string) (*Item, llm.Usage, error) {
	raw, usage, err := p.completeWithRetry(ctx, itemPrompt+truncate(html), itemMaxTokens)
	if err != nil {
		return nil, usage, err
	}
	items, err := decodeItemArray(raw)
	if err != nil {
		return nil, usage, err
	}
	if len(items) == 0 {
		return nil, usage, fmt.Errorf("no item extracted")
	}
	return &items[0], usage, nil
}

// completeWithRetry retries transient LLM failures with 1s/2s/4s backoff.
func (p *Parser) completeWithRetry(ctx context.Context, prompt string, maxTokens int) (string, llm.Usage, error) {
	var usage llm.Usage
	var lastErr error
	backoff := time.Second
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		comp, err := p.llm.Complete(ctx, prompt, llm.Options{Temperature: llmTemperature, MaxTokens: maxTokens})
		if err == nil {
			usage.PromptTokens += comp.Usage.PromptTokens
			usage.CompletionTokens += comp.Usage.CompletionTokens
			usage.TotalTokens += comp.Usage.TotalTokens
			usage.Latency += comp.Usage.Latency
			return comp.Text, usage, nil
		}
		lastErr = err
		if attempt == llmMaxAttempts {
			break
		}
		p.log.Warn("llm call failed, retrying", "attempt", attempt, "error", err)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", usage, ctx.Err()
		}
		backoff *= 2
	}
	return "", usage, fmt.Errorf("llm failed after %d attempts: %w", llmMaxAttempts, lastErr)
}

// truncate caps the prompt HTML, backing off to a rune boundary so the model
// never receives a split multi-byte character.
func truncate(html string) string {
	if len(html) <= maxHTMLBytes {
		return html
	}
	cut := maxHTMLBytes
	for cut > 0 && !utf8.RuneStart(html[cut]) {
		cut--
	}
	return html[:cut]
}

// decodeItemArray locates the outermost JSON array in the model output,
// parses it, and normalizes each object. Objects without a name are dropped.
func decodeItemArray(raw string) ([]Item, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in model output")
	}

	var decoded []struct {
		Name        string          `json:"name"`
		Price       json.RawMessage `json:"price"`
		ImageURL    string          `json:"imageUrl"`
		LinkURL     string          `json:"linkUrl"`
		LinkLabel   string          `json:"linkLabel"`
		Description string          `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw[start:end+1]), &decoded); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}

	items := make([]Item, 0, len(decoded))
	for _, d := range decoded {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			continue
		}
		items = append(items, Item{
			Name:        name,
			Price:       CoercePrice(string(d.Price)),
			ImageURL:    NormalizeURL(d.ImageURL),
			LinkURL:     NormalizeURL(d.LinkURL),
			LinkLabel:   strings.TrimSpace(d.LinkLabel),
			Description: strings.TrimSpace(d.Description),
		})
	}
	return items, nil
}

// CoercePrice reduces a price value to a plain numeric string: currency
// symbols and thousands separators are stripped, keeping digits and one
// decimal point. Unparseable values become the empty string.
func CoercePrice(raw string) string {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	var b strings.Builder
	seenDot := false
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' && !seenDot:
			seenDot = true
			b.WriteRune(r)
		case r == ',':
			// thousands separator
		}
	}
	out := b.String()
	if out == "" || out == "." {
		return ""
	}
	return strings.TrimSuffix(out, ".")
}

// NormalizeURL validates extracted URLs. Protocol-relative URLs are upgraded
// to https; relative paths are passed through for the caller to resolve
// against the page origin; anything else non-http(s) is dropped.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Scheme == "" && u.Host == "" && strings.HasPrefix(raw, "/") {
		return raw
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return raw
}
