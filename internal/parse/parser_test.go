package parse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"unicode/utf8"

	"wishlane/api/internal/llm"
)

type fakeCompleter struct {
	configured bool
	responses  []string
	errs       []error
	calls      int
}

func (f *fakeCompleter) Configured() bool { return f.configured }

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ llm.Options) (*llm.Completion, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return &llm.Completion{Text: f.responses[i]}, nil
	}
	return nil, fmt.Errorf("no scripted response for call %d", i)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const marketplaceHTML = `<html><body><ul>
	<li data-itemid="a1">
		<h3><a href="/dp/a1">Lego Castle</a></h3>
		<span class="price">$59.99</span>
		<img src="//cdn.example.com/a1.jpg">
	</li>
	<li data-itemid="a2">
		<h3><a href="https://shop.example.com/dp/a2">Plush Bear</a></h3>
		<span data-price="12.50"></span>
	</li>
</ul></body></html>`

func TestParseWishlistPrefersLLM(t *testing.T) {
	completer := &fakeCompleter{
		configured: true,
		responses:  []string{`Here you go: [{"name":"Lego Castle","price":"$59.99","imageUrl":"//cdn.example.com/a1.jpg","linkUrl":"https://shop.example.com/dp/a1"}]`},
	}
	p := NewParser(completer, discard())

	res, err := p.ParseWishlist(context.Background(), marketplaceHTML, "https://shop.example.com/list/x")
	if err != nil {
		t.Fatalf("ParseWishlist: %v", err)
	}
	if res.ProcessingMethod != MethodAI {
		t.Fatalf("method = %s, want %s", res.ProcessingMethod, MethodAI)
	}
	if len(res.Items) != 1 || res.Items[0].Name != "Lego Castle" {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].Price != "59.99" {
		t.Fatalf("price = %q, want coerced numeric", res.Items[0].Price)
	}
	if res.Items[0].ImageURL != "https://cdn.example.com/a1.jpg" {
		t.Fatalf("imageUrl = %q, protocol-relative not upgraded", res.Items[0].ImageURL)
	}
}

func TestParseWishlistFallsBackOnEmptyLLM(t *testing.T) {
	completer := &fakeCompleter{configured: true, responses: []string{`[]`}}
	p := NewParser(completer, discard())

	res, err := p.ParseWishlist(context.Background(), marketplaceHTML, "https://shop.example.com/list/x")
	if err != nil {
		t.Fatalf("ParseWishlist: %v", err)
	}
	if res.ProcessingMethod != MethodScraper {
		t.Fatalf("method = %s, want %s", res.ProcessingMethod, MethodScraper)
	}
	if res.FallbackReason == "" {
		t.Fatal("fallback reason missing")
	}
	if len(res.Items) != 2 {
		t.Fatalf("scraper found %d items, want 2: %+v", len(res.Items), res.Items)
	}
	if res.Items[0].LinkURL != "https://shop.example.com/dp/a1" {
		t.Fatalf("relative link not resolved: %q", res.Items[0].LinkURL)
	}
	if res.Items[1].Price != "12.50" {
		t.Fatalf("data-price not used: %q", res.Items[1].Price)
	}
}

func TestParseWishlistRetriesLLM(t *testing.T) {
	completer := &fakeCompleter{
		configured: true,
		errs:       []error{fmt.Errorf("transient"), nil},
		responses:  []string{"", `[{"name":"Book"}]`},
	}
	p := NewParser(completer, discard())

	res, err := p.ParseWishlist(context.Background(), "<html></html>", "https://x/y")
	if err != nil {
		t.Fatalf("ParseWishlist: %v", err)
	}
	if completer.calls != 2 {
		t.Fatalf("expected a retry, got %d calls", completer.calls)
	}
	if res.ProcessingMethod != MethodAI || res.Items[0].Name != "Book" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestParseItemSingle(t *testing.T) {
	completer := &fakeCompleter{
		configured: true,
		responses:  []string{`[{"name":"Coffee Grinder","price":"34,99","linkLabel":"Amazon"}]`},
	}
	p := NewParser(completer, discard())

	res, err := p.ParseItem(context.Background(), "<html></html>", "https://x/p")
	if err != nil {
		t.Fatalf("ParseItem: %v", err)
	}
	if res.Items[0].Name != "Coffee Grinder" || res.Items[0].LinkLabel != "Amazon" {
		t.Fatalf("item = %+v", res.Items[0])
	}
	if res.Items[0].Price != "3499" {
		t.Fatalf("price = %q", res.Items[0].Price)
	}
}

func TestDecodeItemArrayDropsNameless(t *testing.T) {
	items, err := decodeItemArray(`noise [{"name":"A"},{"name":""},{"price":"5"}] trailing`)
	if err != nil {
		t.Fatalf("decodeItemArray: %v", err)
	}
	if len(items) != 1 || items[0].Name != "A" {
		t.Fatalf("items = %+v", items)
	}
}

func TestCoercePrice(t *testing.T) {
	cases := map[string]string{
		"$59.99":    "59.99",
		"EUR 1,299": "1299",
		"12.50":     "12.50",
		"free":      "",
		"":          "",
		"99.":       "99",
	}
	for in, want := range cases {
		if got := CoercePrice(in); got != want {
			t.Errorf("CoercePrice(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalizeURL(t *testing.T) {
	cases := map[string]string{
		"https://a/b":        "https://a/b",
		"http://a/b":         "http://a/b",
		"//cdn/a.jpg":        "https://cdn/a.jpg",
		"/relative/path":     "/relative/path",
		"javascript:alert()": "",
		"ftp://a/b":          "",
		"":                   "",
	}
	for in, want := range cases {
		if got := NormalizeURL(in); got != want {
			t.Errorf("NormalizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseCSV(t *testing.T) {
	csvText := strings.Join([]string{
		"Name,Price,imageURL,LinkUrl,Description",
		"Bike,$120,//cdn/bike.jpg,https://shop/bike,Red one",
		",5,,,skipped empty name",
		`"Gadget, see https://evil",9,,,corrupt`,
		"Plain Item,,,,",
	}, "\n")

	res, err := ParseCSV(strings.NewReader(csvText))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(res.Items) != 2 {
		t.Fatalf("items = %+v", res.Items)
	}
	if res.Items[0].Name != "Bike" || res.Items[0].Price != "120" || res.Items[0].ImageURL != "https://cdn/bike.jpg" {
		t.Fatalf("first item = %+v", res.Items[0])
	}
	if res.Items[1].Name != "Plain Item" {
		t.Fatalf("second item = %+v", res.Items[1])
	}
	if len(res.RowErrors) != 2 {
		t.Fatalf("row errors = %+v", res.RowErrors)
	}
}

func TestParseCSVMissingNameHeader(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("price,url\n1,https://x")); err == nil {
		t.Fatal("expected error for missing name header")
	}
}

func TestParseCSVEmpty(t *testing.T) {
	if _, err := ParseCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestTruncateKeepsValidUTF8(t *testing.T) {
	if got := truncate("short"); got != "short" {
		t.Fatalf("short input changed: %q", got)
	}

	// A multi-byte rune straddling the cap must be dropped whole: "é"
	// occupies the last byte under the cap and the first byte over it.
	html := strings.Repeat("a", maxHTMLBytes-1) + "éllo"
	got := truncate(html)
	if len(got) > maxHTMLBytes {
		t.Fatalf("truncated to %d bytes, cap is %d", len(got), maxHTMLBytes)
	}
	if !utf8.ValidString(got) {
		t.Fatal("truncation produced invalid UTF-8")
	}
}
