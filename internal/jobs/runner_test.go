package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"wishlane/api/internal/browser"
	"wishlane/api/internal/images"
	"wishlane/api/internal/parse"
	"wishlane/api/internal/store"
)

type fakeFetcher struct {
	page *browser.Page
	err  error
}

func (f *fakeFetcher) FetchRenderedPage(_ context.Context, _ string, _ browser.Options) (*browser.Page, error) {
	return f.page, f.err
}

type fakeParser struct {
	wishlist *parse.Result
	item     *parse.Result
	err      error
}

func (f *fakeParser) ParseWishlist(_ context.Context, _, _ string) (*parse.Result, error) {
	return f.wishlist, f.err
}

func (f *fakeParser) ParseItem(_ context.Context, _, _ string) (*parse.Result, error) {
	return f.item, f.err
}

type fakeImages struct {
	fail map[string]string // url -> error message
}

func (f *fakeImages) ProcessBatch(_ context.Context, urls []string, _, _ string, _, _ int) []images.BatchResult {
	out := make([]images.BatchResult, len(urls))
	for i, u := range urls {
		if msg, ok := f.fail[u]; ok {
			out[i] = images.BatchResult{URL: u, Error: msg}
		} else {
			out[i] = images.BatchResult{URL: u, ImageID: fmt.Sprintf("img_%d", i)}
		}
	}
	return out
}

func TestRunnerWishlistImportHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{page: &browser.Page{HTML: "<html></html>", Title: "Birthday list", FinalURL: "https://shop/list/abc"}}
	parser := &fakeParser{wishlist: &parse.Result{
		ProcessingMethod: parse.MethodAI,
		Items: []parse.Item{
			{Name: "A", ImageURL: "https://img/a.jpg"},
			{Name: "B", ImageURL: "https://img/b.jpg"},
			{Name: "C", ImageURL: "https://img/c.jpg"},
		},
	}}
	imgs := &fakeImages{fail: map[string]string{"https://img/b.jpg": "status 404"}}
	r := NewRunner(fetcher, parser, imgs, discard())

	raw, err := r.Run(context.Background(), store.Job{ID: "j1", JobType: store.JobTypeWishlistImport, URL: "https://shop/list/abc"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var result importResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.TotalItems != 3 || result.PageTitle != "Birthday list" {
		t.Fatalf("result = %+v", result)
	}
	if result.ImageProcessing == nil ||
		result.ImageProcessing.TotalImages != 3 ||
		result.ImageProcessing.SuccessfulImages != 2 ||
		result.ImageProcessing.FailedImages != 1 {
		t.Fatalf("image summary = %+v", result.ImageProcessing)
	}
	if result.Items[0].ImageID == "" || result.Items[0].ImageURL != "" {
		t.Fatalf("processed item should carry imageId only: %+v", result.Items[0])
	}
	if result.Items[1].ImageID != "" || result.Items[1].ImageURL != "https://img/b.jpg" {
		t.Fatalf("failed image should keep original url: %+v", result.Items[1])
	}
}

func TestRunnerReportsFallback(t *testing.T) {
	fetcher := &fakeFetcher{page: &browser.Page{HTML: "<html></html>", FinalURL: "https://shop/list/x"}}
	parser := &fakeParser{wishlist: &parse.Result{
		ProcessingMethod: parse.MethodScraper,
		FallbackReason:   "llm extraction returned no items",
		Items:            []parse.Item{{Name: "A"}, {Name: "B"}},
	}}
	r := NewRunner(fetcher, parser, &fakeImages{}, discard())

	raw, err := r.Run(context.Background(), store.Job{ID: "j2", JobType: store.JobTypeWishlistImport})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var result importResult
	json.Unmarshal(raw, &result)
	if result.ProcessingMethod != parse.MethodScraper || result.FallbackReason == "" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.Items) != 2 {
		t.Fatalf("items = %+v", result.Items)
	}
}

func TestRunnerCSVImport(t *testing.T) {
	csvText := "name,price\nBike,120\n,5\n"
	meta := EncodeCSVMetadata("wishes.csv", base64.StdEncoding.EncodeToString([]byte(csvText)))
	r := NewRunner(&fakeFetcher{}, &fakeParser{}, &fakeImages{}, discard())

	raw, err := r.Run(context.Background(), store.Job{ID: "j3", JobType: store.JobTypeCSVImport, Metadata: meta})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var result importResult
	json.Unmarshal(raw, &result)
	if result.TotalItems != 1 || result.Items[0].Name != "Bike" {
		t.Fatalf("result = %+v", result)
	}
	if len(result.RowErrors) != 1 {
		t.Fatalf("row errors = %+v", result.RowErrors)
	}
	if result.PageTitle != "wishes.csv" {
		t.Fatalf("page title = %q", result.PageTitle)
	}
}

func TestRunnerUnknownJobType(t *testing.T) {
	r := NewRunner(&fakeFetcher{}, &fakeParser{}, &fakeImages{}, discard())
	if _, err := r.Run(context.Background(), store.Job{ID: "j4", JobType: "mystery"}); err == nil {
		t.Fatal("expected error for unknown job type")
	}
}
