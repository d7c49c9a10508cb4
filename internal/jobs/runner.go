package jobs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"wishlane/api/internal/browser"
	"wishlane/api/internal/images"
	"wishlane/api/internal/parse"
	"wishlane/api/internal/store"
)

// PageFetcher is the browser adapter surface the runner uses.
type PageFetcher interface {
	FetchRenderedPage(ctx context.Context, url string, opts browser.Options) (*browser.Page, error)
}

// ItemParser is the parser surface the runner uses.
type ItemParser interface {
	ParseWishlist(ctx context.Context, html, pageURL string) (*parse.Result, error)
	ParseItem(ctx context.Context, html, pageURL string) (*parse.Result, error)
}

// ImageProcessor is the image pipeline surface the runner uses.
type ImageProcessor interface {
	ProcessBatch(ctx context.Context, urls []string, recordID, recordType string, size, maxConcurrent int) []images.BatchResult
}

// Runner executes a claimed job's pipeline and builds its result payload.
type Runner struct {
	browser PageFetcher
	parser  ItemParser
	images  ImageProcessor
	log     *slog.Logger
}

func NewRunner(b PageFetcher, p ItemParser, img ImageProcessor, log *slog.Logger) *Runner {
	return &Runner{browser: b, parser: p, images: img, log: log}
}

// resultItem is one imported product in a job result. ImageURL survives when
// image processing failed so the client can retry or display the original.
type resultItem struct {
	Name        string `json:"name"`
	Price       string `json:"price,omitempty"`
	ImageID     string `json:"imageId,omitempty"`
	ImageURL    string `json:"imageUrl,omitempty"`
	LinkURL     string `json:"linkUrl,omitempty"`
	LinkLabel   string `json:"linkLabel,omitempty"`
	Description string `json:"description,omitempty"`
}

type imageProcessingSummary struct {
	TotalImages      int `json:"totalImages"`
	SuccessfulImages int `json:"successfulImages"`
	FailedImages     int `json:"failedImages"`
}

type importResult struct {
	TotalItems       int                     `json:"totalItems"`
	Items            []resultItem            `json:"items"`
	PageTitle        string                  `json:"pageTitle,omitempty"`
	ProcessingMethod string                  `json:"processingMethod"`
	FallbackReason   string                  `json:"fallbackReason,omitempty"`
	ImageProcessing  *imageProcessingSummary `json:"imageProcessing,omitempty"`
	RowErrors        []parse.RowError        `json:"rowErrors,omitempty"`
	LLMTokens        int                     `json:"llmTokens,omitempty"`
	LLMLatencyMs     int64                   `json:"llmLatencyMs,omitempty"`
}

// Run dispatches on the job's type and returns the encoded result payload.
func (r *Runner) Run(ctx context.Context, job store.Job) (json.RawMessage, error) {
	switch job.JobType {
	case store.JobTypeItemFetch:
		return r.runItemFetch(ctx, job)
	case store.JobTypeWishlistImport:
		return r.runWishlistImport(ctx, job)
	case store.JobTypeCSVImport:
		return r.runCSVImport(ctx, job)
	default:
		return nil, fmt.Errorf("unknown job type %q", job.JobType)
	}
}

func (r *Runner) runItemFetch(ctx context.Context, job store.Job) (json.RawMessage, error) {
	page, err := r.browser.FetchRenderedPage(ctx, job.URL, browser.Options{BlockImages: false})
	if err != nil {
		return nil, fmt.Errorf("render page: %w", err)
	}

	parsed, err := r.parser.ParseItem(ctx, page.HTML, page.FinalURL)
	if err != nil {
		return nil, err
	}

	result := r.buildResult(ctx, job, parsed, page.Title)
	return json.Marshal(result)
}

func (r *Runner) runWishlistImport(ctx context.Context, job store.Job) (json.RawMessage, error) {
	page, err := r.browser.FetchRenderedPage(ctx, job.URL, browser.Options{ExpandWishlist: true})
	if err != nil {
		return nil, fmt.Errorf("render wishlist: %w", err)
	}

	parsed, err := r.parser.ParseWishlist(ctx, page.HTML, page.FinalURL)
	if err != nil {
		return nil, err
	}

	result := r.buildResult(ctx, job, parsed, page.Title)
	return json.Marshal(result)
}

func (r *Runner) runCSVImport(ctx context.Context, job store.Job) (json.RawMessage, error) {
	var meta CSVMetadata
	if err := json.Unmarshal(job.Metadata, &meta); err != nil {
		return nil, fmt.Errorf("decode csv metadata: %w", err)
	}
	raw, err := base64.StdEncoding.DecodeString(meta.CSVBase64)
	if err != nil {
		return nil, fmt.Errorf("decode csv payload: %w", err)
	}

	parsed, err := parse.ParseCSV(strings.NewReader(string(raw)))
	if err != nil {
		return nil, err
	}

	result := r.buildResult(ctx, job, &parse.Result{Items: parsed.Items, ProcessingMethod: "csv"}, meta.FileName)
	result.RowErrors = parsed.RowErrors
	return json.Marshal(result)
}

// buildResult runs the image batch for every item with an image URL and
// folds the outcomes into the payload. An item whose image failed keeps its
// original imageUrl.
func (r *Runner) buildResult(ctx context.Context, job store.Job, parsed *parse.Result, pageTitle string) *importResult {
	result := &importResult{
		TotalItems:       len(parsed.Items),
		Items:            make([]resultItem, 0, len(parsed.Items)),
		PageTitle:        pageTitle,
		ProcessingMethod: parsed.ProcessingMethod,
		FallbackReason:   parsed.FallbackReason,
		LLMTokens:        parsed.Usage.TotalTokens,
		LLMLatencyMs:     parsed.Usage.Latency.Milliseconds(),
	}

	var urls []string
	var urlIndex []int
	for i, item := range parsed.Items {
		result.Items = append(result.Items, resultItem{
			Name:        item.Name,
			Price:       item.Price,
			ImageURL:    item.ImageURL,
			LinkURL:     item.LinkURL,
			LinkLabel:   item.LinkLabel,
			Description: item.Description,
		})
		if item.ImageURL != "" && strings.HasPrefix(item.ImageURL, "http") {
			urls = append(urls, item.ImageURL)
			urlIndex = append(urlIndex, i)
		}
	}

	if len(urls) > 0 {
		batch := r.images.ProcessBatch(ctx, urls, job.ID, "list_item", images.DefaultSize, images.DefaultMaxConcurrent)
		summary := &imageProcessingSummary{TotalImages: len(batch)}
		for bi, res := range batch {
			idx := urlIndex[bi]
			if res.ImageID != "" {
				summary.SuccessfulImages++
				result.Items[idx].ImageID = res.ImageID
				result.Items[idx].ImageURL = ""
			} else {
				summary.FailedImages++
				r.log.Warn("image failed during import", "jobId", job.ID, "url", res.URL, "error", res.Error)
			}
		}
		result.ImageProcessing = summary
	}
	return result
}
