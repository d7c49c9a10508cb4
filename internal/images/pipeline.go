// Package images downloads product images and normalizes them into square
// white-letterboxed JPEG thumbnails.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"wishlane/api/internal/store"
	"wishlane/api/internal/util"
)

const (
	DefaultSize          = 512
	DefaultMaxConcurrent = 5

	downloadTimeout = 30 * time.Second
	maxImageBytes   = 10 << 20
	jpegQuality     = 85

	downloadUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// ImageStore persists image rows.
type ImageStore interface {
	CreateImage(ctx context.Context, img store.Image) error
}

// BatchResult reports one URL's outcome; exactly one of ImageID and Error is
// set.
type BatchResult struct {
	URL     string `json:"url"`
	ImageID string `json:"imageId,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Pipeline downloads, normalizes, and persists images. Bytes go inline into
// the image row unless a blob store is configured, in which case the row
// carries only the object key.
type Pipeline struct {
	store ImageStore
	blobs BlobStore // nil means inline storage
	http  *http.Client
	log   *slog.Logger
}

func NewPipeline(st ImageStore, blobs BlobStore, log *slog.Logger) *Pipeline {
	return &Pipeline{
		store: st,
		blobs: blobs,
		http:  &http.Client{Timeout: downloadTimeout},
		log:   log,
	}
}

// ProcessBatch handles urls in chunks of maxConcurrent, waiting for each
// chunk before starting the next. One URL's failure never fails the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, urls []string, recordID, recordType string, size, maxConcurrent int) []BatchResult {
	if size <= 0 {
		size = DefaultSize
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	results := make([]BatchResult, len(urls))
	for start := 0; start < len(urls); start += maxConcurrent {
		end := start + maxConcurrent
		if end > len(urls) {
			end = len(urls)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id, err := p.ProcessOne(ctx, urls[i], recordID, recordType, size)
				if err != nil {
					p.log.Warn("image processing failed", "url", urls[i], "error", err)
					results[i] = BatchResult{URL: urls[i], Error: err.Error()}
					return
				}
				results[i] = BatchResult{URL: urls[i], ImageID: id}
			}(i)
		}
		wg.Wait()
	}
	return results
}

// ProcessOne downloads a single image, normalizes it, and persists it,
// returning the new image row's id.
func (p *Pipeline) ProcessOne(ctx context.Context, url, recordID, recordType string, size int) (string, error) {
	raw, err := p.download(ctx, url)
	if err != nil {
		return "", err
	}

	encoded, err := Normalize(raw, size)
	if err != nil {
		return "", fmt.Errorf("normalize image: %w", err)
	}

	img := store.Image{
		ID:          util.NewID("img"),
		RecordID:    recordID,
		RecordType:  recordType,
		ContentType: "image/jpeg",
		OriginalURL: url,
		OutputSize:  size,
		ProcessedAt: time.Now().UTC(),
	}
	if p.blobs != nil {
		key := fmt.Sprintf("%s/%s.jpg", recordType, img.ID)
		if err := p.blobs.Put(ctx, key, encoded, "image/jpeg"); err != nil {
			return "", fmt.Errorf("store image bytes: %w", err)
		}
		img.StorageKey = key
	} else {
		img.Bytes = encoded
	}
	if err := p.store.CreateImage(ctx, img); err != nil {
		return "", fmt.Errorf("persist image row: %w", err)
	}
	return img.ID, nil
}

// Load returns the encoded bytes for an image row, fetching from the blob
// store when the row carries a storage key.
func (p *Pipeline) Load(ctx context.Context, img store.Image) ([]byte, error) {
	if img.StorageKey != "" {
		if p.blobs == nil {
			return nil, fmt.Errorf("image %s stored externally but no blob store configured", img.ID)
		}
		return p.blobs.Get(ctx, img.StorageKey)
	}
	return img.Bytes, nil
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUserAgent)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download image: status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, fmt.Errorf("not an image: content-type %s", ct)
	}
	if resp.ContentLength > maxImageBytes {
		return nil, fmt.Errorf("image too large: %d bytes", resp.ContentLength)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image body: %w", err)
	}
	if len(raw) > maxImageBytes {
		return nil, fmt.Errorf("image too large: exceeds %d bytes", maxImageBytes)
	}
	return raw, nil
}

// Normalize decodes raw image bytes, fits them within size×size preserving
// aspect ratio, pads to a white square, and encodes JPEG quality 85.
func Normalize(raw []byte, size int) ([]byte, error) {
	src, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	fitted := imaging.Fit(src, size, size, imaging.Lanczos)
	canvas := imaging.New(size, size, color.White)
	canvas = imaging.PasteCenter(canvas, fitted)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	return buf.Bytes(), nil
}
