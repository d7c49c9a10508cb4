package app

import (
	"context"
	"encoding/base64"
	"errors"
	"net/url"

	"wishlane/api/internal/jobs"
	"wishlane/api/internal/parse"
	"wishlane/api/internal/redact"
	"wishlane/api/internal/store"
)

// jobAcceptance shapes the enqueue response; reused jobs report the
// already-running one instead of a duplicate.
func jobAcceptance(j store.Job, reused bool) map[string]any {
	out := redact.Job(j)
	out["reused"] = reused
	return out
}

func validHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// EnqueueItemFetch queues a single-product page fetch.
func (s *Service) EnqueueItemFetch(ctx context.Context, session Session, rawURL string) (map[string]any, error) {
	if !validHTTPURL(rawURL) {
		return nil, validationError("a valid http(s) url is required")
	}
	j, reused, err := s.engine.Accept(ctx, session.UserID, store.JobTypeItemFetch, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return jobAcceptance(j, reused), nil
}

// EnqueueWishlistImport queues a full wishlist page import.
func (s *Service) EnqueueWishlistImport(ctx context.Context, session Session, rawURL string) (map[string]any, error) {
	if !validHTTPURL(rawURL) {
		return nil, validationError("a valid http(s) url is required")
	}
	j, reused, err := s.engine.Accept(ctx, session.UserID, store.JobTypeWishlistImport, rawURL, nil)
	if err != nil {
		return nil, err
	}
	return jobAcceptance(j, reused), nil
}

// EnqueueCSVImport queues a CSV import. The file rides along in the job
// metadata so any worker process can pick it up.
func (s *Service) EnqueueCSVImport(ctx context.Context, session Session, fileName string, data []byte) (map[string]any, error) {
	if len(data) == 0 {
		return nil, validationError("a csv file is required")
	}
	if len(data) > parse.MaxCSVBytes {
		return nil, validationError("csv file exceeds the 10 MiB limit")
	}
	if fileName == "" {
		fileName = "import.csv"
	}
	meta := jobs.EncodeCSVMetadata(fileName, base64.StdEncoding.EncodeToString(data))
	j, reused, err := s.engine.Accept(ctx, session.UserID, store.JobTypeCSVImport, "", meta)
	if err != nil {
		return nil, err
	}
	return jobAcceptance(j, reused), nil
}

func (s *Service) GetJob(ctx context.Context, session Session, jobID string) (map[string]any, error) {
	j, err := s.engine.Get(ctx, jobID, session.UserID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return nil, notFoundError("job not found")
		}
		return nil, err
	}
	return redact.Job(j), nil
}

func (s *Service) ListJobs(ctx context.Context, session Session) ([]map[string]any, error) {
	list, err := s.engine.List(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(list))
	for _, j := range list {
		out = append(out, redact.Job(j))
	}
	return out, nil
}

// CancelJob cancels a pending job. Jobs already picked up by a worker run
// to completion.
func (s *Service) CancelJob(ctx context.Context, session Session, jobID string) error {
	err := s.engine.Cancel(ctx, jobID, session.UserID)
	switch {
	case errors.Is(err, jobs.ErrNotFound):
		return notFoundError("job not found")
	case errors.Is(err, jobs.ErrNotCancelable):
		return conflictError("only pending jobs can be cancelled")
	}
	return err
}

// ImageLoader resolves stored image bytes, wherever they live.
type ImageLoader interface {
	Load(ctx context.Context, img store.Image) ([]byte, error)
}

// SetImageLoader wires the image byte resolver; without one, externally
// stored images cannot be served.
func (s *Service) SetImageLoader(loader ImageLoader) {
	s.imageLoader = loader
}

// GetImageBytes returns the processed image and its content type.
func (s *Service) GetImageBytes(ctx context.Context, imageID string) ([]byte, string, error) {
	img, err := s.store.GetImage(ctx, imageID)
	if err != nil {
		if isNoRows(err) {
			return nil, "", notFoundError("image not found")
		}
		return nil, "", err
	}
	contentType := img.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	if len(img.Bytes) > 0 {
		return img.Bytes, contentType, nil
	}
	if s.imageLoader == nil || img.StorageKey == "" {
		return nil, "", notFoundError("image not found")
	}
	data, err := s.imageLoader.Load(ctx, img)
	if err != nil {
		return nil, "", err
	}
	return data, contentType, nil
}

// AttachJobImages links images produced by a finished import job to an
// item the caller may modify.
func (s *Service) AttachJobImages(ctx context.Context, session Session, itemID string, imageIDs []string) (map[string]any, error) {
	if len(imageIDs) == 0 {
		return nil, validationError("imageIds are required")
	}
	v := s.viewerFor(session)
	snap, err := v.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := s.modifiableItem(ctx, snap, itemID); err != nil {
		return nil, err
	}
	for _, id := range imageIDs {
		if _, err := s.store.GetImage(ctx, id); err != nil {
			if isNoRows(err) {
				return nil, notFoundError("image not found")
			}
			return nil, err
		}
		if err := s.store.AppendItemImage(ctx, itemID, id); err != nil {
			return nil, err
		}
	}
	return s.itemPayload(ctx, snap, itemID)
}
