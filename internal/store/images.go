package store

import (
	"context"
	"fmt"
)

func (s *PostgresStore) CreateImage(ctx context.Context, img Image) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO images (id, record_id, record_type, content_type, bytes, storage_key, original_url, output_size, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, img.ID, img.RecordID, img.RecordType, img.ContentType, img.Bytes, img.StorageKey,
		img.OriginalURL, img.OutputSize, img.ProcessedAt)
	if err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetImage(ctx context.Context, imageID string) (Image, error) {
	var img Image
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, record_type, content_type, bytes, storage_key, original_url, output_size, processed_at
		FROM images WHERE id=$1
	`, imageID).Scan(&img.ID, &img.RecordID, &img.RecordType, &img.ContentType, &img.Bytes,
		&img.StorageKey, &img.OriginalURL, &img.OutputSize, &img.ProcessedAt)
	return img, err
}

// DeleteImage is the only hard delete on images; it serves the reaper.
func (s *PostgresStore) DeleteImage(ctx context.Context, imageID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id=$1`, imageID)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}
