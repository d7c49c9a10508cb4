package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MarkItemsViewed bulk-inserts view rows, deduping on (user, item). The
// ledger is append-only; re-marking is a no-op.
func (s *PostgresStore) MarkItemsViewed(ctx context.Context, userID string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, itemID := range itemIDs {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO item_views (user_id, item_id) VALUES ($1, $2)
				ON CONFLICT (user_id, item_id) DO NOTHING
			`, userID, itemID); err != nil {
				return fmt.Errorf("insert item view: %w", err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) ListViewedItemIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id FROM item_views WHERE user_id=$1 ORDER BY viewed_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list viewed items: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan item view: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) ListItemViewers(ctx context.Context, itemID string) ([]ItemView, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, item_id, viewed_at FROM item_views WHERE item_id=$1 ORDER BY viewed_at
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item viewers: %w", err)
	}
	defer rows.Close()

	views := make([]ItemView, 0)
	for rows.Next() {
		var v ItemView
		if err := rows.Scan(&v.UserID, &v.ItemID, &v.ViewedAt); err != nil {
			return nil, fmt.Errorf("scan item view: %w", err)
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func (s *PostgresStore) CountItemViews(ctx context.Context, itemID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM item_views WHERE item_id=$1`, itemID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count item views: %w", err)
	}
	return count, nil
}

// ListUnviewedItemsInList returns non-deleted items of a list the user has no
// view row for. The caller still applies visibility filtering; a raw count of
// these rows is not the unread count.
func (s *PostgresStore) ListUnviewedItemsInList(ctx context.Context, userID, listID string) ([]ListItem, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM list_items i
		WHERE i.lists @> to_jsonb($2::text) AND NOT i.deleted
			AND NOT EXISTS (SELECT 1 FROM item_views v WHERE v.user_id=$1 AND v.item_id=i.id)
	`, userID, listID)
}
