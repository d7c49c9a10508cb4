package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const itemColumns = `id, created_by_id, name, price, min_price, max_price, notes,
	amount_wanted_min, amount_wanted_max, priority, lists, visible_to_users, visible_to_groups,
	is_public, match_list_visibility, is_custom, custom_item_creator, deleted, delete_on_date,
	image_ids, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (ListItem, error) {
	var it ListItem
	err := row.Scan(&it.ID, &it.CreatedByID, &it.Name, &it.Price, &it.MinPrice, &it.MaxPrice, &it.Notes,
		&it.AmountWantedMin, &it.AmountWantedMax, &it.Priority,
		(*stringSet)(&it.Lists), (*stringSet)(&it.VisibleToUsers), (*stringSet)(&it.VisibleToGroups),
		&it.IsPublic, &it.MatchListVisibility, &it.IsCustom, &it.CustomItemCreator,
		&it.Deleted, &it.DeleteOnDate, (*stringSet)(&it.ImageIDs), &it.CreatedAt, &it.UpdatedAt)
	return it, err
}

func insertItem(ctx context.Context, ex interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}, it ListItem) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO list_items (id, created_by_id, name, price, min_price, max_price, notes,
			amount_wanted_min, amount_wanted_max, priority, lists, visible_to_users, visible_to_groups,
			is_public, match_list_visibility, is_custom, custom_item_creator, delete_on_date, image_ids)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, it.ID, it.CreatedByID, it.Name, it.Price, it.MinPrice, it.MaxPrice, it.Notes,
		it.AmountWantedMin, it.AmountWantedMax, it.Priority,
		stringSet(it.Lists), stringSet(it.VisibleToUsers), stringSet(it.VisibleToGroups),
		it.IsPublic, it.MatchListVisibility, it.IsCustom, it.CustomItemCreator,
		it.DeleteOnDate, stringSet(it.ImageIDs))
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateItem(ctx context.Context, it ListItem) error {
	return insertItem(ctx, s.db, it)
}

// CreateItems inserts all rows in one transaction; either every item commits
// or none do.
func (s *PostgresStore) CreateItems(ctx context.Context, items []ListItem) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, it := range items {
			if err := insertItem(ctx, tx, it); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *PostgresStore) GetItem(ctx context.Context, itemID string) (ListItem, error) {
	return scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM list_items WHERE id=$1 AND NOT deleted
	`, itemID))
}

func (s *PostgresStore) ListItemsByIDs(ctx context.Context, ids []string) ([]ListItem, error) {
	if len(ids) == 0 {
		return []ListItem{}, nil
	}
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM list_items WHERE id = ANY($1::text[]) AND NOT deleted
	`, ids)
}

// ListItemsInList returns non-deleted items whose lists set contains listID.
func (s *PostgresStore) ListItemsInList(ctx context.Context, listID string) ([]ListItem, error) {
	return s.queryItems(ctx, `
		SELECT `+itemColumns+` FROM list_items
		WHERE lists @> to_jsonb($1::text) AND NOT deleted
		ORDER BY priority DESC, created_at
	`, listID)
}

func (s *PostgresStore) UpdateItem(ctx context.Context, it ListItem) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items
		SET name=$2, price=$3, min_price=$4, max_price=$5, notes=$6,
			amount_wanted_min=$7, amount_wanted_max=$8, priority=$9,
			lists=$10, visible_to_users=$11, visible_to_groups=$12,
			is_public=$13, match_list_visibility=$14, delete_on_date=$15, image_ids=$16,
			updated_at=NOW()
		WHERE id=$1 AND NOT deleted
	`, it.ID, it.Name, it.Price, it.MinPrice, it.MaxPrice, it.Notes,
		it.AmountWantedMin, it.AmountWantedMax, it.Priority,
		stringSet(it.Lists), stringSet(it.VisibleToUsers), stringSet(it.VisibleToGroups),
		it.IsPublic, it.MatchListVisibility, it.DeleteOnDate, stringSet(it.ImageIDs))
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteItem(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE list_items SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, itemID)
	if err != nil {
		return fmt.Errorf("soft delete item: %w", err)
	}
	return nil
}

// SoftDeleteItems is the one all-or-nothing bulk mutation: the caller has
// already verified ownership of every row, and the whole batch rolls back on
// any failure.
func (s *PostgresStore) SoftDeleteItems(ctx context.Context, ids []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `UPDATE list_items SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, id); err != nil {
				return fmt.Errorf("soft delete item %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *PostgresStore) UpdateItemLists(ctx context.Context, itemID string, lists []string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items SET lists=$2, updated_at=NOW() WHERE id=$1 AND NOT deleted
	`, itemID, stringSet(lists))
	if err != nil {
		return fmt.Errorf("update item lists: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItemVisibility(ctx context.Context, itemID string, users, groups []string, matchList bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items SET visible_to_users=$2, visible_to_groups=$3, match_list_visibility=$4, updated_at=NOW()
		WHERE id=$1 AND NOT deleted
	`, itemID, stringSet(users), stringSet(groups), matchList)
	if err != nil {
		return fmt.Errorf("update item visibility: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItemPublicityPriority(ctx context.Context, itemID string, isPublic bool, priority int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items SET is_public=$2, priority=$3, updated_at=NOW() WHERE id=$1 AND NOT deleted
	`, itemID, isPublic, priority)
	if err != nil {
		return fmt.Errorf("update item publicity/priority: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateItemDeleteOnDate(ctx context.Context, itemID string, deleteOn *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items SET delete_on_date=$2, updated_at=NOW() WHERE id=$1 AND NOT deleted
	`, itemID, deleteOn)
	if err != nil {
		return fmt.Errorf("update item delete-on-date: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendItemImage(ctx context.Context, itemID, imageID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE list_items SET image_ids = image_ids || to_jsonb($2::text), updated_at=NOW()
		WHERE id=$1 AND NOT deleted AND NOT image_ids @> to_jsonb($2::text)
	`, itemID, imageID)
	if err != nil {
		return fmt.Errorf("append item image: %w", err)
	}
	return nil
}

func (s *PostgresStore) queryItems(ctx context.Context, query string, args ...any) ([]ListItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	items := make([]ListItem, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// Item links

func (s *PostgresStore) CreateItemLink(ctx context.Context, link ItemLink) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO item_links (id, item_id, label, url) VALUES ($1, $2, $3, $4)
	`, link.ID, link.ItemID, link.Label, link.URL)
	if err != nil {
		return fmt.Errorf("insert item link: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListItemLinks(ctx context.Context, itemID string) ([]ItemLink, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, item_id, label, url FROM item_links WHERE item_id=$1 ORDER BY id
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list item links: %w", err)
	}
	defer rows.Close()

	links := make([]ItemLink, 0)
	for rows.Next() {
		var link ItemLink
		if err := rows.Scan(&link.ID, &link.ItemID, &link.Label, &link.URL); err != nil {
			return nil, fmt.Errorf("scan item link: %w", err)
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

func (s *PostgresStore) DeleteItemLink(ctx context.Context, linkID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM item_links WHERE id=$1`, linkID)
	if err != nil {
		return fmt.Errorf("delete item link: %w", err)
	}
	return nil
}
