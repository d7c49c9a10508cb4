package store

import (
	"context"
	"fmt"
)

const listColumns = `id, owner_id, name, description, public, visible_to_users, visible_to_groups, deleted, created_at, updated_at`

func scanList(row interface{ Scan(...any) error }) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.Description, &l.Public,
		(*stringSet)(&l.VisibleToUsers), (*stringSet)(&l.VisibleToGroups),
		&l.Deleted, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *PostgresStore) CreateList(ctx context.Context, l List) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, name, description, public, visible_to_users, visible_to_groups)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, l.ID, l.OwnerID, l.Name, l.Description, l.Public, stringSet(l.VisibleToUsers), stringSet(l.VisibleToGroups))
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetList(ctx context.Context, listID string) (List, error) {
	return scanList(s.db.QueryRowContext(ctx, `
		SELECT `+listColumns+` FROM lists WHERE id=$1 AND NOT deleted
	`, listID))
}

func (s *PostgresStore) ListListsByOwner(ctx context.Context, ownerID string) ([]List, error) {
	return s.queryLists(ctx, `
		SELECT `+listColumns+` FROM lists WHERE owner_id=$1 AND NOT deleted ORDER BY created_at
	`, ownerID)
}

func (s *PostgresStore) ListListsByIDs(ctx context.Context, ids []string) ([]List, error) {
	if len(ids) == 0 {
		return []List{}, nil
	}
	return s.queryLists(ctx, `
		SELECT `+listColumns+` FROM lists WHERE id = ANY($1::text[]) AND NOT deleted
	`, ids)
}

// ListListsVisibleToGroup returns lists shared with a group.
func (s *PostgresStore) ListListsVisibleToGroup(ctx context.Context, groupID string) ([]List, error) {
	return s.queryLists(ctx, `
		SELECT `+listColumns+` FROM lists
		WHERE visible_to_groups @> to_jsonb($1::text) AND NOT deleted
		ORDER BY created_at
	`, groupID)
}

func (s *PostgresStore) UpdateList(ctx context.Context, l List) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE lists
		SET name=$2, description=$3, public=$4, visible_to_users=$5, visible_to_groups=$6, updated_at=NOW()
		WHERE id=$1 AND NOT deleted
	`, l.ID, l.Name, l.Description, l.Public, stringSet(l.VisibleToUsers), stringSet(l.VisibleToGroups))
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteList(ctx context.Context, listID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE lists SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, listID)
	if err != nil {
		return fmt.Errorf("soft delete list: %w", err)
	}
	return nil
}

// SearchListsByName is the substring search used by the edge; plain ILIKE.
func (s *PostgresStore) SearchListsByName(ctx context.Context, ownerID, query string, limit, offset int) ([]List, error) {
	return s.queryLists(ctx, `
		SELECT `+listColumns+` FROM lists
		WHERE owner_id=$1 AND NOT deleted AND name ILIKE '%' || $2 || '%'
		ORDER BY created_at
		LIMIT $3 OFFSET $4
	`, ownerID, query, limit, offset)
}

func (s *PostgresStore) queryLists(ctx context.Context, query string, args ...any) ([]List, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query lists: %w", err)
	}
	defer rows.Close()

	lists := make([]List, 0)
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}
