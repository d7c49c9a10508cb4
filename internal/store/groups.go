package store

import (
	"context"
	"fmt"
)

const groupColumns = `id, owner_id, name, member_ids, admin_ids, invited_ids, deleted, created_at, updated_at`

func scanGroup(row interface{ Scan(...any) error }) (Group, error) {
	var g Group
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name,
		(*stringSet)(&g.MemberIDs), (*stringSet)(&g.AdminIDs), (*stringSet)(&g.InvitedIDs),
		&g.Deleted, &g.CreatedAt, &g.UpdatedAt)
	return g, err
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (id, owner_id, name, member_ids, admin_ids, invited_ids)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, g.ID, g.OwnerID, g.Name, stringSet(g.MemberIDs), stringSet(g.AdminIDs), stringSet(g.InvitedIDs))
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (Group, error) {
	return scanGroup(s.db.QueryRowContext(ctx, `
		SELECT `+groupColumns+` FROM groups WHERE id=$1 AND NOT deleted
	`, groupID))
}

// ListGroupsForUser returns groups where the user is owner, admin, member, or
// invited. Membership sets are JSONB arrays, checked with containment.
func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID string) ([]Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+groupColumns+` FROM groups
		WHERE NOT deleted AND (
			owner_id = $1
			OR member_ids @> to_jsonb($1::text)
			OR admin_ids @> to_jsonb($1::text)
			OR invited_ids @> to_jsonb($1::text)
		)
		ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list groups for user: %w", err)
	}
	defer rows.Close()

	groups := make([]Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

func (s *PostgresStore) UpdateGroup(ctx context.Context, g Group) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE groups
		SET name=$2, member_ids=$3, admin_ids=$4, invited_ids=$5, updated_at=NOW()
		WHERE id=$1 AND NOT deleted
	`, g.ID, g.Name, stringSet(g.MemberIDs), stringSet(g.AdminIDs), stringSet(g.InvitedIDs))
	if err != nil {
		return fmt.Errorf("update group: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteGroup(ctx context.Context, groupID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE groups SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, groupID)
	if err != nil {
		return fmt.Errorf("soft delete group: %w", err)
	}
	return nil
}
