package store

import (
	"context"
	"fmt"
)

// Getting and GoInOn rows record gift intent; both are keyed on
// (giver, getter, item).

func (s *PostgresStore) UpsertGetting(ctx context.Context, g Getting) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gettings (giver_id, getter_id, item_id, status, proposal_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (giver_id, getter_id, item_id)
		DO UPDATE SET status=EXCLUDED.status, proposal_id=EXCLUDED.proposal_id, updated_at=NOW()
	`, g.GiverID, g.GetterID, g.ItemID, g.Status, g.ProposalID)
	if err != nil {
		return fmt.Errorf("upsert getting: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGetting(ctx context.Context, giverID, getterID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM gettings WHERE giver_id=$1 AND getter_id=$2 AND item_id=$3
	`, giverID, getterID, itemID)
	if err != nil {
		return fmt.Errorf("delete getting: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGettingsForItem(ctx context.Context, itemID string) ([]Getting, error) {
	return s.queryGettings(ctx, `
		SELECT giver_id, getter_id, item_id, status, proposal_id, updated_at
		FROM gettings WHERE item_id=$1
	`, itemID)
}

func (s *PostgresStore) ListGettingsByGiver(ctx context.Context, giverID, getterID string) ([]Getting, error) {
	return s.queryGettings(ctx, `
		SELECT giver_id, getter_id, item_id, status, proposal_id, updated_at
		FROM gettings WHERE giver_id=$1 AND getter_id=$2
	`, giverID, getterID)
}

func (s *PostgresStore) queryGettings(ctx context.Context, query string, args ...any) ([]Getting, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query gettings: %w", err)
	}
	defer rows.Close()

	gettings := make([]Getting, 0)
	for rows.Next() {
		var g Getting
		if err := rows.Scan(&g.GiverID, &g.GetterID, &g.ItemID, &g.Status, &g.ProposalID, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan getting: %w", err)
		}
		gettings = append(gettings, g)
	}
	return gettings, rows.Err()
}

func (s *PostgresStore) UpsertGoInOn(ctx context.Context, g GoInOn) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO go_in_ons (giver_id, getter_id, item_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (giver_id, getter_id, item_id) DO NOTHING
	`, g.GiverID, g.GetterID, g.ItemID)
	if err != nil {
		return fmt.Errorf("upsert go-in-on: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteGoInOn(ctx context.Context, giverID, getterID, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM go_in_ons WHERE giver_id=$1 AND getter_id=$2 AND item_id=$3
	`, giverID, getterID, itemID)
	if err != nil {
		return fmt.Errorf("delete go-in-on: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListGoInOnsForItem(ctx context.Context, itemID string) ([]GoInOn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT giver_id, getter_id, item_id, created_at FROM go_in_ons WHERE item_id=$1
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list go-in-ons: %w", err)
	}
	defer rows.Close()

	goInOns := make([]GoInOn, 0)
	for rows.Next() {
		var g GoInOn
		if err := rows.Scan(&g.GiverID, &g.GetterID, &g.ItemID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan go-in-on: %w", err)
		}
		goInOns = append(goInOns, g)
	}
	return goInOns, rows.Err()
}

func (s *PostgresStore) ListGoInOnsByGiver(ctx context.Context, giverID, getterID string) ([]GoInOn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT giver_id, getter_id, item_id, created_at FROM go_in_ons WHERE giver_id=$1 AND getter_id=$2
	`, giverID, getterID)
	if err != nil {
		return nil, fmt.Errorf("list go-in-ons by giver: %w", err)
	}
	defer rows.Close()

	goInOns := make([]GoInOn, 0)
	for rows.Next() {
		var g GoInOn
		if err := rows.Scan(&g.GiverID, &g.GetterID, &g.ItemID, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan go-in-on: %w", err)
		}
		goInOns = append(goInOns, g)
	}
	return goInOns, rows.Err()
}
