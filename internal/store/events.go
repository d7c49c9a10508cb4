package store

import (
	"context"
	"fmt"
)

const eventColumns = `id, owner_id, name, due_date, viewer_ids, archived, deleted, created_at, updated_at`

func scanEvent(row interface{ Scan(...any) error }) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.OwnerID, &e.Name, &e.DueDate, (*stringSet)(&e.ViewerIDs),
		&e.Archived, &e.Deleted, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) CreateEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, owner_id, name, due_date, viewer_ids, archived)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.ID, e.OwnerID, e.Name, e.DueDate, stringSet(e.ViewerIDs), e.Archived)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEvent(ctx context.Context, eventID string) (Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx, `
		SELECT `+eventColumns+` FROM events WHERE id=$1 AND NOT deleted
	`, eventID))
}

func (s *PostgresStore) ListEventsForUser(ctx context.Context, userID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE NOT deleted AND (owner_id=$1 OR viewer_ids @> to_jsonb($1::text))
		ORDER BY due_date NULLS LAST, created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list events for user: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, e Event) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE events SET name=$2, due_date=$3, viewer_ids=$4, archived=$5, updated_at=NOW()
		WHERE id=$1 AND NOT deleted
	`, e.ID, e.Name, e.DueDate, stringSet(e.ViewerIDs), e.Archived)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SoftDeleteEvent(ctx context.Context, eventID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE events SET deleted=TRUE, updated_at=NOW() WHERE id=$1`, eventID)
	if err != nil {
		return fmt.Errorf("soft delete event: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertEventRecipient(ctx context.Context, r EventRecipient) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_recipients (event_id, user_id, note, budget, status)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, user_id)
		DO UPDATE SET note=EXCLUDED.note, budget=EXCLUDED.budget, status=EXCLUDED.status
	`, r.EventID, r.UserID, r.Note, r.Budget, r.Status)
	if err != nil {
		return fmt.Errorf("upsert event recipient: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListEventRecipients(ctx context.Context, eventID string) ([]EventRecipient, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT event_id, user_id, note, budget, status FROM event_recipients WHERE event_id=$1 ORDER BY user_id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list event recipients: %w", err)
	}
	defer rows.Close()

	recipients := make([]EventRecipient, 0)
	for rows.Next() {
		var r EventRecipient
		if err := rows.Scan(&r.EventID, &r.UserID, &r.Note, &r.Budget, &r.Status); err != nil {
			return nil, fmt.Errorf("scan event recipient: %w", err)
		}
		recipients = append(recipients, r)
	}
	return recipients, rows.Err()
}

func (s *PostgresStore) DeleteEventRecipient(ctx context.Context, eventID, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM event_recipients WHERE event_id=$1 AND user_id=$2`, eventID, userID)
	if err != nil {
		return fmt.Errorf("delete event recipient: %w", err)
	}
	return nil
}
