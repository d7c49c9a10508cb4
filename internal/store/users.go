package store

import (
	"context"
	"fmt"
)

const userColumns = `id, display_name, email, password_hash, is_active, is_public, parent_id, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsPublic, &u.ParentID, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, display_name, email, password_hash, is_active, is_public, parent_id)
		VALUES ($1, $2, LOWER($3), $4, $5, $6, $7)
	`, u.ID, u.DisplayName, u.Email, u.PasswordHash, u.IsActive, u.IsPublic, u.ParentID)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, userID))
}

// GetUserByEmail is case-insensitive so legacy mixed-case rows resolve to the
// same identity as lowercased new ones.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1) AND is_active
	`, email))
}

func (s *PostgresStore) GetAnyUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE LOWER(email)=LOWER($1)
	`, email))
}

// ClaimPlaceholderUser turns an invited placeholder into a real account:
// sets name and password and activates the row.
func (s *PostgresStore) ClaimPlaceholderUser(ctx context.Context, userID, displayName, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET display_name=$2, password_hash=$3, is_active=TRUE, updated_at=NOW()
		WHERE id=$1
	`, userID, displayName, passwordHash)
	if err != nil {
		return fmt.Errorf("claim placeholder user: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, userID, displayName string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET display_name=$2, updated_at=NOW() WHERE id=$1`, userID, displayName)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserEmail(ctx context.Context, userID, email string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET email=LOWER($2), updated_at=NOW() WHERE id=$1`, userID, email)
	if err != nil {
		return fmt.Errorf("update user email: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update user password: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserPublic(ctx context.Context, userID string, isPublic bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_public=$2, updated_at=NOW() WHERE id=$1`, userID, isPublic)
	if err != nil {
		return fmt.Errorf("update user public flag: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET is_active=FALSE, updated_at=NOW() WHERE id=$1`, userID)
	if err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}

// ListSubusers returns active users whose parent_id is userID.
func (s *PostgresStore) ListSubusers(ctx context.Context, userID string) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE parent_id=$1 AND is_active
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list subusers: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subuser: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *PostgresStore) ListUsersByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users WHERE id = ANY($1::text[])
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("list users by ids: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// FilterActiveUserIDs keeps only ids that belong to active users.
func (s *PostgresStore) FilterActiveUserIDs(ctx context.Context, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM users WHERE id = ANY($1::text[]) AND is_active
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("filter active users: %w", err)
	}
	defer rows.Close()

	active := make([]string, 0, len(ids))
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		active = append(active, id)
	}
	return active, rows.Err()
}
