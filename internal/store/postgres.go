package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction and rolls back on any error. Every
// multi-row mutation in the store goes through it.
func (s *PostgresStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// stringSet maps a Go string slice onto a JSONB array column. JSONB keeps the
// containment (@>) and overlap predicates the visibility engine queries with.
type stringSet []string

func (s stringSet) Value() (driver.Value, error) {
	if s == nil {
		s = []string{}
	}
	return json.Marshal([]string(s))
}

func (s *stringSet) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, (*[]string)(s))
	case string:
		return json.Unmarshal([]byte(v), (*[]string)(s))
	default:
		return fmt.Errorf("scan string set: unsupported type %T", src)
	}
}

// nullRaw maps a nullable JSONB column onto json.RawMessage.
type nullRaw struct {
	raw *json.RawMessage
}

func (n nullRaw) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*n.raw = nil
		return nil
	case []byte:
		*n.raw = append(json.RawMessage(nil), v...)
		return nil
	case string:
		*n.raw = json.RawMessage(v)
		return nil
	default:
		return fmt.Errorf("scan raw json: unsupported type %T", src)
	}
}

func rawArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
