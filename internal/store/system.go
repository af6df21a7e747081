package store

import (
	"context"
	"database/sql"
	"errors"
)

// System is a tiny key-value table for server-level flags: admin onboarding
// state, license blobs, feature toggles.
type System struct {
	db *sql.DB
}

// Get returns the value for key, with ok=false when absent.
func (s *System) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM system_metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Set upserts key to value.
func (s *System) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO system_metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// Delete removes key if present.
func (s *System) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system_metadata WHERE key = ?`, key)
	return err
}
