package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
)

// APIKeys persists long-lived credentials with grant sets.
type APIKeys struct {
	db *sql.DB
}

func scanAPIKey(row interface{ Scan(...any) error }) (*domain.APIKey, error) {
	var k domain.APIKey
	var perms, createdAt, updatedAt string
	if err := row.Scan(&k.ID, &k.UserID, &k.Name, &k.KeyHash, &perms, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(perms), &k.Permissions); err != nil {
		k.Permissions = nil
	}
	k.CreatedAt = parseTime(createdAt)
	k.UpdatedAt = parseTime(updatedAt)
	return &k, nil
}

// Create inserts a key. The raw secret is hashed by the caller.
func (s *APIKeys) Create(ctx context.Context, k *domain.APIKey) error {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO api_keys (id, user_id, name, key_hash, permissions, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ID, k.UserID, k.Name, k.KeyHash, string(perms),
		fmtTime(k.CreatedAt), fmtTime(k.UpdatedAt))
	return mapConstraint(err)
}

// GetByKeyHash resolves a key by the SHA-256 of its raw secret.
func (s *APIKeys) GetByKeyHash(ctx context.Context, keyHash string) (*domain.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, key_hash, permissions, created_at, updated_at
	FROM api_keys WHERE key_hash = ?`, keyHash)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("api key")
	}
	return k, err
}

// GetByID fetches a key owned by userID.
func (s *APIKeys) GetByID(ctx context.Context, userID, keyID string) (*domain.APIKey, error) {
	row := s.db.QueryRowContext(ctx, `
	SELECT id, user_id, name, key_hash, permissions, created_at, updated_at
	FROM api_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	k, err := scanAPIKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("api key %s", keyID)
	}
	return k, err
}

// ListByUser returns a user's keys.
func (s *APIKeys) ListByUser(ctx context.Context, userID string) ([]*domain.APIKey, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT id, user_id, name, key_hash, permissions, created_at, updated_at
	FROM api_keys WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

// Update renames a key or rewrites its grants.
func (s *APIKeys) Update(ctx context.Context, k *domain.APIKey) error {
	perms, err := json.Marshal(k.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
	UPDATE api_keys SET name = ?, permissions = ?, updated_at = ?
	WHERE id = ? AND user_id = ?`,
		k.Name, string(perms), fmtTime(time.Now()), k.ID, k.UserID)
	return err
}

// Delete removes a key owned by userID.
func (s *APIKeys) Delete(ctx context.Context, userID, keyID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM api_keys WHERE id = ? AND user_id = ?`, keyID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("api key %s", keyID)
	}
	return nil
}
