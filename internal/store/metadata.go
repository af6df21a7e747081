package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/id"
)

// Metadata persists the (asset, key) and (user, key) JSON maps. Deletes
// write audit rows because both maps are synced entity types.
type Metadata struct {
	db *sql.DB
}

// MetadataItem is one key/value pair; Value is raw JSON.
type MetadataItem struct {
	Key   string
	Value string
}

// UpsertAsset writes one asset metadata key.
func (s *Metadata) UpsertAsset(ctx context.Context, assetID, key, valueJSON string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO asset_metadata (asset_id, key, value, updated_at, update_id)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(asset_id, key) DO UPDATE SET
		value = excluded.value, updated_at = excluded.updated_at, update_id = excluded.update_id`,
		assetID, key, valueJSON, fmtTime(time.Now()), id.New())
	return err
}

// GetAsset reads one asset metadata key.
func (s *Metadata) GetAsset(ctx context.Context, assetID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM asset_metadata WHERE asset_id = ? AND key = ?`,
		assetID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFoundf("metadata key %s", key)
	}
	return v, err
}

// ListAsset returns all metadata of an asset.
func (s *Metadata) ListAsset(ctx context.Context, assetID string) ([]MetadataItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM asset_metadata WHERE asset_id = ? ORDER BY key`, assetID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []MetadataItem
	for rows.Next() {
		var item MetadataItem
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteAsset removes one asset metadata key and audits the deletion.
func (s *Metadata) DeleteAsset(ctx context.Context, ownerID, assetID, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM asset_metadata WHERE asset_id = ? AND key = ?`, assetID, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("metadata key %s", key)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO asset_metadata_audit (id, asset_id, owner_id, key, deleted_at)
	VALUES (?, ?, ?, ?, ?)`,
		id.New(), assetID, ownerID, key, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// UpsertUser writes one user metadata key.
func (s *Metadata) UpsertUser(ctx context.Context, userID, key, valueJSON string) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO user_metadata (user_id, key, value, updated_at, update_id)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(user_id, key) DO UPDATE SET
		value = excluded.value, updated_at = excluded.updated_at, update_id = excluded.update_id`,
		userID, key, valueJSON, fmtTime(time.Now()), id.New())
	return err
}

// GetUser reads one user metadata key.
func (s *Metadata) GetUser(ctx context.Context, userID, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM user_metadata WHERE user_id = ? AND key = ?`,
		userID, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.NotFoundf("metadata key %s", key)
	}
	return v, err
}

// ListUser returns all metadata of a user.
func (s *Metadata) ListUser(ctx context.Context, userID string) ([]MetadataItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM user_metadata WHERE user_id = ? ORDER BY key`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []MetadataItem
	for rows.Next() {
		var item MetadataItem
		if err := rows.Scan(&item.Key, &item.Value); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// DeleteUser removes one user metadata key and audits the deletion.
func (s *Metadata) DeleteUser(ctx context.Context, userID, key string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx,
		`DELETE FROM user_metadata WHERE user_id = ? AND key = ?`, userID, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("metadata key %s", key)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO user_metadata_audit (id, user_id, key, deleted_at) VALUES (?, ?, ?, ?)`,
		id.New(), userID, key, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}
