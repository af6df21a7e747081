package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
)

// Sessions persists device logins. Raw tokens are hashed before they reach
// this layer.
type Sessions struct {
	db *sql.DB
}

const sessionCols = `id, user_id, token_hash, expires_at, pin_expires_at,
	device_os, device_type, app_version, pending_sync_reset, parent_id,
	created_at, updated_at`

func scanSession(row interface{ Scan(...any) error }) (*domain.Session, error) {
	var s domain.Session
	var expiresAt, pinExpiresAt, appVersion, parentID sql.NullString
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.UserID, &s.TokenHash, &expiresAt, &pinExpiresAt,
		&s.DeviceOS, &s.DeviceType, &appVersion, &s.PendingSyncReset, &parentID,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	s.ExpiresAt = parseTimePtr(expiresAt)
	s.PinExpiresAt = parseTimePtr(pinExpiresAt)
	s.AppVersion = strPtr(appVersion)
	s.ParentID = strPtr(parentID)
	s.CreatedAt = parseTime(createdAt)
	s.UpdatedAt = parseTime(updatedAt)
	return &s, nil
}

// Create inserts a session.
func (s *Sessions) Create(ctx context.Context, sess *domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sessions (id, user_id, token_hash, expires_at, pin_expires_at,
		device_os, device_type, app_version, pending_sync_reset, parent_id,
		created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.TokenHash, fmtTimePtr(sess.ExpiresAt),
		fmtTimePtr(sess.PinExpiresAt), sess.DeviceOS, sess.DeviceType,
		sess.AppVersion, sess.PendingSyncReset, sess.ParentID,
		fmtTime(sess.CreatedAt), fmtTime(sess.UpdatedAt))
	return mapConstraint(err)
}

// GetByTokenHash resolves a session by the SHA-256 of its raw token.
func (s *Sessions) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE token_hash = ?`, tokenHash)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("session")
	}
	return sess, err
}

// GetByID fetches a session.
func (s *Sessions) GetByID(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("session %s", sessionID)
	}
	return sess, err
}

// ListByUser returns all sessions of a user, newest first.
func (s *Sessions) ListByUser(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sessionCols+` FROM sessions WHERE user_id = ? ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Touch freshens updated_at and app_version. Fire-and-forget path; callers
// ignore the error.
func (s *Sessions) Touch(ctx context.Context, sessionID string, appVersion *string, now time.Time) error {
	if appVersion != nil {
		_, err := s.db.ExecContext(ctx,
			`UPDATE sessions SET updated_at = ?, app_version = ? WHERE id = ?`,
			fmtTime(now), *appVersion, sessionID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE id = ?`, fmtTime(now), sessionID)
	return err
}

// SetPinExpiry sets or extends the elevated-permission window.
func (s *Sessions) SetPinExpiry(ctx context.Context, sessionID string, at *time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET pin_expires_at = ? WHERE id = ?`, fmtTimePtr(at), sessionID)
	return err
}

// SetPendingSyncReset flips the reset flag.
func (s *Sessions) SetPendingSyncReset(ctx context.Context, sessionID string, pending bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET pending_sync_reset = ? WHERE id = ?`, pending, sessionID)
	return err
}

// Delete removes a session (logout / revoke). Checkpoints cascade.
func (s *Sessions) Delete(ctx context.Context, sessionID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("session %s", sessionID)
	}
	return nil
}

// DeleteByUser removes all sessions of a user except keep (may be empty).
func (s *Sessions) DeleteByUser(ctx context.Context, userID, keep string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND id != ?`, userID, keep)
	return err
}
