package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// Users persists accounts and the quota counter.
type Users struct {
	db *sql.DB
}

const userCols = `id, email, password_hash, name, is_admin, storage_label,
	quota_size_bytes, quota_usage_bytes, profile_image_path, pin_code,
	status, deleted_at, created_at, updated_at, update_id`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	var storageLabel, pinCode, deletedAt sql.NullString
	var quotaSize sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.IsAdmin,
		&storageLabel, &quotaSize, &u.QuotaUsageBytes, &u.ProfileImagePath,
		&pinCode, &u.Status, &deletedAt, &createdAt, &updatedAt, &u.UpdateID)
	if err != nil {
		return nil, err
	}
	u.StorageLabel = strPtr(storageLabel)
	u.PinCode = strPtr(pinCode)
	u.QuotaSizeBytes = intPtr(quotaSize)
	u.DeletedAt = parseTimePtr(deletedAt)
	u.CreatedAt = parseTime(createdAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}

// Create inserts a new user. Email uniqueness violations surface as ErrDuplicate.
func (s *Users) Create(ctx context.Context, u *domain.User) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO users (id, email, password_hash, name, is_admin, storage_label,
		quota_size_bytes, quota_usage_bytes, profile_image_path, pin_code,
		status, created_at, updated_at, update_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, strings.ToLower(u.Email), u.PasswordHash, u.Name, u.IsAdmin,
		u.StorageLabel, u.QuotaSizeBytes, u.QuotaUsageBytes, u.ProfileImagePath,
		u.PinCode, u.Status, fmtTime(u.CreatedAt), fmtTime(u.UpdatedAt), u.UpdateID)
	return mapConstraint(err)
}

// GetByID fetches a user.
func (s *Users) GetByID(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, userID)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("user %s", userID)
	}
	return u, err
}

// GetByEmail fetches a non-deleted user by lowercased email.
func (s *Users) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userCols+` FROM users WHERE email = ? AND deleted_at IS NULL`,
		strings.ToLower(email))
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("user by email")
	}
	return u, err
}

// List returns all non-deleted users.
func (s *Users) List(ctx context.Context) ([]*domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userCols+` FROM users WHERE deleted_at IS NULL ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// Count returns the number of non-deleted users. Zero gates admin signup.
func (s *Users) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE deleted_at IS NULL`).Scan(&n)
	return n, err
}

// Update persists mutable profile columns and bumps the watermark.
func (s *Users) Update(ctx context.Context, u *domain.User) error {
	u.UpdateID = id.New()
	u.UpdatedAt = time.Now()
	_, err := s.db.ExecContext(ctx, `
	UPDATE users SET email = ?, password_hash = ?, name = ?, is_admin = ?,
		storage_label = ?, quota_size_bytes = ?, profile_image_path = ?,
		pin_code = ?, status = ?, deleted_at = ?, updated_at = ?, update_id = ?
	WHERE id = ?`,
		strings.ToLower(u.Email), u.PasswordHash, u.Name, u.IsAdmin,
		u.StorageLabel, u.QuotaSizeBytes, u.ProfileImagePath, u.PinCode,
		u.Status, fmtTimePtr(u.DeletedAt), fmtTime(u.UpdatedAt), u.UpdateID, u.ID)
	return mapConstraint(err)
}

// AdjustQuota applies delta to the usage counter atomically, clamped at zero.
func (s *Users) AdjustQuota(ctx context.Context, userID string, delta int64) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE users SET quota_usage_bytes = MAX(0, quota_usage_bytes + ?) WHERE id = ?`,
		delta, userID)
	return err
}

// RecomputeQuota rebuilds the usage counter from the asset table. Library
// assets do not count against the owner.
func (s *Users) RecomputeQuota(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
	SELECT IFNULL(SUM(file_size_bytes), 0) FROM assets
	WHERE owner_id = ? AND library_id IS NULL AND status != 'deleted'`,
		userID).Scan(&total)
	if err != nil {
		return 0, err
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET quota_usage_bytes = ? WHERE id = ?`, total, userID)
	return total, err
}

// SoftDelete flags the user removed and emits the audit row.
func (s *Users) SoftDelete(ctx context.Context, userID string, now time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `
	UPDATE users SET deleted_at = ?, status = 'removing', updated_at = ?, update_id = ?
	WHERE id = ? AND deleted_at IS NULL`,
		fmtTime(now), fmtTime(now), id.New(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("user %s", userID)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO users_audit (id, user_id, deleted_at) VALUES (?, ?, ?)`,
		id.New(), userID, fmtTime(now)); err != nil {
		return err
	}
	return tx.Commit()
}
