package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/id"
)

// Stacks groups burst shots. Membership is held on assets.stack_id; the
// primary asset must always be a member, which the tx logic here enforces.
type Stacks struct {
	db *sql.DB
}

const stackCols = `id, owner_id, primary_asset_id, created_at, updated_at, update_id`

func scanStack(row interface{ Scan(...any) error }) (*domain.Stack, error) {
	var st domain.Stack
	var createdAt, updatedAt string
	err := row.Scan(&st.ID, &st.OwnerID, &st.PrimaryAssetID, &createdAt, &updatedAt, &st.UpdateID)
	if err != nil {
		return nil, err
	}
	st.CreatedAt = parseTime(createdAt)
	st.UpdatedAt = parseTime(updatedAt)
	return &st, nil
}

// Create makes a stack over assetIDs with the first id as primary. Assets
// already in another stack are re-homed into this one.
func (s *Stacks) Create(ctx context.Context, ownerID string, assetIDs []string) (*domain.Stack, error) {
	if len(assetIDs) < 2 {
		return nil, apperr.BadRequestf("stack needs at least two assets")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	st := &domain.Stack{
		ID:             id.New(),
		OwnerID:        ownerID,
		PrimaryAssetID: assetIDs[0],
		CreatedAt:      now,
		UpdatedAt:      now,
		UpdateID:       id.New(),
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO stacks (`+stackCols+`) VALUES (?, ?, ?, ?, ?, ?)`,
		st.ID, st.OwnerID, st.PrimaryAssetID,
		fmtTime(st.CreatedAt), fmtTime(st.UpdatedAt), st.UpdateID); err != nil {
		return nil, err
	}
	if err := setStackMembership(ctx, tx, st.ID, ownerID, assetIDs); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return st, nil
}

func setStackMembership(ctx context.Context, tx *sql.Tx, stackID, ownerID string, assetIDs []string) error {
	for _, ids := range chunk(assetIDs, maxChunk) {
		args := append([]any{stackID, fmtTime(time.Now()), id.New(), ownerID}, anySlice(ids)...)
		res, err := tx.ExecContext(ctx, `
		UPDATE assets SET stack_id = ?, updated_at = ?, update_id = ?
		WHERE owner_id = ? AND status != 'deleted' AND id IN (`+placeholders(len(ids))+`)`,
			args...)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); int(n) != len(ids) {
			return apperr.BadRequestf("stack members must exist and belong to the owner")
		}
	}
	return nil
}

// GetByID fetches a stack.
func (s *Stacks) GetByID(ctx context.Context, stackID string) (*domain.Stack, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+stackCols+` FROM stacks WHERE id = ?`, stackID)
	st, err := scanStack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("stack %s", stackID)
	}
	return st, err
}

// ListByOwner returns the owner's stacks.
func (s *Stacks) ListByOwner(ctx context.Context, ownerID string) ([]*domain.Stack, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stackCols+` FROM stacks WHERE owner_id = ? ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []*domain.Stack
	for rows.Next() {
		st, err := scanStack(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// SetPrimary promotes a member to primary.
func (s *Stacks) SetPrimary(ctx context.Context, stackID, assetID string) error {
	res, err := s.db.ExecContext(ctx, `
	UPDATE stacks SET primary_asset_id = ?, updated_at = ?, update_id = ?
	WHERE id = ? AND ? IN (SELECT id FROM assets WHERE stack_id = ?)`,
		assetID, fmtTime(time.Now()), id.New(), stackID, assetID, stackID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.BadRequestf("primary asset must be a stack member")
	}
	return nil
}

// MemberIDs lists the stack's members, primary first.
func (s *Stacks) MemberIDs(ctx context.Context, stackID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT a.id FROM assets a
	JOIN stacks st ON st.id = a.stack_id
	WHERE a.stack_id = ? AND a.status != 'deleted'
	ORDER BY (a.id = st.primary_asset_id) DESC, a.local_date_time`, stackID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Delete dissolves the stack, detaching members first and auditing.
func (s *Stacks) Delete(ctx context.Context, ownerID, stackID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `
	UPDATE assets SET stack_id = NULL, updated_at = ?, update_id = ?
	WHERE stack_id = ?`, fmtTime(time.Now()), id.New(), stackID); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx,
		`DELETE FROM stacks WHERE id = ? AND owner_id = ?`, stackID, ownerID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFoundf("stack %s", stackID)
	}
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO stacks_audit (id, stack_id, owner_id, deleted_at) VALUES (?, ?, ?, ?)`,
		id.New(), stackID, ownerID, fmtTime(time.Now())); err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveAsset detaches one member. The primary cannot leave its stack;
// a stack shrinking below two members dissolves.
func (s *Stacks) RemoveAsset(ctx context.Context, stackID, assetID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	st, err := stackByIDTx(ctx, tx, stackID)
	if err != nil {
		return err
	}
	if assetID == st.PrimaryAssetID {
		return apperr.BadRequestf("cannot remove the primary asset of a stack")
	}
	if _, err := tx.ExecContext(ctx, `
	UPDATE assets SET stack_id = NULL, updated_at = ?, update_id = ?
	WHERE id = ? AND stack_id = ?`,
		fmtTime(time.Now()), id.New(), assetID, stackID); err != nil {
		return err
	}
	var remaining []string
	rows, err := tx.QueryContext(ctx, `
	SELECT id FROM assets WHERE stack_id = ? AND status != 'deleted' ORDER BY local_date_time`,
		stackID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		remaining = append(remaining, v)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	if len(remaining) < 2 {
		if _, err := tx.ExecContext(ctx, `
		UPDATE assets SET stack_id = NULL, updated_at = ?, update_id = ? WHERE stack_id = ?`,
			fmtTime(time.Now()), id.New(), stackID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM stacks WHERE id = ?`, stackID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO stacks_audit (id, stack_id, owner_id, deleted_at) VALUES (?, ?, ?, ?)`,
			id.New(), stackID, st.OwnerID, fmtTime(time.Now())); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func stackByIDTx(ctx context.Context, tx *sql.Tx, stackID string) (*domain.Stack, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+stackCols+` FROM stacks WHERE id = ?`, stackID)
	st, err := scanStack(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFoundf("stack %s", stackID)
	}
	return st, err
}
