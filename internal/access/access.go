// Package access decides which entity ids a principal may touch. Every
// verb maps to a union of membership predicates over the relational model;
// the guard evaluates them in SQL, 500 ids per query, and unions the
// partial results so callers never observe chunk boundaries.
package access

import (
	"context"
	"database/sql"
	"time"

	"github.com/jkov/photark/internal/apperr"
	"github.com/jkov/photark/internal/domain"
	"github.com/jkov/photark/internal/metrics"
	"github.com/jkov/photark/internal/store"
)

const chunkSize = 500

// Guard answers permission questions against one database handle.
type Guard struct {
	db *sql.DB
}

func NewGuard(st *store.Store) *Guard {
	return &Guard{db: st.DB()}
}

// Check returns the subset of ids the principal holds perm on. The result
// preserves no order and contains no duplicates.
func (g *Guard) Check(ctx context.Context, p *domain.Principal, perm domain.Permission, ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if p.SharedLink != nil && !domain.SharedLinkMay(perm, p.SharedLink) {
		metrics.AccessDenials.WithLabelValues(string(perm)).Add(float64(len(ids)))
		return nil, nil
	}
	if p.APIKey != nil && !domain.KeyGrants(p.APIKey.Permissions, perm) {
		metrics.AccessDenials.WithLabelValues(string(perm)).Add(float64(len(ids)))
		return nil, nil
	}

	allowed := make(map[string]struct{}, len(ids))
	for start := 0; start < len(ids); start += chunkSize {
		end := min(start+chunkSize, len(ids))
		part, err := g.checkChunk(ctx, p, perm, dedupe(ids[start:end]))
		if err != nil {
			return nil, err
		}
		for _, id := range part {
			allowed[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(allowed))
	for _, id := range ids {
		if _, ok := allowed[id]; ok {
			out = append(out, id)
			delete(allowed, id)
		}
	}
	if denied := len(ids) - len(out); denied > 0 {
		metrics.AccessDenials.WithLabelValues(string(perm)).Add(float64(denied))
	}
	return out, nil
}

// Require is Check that fails closed: every requested id must be allowed.
func (g *Guard) Require(ctx context.Context, p *domain.Principal, perm domain.Permission, ids []string) error {
	allowed, err := g.Check(ctx, p, perm, ids)
	if err != nil {
		return err
	}
	if len(allowed) != len(dedupe(ids)) {
		return apperr.Forbiddenf("missing permission %s", perm)
	}
	return nil
}

func (g *Guard) checkChunk(ctx context.Context, p *domain.Principal, perm domain.Permission, ids []string) ([]string, error) {
	switch perm {
	case domain.PermAssetRead, domain.PermAssetView, domain.PermAssetDownload:
		return g.assetRead(ctx, p, perm, ids)
	case domain.PermAssetUpdate, domain.PermAssetDelete, domain.PermAssetShare,
		domain.PermAssetReplace, domain.PermAssetCopy:
		return g.assetOwned(ctx, p, ids)
	case domain.PermAlbumRead:
		return g.albumRead(ctx, p, ids)
	case domain.PermAlbumUpdate, domain.PermAlbumDelete, domain.PermAlbumShare:
		return g.albumOwned(ctx, p, ids)
	case domain.PermActivityCreate:
		return g.activityCreate(ctx, p, ids)
	case domain.PermPartnerUpdate:
		return g.partnerUpdate(ctx, p, ids)
	default:
		return nil, nil
	}
}

// assetRead unions ownership, album membership, partner visibility and
// shared-link grants. Trashed assets survive only the owner's asset.read;
// locked visibility needs an elevated session.
func (g *Guard) assetRead(ctx context.Context, p *domain.Principal, perm domain.Permission, ids []string) ([]string, error) {
	args := anySlice(ids)
	in := placeholders(len(ids))

	if link := p.SharedLink; link != nil {
		// Link principals see only what the link covers, always
		// cross-user rules: active assets only.
		var q string
		var qargs []any
		if link.AlbumID != nil {
			q = `SELECT a.id FROM assets a
			JOIN album_assets aa ON aa.asset_id = a.id
			WHERE aa.album_id = ? AND a.status = 'active' AND a.id IN (` + in + `)`
			qargs = append([]any{*link.AlbumID}, args...)
		} else {
			q = `SELECT a.id FROM assets a
			JOIN shared_link_assets sla ON sla.asset_id = a.id
			WHERE sla.link_id = ? AND a.status = 'active' AND a.id IN (` + in + `)`
			qargs = append([]any{link.ID}, args...)
		}
		return collectIDs(ctx, g.db, q, qargs...)
	}

	userID := p.UserID()

	lockedFilter := `AND a.visibility != 'locked'`
	if p.Elevated(time.Now()) {
		lockedFilter = ``
	}
	// The owner sees trashed assets through asset.read only; every other
	// branch, and view/download even for the owner, is active-only.
	ownerBranch := `a.owner_id = ?`
	if perm != domain.PermAssetRead {
		ownerBranch = `(a.owner_id = ? AND a.status = 'active')`
	}

	q := `
	SELECT a.id FROM assets a
	WHERE a.id IN (` + in + `) AND a.status != 'deleted' ` + lockedFilter + ` AND (
		` + ownerBranch + `
		OR (a.status = 'active' AND a.id IN (
			SELECT aa.asset_id FROM album_assets aa
			JOIN albums al ON al.id = aa.album_id
			WHERE al.owner_id = ? OR aa.album_id IN (
				SELECT album_id FROM album_users WHERE user_id = ?)))
		OR (a.status = 'active' AND a.visibility IN ('timeline','hidden') AND a.owner_id IN (
			SELECT shared_by_id FROM partners WHERE shared_with_id = ?))
	)`
	qargs := append(args, userID, userID, userID, userID)
	return collectIDs(ctx, g.db, q, qargs...)
}

func (g *Guard) assetOwned(ctx context.Context, p *domain.Principal, ids []string) ([]string, error) {
	if p.SharedLink != nil {
		return nil, nil
	}
	args := append(anySlice(ids), p.UserID())
	return collectIDs(ctx, g.db, `
	SELECT id FROM assets
	WHERE id IN (`+placeholders(len(ids))+`) AND owner_id = ? AND status != 'deleted'`,
		args...)
}

func (g *Guard) albumRead(ctx context.Context, p *domain.Principal, ids []string) ([]string, error) {
	if link := p.SharedLink; link != nil {
		if link.AlbumID == nil {
			return nil, nil
		}
		for _, id := range ids {
			if id == *link.AlbumID {
				return []string{id}, nil
			}
		}
		return nil, nil
	}
	userID := p.UserID()
	args := append(anySlice(ids), userID, userID)
	return collectIDs(ctx, g.db, `
	SELECT id FROM albums
	WHERE id IN (`+placeholders(len(ids))+`) AND (owner_id = ?
		OR id IN (SELECT album_id FROM album_users WHERE user_id = ?))`,
		args...)
}

func (g *Guard) albumOwned(ctx context.Context, p *domain.Principal, ids []string) ([]string, error) {
	if p.SharedLink != nil {
		return nil, nil
	}
	args := append(anySlice(ids), p.UserID())
	return collectIDs(ctx, g.db, `
	SELECT id FROM albums WHERE id IN (`+placeholders(len(ids))+`) AND owner_id = ?`,
		args...)
}

func (g *Guard) activityCreate(ctx context.Context, p *domain.Principal, ids []string) ([]string, error) {
	if p.SharedLink != nil {
		return nil, nil
	}
	userID := p.UserID()
	args := append(anySlice(ids), userID, userID)
	return collectIDs(ctx, g.db, `
	SELECT id FROM albums
	WHERE id IN (`+placeholders(len(ids))+`) AND is_activity_enabled = 1 AND (owner_id = ?
		OR id IN (SELECT album_id FROM album_users WHERE user_id = ?))`,
		args...)
}

// partnerUpdate ids are sharedById values; the caller must be the
// recipient of each partnership.
func (g *Guard) partnerUpdate(ctx context.Context, p *domain.Principal, ids []string) ([]string, error) {
	if p.SharedLink != nil {
		return nil, nil
	}
	args := append(anySlice(ids), p.UserID())
	return collectIDs(ctx, g.db, `
	SELECT shared_by_id FROM partners
	WHERE shared_by_id IN (`+placeholders(len(ids))+`) AND shared_with_id = ?`,
		args...)
}

func collectIDs(ctx context.Context, db *sql.DB, q string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func placeholders(n int) string {
	if n == 0 {
		return ""
	}
	b := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ',')
		}
		b = append(b, '?')
	}
	return string(b)
}

func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, v := range ids {
		out[i] = v
	}
	return out
}
