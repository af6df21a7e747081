// Package store provides the raw-SQL persistence layer. One *sql.DB is
// shared by per-entity store types; no ORM, no query builder beyond the
// placeholder helpers below.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrDuplicate marks a unique-constraint violation, used by ingest to turn
// insert races into DUPLICATE responses.
var ErrDuplicate = errors.New("duplicate row")

// Store aggregates the per-entity stores over one database handle.
type Store struct {
	db *sql.DB

	Users       *Users
	Sessions    *Sessions
	APIKeys     *APIKeys
	SharedLinks *SharedLinks
	Assets      *Assets
	Exif        *ExifStore
	Files       *AssetFiles
	Metadata    *Metadata
	Albums      *Albums
	Tags        *Tags
	Memories    *Memories
	Stacks      *Stacks
	Partners    *Partners
	Checkpoints *Checkpoints
	Activities  *Activities
	System      *System
	Sync        *SyncStore
}

// New wires the per-entity stores over db.
func New(db *sql.DB) *Store {
	return &Store{
		db:          db,
		Users:       &Users{db: db},
		Sessions:    &Sessions{db: db},
		APIKeys:     &APIKeys{db: db},
		SharedLinks: &SharedLinks{db: db},
		Assets:      &Assets{db: db},
		Exif:        &ExifStore{db: db},
		Files:       &AssetFiles{db: db},
		Metadata:    &Metadata{db: db},
		Albums:      &Albums{db: db},
		Tags:        &Tags{db: db},
		Memories:    &Memories{db: db},
		Stacks:      &Stacks{db: db},
		Partners:    &Partners{db: db},
		Checkpoints: &Checkpoints{db: db},
		Activities:  &Activities{db: db},
		System:      &System{db: db},
		Sync:        &SyncStore{db: db},
	}
}

// DB exposes the raw handle for read-only composed queries (sync scans,
// access predicates, timeline aggregation).
func (s *Store) DB() *sql.DB { return s.db }

// --- shared codec helpers ---

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(ns sql.NullString) *time.Time {
	if !ns.Valid {
		return nil
	}
	t := parseTime(ns.String)
	return &t
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func intPtr(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	v := ni.Int64
	return &v
}

func floatPtr(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}

// maxChunk keeps IN (...) lists under sqlite's 999 bound-parameter limit.
const maxChunk = 500

func chunk(ids []string, n int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += n {
		out = append(out, ids[start:min(start+n, len(ids))])
	}
	return out
}

// placeholders returns "?,?,?" with n slots.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// anySlice widens a string slice for variadic query args.
func anySlice(ids []string) []any {
	out := make([]any, len(ids))
	for i, v := range ids {
		out[i] = v
	}
	return out
}

// mapConstraint converts sqlite unique violations to ErrDuplicate.
func mapConstraint(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed") {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}
