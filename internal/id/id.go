// Package id issues time-ordered identifiers.
//
// Every primary key, watermark (update_id) and audit row id in the system is
// a UUIDv7: the first 48 bits are a big-endian unix-ms timestamp, the rest is
// random. Canonical lowercase dash formatting is fixed-width, so the
// lexicographic order of two ids generated >= 1ms apart matches their
// numeric (and temporal) order. Sync relies on that for its watermark scans.
package id

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a fresh UUIDv7 string.
func New() string {
	u, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than handing a zero id to a primary key.
		return uuid.NewString()
	}
	return u.String()
}

// NewAt returns a UUIDv7 string whose timestamp prefix encodes t.
// Used by tests and by backdated watermark fixtures.
func NewAt(t time.Time) string {
	var b [16]byte
	ms := uint64(t.UnixMilli())
	b[0] = byte(ms >> 40)
	b[1] = byte(ms >> 32)
	b[2] = byte(ms >> 24)
	b[3] = byte(ms >> 16)
	b[4] = byte(ms >> 8)
	b[5] = byte(ms)
	if _, err := rand.Read(b[6:]); err != nil {
		// Zero-filled randomness still yields a valid, ordered id.
		for i := 6; i < 16; i++ {
			b[i] = 0
		}
	}
	b[6] = (b[6] & 0x0f) | 0x70 // version 7
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	u, _ := uuid.FromBytes(b[:])
	return u.String()
}

// TimeOf decodes the unix-ms timestamp from the first 48 bits of a
// time-ordered id. The staleness rule in sync depends on this decode.
func TimeOf(id string) (time.Time, error) {
	hex := strings.ReplaceAll(strings.ToLower(id), "-", "")
	if len(hex) != 32 {
		return time.Time{}, fmt.Errorf("id: malformed id %q", id)
	}
	ms, err := strconv.ParseUint(hex[:12], 16, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("id: decode timestamp of %q: %w", id, err)
	}
	return time.UnixMilli(int64(ms)), nil
}

// Valid reports whether s parses as a UUID.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
