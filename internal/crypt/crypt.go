// Package crypt bundles the hashing primitives the auth and ingest paths use:
// SHA-256 for token and api-key hashes, SHA-1 for content checksums, bcrypt
// for passwords, and constant-time comparison for secrets.
package crypt

import (
	"crypto/rand"
	"crypto/sha1" // #nosec G505 -- content addressing, not authentication
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// BcryptCost matches the cost the mobile clients were provisioned against.
const BcryptCost = 10

// SHA256Hex returns the lowercase hex SHA-256 digest of b.
func SHA256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// SHA256Base64 returns the standard-base64 SHA-256 digest of b.
func SHA256Base64(b []byte) string {
	sum := sha256.Sum256(b)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// SHA1 returns the 20-byte SHA-1 digest of b. Used for asset checksums only.
func SHA1(b []byte) []byte {
	sum := sha1.Sum(b) // #nosec G401
	return sum[:]
}

// HashPassword bcrypt-hashes a password at the fixed cost.
func HashPassword(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("crypt: bcrypt hash: %w", err)
	}
	return string(out), nil
}

// ComparePassword reports whether password matches the stored bcrypt hash.
func ComparePassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RandomBytes returns n cryptographically random bytes.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("crypt: invalid random length %d", n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypt: read random: %w", err)
	}
	return b, nil
}

// ConstantTimeEq compares a and b without leaking the mismatch position.
// Differing lengths return false immediately; length is not secret here.
func ConstantTimeEq(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
