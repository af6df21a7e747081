package crypt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty input.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", SHA256Hex(nil))
}

func TestSHA1Length(t *testing.T) {
	assert.Len(t, SHA1([]byte("hello")), 20)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, ComparePassword("correct horse", hash))
	assert.False(t, ComparePassword("wrong", hash))
}

func TestRandomBytes(t *testing.T) {
	a, err := RandomBytes(50)
	require.NoError(t, err)
	b, err := RandomBytes(50)
	require.NoError(t, err)
	assert.Len(t, a, 50)
	assert.NotEqual(t, a, b)

	_, err = RandomBytes(0)
	assert.Error(t, err)
}

func TestConstantTimeEq(t *testing.T) {
	assert.True(t, ConstantTimeEq([]byte("abc"), []byte("abc")))
	assert.False(t, ConstantTimeEq([]byte("abc"), []byte("abd")))
	assert.False(t, ConstantTimeEq([]byte("abc"), []byte("ab")))
}
