package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimestampRoundTrip(t *testing.T) {
	before := time.Now().Truncate(time.Millisecond)
	got := New()
	after := time.Now().Add(time.Millisecond)

	ts, err := TimeOf(got)
	require.NoError(t, err)
	assert.False(t, ts.Before(before.Add(-time.Millisecond)), "timestamp too early: %v < %v", ts, before)
	assert.False(t, ts.After(after.Add(time.Millisecond)), "timestamp too late: %v > %v", ts, after)
}

func TestLexicographicOrderFollowsTime(t *testing.T) {
	base := time.Now()
	earlier := NewAt(base.Add(-5 * time.Minute))
	later := NewAt(base)
	assert.Less(t, earlier, later)
}

func TestNewAtEncodesExactMillisecond(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC)
	got := NewAt(at)
	ts, err := TimeOf(got)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), ts.UnixMilli())
}

func TestTimeOfRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "not-an-id", "1234"} {
		_, err := TimeOf(in)
		assert.Error(t, err, "input %q", in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(New()))
	assert.False(t, Valid("zz"))
}
