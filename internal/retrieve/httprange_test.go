package retrieve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	cases := []struct {
		name   string
		header string
		size   int64
		want   ByteRange
	}{
		{"open end", "bytes=0-", 100, ByteRange{0, 99, 100}},
		{"bounded", "bytes=10-19", 100, ByteRange{10, 19, 100}},
		{"end clamped to size", "bytes=10-500", 100, ByteRange{10, 99, 100}},
		{"suffix", "bytes=-30", 100, ByteRange{70, 99, 100}},
		{"suffix larger than file", "bytes=-500", 100, ByteRange{0, 99, 100}},
		{"single byte", "bytes=99-99", 100, ByteRange{99, 99, 100}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseRange(tc.header, tc.size)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.want.End-tc.want.Start+1, got.Length())
		})
	}
}

func TestParseRangeRejects(t *testing.T) {
	cases := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"wrong unit", "items=0-10"},
		{"start past end of file", "bytes=100-"},
		{"reversed", "bytes=20-10"},
		{"negative suffix", "bytes=--5"},
		{"garbage", "bytes=abc-def"},
		{"bare dash", "bytes=-"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRange(tc.header, 100)
			assert.ErrorIs(t, err, ErrInvalidRange)
		})
	}

	_, err := ParseRange("bytes=0-10,20-30", 100)
	assert.ErrorIs(t, err, ErrMultiRange)
}

func TestContentRangeHeaders(t *testing.T) {
	assert.Equal(t, "bytes 10-19/100", ByteRange{10, 19, 100}.ContentRange())
	assert.Equal(t, "bytes */100", UnsatisfiableContentRange(100))
}
