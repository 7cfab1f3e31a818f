package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRangeHeader(t *testing.T) {
	tests := []struct {
		header string
		start  int64
		length int64
		ranged bool
		err    bool
	}{
		{header: "", start: 0, length: 0, ranged: false},
		{header: "bytes=0-", start: 0, length: 0, ranged: true},
		{header: "bytes=100-", start: 100, length: 0, ranged: true},
		{header: "bytes=5-9", start: 5, length: 5, ranged: true},
		{header: "bytes=7-7", start: 7, length: 1, ranged: true},
		{header: "bytes=-500", err: true},           // suffix ranges unsupported
		{header: "bytes=0-10,20-30", err: true},     // multi-range unsupported
		{header: "bytes=9-5", err: true},            // inverted
		{header: "bytes=abc-", err: true},           // not a number
		{header: "items=0-10", err: true},           // wrong unit
	}

	for _, tt := range tests {
		start, length, ranged, err := parseRangeHeader(tt.header)
		if tt.err {
			require.Error(t, err, "header %q", tt.header)
			continue
		}
		require.NoError(t, err, "header %q", tt.header)
		assert.Equal(t, tt.start, start, "header %q", tt.header)
		assert.Equal(t, tt.length, length, "header %q", tt.header)
		assert.Equal(t, tt.ranged, ranged, "header %q", tt.header)
	}
}
