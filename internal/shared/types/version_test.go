package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	v, err := ParseVersion("2.10.345")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2, Minor: 10, Build: 345}, v)
	assert.Equal(t, "2.10.345", v.String())
}

func TestParseVersion_Invalid(t *testing.T) {
	for _, s := range []string{"", "abc", "1.2.3-beta", "1.2.3+build.7"} {
		_, err := ParseVersion(s)
		require.Error(t, err, "input %q", s)
		assert.True(t, errors.Is(err, ErrInvalidArgument), "input %q", s)
	}
}

func TestVersionEncode(t *testing.T) {
	assert.Equal(t, 0, Version{}.Encode())
	assert.Equal(t, 10203, Version{Major: 1, Minor: 2, Build: 3}.Encode())
	assert.Equal(t, 20000, Version{Major: 2}.Encode())
}

func TestGap(t *testing.T) {
	a := Version{Major: 1, Minor: 2, Build: 3}
	b := Version{Major: 1, Minor: 2, Build: 8}

	assert.Equal(t, 5, Gap(a, b))
	assert.Equal(t, 5, Gap(b, a))
	assert.Equal(t, 0, Gap(a, a))

	// A one-minor hop lands exactly on the adjacency boundary; a major bump
	// lands well past it.
	assert.Equal(t, 100, Gap(Version{Major: 1, Minor: 2}, Version{Major: 1, Minor: 3}))
	assert.Equal(t, 10000, Gap(Version{Major: 1}, Version{Major: 2}))
}

func TestVersionIsZero(t *testing.T) {
	assert.True(t, Version{}.IsZero())
	assert.False(t, Version{Build: 1}.IsZero())
}
