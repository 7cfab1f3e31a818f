package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/updrift/updrift/internal/shared/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	return store
}

func TestSaveFull(t *testing.T) {
	store := newTestStore(t)
	payload := []byte("full package payload bytes")

	art, err := store.SaveFull("com.example.app", "ver-1", strings.NewReader(string(payload)))
	require.NoError(t, err)

	assert.Equal(t, "com.example.app/full/ver-1.pkg", art.Path)
	assert.Equal(t, int64(len(payload)), art.Size)

	sum := sha256.Sum256(payload)
	assert.Equal(t, hex.EncodeToString(sum[:]), art.Checksum)
	assert.NotEmpty(t, art.ContentType)
	assert.True(t, store.Exists(art.Path))
}

func TestSaveIncremental(t *testing.T) {
	store := newTestStore(t)

	art, err := store.SaveIncremental("com.example.app", "ver-1", "ver-2", strings.NewReader("patch"))
	require.NoError(t, err)
	assert.Equal(t, "com.example.app/incremental/ver-1_ver-2.patch", art.Path)
}

func TestSaveEmptyPayload(t *testing.T) {
	store := newTestStore(t)

	_, err := store.SaveFull("app", "v1", strings.NewReader(""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))

	_, err = store.SaveFull("app", "v1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrInvalidArgument))
}

func TestSaveSanitizesIdentifiers(t *testing.T) {
	store := newTestStore(t)

	art, err := store.SaveFull("Com/Example App", "V 1", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "com-example-app/full/v-1.pkg", art.Path)
}

func TestOpenRoundTrip(t *testing.T) {
	store := newTestStore(t)
	art, err := store.SaveFull("app", "v1", strings.NewReader("round trip"))
	require.NoError(t, err)

	f, err := store.Open(art.Path)
	require.NoError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "round trip", string(data))
}

func TestOpenMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Open("app/full/nope.pkg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFileNotFound))

	_, err = store.Size("app/full/nope.pkg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFileNotFound))
}

func TestSize(t *testing.T) {
	store := newTestStore(t)
	art, err := store.SaveFull("app", "v1", strings.NewReader("12345"))
	require.NoError(t, err)

	size, err := store.Size(art.Path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)
}

func TestUsage(t *testing.T) {
	store := newTestStore(t)
	_, err := store.SaveFull("app", "v1", strings.NewReader("aaaa"))
	require.NoError(t, err)
	_, err = store.SaveIncremental("app", "v1", "v2", strings.NewReader("bb"))
	require.NoError(t, err)

	stats, err := store.Usage()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Artifacts)
	assert.Equal(t, int64(6), stats.TotalBytes)
}
