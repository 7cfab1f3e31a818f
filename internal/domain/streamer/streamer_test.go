package streamer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/shared/types"
	"github.com/updrift/updrift/internal/storage"
)

type fakeCatalog struct {
	packages map[string]types.UpdatePackageInfo
}

func (f *fakeCatalog) FindPackage(ctx context.Context, packageID string) (types.UpdatePackageInfo, error) {
	pkg, ok := f.packages[packageID]
	if !ok {
		return types.UpdatePackageInfo{}, fmt.Errorf("%w: %s", types.ErrPackageNotFound, packageID)
	}
	return pkg, nil
}

const payload = "0123456789abcdefghij" // 20 bytes

func newTestStreamer(t *testing.T) *Streamer {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	art, err := store.SaveFull("app", "v1", strings.NewReader(payload))
	require.NoError(t, err)

	cat := &fakeCatalog{packages: map[string]types.UpdatePackageInfo{
		"pkg_1": {PackageID: "pkg_1", AppID: "app", Type: types.PackageFull, TargetVersionID: "v1", Path: art.Path, Size: art.Size, Checksum: art.Checksum},
		"pkg_gone": {PackageID: "pkg_gone", AppID: "app", Type: types.PackageFull, TargetVersionID: "v2", Path: "app/full/gone.pkg"},
	}}
	return New(cat, store, zap.NewNop())
}

func readRange(t *testing.T, rng *Range) string {
	t.Helper()
	defer rng.Reader.Close()
	data, err := io.ReadAll(rng.Reader)
	require.NoError(t, err)
	return string(data)
}

func TestOpenRangeWholeFile(t *testing.T) {
	s := newTestStreamer(t)

	rng, err := s.OpenRange(context.Background(), "pkg_1", 0, 0)
	require.NoError(t, err)

	assert.Equal(t, int64(0), rng.Start)
	assert.Equal(t, int64(len(payload)), rng.Length)
	assert.Equal(t, int64(len(payload)), rng.TotalSize)
	assert.True(t, rng.SupportsResume)
	assert.Equal(t, payload, readRange(t, rng))
}

func TestOpenRangeMidFile(t *testing.T) {
	s := newTestStreamer(t)

	rng, err := s.OpenRange(context.Background(), "pkg_1", 5, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rng.Start)
	assert.Equal(t, int64(10), rng.Length)
	assert.Equal(t, payload[5:15], readRange(t, rng))
}

// Two ranged reads stitched together must reconstruct the original bytes
// exactly; this is the resume path a client exercises after an interrupt.
func TestOpenRangeResumeReconstructs(t *testing.T) {
	s := newTestStreamer(t)
	ctx := context.Background()

	first, err := s.OpenRange(ctx, "pkg_1", 0, 8)
	require.NoError(t, err)
	head := readRange(t, first)

	second, err := s.OpenRange(ctx, "pkg_1", int64(len(head)), 0)
	require.NoError(t, err)
	tail := readRange(t, second)

	assert.Equal(t, payload, head+tail)
}

func TestOpenRangeClamping(t *testing.T) {
	s := newTestStreamer(t)
	ctx := context.Background()

	// Negative start reads from the beginning.
	rng, err := s.OpenRange(ctx, "pkg_1", -7, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rng.Start)
	assert.Equal(t, payload, readRange(t, rng))

	// Length past end of file reads to EOF.
	rng, err = s.OpenRange(ctx, "pkg_1", 15, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(5), rng.Length)
	assert.Equal(t, payload[15:], readRange(t, rng))

	// Start exactly at the end is an empty, valid range.
	rng, err = s.OpenRange(ctx, "pkg_1", int64(len(payload)), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rng.Length)
	assert.Equal(t, "", readRange(t, rng))
}

func TestOpenRangeOffsetOutOfRange(t *testing.T) {
	s := newTestStreamer(t)

	_, err := s.OpenRange(context.Background(), "pkg_1", int64(len(payload))+1, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrOffsetOutOfRange))
}

func TestOpenRangeUnknownPackage(t *testing.T) {
	s := newTestStreamer(t)

	_, err := s.OpenRange(context.Background(), "pkg_missing", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPackageNotFound))
}

func TestOpenRangeMissingArtifact(t *testing.T) {
	s := newTestStreamer(t)

	_, err := s.OpenRange(context.Background(), "pkg_gone", 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFileNotFound))
}

// Overlapping concurrent readers never interfere: each range owns its own
// file handle.
func TestOpenRangeConcurrent(t *testing.T) {
	s := newTestStreamer(t)
	ctx := context.Background()

	done := make(chan string, 4)
	for i := 0; i < 4; i++ {
		go func() {
			rng, err := s.OpenRange(ctx, "pkg_1", 0, 0)
			if err != nil {
				done <- err.Error()
				return
			}
			defer rng.Reader.Close()
			data, err := io.ReadAll(rng.Reader)
			if err != nil {
				done <- err.Error()
				return
			}
			done <- string(data)
		}()
	}
	for i := 0; i < 4; i++ {
		assert.Equal(t, payload, <-done)
	}
}
