package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/shared/types"
)

type fakeRegistry struct {
	apps     map[string]types.AppInfo
	versions map[string][]types.VersionInfo
}

func (f *fakeRegistry) App(appID string) (types.AppInfo, bool) {
	app, ok := f.apps[appID]
	return app, ok
}

func (f *fakeRegistry) LatestVersion(appID string) (types.VersionInfo, bool) {
	for _, v := range f.versions[appID] {
		if v.IsLatest {
			return v, true
		}
	}
	return types.VersionInfo{}, false
}

func (f *fakeRegistry) FindVersion(appID string, version types.Version) (types.VersionInfo, bool) {
	for _, v := range f.versions[appID] {
		if v.Version == version {
			return v, true
		}
	}
	return types.VersionInfo{}, false
}

type fakeCatalog struct {
	packages []types.UpdatePackageInfo
}

func (f *fakeCatalog) FindPackage(ctx context.Context, packageID string) (types.UpdatePackageInfo, error) {
	for _, p := range f.packages {
		if p.PackageID == packageID {
			return p, nil
		}
	}
	return types.UpdatePackageInfo{}, fmt.Errorf("%w: %s", types.ErrPackageNotFound, packageID)
}

func (f *fakeCatalog) IncrementalFor(appID, sourceVersionID, targetVersionID string) (types.UpdatePackageInfo, bool) {
	for _, p := range f.packages {
		if p.AppID == appID && p.Type == types.PackageIncremental &&
			p.SourceVersionID == sourceVersionID && p.TargetVersionID == targetVersionID {
			return p, true
		}
	}
	return types.UpdatePackageInfo{}, false
}

func (f *fakeCatalog) FullFor(appID, targetVersionID string) (types.UpdatePackageInfo, bool) {
	for _, p := range f.packages {
		if p.AppID == appID && p.Type == types.PackageFull && p.TargetVersionID == targetVersionID {
			return p, true
		}
	}
	return types.UpdatePackageInfo{}, false
}

func (f *fakeCatalog) PackagesTargeting(appID, targetVersionID string) []types.UpdatePackageInfo {
	var out []types.UpdatePackageInfo
	for _, p := range f.packages {
		if p.AppID == appID && p.TargetVersionID == targetVersionID {
			out = append(out, p)
		}
	}
	return out
}

type fakeSizer struct {
	sizes map[string]int64
}

func (f *fakeSizer) Size(path string) (int64, error) {
	size, ok := f.sizes[path]
	if !ok {
		return 0, fmt.Errorf("%w: %s", types.ErrFileNotFound, path)
	}
	return size, nil
}

// newTestResolver builds a fixture with versions 1.0.0 (v1), 1.1.0 (v2,
// latest) plus a full package for v2 and a v1-to-v2 incremental.
func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	reg := &fakeRegistry{
		apps: map[string]types.AppInfo{"app": {AppID: "app"}},
		versions: map[string][]types.VersionInfo{
			"app": {
				{VersionID: "v1", AppID: "app", Version: types.Version{Major: 1}},
				{VersionID: "v2", AppID: "app", Version: types.Version{Major: 1, Minor: 1}, IsLatest: true},
			},
		},
	}
	cat := &fakeCatalog{packages: []types.UpdatePackageInfo{
		{PackageID: "pkg_full", AppID: "app", Type: types.PackageFull, TargetVersionID: "v2", Path: "full.pkg", Size: 1000},
		{PackageID: "pkg_inc", AppID: "app", Type: types.PackageIncremental, SourceVersionID: "v1", TargetVersionID: "v2", Path: "inc.patch", Size: 100},
	}}
	files := &fakeSizer{sizes: map[string]int64{"full.pkg": 1000, "inc.patch": 100}}
	return New(reg, cat, files, zap.NewNop())
}

func TestFreshCheckIncrementalPreferred(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "app",
		CurrentVersion: types.Version{Major: 1},
	})
	require.NoError(t, err)

	assert.True(t, resp.HasUpdate)
	require.NotNil(t, resp.LatestVersion)
	assert.Equal(t, "v2", resp.LatestVersion.VersionID)
	require.NotNil(t, resp.SuggestedPackage)
	assert.Equal(t, "pkg_inc", resp.SuggestedPackage.PackageID)
	assert.Equal(t, int64(100), resp.TotalSize)
	assert.True(t, resp.SupportResume)
	assert.Len(t, resp.AvailablePackages, 2)
}

// An unknown current version (a sideloaded build) cannot take the patch path
// and falls back to the full package.
func TestFreshCheckUnknownVersionGetsFull(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "app",
		CurrentVersion: types.Version{Major: 0, Minor: 9},
	})
	require.NoError(t, err)

	assert.True(t, resp.HasUpdate)
	require.NotNil(t, resp.SuggestedPackage)
	assert.Equal(t, "pkg_full", resp.SuggestedPackage.PackageID)
	assert.Equal(t, int64(1000), resp.TotalSize)
}

func TestFreshCheckUpToDate(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "app",
		CurrentVersion: types.Version{Major: 1, Minor: 1},
	})
	require.NoError(t, err)
	assert.False(t, resp.HasUpdate)
	assert.Nil(t, resp.SuggestedPackage)
}

func TestFreshCheckUnregisteredApp(t *testing.T) {
	r := newTestResolver(t)

	_, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "ghost",
		CurrentVersion: types.Version{Major: 1},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrAppNotRegistered))
}

func TestFreshCheckNoVersions(t *testing.T) {
	reg := &fakeRegistry{apps: map[string]types.AppInfo{"empty": {AppID: "empty"}}}
	r := New(reg, &fakeCatalog{}, &fakeSizer{}, zap.NewNop())

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{AppID: "empty"})
	require.NoError(t, err)
	assert.False(t, resp.HasUpdate)
}

// Gap 100 (one minor hop) is still adjacent; gap 101 is a jump that must
// take the full package even when a patch exists.
func TestFreshCheckAdjacencyBoundary(t *testing.T) {
	makeResolver := func(current types.Version) *Resolver {
		reg := &fakeRegistry{
			apps: map[string]types.AppInfo{"app": {AppID: "app"}},
			versions: map[string][]types.VersionInfo{
				"app": {
					{VersionID: "vc", AppID: "app", Version: current},
					{VersionID: "vl", AppID: "app", Version: types.Version{Major: 1, Minor: 3}, IsLatest: true},
				},
			},
		}
		cat := &fakeCatalog{packages: []types.UpdatePackageInfo{
			{PackageID: "pkg_full", AppID: "app", Type: types.PackageFull, TargetVersionID: "vl", Path: "f"},
			{PackageID: "pkg_inc", AppID: "app", Type: types.PackageIncremental, SourceVersionID: "vc", TargetVersionID: "vl", Path: "i"},
		}}
		return New(reg, cat, &fakeSizer{sizes: map[string]int64{"f": 10, "i": 1}}, zap.NewNop())
	}

	// 1.2.0 -> 1.3.0, gap exactly 100
	resp, err := makeResolver(types.Version{Major: 1, Minor: 2}).CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "app",
		CurrentVersion: types.Version{Major: 1, Minor: 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "pkg_inc", resp.SuggestedPackage.PackageID)

	// 1.1.99 -> 1.3.0, gap 101
	resp, err = makeResolver(types.Version{Major: 1, Minor: 1, Build: 99}).CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "app",
		CurrentVersion: types.Version{Major: 1, Minor: 1, Build: 99},
	})
	require.NoError(t, err)
	assert.Equal(t, "pkg_full", resp.SuggestedPackage.PackageID)
}

func TestResumeConfirmsOffset(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		PackageID:  "pkg_full",
		FileOffset: 400,
	})
	require.NoError(t, err)

	assert.True(t, resp.HasUpdate)
	assert.True(t, resp.SupportResume)
	assert.Equal(t, int64(400), resp.ConfirmedOffset)
	assert.Equal(t, int64(1000), resp.TotalSize)
	require.NotNil(t, resp.SuggestedPackage)
	assert.Equal(t, "pkg_full", resp.SuggestedPackage.PackageID)
}

// A stale offset at or past the artifact size restarts from zero rather than
// failing.
func TestResumeStaleOffsetRestarts(t *testing.T) {
	r := newTestResolver(t)

	for _, offset := range []int64{1000, 5000} {
		resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
			PackageID:  "pkg_full",
			FileOffset: offset,
		})
		require.NoError(t, err)
		assert.True(t, resp.HasUpdate)
		assert.Equal(t, int64(0), resp.ConfirmedOffset, "offset %d", offset)
	}
}

// Resume is a pure continuation lookup: whatever AppID or CurrentVersion the
// request carries, even nonsense, is ignored.
func TestResumeIgnoresAppFields(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		AppID:          "ghost",
		CurrentVersion: types.Version{Major: 99},
		PackageID:      "pkg_inc",
		FileOffset:     10,
	})
	require.NoError(t, err)
	assert.True(t, resp.HasUpdate)
	assert.Equal(t, int64(10), resp.ConfirmedOffset)
}

// Unknown packages and vanished artifacts answer "no update", never an error.
func TestResumeUnknownPackage(t *testing.T) {
	r := newTestResolver(t)

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		PackageID:  "pkg_missing",
		FileOffset: 0,
	})
	require.NoError(t, err)
	assert.False(t, resp.HasUpdate)
}

func TestResumeMissingArtifact(t *testing.T) {
	cat := &fakeCatalog{packages: []types.UpdatePackageInfo{
		{PackageID: "pkg_gone", AppID: "app", Type: types.PackageFull, TargetVersionID: "v1", Path: "gone.pkg"},
	}}
	r := New(&fakeRegistry{}, cat, &fakeSizer{}, zap.NewNop())

	resp, err := r.CheckUpdate(context.Background(), types.UpdateRequest{
		PackageID:  "pkg_gone",
		FileOffset: 0,
	})
	require.NoError(t, err)
	assert.False(t, resp.HasUpdate)
}
