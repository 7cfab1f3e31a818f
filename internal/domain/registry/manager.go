package registry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/shared/types"
	"github.com/updrift/updrift/internal/storage"
)

// ArtifactStore copies published bytes into app-scoped storage.
type ArtifactStore interface {
	SaveFull(appID, versionID string, r io.Reader) (storage.Artifact, error)
}

// PackageRecorder is the catalog-side hook: publishing a version always
// records exactly one full package for it.
type PackageRecorder interface {
	EnsureApp(appID string)
	RecordFull(appID, versionID string, art storage.Artifact) types.UpdatePackageInfo
	PackagesForApp(appID string) []types.UpdatePackageInfo
}

// Gateway persists registry snapshots. Writes happen inside the same
// critical section as the mutation they follow.
type Gateway interface {
	SaveIndex(apps []types.AppInfo) error
	SaveApp(app types.AppInfo, versions []types.VersionInfo, packages []types.UpdatePackageInfo) error
}

// Events receives publish notifications. Optional.
type Events interface {
	VersionPublished(v types.VersionInfo)
}

// Manager owns application identities and their published versions.
//
// A single RWMutex serializes all mutations: the IsLatest invariant needs an
// atomic clear-all-then-set-one sequence, and publish traffic is
// low-frequency administrative work, so a coarse lock is enough. Reads take
// the read lock and return copies.
type Manager struct {
	mu       sync.RWMutex
	apps     map[string]*types.AppInfo
	versions map[string][]*types.VersionInfo // publish order

	store    ArtifactStore
	packages PackageRecorder
	gateway  Gateway
	events   Events
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewManager creates a registry manager. The package recorder is attached
// separately because the catalog needs the registry as its version source.
func NewManager(store ArtifactStore, gateway Gateway, logger *zap.Logger) *Manager {
	return &Manager{
		apps:     make(map[string]*types.AppInfo),
		versions: make(map[string][]*types.VersionInfo),
		store:    store,
		gateway:  gateway,
		logger:   logger,
	}
}

// SetPackageRecorder attaches the catalog-side hook. Must be called before
// the manager serves requests.
func (m *Manager) SetPackageRecorder(packages PackageRecorder) {
	m.packages = packages
}

// WithEvents adds a publish-event sink.
func (m *Manager) WithEvents(events Events) *Manager {
	m.events = events
	return m
}

// WithMetrics adds metrics tracking.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Restore seeds the manager from loaded snapshot state. Called once at
// startup before the manager is shared.
func (m *Manager) Restore(apps []types.AppInfo, versions map[string][]types.VersionInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range apps {
		app := apps[i]
		m.apps[app.AppID] = &app
		m.versions[app.AppID] = []*types.VersionInfo{}
	}
	for appID, list := range versions {
		restored := make([]*types.VersionInfo, 0, len(list))
		for i := range list {
			v := list[i]
			restored = append(restored, &v)
		}
		m.versions[appID] = restored
	}
	m.updateGauges()
}

// RegisterApp upserts an application by AppID. Re-registering replaces the
// display metadata without restriction.
func (m *Manager) RegisterApp(ctx context.Context, info types.AppInfo) error {
	if strings.TrimSpace(info.AppID) == "" {
		return fmt.Errorf("%w: app id is required", types.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := m.apps[info.AppID]; ok {
		info.CreatedAt = existing.CreatedAt
	} else {
		info.CreatedAt = now
	}
	info.UpdatedAt = now
	m.apps[info.AppID] = &info

	if _, ok := m.versions[info.AppID]; !ok {
		m.versions[info.AppID] = []*types.VersionInfo{}
	}
	m.packages.EnsureApp(info.AppID)

	if err := m.persistLocked(info.AppID); err != nil {
		return err
	}

	m.logger.Info("app registered", zap.String("app_id", info.AppID), zap.String("name", info.Name))
	m.updateGauges()
	return nil
}

// PublishVersion publishes a new release: the artifact is copied into
// storage, the version becomes the app's latest, and exactly one full
// package record is created for it. Last-published wins: a numerically newer
// version already in the list is silently demoted.
func (m *Manager) PublishVersion(ctx context.Context, v types.VersionInfo, artifact io.Reader) (types.VersionInfo, types.UpdatePackageInfo, error) {
	if artifact == nil {
		return types.VersionInfo{}, types.UpdatePackageInfo{}, fmt.Errorf("%w: package payload is required", types.ErrInvalidArgument)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.apps[v.AppID]; !ok {
		return types.VersionInfo{}, types.UpdatePackageInfo{}, fmt.Errorf("%w: %s", types.ErrAppNotRegistered, v.AppID)
	}

	if v.VersionID == "" {
		v.VersionID = uuid.NewString()
	}
	if v.ReleasedAt.IsZero() {
		v.ReleasedAt = time.Now().UTC()
	}

	// Copy the artifact before touching the version list so a failed upload
	// leaves no partial mutation behind.
	art, err := m.store.SaveFull(v.AppID, v.VersionID, artifact)
	if err != nil {
		return types.VersionInfo{}, types.UpdatePackageInfo{}, err
	}

	for _, existing := range m.versions[v.AppID] {
		existing.IsLatest = false
	}
	v.IsLatest = true
	stored := v
	m.versions[v.AppID] = append(m.versions[v.AppID], &stored)

	pkg := m.packages.RecordFull(v.AppID, v.VersionID, art)

	if err := m.persistLocked(v.AppID); err != nil {
		return types.VersionInfo{}, types.UpdatePackageInfo{}, err
	}

	m.logger.Info("version published",
		zap.String("app_id", v.AppID),
		zap.String("version_id", v.VersionID),
		zap.String("version", v.Version.String()),
		zap.Int64("size", art.Size),
	)
	if m.metrics != nil {
		m.metrics.IncPublishes("full")
	}
	m.updateGauges()
	if m.events != nil {
		m.events.VersionPublished(v)
	}
	return v, pkg, nil
}

// GetAllApps returns every registered application, ordered by AppID.
func (m *Manager) GetAllApps(ctx context.Context) []types.AppInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	apps := make([]types.AppInfo, 0, len(m.apps))
	for _, app := range m.apps {
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].AppID < apps[j].AppID })
	return apps
}

// GetAppVersions returns an app's versions in publish order.
func (m *Manager) GetAppVersions(ctx context.Context, appID string) ([]types.VersionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.apps[appID]; !ok {
		return nil, fmt.Errorf("%w: %s", types.ErrAppNotRegistered, appID)
	}
	return m.copyVersionsLocked(appID), nil
}

// App returns a registered application.
func (m *Manager) App(appID string) (types.AppInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	app, ok := m.apps[appID]
	if !ok {
		return types.AppInfo{}, false
	}
	return *app, true
}

// WithSnapshot runs fn under the publish lock with a copy of an app's state.
// The catalog routes incremental publishes through this so their validation
// and persist cannot interleave with a concurrent version publish.
func (m *Manager) WithSnapshot(appID string, fn func(app types.AppInfo, versions []types.VersionInfo) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.apps[appID]
	if !ok {
		return fmt.Errorf("%w: %s", types.ErrAppNotRegistered, appID)
	}
	return fn(*app, m.copyVersionsLocked(appID))
}

// LatestVersion returns the version currently flagged latest, if any.
func (m *Manager) LatestVersion(appID string) (types.VersionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.versions[appID] {
		if v.IsLatest {
			return *v, true
		}
	}
	return types.VersionInfo{}, false
}

// FindVersion locates a version by value. It may be absent when the
// client's build was never published on this server.
func (m *Manager) FindVersion(appID string, version types.Version) (types.VersionInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.versions[appID] {
		if v.Version == version {
			return *v, true
		}
	}
	return types.VersionInfo{}, false
}

// HasVersion reports whether a version id exists for the app.
func (m *Manager) HasVersion(appID, versionID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, v := range m.versions[appID] {
		if v.VersionID == versionID {
			return true
		}
	}
	return false
}

// Stats returns registry statistics.
func (m *Manager) Stats() types.RegistryStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, list := range m.versions {
		total += len(list)
	}
	return types.RegistryStats{TotalApps: len(m.apps), TotalVersions: total}
}

func (m *Manager) copyVersionsLocked(appID string) []types.VersionInfo {
	list := m.versions[appID]
	out := make([]types.VersionInfo, 0, len(list))
	for _, v := range list {
		out = append(out, *v)
	}
	return out
}

func (m *Manager) persistLocked(appID string) error {
	apps := make([]types.AppInfo, 0, len(m.apps))
	for _, app := range m.apps {
		apps = append(apps, *app)
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].AppID < apps[j].AppID })

	if err := m.gateway.SaveIndex(apps); err != nil {
		return fmt.Errorf("persist app index: %w", err)
	}
	app := *m.apps[appID]
	if err := m.gateway.SaveApp(app, m.copyVersionsLocked(appID), m.packages.PackagesForApp(appID)); err != nil {
		return fmt.Errorf("persist app %s: %w", appID, err)
	}
	return nil
}

func (m *Manager) updateGauges() {
	if m.metrics == nil {
		return
	}
	total := 0
	for _, list := range m.versions {
		total += len(list)
	}
	m.metrics.SetRegistryApps(len(m.apps))
	m.metrics.SetRegistryVersions(total)
}
