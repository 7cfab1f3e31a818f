// Package catalog owns update package records: one full package per
// published version plus any number of incremental patches keyed by their
// (source, target) version pair. Package ids are unique across all apps.
package catalog

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/shared/id"
	"github.com/updrift/updrift/internal/shared/types"
	"github.com/updrift/updrift/internal/storage"
)

// ArtifactStore copies incremental patch bytes into storage.
type ArtifactStore interface {
	SaveIncremental(appID, sourceVersionID, targetVersionID string, r io.Reader) (storage.Artifact, error)
}

// VersionSource exposes the registry's view of an app. WithSnapshot runs fn
// under the registry's publish lock, so a catalog mutation validated against
// the snapshot persists before any later version publish can overwrite it.
type VersionSource interface {
	WithSnapshot(appID string, fn func(app types.AppInfo, versions []types.VersionInfo) error) error
}

// Gateway persists the owning app's snapshot after a catalog mutation.
type Gateway interface {
	SaveApp(app types.AppInfo, versions []types.VersionInfo, packages []types.UpdatePackageInfo) error
}

// Events receives publish notifications. Optional.
type Events interface {
	PackagePublished(p types.UpdatePackageInfo)
}

// Manager holds package records behind its own RWMutex. The registry calls
// RecordFull under its publish lock, and incremental publishes run inside
// that same lock via WithSnapshot; the lock order is always registry before
// catalog.
type Manager struct {
	mu    sync.RWMutex
	byApp map[string][]*types.UpdatePackageInfo
	byID  map[string]*types.UpdatePackageInfo

	store   ArtifactStore
	source  VersionSource
	gateway Gateway
	events  Events
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewManager creates a catalog manager.
func NewManager(store ArtifactStore, source VersionSource, gateway Gateway, logger *zap.Logger) *Manager {
	return &Manager{
		byApp:   make(map[string][]*types.UpdatePackageInfo),
		byID:    make(map[string]*types.UpdatePackageInfo),
		store:   store,
		source:  source,
		gateway: gateway,
		logger:  logger,
	}
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

// Restore seeds the catalog from loaded snapshot state. Called once at
// startup before the manager is shared.
func (m *Manager) Restore(packages map[string][]types.UpdatePackageInfo) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for appID, list := range packages {
		restored := make([]*types.UpdatePackageInfo, 0, len(list))
		for i := range list {
			p := list[i]
			restored = append(restored, &p)
			m.byID[p.PackageID] = &p
		}
		m.byApp[appID] = restored
	}
	m.updateGauge()
}

// EnsureApp makes sure the app has a package list.
func (m *Manager) EnsureApp(appID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byApp[appID]; !ok {
		m.byApp[appID] = []*types.UpdatePackageInfo{}
	}
}

// RecordFull records the full package created by a version publish. The
// caller already copied the artifact and holds the registry publish lock.
func (m *Manager) RecordFull(appID, versionID string, art storage.Artifact) types.UpdatePackageInfo {
	pkg := types.UpdatePackageInfo{
		PackageID:       id.NewPackageID(),
		AppID:           appID,
		Type:            types.PackageFull,
		TargetVersionID: versionID,
		Path:            art.Path,
		Size:            art.Size,
		Checksum:        art.Checksum,
		ContentType:     art.ContentType,
		CreatedAt:       time.Now().UTC(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := pkg
	m.byApp[appID] = append(m.byApp[appID], &stored)
	m.byID[pkg.PackageID] = &stored
	m.updateGauge()
	return pkg
}

// PublishIncremental copies an incremental patch into storage and records
// it. Publishing a second patch for the same (source, target) pair replaces
// the prior record instead of accumulating duplicates.
func (m *Manager) PublishIncremental(ctx context.Context, appID, sourceVersionID, targetVersionID string, artifact io.Reader) (types.UpdatePackageInfo, error) {
	if artifact == nil {
		return types.UpdatePackageInfo{}, fmt.Errorf("%w: package payload is required", types.ErrInvalidArgument)
	}

	// The whole validate-record-persist sequence runs under the registry's
	// publish lock: a version published after the snapshot would otherwise
	// have its list overwritten on disk by the stale SaveApp below.
	var pkg types.UpdatePackageInfo
	err := m.source.WithSnapshot(appID, func(app types.AppInfo, versions []types.VersionInfo) error {
		if !hasVersion(versions, sourceVersionID) {
			return fmt.Errorf("%w: source version %s", types.ErrVersionNotFound, sourceVersionID)
		}
		if !hasVersion(versions, targetVersionID) {
			return fmt.Errorf("%w: target version %s", types.ErrVersionNotFound, targetVersionID)
		}

		art, err := m.store.SaveIncremental(appID, sourceVersionID, targetVersionID, artifact)
		if err != nil {
			return err
		}

		pkg = types.UpdatePackageInfo{
			PackageID:       id.NewPackageID(),
			AppID:           appID,
			Type:            types.PackageIncremental,
			TargetVersionID: targetVersionID,
			SourceVersionID: sourceVersionID,
			Path:            art.Path,
			Size:            art.Size,
			Checksum:        art.Checksum,
			ContentType:     art.ContentType,
			CreatedAt:       time.Now().UTC(),
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		// Replace an existing patch for the same pair.
		list := m.byApp[appID]
		for i, existing := range list {
			if existing.Type == types.PackageIncremental &&
				existing.SourceVersionID == sourceVersionID &&
				existing.TargetVersionID == targetVersionID {
				delete(m.byID, existing.PackageID)
				list = append(list[:i], list[i+1:]...)
				m.logger.Info("incremental package replaced",
					zap.String("app_id", appID),
					zap.String("package_id", existing.PackageID),
				)
				break
			}
		}
		stored := pkg
		m.byApp[appID] = append(list, &stored)
		m.byID[pkg.PackageID] = &stored
		m.updateGauge()

		if err := m.gateway.SaveApp(app, versions, m.packagesForAppLocked(appID)); err != nil {
			return fmt.Errorf("persist app %s: %w", appID, err)
		}
		return nil
	})
	if err != nil {
		return types.UpdatePackageInfo{}, err
	}

	m.logger.Info("incremental package published",
		zap.String("app_id", appID),
		zap.String("package_id", pkg.PackageID),
		zap.String("source_version_id", sourceVersionID),
		zap.String("target_version_id", targetVersionID),
		zap.Int64("size", pkg.Size),
	)
	if m.metrics != nil {
		m.metrics.IncPublishes("incremental")
	}
	if m.events != nil {
		m.events.PackagePublished(pkg)
	}
	return pkg, nil
}

// FindPackage looks a package up by id across the entire catalog.
func (m *Manager) FindPackage(ctx context.Context, packageID string) (types.UpdatePackageInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pkg, ok := m.byID[packageID]
	if !ok {
		return types.UpdatePackageInfo{}, fmt.Errorf("%w: %s", types.ErrPackageNotFound, packageID)
	}
	return *pkg, nil
}

// IncrementalFor returns the incremental package for a (source, target)
// pair, if one exists.
func (m *Manager) IncrementalFor(appID, sourceVersionID, targetVersionID string) (types.UpdatePackageInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.byApp[appID] {
		if p.Type == types.PackageIncremental &&
			p.SourceVersionID == sourceVersionID &&
			p.TargetVersionID == targetVersionID {
			return *p, true
		}
	}
	return types.UpdatePackageInfo{}, false
}

// FullFor returns the full package targeting a version, if one exists.
func (m *Manager) FullFor(appID, targetVersionID string) (types.UpdatePackageInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.byApp[appID] {
		if p.Type == types.PackageFull && p.TargetVersionID == targetVersionID {
			return *p, true
		}
	}
	return types.UpdatePackageInfo{}, false
}

// PackagesTargeting returns every package whose target is the given
// version, de-duplicated by package id.
func (m *Manager) PackagesTargeting(appID, targetVersionID string) []types.UpdatePackageInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []types.UpdatePackageInfo
	for _, p := range m.byApp[appID] {
		if p.TargetVersionID != targetVersionID {
			continue
		}
		if _, dup := seen[p.PackageID]; dup {
			continue
		}
		seen[p.PackageID] = struct{}{}
		out = append(out, *p)
	}
	return out
}

// PackagesForApp returns every package record for an app.
func (m *Manager) PackagesForApp(appID string) []types.UpdatePackageInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.packagesForAppLocked(appID)
}

// Stats returns catalog statistics.
func (m *Manager) Stats() types.CatalogStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byType := make(map[string]int)
	for _, p := range m.byID {
		byType[string(p.Type)]++
	}
	return types.CatalogStats{TotalPackages: len(m.byID), ByType: byType}
}

func (m *Manager) packagesForAppLocked(appID string) []types.UpdatePackageInfo {
	list := m.byApp[appID]
	out := make([]types.UpdatePackageInfo, 0, len(list))
	for _, p := range list {
		out = append(out, *p)
	}
	return out
}

func (m *Manager) updateGauge() {
	if m.metrics != nil {
		m.metrics.SetCatalogPackages(len(m.byID))
	}
}

func hasVersion(versions []types.VersionInfo, versionID string) bool {
	for _, v := range versions {
		if v.VersionID == versionID {
			return true
		}
	}
	return false
}
