// Package resolver implements update resolution: given a client's current
// version it selects the best package to deliver, or confirms the offset of
// an in-flight transfer.
package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/updrift/updrift/internal/infrastructure/monitoring"
	"github.com/updrift/updrift/internal/shared/types"
)

// AdjacencyThreshold is the maximum encoded version gap for which an
// incremental update is attempted. Anything larger is a major jump and gets
// the full package.
const AdjacencyThreshold = 100

// Registry is the version-side view the resolver needs.
type Registry interface {
	App(appID string) (types.AppInfo, bool)
	LatestVersion(appID string) (types.VersionInfo, bool)
	FindVersion(appID string, version types.Version) (types.VersionInfo, bool)
}

// Catalog is the package-side view the resolver needs.
type Catalog interface {
	FindPackage(ctx context.Context, packageID string) (types.UpdatePackageInfo, error)
	IncrementalFor(appID, sourceVersionID, targetVersionID string) (types.UpdatePackageInfo, bool)
	FullFor(appID, targetVersionID string) (types.UpdatePackageInfo, bool)
	PackagesTargeting(appID, targetVersionID string) []types.UpdatePackageInfo
}

// FileSizer reports the current on-disk size of a stored artifact.
type FileSizer interface {
	Size(path string) (int64, error)
}

// Resolver answers CheckUpdate requests. It holds no state of its own and
// is safe for unlimited concurrent use.
type Resolver struct {
	registry Registry
	catalog  Catalog
	files    FileSizer
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// New creates a resolver.
func New(registry Registry, catalog Catalog, files FileSizer, logger *zap.Logger) *Resolver {
	return &Resolver{registry: registry, catalog: catalog, files: files, logger: logger}
}

// WithMetrics adds metrics tracking.
func (r *Resolver) WithMetrics(metrics *monitoring.Metrics) *Resolver {
	r.metrics = metrics
	return r
}

// CheckUpdate resolves an update request. Resume requests are recognized
// before any app validation: they are pure package-continuation lookups and
// ignore AppID and CurrentVersion entirely. "No update available" is a
// successful HasUpdate=false response, never an error.
func (r *Resolver) CheckUpdate(ctx context.Context, req types.UpdateRequest) (types.UpdateResponse, error) {
	if req.IsResume() {
		return r.resume(ctx, req), nil
	}
	return r.freshCheck(ctx, req)
}

// resume confirms the continuation offset for an in-flight transfer. It
// never fails on a bad offset: a stale or overflowing offset restarts the
// transfer from zero, and an unknown package or missing artifact simply
// reports no update.
func (r *Resolver) resume(ctx context.Context, req types.UpdateRequest) types.UpdateResponse {
	pkg, err := r.catalog.FindPackage(ctx, req.PackageID)
	if err != nil {
		r.count("resume", "unknown_package")
		return types.UpdateResponse{}
	}

	size, err := r.files.Size(pkg.Path)
	if err != nil {
		r.logger.Warn("resume target artifact missing",
			zap.String("package_id", pkg.PackageID),
			zap.String("path", pkg.Path),
		)
		r.count("resume", "missing_artifact")
		return types.UpdateResponse{}
	}

	offset := req.FileOffset
	if offset >= size {
		offset = 0
	}

	r.count("resume", "ok")
	return types.UpdateResponse{
		HasUpdate:        true,
		SuggestedPackage: &pkg,
		SupportResume:    true,
		ConfirmedOffset:  offset,
		TotalSize:        size,
	}
}

func (r *Resolver) freshCheck(ctx context.Context, req types.UpdateRequest) (types.UpdateResponse, error) {
	if _, ok := r.registry.App(req.AppID); !ok {
		r.count("fresh", "unregistered")
		return types.UpdateResponse{}, fmt.Errorf("%w: %s", types.ErrAppNotRegistered, req.AppID)
	}

	latest, ok := r.registry.LatestVersion(req.AppID)
	if !ok {
		r.count("fresh", "no_versions")
		return types.UpdateResponse{}, nil
	}
	if latest.Version == req.CurrentVersion {
		r.count("fresh", "up_to_date")
		return types.UpdateResponse{}, nil
	}

	resp := types.UpdateResponse{
		HasUpdate:     true,
		LatestVersion: &latest,
		SupportResume: true,
	}

	// Incremental first: a small hop from a known version gets the patch.
	// Unknown current versions (sideloaded builds) and major jumps fall back
	// to the full package for latest.
	var suggested types.UpdatePackageInfo
	var found bool
	current, known := r.registry.FindVersion(req.AppID, req.CurrentVersion)
	if known && types.Gap(latest.Version, current.Version) <= AdjacencyThreshold {
		suggested, found = r.catalog.IncrementalFor(req.AppID, current.VersionID, latest.VersionID)
	}
	if !found {
		suggested, found = r.catalog.FullFor(req.AppID, latest.VersionID)
	}
	if found {
		resp.SuggestedPackage = &suggested
		if size, err := r.files.Size(suggested.Path); err == nil {
			resp.TotalSize = size
		}
	}

	resp.AvailablePackages = r.catalog.PackagesTargeting(req.AppID, latest.VersionID)

	r.count("fresh", "update")
	return resp, nil
}

func (r *Resolver) count(mode, outcome string) {
	if r.metrics != nil {
		r.metrics.IncUpdateChecks(mode, outcome)
	}
}
