package types

import "time"

// AppInfo identifies a distributable application.
type AppInfo struct {
	AppID       string    `json:"app_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Publisher   string    `json:"publisher,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// VersionInfo is one published release of an application.
//
// At most one VersionInfo per app has IsLatest set, and it is always the
// most recently published version, not necessarily the numerically highest.
type VersionInfo struct {
	VersionID    string    `json:"version_id"`
	AppID        string    `json:"app_id"`
	Version      Version   `json:"version"`
	IsLatest     bool      `json:"is_latest"`
	ReleaseNotes string    `json:"release_notes,omitempty"`
	ReleasedAt   time.Time `json:"released_at"`
}

// PackageType discriminates full artifacts from incremental patches.
type PackageType string

const (
	PackageFull        PackageType = "full"
	PackageIncremental PackageType = "incremental"
)

// UpdatePackageInfo is a deliverable artifact record. SourceVersionID is set
// only for incremental packages: the version a client must already hold.
// Checksum is a sha256 hex digest computed once over the stored bytes at
// publish time and never recomputed by the server.
type UpdatePackageInfo struct {
	PackageID       string      `json:"package_id"`
	AppID           string      `json:"app_id"`
	Type            PackageType `json:"type"`
	TargetVersionID string      `json:"target_version_id"`
	SourceVersionID string      `json:"source_version_id,omitempty"`
	Path            string      `json:"path"`
	Size            int64       `json:"size"`
	Checksum        string      `json:"checksum"`
	ContentType     string      `json:"content_type,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
}

// IsIncremental reports whether the package is a patch over a source version.
func (p UpdatePackageInfo) IsIncremental() bool {
	return p.Type == PackageIncremental
}
