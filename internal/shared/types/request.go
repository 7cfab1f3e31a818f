package types

// UpdateRequest is the resolver's input. Two modes share one shape:
//
//   - Resume: PackageID set and FileOffset >= 0. A pure continuation lookup
//     that ignores AppID and CurrentVersion entirely.
//   - Fresh check: PackageID empty. AppID and CurrentVersion drive version
//     resolution.
type UpdateRequest struct {
	AppID          string  `json:"app_id"`
	CurrentVersion Version `json:"current_version"`
	PackageID      string  `json:"package_id,omitempty"`
	FileOffset     int64   `json:"file_offset,omitempty"`
}

// IsResume reports whether the request continues an in-flight transfer.
func (r UpdateRequest) IsResume() bool {
	return r.PackageID != "" && r.FileOffset >= 0
}

// UpdateResponse is the resolver's decision. HasUpdate=false is a normal
// outcome, never an error.
type UpdateResponse struct {
	HasUpdate         bool                `json:"has_update"`
	LatestVersion     *VersionInfo        `json:"latest_version,omitempty"`
	SuggestedPackage  *UpdatePackageInfo  `json:"suggested_package,omitempty"`
	AvailablePackages []UpdatePackageInfo `json:"available_packages,omitempty"`
	SupportResume     bool                `json:"support_resume"`
	ConfirmedOffset   int64               `json:"confirmed_offset"`
	TotalSize         int64               `json:"total_size"`
}

// RegistryStats summarizes the version registry.
type RegistryStats struct {
	TotalApps     int `json:"total_apps"`
	TotalVersions int `json:"total_versions"`
}

// CatalogStats summarizes the package catalog.
type CatalogStats struct {
	TotalPackages int            `json:"total_packages"`
	ByType        map[string]int `json:"by_type"`
}

// StoreStats summarizes artifact storage usage.
type StoreStats struct {
	Artifacts  int   `json:"artifacts"`
	TotalBytes int64 `json:"total_bytes"`
}
