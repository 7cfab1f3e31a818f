package types

import "errors"

// Failure taxonomy for the engine. Callers match with errors.Is; the HTTP
// layer maps each sentinel to a status code. Degradation cases (unknown
// current version, stale resume offsets, missing incrementals) are handled
// by fallback behavior instead of these errors.
var (
	// ErrInvalidArgument flags malformed or missing required input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrAppNotRegistered flags an AppID with no registered application.
	ErrAppNotRegistered = errors.New("app not registered")

	// ErrVersionNotFound flags a VersionID absent from an app's version list.
	ErrVersionNotFound = errors.New("version not found")

	// ErrPackageNotFound flags an unknown PackageID.
	ErrPackageNotFound = errors.New("package not found")

	// ErrFileNotFound flags a catalog record whose artifact is gone from
	// storage.
	ErrFileNotFound = errors.New("package file not found")

	// ErrOffsetOutOfRange flags a range read starting past end of file.
	// Only streaming errors on bad offsets; resume resets them instead.
	ErrOffsetOutOfRange = errors.New("offset out of range")
)
