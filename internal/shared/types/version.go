package types

import (
	"fmt"

	"github.com/Masterminds/semver"
)

// Version is a structured release number.
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Build int `json:"build"`
}

// ParseVersion parses a "major.minor.build" string. Pre-release tags and
// build metadata are rejected; the engine compares plain triples only.
func ParseVersion(s string) (Version, error) {
	sv, err := semver.NewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("%w: invalid version %q: %v", ErrInvalidArgument, s, err)
	}
	if sv.Prerelease() != "" || sv.Metadata() != "" {
		return Version{}, fmt.Errorf("%w: version %q carries pre-release or metadata tags", ErrInvalidArgument, s)
	}
	return Version{
		Major: int(sv.Major()),
		Minor: int(sv.Minor()),
		Build: int(sv.Patch()),
	}, nil
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Build)
}

// IsZero reports whether the version is the unset triple.
func (v Version) IsZero() bool {
	return v.Major == 0 && v.Minor == 0 && v.Build == 0
}

// Encode collapses the triple into a single comparable number. This is a
// coarse distance proxy, not a total semantic ordering: minor and build are
// assumed to stay below 100.
func (v Version) Encode() int {
	return v.Major*10000 + v.Minor*100 + v.Build
}

// Gap returns the absolute encoded distance between two versions.
func Gap(a, b Version) int {
	d := a.Encode() - b.Encode()
	if d < 0 {
		d = -d
	}
	return d
}
