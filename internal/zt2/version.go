package zt2

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ParseVersion validates an effect version such as "1.00". It must fit
// the 4 byte version field.
func ParseVersion(v string) (*semver.Version, error) {
	if len(v) == 0 || len(v) > versionLen {
		return nil, fmt.Errorf("version %q: must be 1 to %d characters", v, versionLen)
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return nil, fmt.Errorf("version %q: %w", v, err)
	}
	return sv, nil
}

// CompareVersions returns -1, 0 or 1 as a is older than, equal to or newer
// than b.
func CompareVersions(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}
