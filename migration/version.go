package migration

import "fmt"

// Version is the storage schema version triple. Versions order
// lexicographically by (major, minor, patch). The zero value is the lowest
// possible version and doubles as "nothing recorded yet".
type Version struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
	Patch int `json:"patch"`
}

// Current is the storage version bundled with this build. Migrate writes it
// after every successful run; registered steps must not target beyond it.
var Current = Version{Major: 1, Minor: 2, Patch: 0}

// Compare returns -1 if v orders before o, +1 if after, 0 if equal.
func (v Version) Compare(o Version) int {
	switch {
	case v.Major != o.Major:
		return cmp(v.Major, o.Major)
	case v.Minor != o.Minor:
		return cmp(v.Minor, o.Minor)
	default:
		return cmp(v.Patch, o.Patch)
	}
}

func cmp(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// IsZero reports whether v is the lowest possible version.
func (v Version) IsZero() bool { return v == Version{} }

// String formats the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}
