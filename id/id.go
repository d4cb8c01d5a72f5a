// Package id defines the identifier types for roster entities.
//
// Jobs are identified by hierarchical slash-separated paths ("/group/web"),
// the shape orchestrators use to mirror their group tree. The canonical form
// starts with "/", carries no trailing slash and no empty segments, and never
// contains ":" (reserved as the task-key separator). Task identifiers are
// opaque strings minted from the job path plus a UUID, so a task name alone
// reveals which job launched it.
package id

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// JobID is the hierarchical path identifier for a job.
// The zero value is Nil; build valid IDs with Parse or MustParse.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type JobID struct {
	path string
}

// Nil is the zero-value JobID.
var Nil JobID

// Parse parses and canonicalizes a job path. Leading slashes are added if
// missing, trailing slashes stripped, and the result validated: no empty
// segments, no whitespace, and no ":" anywhere in the path.
func Parse(s string) (JobID, error) {
	if s == "" || s == "/" {
		return Nil, fmt.Errorf("id: parse %q: empty path", s)
	}
	if strings.ContainsAny(s, ": \t\n") {
		return Nil, fmt.Errorf("id: parse %q: path contains reserved characters", s)
	}

	p := strings.Trim(s, "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == "" {
			return Nil, fmt.Errorf("id: parse %q: empty path segment", s)
		}
	}

	return JobID{path: "/" + p}, nil
}

// MustParse is like Parse but panics on error. Use for hardcoded paths.
func MustParse(s string) JobID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// String returns the canonical path ("/group/web").
// Returns an empty string for the Nil ID.
func (j JobID) String() string { return j.path }

// IsNil reports whether this ID is the zero value.
func (j JobID) IsNil() bool { return j.path == "" }

// Segments returns the path segments in order.
func (j JobID) Segments() []string {
	if j.path == "" {
		return nil
	}

	return strings.Split(strings.TrimPrefix(j.path, "/"), "/")
}

// Root returns the first path segment ("group" for "/group/web").
func (j JobID) Root() string {
	segs := j.Segments()
	if len(segs) == 0 {
		return ""
	}

	return segs[0]
}

// Less reports whether j sorts before other in canonical path order.
// Used for stable iteration over job collections.
func (j JobID) Less(other JobID) bool { return j.path < other.path }

// MarshalText implements encoding.TextMarshaler.
func (j JobID) MarshalText() ([]byte, error) {
	return []byte(j.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (j *JobID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*j = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*j = parsed

	return nil
}

// NewTaskID mints a unique task identifier for a job. The job path is
// flattened ("/group/web" becomes "group_web") and suffixed with a UUID,
// matching the task-naming convention of the orchestrators roster serves.
func NewTaskID(job JobID) string {
	flat := strings.ReplaceAll(strings.TrimPrefix(job.String(), "/"), "/", "_")

	return flat + "." + uuid.NewString()
}
