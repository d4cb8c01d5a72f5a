package roster

import "github.com/xraph/roster/id"

// JobID is the hierarchical path identifier for jobs.
type JobID = id.JobID
