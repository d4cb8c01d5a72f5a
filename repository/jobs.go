package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/codec"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/store"
)

// jobKeyPrefix namespaces job definition records away from task keys, which
// always begin with "/".
const jobKeyPrefix = "app:"

// JobKey builds the store key for a job definition.
func JobKey(job id.JobID) string { return jobKeyPrefix + job.String() }

// JobDef is a job definition record. Version is the timestamp of this
// revision of the definition; tasks carry the version they were launched
// from.
type JobDef struct {
	ID        id.JobID          `json:"id"`
	Instances int               `json:"instances"`
	Version   time.Time         `json:"version"`
	Env       map[string]string `json:"env,omitempty"`
}

// Jobs stores job definitions.
type Jobs struct {
	client *store.Client
	codec  codec.JSON[JobDef]
	logger *slog.Logger
}

// NewJobs creates a job definition repository. A nil logger falls back to
// slog.Default.
func NewJobs(client *store.Client, logger *slog.Logger) *Jobs {
	if logger == nil {
		logger = slog.Default()
	}

	return &Jobs{client: client, codec: codec.NewJSON[JobDef](), logger: logger}
}

// Get returns the definition for a job. Fails with roster.ErrJobNotFound if
// none is stored.
func (r *Jobs) Get(ctx context.Context, job id.JobID) (*JobDef, error) {
	data, err := r.client.Fetch(ctx, JobKey(job))
	if err != nil {
		if errors.Is(err, roster.ErrKeyNotFound) {
			return nil, roster.ErrJobNotFound
		}
		return nil, err
	}

	def, err := r.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("roster/repository: job %s: %w", job, err)
	}
	return &def, nil
}

// Put stores a definition, overwriting any previous revision.
func (r *Jobs) Put(ctx context.Context, def *JobDef) error {
	data, err := r.codec.Encode(*def)
	if err != nil {
		return fmt.Errorf("roster/repository: job %s: %w", def.ID, err)
	}

	return r.client.Put(ctx, JobKey(def.ID), data)
}

// Delete removes a definition. Deleting an absent job succeeds.
func (r *Jobs) Delete(ctx context.Context, job id.JobID) error {
	return r.client.Expunge(ctx, JobKey(job))
}

// IDs returns the IDs of every stored definition, sorted. Keys in the job
// namespace that do not parse are logged and skipped rather than failing
// the listing.
func (r *Jobs) IDs(ctx context.Context) ([]id.JobID, error) {
	names, err := r.client.Names(ctx)
	if err != nil {
		return nil, err
	}

	var ids []id.JobID
	for _, name := range names {
		if !strings.HasPrefix(name, jobKeyPrefix) {
			continue
		}

		job, err := id.Parse(strings.TrimPrefix(name, jobKeyPrefix))
		if err != nil {
			r.logger.Warn("skipping malformed job key",
				slog.String("key", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		ids = append(ids, job)
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids, nil
}
