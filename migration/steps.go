package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xraph/roster"
	"github.com/xraph/roster/codec"
	"github.com/xraph/roster/id"
	"github.com/xraph/roster/repository"
	"github.com/xraph/roster/store"
	"github.com/xraph/roster/task"
)

// BuiltinSteps returns the steps bundled with this build. The engine
// registers them by default; callers append their own on top.
func BuiltinSteps() []Step {
	return []Step{
		StepCanonicalJobPaths(),
		StepGroupVersionBackfill(),
	}
}

// StepCanonicalJobPaths rewrites task records persisted under legacy keys
// whose job path lacks the leading slash ("group/web:t.1" instead of
// "/group/web:t.1"). The record moves to its canonical key and its embedded
// job ID is re-encoded in canonical form. Records that fail to decode are
// logged and left in place.
func StepCanonicalJobPaths() Step {
	return Step{
		Target: Version{Major: 1, Minor: 1, Patch: 0},
		Name:   "canonical-job-paths",
		Run:    canonicalJobPaths,
	}
}

func canonicalJobPaths(ctx context.Context, env *Env) error {
	names, err := env.Store.Names(ctx)
	if err != nil {
		return err
	}

	tc := codec.NewJSON[task.Task]()
	moved := 0
	for _, name := range names {
		if strings.HasPrefix(name, "/") {
			continue
		}
		i := strings.Index(name, ":")
		if i <= 0 {
			continue
		}
		switch name[:i] {
		case "app", "group", "internal":
			continue
		}

		job, err := id.Parse(name[:i])
		if err != nil {
			env.Logger.Warn("legacy key with unparseable job path",
				slog.String("key", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		taskID := name[i+1:]

		data, err := env.Store.Fetch(ctx, name)
		if err != nil {
			return fmt.Errorf("fetch legacy key %q: %w", name, err)
		}

		t, err := tc.Decode(data)
		if err != nil {
			env.Logger.Warn("legacy task record does not decode, leaving in place",
				slog.String("key", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		t.JobID = job

		canonical, err := tc.Encode(t)
		if err != nil {
			return fmt.Errorf("re-encode legacy key %q: %w", name, err)
		}
		if err := env.Store.Put(ctx, store.TaskKey(job, taskID), canonical); err != nil {
			return fmt.Errorf("write canonical key for %q: %w", name, err)
		}
		if err := env.Store.Expunge(ctx, name); err != nil {
			return fmt.Errorf("remove legacy key %q: %w", name, err)
		}
		moved++
	}

	if moved > 0 {
		env.Logger.Info("rewrote legacy task keys", slog.Int("moved", moved))
	}
	return nil
}

// StepGroupVersionBackfill stamps a version onto every node of a persisted
// group tree written before group versions existed. Already versioned nodes
// keep their version; a store with no group tree is left untouched.
func StepGroupVersionBackfill() Step {
	return Step{
		Target: Version{Major: 1, Minor: 2, Patch: 0},
		Name:   "group-version-backfill",
		Run:    groupVersionBackfill,
	}
}

func groupVersionBackfill(ctx context.Context, env *Env) error {
	root, err := env.Groups.Root(ctx)
	if err != nil {
		if errors.Is(err, roster.ErrGroupNotFound) {
			return nil
		}
		return err
	}

	if !stampGroup(root, time.Now().UTC()) {
		return nil
	}
	return env.Groups.PutRoot(ctx, root)
}

// stampGroup sets ts on every zero-version node, reporting whether any
// node changed.
func stampGroup(g *repository.Group, ts time.Time) bool {
	changed := false
	if g.Version.IsZero() {
		g.Version = ts
		changed = true
	}
	for i := range g.Groups {
		if stampGroup(&g.Groups[i], ts) {
			changed = true
		}
	}
	return changed
}
