package migration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/xraph/roster"
	"github.com/xraph/roster/codec"
	"github.com/xraph/roster/middleware"
	"github.com/xraph/roster/repository"
	"github.com/xraph/roster/store"
)

// versionKey is the sentinel under which the persisted storage version
// lives. It sits outside the task, job, and group namespaces.
const versionKey = "internal:storage:version"

// Step is one idempotent transformation of persisted state, keyed by the
// storage version it migrates to. Run must be safe to re-run from scratch:
// a crash mid-step re-invokes it in full on the next startup, and the
// engine keeps no bookkeeping below step granularity.
type Step struct {
	// Target is the storage version the step brings persisted state to.
	Target Version
	// Name identifies the step in logs, traces, and metrics.
	Name string
	// Run performs the transformation.
	Run func(ctx context.Context, env *Env) error
}

// Env is the execution environment handed to each step: blocking store
// access plus the repositories whose records steps rewrite.
type Env struct {
	Store  *store.Client
	Jobs   *repository.Jobs
	Groups *repository.Groups
	Logger *slog.Logger
}

// Emitter receives migration lifecycle notifications.
type Emitter interface {
	// EmitMigrationStep fires after a step runs to completion.
	EmitMigrationStep(ctx context.Context, name string, target Version)
	// EmitMigrated fires after a successful Migrate, with the versions it
	// moved between and the number of steps applied.
	EmitMigrated(ctx context.Context, from, to Version, steps int)
}

// NopEmitter discards all notifications.
type NopEmitter struct{}

func (NopEmitter) EmitMigrationStep(context.Context, string, Version)  {}
func (NopEmitter) EmitMigrated(context.Context, Version, Version, int) {}

// Migrator brings persisted state up to the current storage version. It
// runs single-threaded as a startup barrier: nothing else may touch the
// store while Migrate runs.
type Migrator struct {
	client  *store.Client
	env     *Env
	steps   []Step
	current Version
	mw      middleware.Middleware
	emitter Emitter
	codec   codec.JSON[Version]
	logger  *slog.Logger
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithCurrent overrides the storage version Migrate targets. The default is
// Current.
func WithCurrent(v Version) Option {
	return func(m *Migrator) { m.current = v }
}

// WithMiddleware wraps every step run in the given middleware chain.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(m *Migrator) { m.mw = middleware.Chain(mws...) }
}

// WithEmitter sets the lifecycle event emitter.
func WithEmitter(e Emitter) Option {
	return func(m *Migrator) { m.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Migrator) { m.logger = l }
}

// New builds a Migrator over the given steps. The step list is fixed here:
// two steps with the same target version fail with
// roster.ErrDuplicateStep, and a step targeting beyond the current version
// is rejected. Both are configuration errors, not runtime conditions.
func New(client *store.Client, env *Env, steps []Step, opts ...Option) (*Migrator, error) {
	m := &Migrator{
		client:  client,
		env:     env,
		current: Current,
		mw:      middleware.Chain(),
		emitter: NopEmitter{},
		codec:   codec.NewJSON[Version](),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if env != nil && env.Logger == nil {
		env.Logger = m.logger
	}

	seen := make(map[Version]string, len(steps))
	for _, s := range steps {
		if prev, ok := seen[s.Target]; ok {
			return nil, fmt.Errorf("roster/migration: steps %q and %q both target %s: %w",
				prev, s.Name, s.Target, roster.ErrDuplicateStep)
		}
		seen[s.Target] = s.Name

		if m.current.Less(s.Target) {
			return nil, fmt.Errorf("roster/migration: step %q targets %s beyond current version %s",
				s.Name, s.Target, m.current)
		}
	}

	m.steps = make([]Step, len(steps))
	copy(m.steps, steps)
	sort.SliceStable(m.steps, func(i, j int) bool { return m.steps[i].Target.Less(m.steps[j].Target) })

	return m, nil
}

// Target returns the version Migrate brings persisted state to.
func (m *Migrator) Target() Version { return m.current }

// Persisted reads the storage version currently recorded in the store.
// An absent record reads as the zero version.
func (m *Migrator) Persisted(ctx context.Context) (Version, error) {
	data, err := m.client.Fetch(ctx, versionKey)
	if err != nil {
		if errors.Is(err, roster.ErrKeyNotFound) {
			return Version{}, nil
		}
		return Version{}, err
	}

	v, err := m.codec.Decode(data)
	if err != nil {
		return Version{}, fmt.Errorf("roster/migration: storage version record: %w", err)
	}
	return v, nil
}

// Migrate brings persisted state up to the current version:
//
//  1. Read the persisted version; absent reads as zero.
//  2. Refuse to run against a store from a newer build
//     (roster.ErrDowngrade).
//  3. Apply every step whose target is strictly greater than the persisted
//     version, ascending. The first failure aborts with
//     roster.ErrMigrationFailed wrapping the cause; the version record is
//     not advanced.
//  4. Re-initialize the store and write the current version. Both happen on
//     every successful run, steps or none.
func (m *Migrator) Migrate(ctx context.Context) error {
	persisted, err := m.Persisted(ctx)
	if err != nil {
		return err
	}

	if m.current.Less(persisted) {
		return fmt.Errorf("roster/migration: store is at %s, this build tops out at %s: %w",
			persisted, m.current, roster.ErrDowngrade)
	}

	var pending []Step
	for _, s := range m.steps {
		if persisted.Less(s.Target) {
			pending = append(pending, s)
		}
	}

	m.logger.Info("storage migration starting",
		slog.String("persisted", persisted.String()),
		slog.String("target", m.current.String()),
		slog.Int("pending_steps", len(pending)),
	)

	for _, s := range pending {
		desc := middleware.Step{Name: s.Name, Target: s.Target.String()}
		err := m.mw(ctx, desc, func(ctx context.Context) error {
			return s.Run(ctx, m.env)
		})
		if err != nil {
			return fmt.Errorf("roster/migration: step %q (target %s): %w: %w",
				s.Name, s.Target, roster.ErrMigrationFailed, err)
		}
		m.emitter.EmitMigrationStep(ctx, s.Name, s.Target)
	}

	if err := m.client.Initialize(ctx); err != nil {
		return fmt.Errorf("roster/migration: initialize store: %w", err)
	}
	if err := m.writeVersion(ctx, m.current); err != nil {
		return err
	}

	m.logger.Info("storage migration complete",
		slog.String("version", m.current.String()),
		slog.Int("steps_applied", len(pending)),
	)
	m.emitter.EmitMigrated(ctx, persisted, m.current, len(pending))
	return nil
}

func (m *Migrator) writeVersion(ctx context.Context, v Version) error {
	data, err := m.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("roster/migration: storage version record: %w", err)
	}

	return m.client.Put(ctx, versionKey, data)
}
