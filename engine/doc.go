// Package engine wires all roster subsystems together and provides the
// application-level entry point for the task-state layer.
//
// The engine package exists to break a fundamental import cycle: the root
// roster package defines Config and the error sentinels (imported by task,
// migration, store, etc.) and therefore cannot import those packages back.
// Engine sits above all subsystem packages and below the application layer.
//
// # Building an Engine
//
//	k, err := roster.New(
//	    roster.WithStore(pgStore),
//	    roster.WithStagedTimeout(10*time.Minute),
//	)
//
//	eng, err := engine.Build(k,
//	    engine.WithExtension(myExtension),
//	    engine.WithKiller(executorClient),
//	    engine.WithMigrations(myCustomStep),
//	)
//
// # Starting and Stopping
//
// Start pings the store, prepares the backend, and runs the storage-version
// migration as a barrier before any sweeps run. A migration failure aborts
// startup entirely.
//
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop(context.Background())
//
// # Working with Tasks
//
//	tk := task.NewStaged(jobID, def.Version, time.Now().UTC())
//	tk, err = eng.Tracker().Created(ctx, jobID, tk)
//
//	// later, when the agent confirms the start
//	tk, err = eng.Tracker().Running(ctx, jobID, task.Status{
//	    TaskID: tk.ID, State: task.StateRunning, Timestamp: time.Now().UTC(),
//	})
//
// # Options
//
//   - [WithExtension] — register a lifecycle extension
//   - [WithMigrations] — append migration steps to the built-in ones
//   - [WithKiller] — set the executor handle for overdue kills
//   - [WithMiddleware] — add a middleware to the migration step chain
//   - [WithBackoff] — set the orphan sweep retry backoff strategy
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
