package ingest

import "context"

// Source fetches raw data from one external system (web, git, cloud
// storage, chat). Implementations may hold connection state across
// calls; the orchestrator reuses one instance per task.
type Source interface {
	// InitClient prepares the source's client for this run. An error is
	// fatal to the invocation; a degraded-but-usable client should
	// return nil and report through Execute's Status instead.
	InitClient(ctx context.Context) error

	// Execute fetches raw data. Raw items go under Status.Data["items"]
	// (array preferred; a single scalar under "result" is wrapped by the
	// pipeline). A failed Status aborts the pipeline with the source's
	// message and data attached.
	Execute(ctx context.Context, payload map[string]any) (*Status, error)
}

// Transformer maps raw source output to uniform Records. The payload is
// the trigger payload merged with the run's fetch timestamp under
// "fetchedAt". Returning zero records is a normal outcome for
// incremental sources, not an error.
type Transformer func(ctx context.Context, rawItems []any, payload map[string]any) ([]Record, error)

// Destination delivers record batches to a sink.
type Destination interface {
	// Init configures the destination before first use.
	Init(config map[string]any) error

	// ProcessData delivers one batch. Partial per-record failures are
	// the destination's to report inside the returned Status; the core
	// does not retry.
	ProcessData(ctx context.Context, records []Record) (*Status, error)
}

// SourceFactory constructs a source instance from task configuration.
type SourceFactory func(config map[string]any) (Source, error)

// DestinationFactory constructs a destination instance from task
// configuration.
type DestinationFactory func(config map[string]any) (Destination, error)
