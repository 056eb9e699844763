package loader

import "errors"

var (
	// ErrIngesterRequired is returned when no ingester is provided.
	ErrIngesterRequired = errors.New("ingester required")

	// ErrAgentRequired is returned when no agent id is provided.
	ErrAgentRequired = errors.New("agent id required")

	// ErrNotDirectory is returned when the load path is not a directory.
	ErrNotDirectory = errors.New("not a directory")

	// ErrWatcherClosed is returned when a closed watcher is run.
	ErrWatcherClosed = errors.New("watcher closed")
)
