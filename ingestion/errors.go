package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrFragmentRepositoryRequired is returned when a fragment repository is not provided.
	ErrFragmentRepositoryRequired = errors.New("fragment repository required")

	// ErrSequenceRequired is returned when a generation sequence is not provided.
	ErrSequenceRequired = errors.New("generation sequence required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrAgentRequired is returned when an ingestion request has no agent.
	ErrAgentRequired = errors.New("agent id required")

	// ErrOptionsRequired is returned when an ingestion request is nil.
	ErrOptionsRequired = errors.New("ingestion options required")

	// ErrInvalidPoolSize is returned when the worker pool size is not positive.
	ErrInvalidPoolSize = errors.New("pool size must be greater than 0")
)
