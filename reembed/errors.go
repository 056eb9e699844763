package reembed

import "errors"

var (
	// ErrEmbeddingCountMismatch is returned when the embedder returns a
	// different number of vectors than texts it was given.
	ErrEmbeddingCountMismatch = errors.New("embedding count mismatch")

	// ErrFragmentsFailed is returned when some fragments could not be
	// re-embedded and kept their old vectors.
	ErrFragmentsFailed = errors.New("fragments failed to re-embed")
)
