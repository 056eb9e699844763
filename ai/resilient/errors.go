package resilient

import "errors"

var (
	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrInvalidRateLimit is returned when a rate limit is negative.
	ErrInvalidRateLimit = errors.New("rate limits cannot be negative")

	// ErrInvalidDimension is returned when the fallback dimension is not positive.
	ErrInvalidDimension = errors.New("fallback dimension must be greater than 0")

	// ErrNilEmbedder is returned when Wrap is given a nil embedder.
	ErrNilEmbedder = errors.New("embedder is required")
)
