package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Contextualizer writes a short passage that situates a chunk within the
// document it was cut from. The passage is prepended to the chunk before
// embedding so that retrieval can match on document-level context.
// Implementations must be thread-safe for concurrent use.
type Contextualizer interface {
	// Contextualize returns the situating passage for chunk.
	// An empty string means no useful context could be produced.
	Contextualize(ctx context.Context, document, chunk string) (string, error)
}

// Provider aggregates AI services for convenient initialization and lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Contextualizer returns the contextual enrichment service, or nil when
	// contextual knowledge is disabled.
	Contextualizer() Contextualizer

	// Close releases resources held by the provider and its services.
	Close() error
}
