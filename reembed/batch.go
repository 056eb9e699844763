package reembed

import (
	"context"
	"fmt"
	"time"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/ai/resilient"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/storage"
)

// BatchProcessor generates embeddings for batches of fragments.
type BatchProcessor struct {
	repo           storage.FragmentRepository
	embedder       ai.Embedder
	dimension      int
	maxRetries     int
	retryBaseDelay time.Duration
	gate           *gate.Gate
}

// NewBatchProcessor creates a new batch processor.
// dimension: expected vector length, zero accepts any
// maxRetries: maximum number of attempts for embedding API calls
// retryBaseDelay: base delay for exponential backoff
func NewBatchProcessor(repo storage.FragmentRepository, embedder ai.Embedder, dimension, maxRetries int, retryBaseDelay time.Duration) *BatchProcessor {
	return &BatchProcessor{
		repo:           repo,
		embedder:       embedder,
		dimension:      dimension,
		maxRetries:     maxRetries,
		retryBaseDelay: retryBaseDelay,
	}
}

// WithGate makes every embedding call hold a permit of g. A nil gate
// leaves calls unbounded.
func (bp *BatchProcessor) WithGate(g *gate.Gate) *BatchProcessor {
	bp.gate = g
	return bp
}

// Process embeds a batch of fragments and updates them in the store.
// Each fragment is embedded with its context, as at ingestion, and the
// vectors are normalised before they are written.
func (bp *BatchProcessor) Process(ctx context.Context, frags []*core.Fragment) error {
	if len(frags) == 0 {
		return nil
	}

	texts := make([]string, len(frags))
	for i, frag := range frags {
		texts[i] = frag.EmbeddingText()
	}

	var embeddings [][]float32
	err := resilient.RetryWithBackoff(ctx, func() error {
		var err error
		embeddings, err = bp.embed(ctx, texts)
		return err
	}, bp.maxRetries, bp.retryBaseDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", bp.maxRetries, err)
	}

	if len(embeddings) != len(frags) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingCountMismatch, len(frags), len(embeddings))
	}

	for i, frag := range frags {
		if err := core.ValidateDimension(embeddings[i], bp.dimension); err != nil {
			return fmt.Errorf("fragment %s: %w", frag.ID, err)
		}
		frag.Embedding = core.NormalizeVector(embeddings[i])
	}

	if err := bp.repo.UpdateFragments(ctx, frags...); err != nil {
		return fmt.Errorf("failed to update fragments: %w", err)
	}

	return nil
}

func (bp *BatchProcessor) embed(ctx context.Context, texts []string) ([][]float32, error) {
	if bp.gate == nil {
		return bp.embedder.EmbedTexts(ctx, texts)
	}
	var embeddings [][]float32
	err := bp.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		embeddings, err = bp.embedder.EmbedTexts(ctx, texts)
		return err
	})
	return embeddings, err
}
