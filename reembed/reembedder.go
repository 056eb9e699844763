// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of fragments to embed in each call
	BatchSize int

	// ReportInterval is how often to report progress (number of fragments)
	ReportInterval int

	// MaxRetries is the maximum number of attempts for each batch
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration

	// Dimension is the expected embedding length. Zero accepts any.
	Dimension int

	// Gate, if set, bounds embedding calls together with every other
	// holder of the same gate.
	Gate *gate.Gate
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reembedder re-embeds every fragment in a store.
type Reembedder struct {
	repo      storage.FragmentRepository
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *FragmentIterator
	logger    *slog.Logger
}

// NewReembedder creates a new reembedder.
// progress: where to write progress output (typically os.Stderr)
func NewReembedder(repo storage.FragmentRepository, embedder ai.Embedder, config *Config, progress io.Writer) *Reembedder {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reembedder{
		repo:      repo,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(repo, embedder, config.Dimension, config.MaxRetries, config.RetryDelay).WithGate(config.Gate),
		iterator:  NewFragmentIterator(repo, config.BatchSize),
		logger:    slog.Default().With("component", "reembed"),
	}
}

// Run re-embeds every stored fragment and returns how many were stored.
// A batch that fails after its retries keeps its old vectors and the run
// moves on; the result then wraps ErrFragmentsFailed and the first batch
// error. Cancelling ctx stops the run.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.iterator.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count fragments: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No fragments found in store (0 fragments)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d fragments (batch size: %d)\n",
		total, r.iterator.batchSize)

	progress := NewProgress(r.progress, total, r.config.ReportInterval)
	progress.Start()

	var firstErr error
	err = r.iterator.ForEach(ctx, func(frags []*core.Fragment) error {
		if err := r.processor.Process(ctx, frags); err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("failed to process batch: %w", err)
			}
			r.logger.Warn("batch failed, keeping old vectors", "fragments", len(frags), "err", err)
			progress.Failed(len(frags))
			if firstErr == nil {
				firstErr = err
			}
			return nil
		}
		progress.Stored(len(frags))
		return nil
	})
	stored, failed := progress.Counts()
	if err != nil {
		r.logger.Error("reembedding stopped", "stored", stored, "failed", failed, "total", total, "err", err)
		return stored, err
	}

	progress.Finish()

	elapsed := progress.Elapsed()
	if failed > 0 {
		fmt.Fprintf(r.progress, "Reembedding finished with failures. Stored %d, failed %d of %d fragments in %v\n",
			stored, failed, total, elapsed.Round(time.Second))
		r.logger.Error("reembedding finished with failures", "stored", stored, "failed", failed, "elapsed", elapsed)
		return stored, errors.Join(fmt.Errorf("%w: %d of %d", ErrFragmentsFailed, failed, total), firstErr)
	}

	fmt.Fprintf(r.progress, "Reembedding complete. Stored %d fragments in %v (%.1f fragments/sec)\n",
		stored, elapsed.Round(time.Second), float64(stored)/elapsed.Seconds())
	r.logger.Info("reembedding complete", "fragments", stored, "elapsed", elapsed)

	return stored, nil
}
