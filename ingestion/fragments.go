package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/storage"
)

// fragmentProcessor embeds and stores the fragments of one document.
type fragmentProcessor struct {
	fragments      storage.FragmentRepository
	sequence       storage.Sequence
	embedder       ai.Embedder
	contextualizer ai.Contextualizer
	gate           *gate.Gate
	pool           *ants.Pool
	dimension      int
	logger         *slog.Logger
}

func newFragmentProcessor(p *Pipeline) *fragmentProcessor {
	return &fragmentProcessor{
		fragments:      p.fragments,
		sequence:       p.sequence,
		embedder:       p.embedder,
		contextualizer: p.contextualizer,
		gate:           p.gate,
		pool:           p.pool,
		dimension:      p.dimension,
		logger:         p.logger.With("processor", "fragments"),
	}
}

// process turns chunks into stored fragments of doc. It returns the number
// stored and the joined errors of the rest. Fragments are independent:
// one failure never stops its siblings.
func (fp *fragmentProcessor) process(ctx context.Context, doc *core.Document, text string, chunks []string) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	generation, err := fp.sequence.Next()
	if err != nil {
		return 0, fmt.Errorf("%w: generation: %w", core.ErrFragmentProcessing, err)
	}

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		stored int
		errs   []error
	)
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		if err == nil {
			stored++
			return
		}
		errs = append(errs, err)
	}

	for position, content := range chunks {
		frag := fp.newFragment(doc, position, content, generation)

		// Unscheduled fragments of a cancelled call count as failed
		if err := ctx.Err(); err != nil {
			record(fp.fail(frag, err))
			continue
		}

		wg.Add(1)
		submitErr := fp.pool.Submit(func() {
			defer wg.Done()
			record(fp.processOne(ctx, frag, text))
		})
		if submitErr != nil {
			wg.Done()
			record(fp.fail(frag, submitErr))
		}
	}
	wg.Wait()

	return stored, errors.Join(errs...)
}

func (fp *fragmentProcessor) newFragment(doc *core.Document, position int, content string, generation uint64) *core.Fragment {
	meta := doc.Metadata.Clone()
	meta.Kind = core.KindFragment
	meta.DocumentID = doc.ID
	meta.Position = position
	meta.Timestamp = time.Now().UTC()

	return &core.Fragment{
		ID:         core.FragmentID(doc.AgentID, doc.ID, position, generation),
		AgentID:    doc.AgentID,
		DocumentID: doc.ID,
		Position:   position,
		Scope:      doc.Scope,
		Content:    content,
		Metadata:   meta,
	}
}

// processOne embeds and stores one fragment while holding a gate permit.
func (fp *fragmentProcessor) processOne(ctx context.Context, frag *core.Fragment, document string) error {
	err := fp.gate.Do(ctx, func(ctx context.Context) error {
		if fp.contextualizer != nil {
			fp.enrich(ctx, frag, document)
		}

		vec, err := fp.embedder.EmbedText(ctx, frag.EmbeddingText())
		if err != nil {
			return err
		}
		if err := core.ValidateDimension(vec, fp.dimension); err != nil {
			return err
		}
		frag.Embedding = core.NormalizeVector(vec)

		return fp.fragments.CreateFragments(ctx, frag)
	})
	if err != nil {
		return fp.fail(frag, err)
	}
	return nil
}

// enrich attaches a generated context. Failure leaves the plain chunk.
func (fp *fragmentProcessor) enrich(ctx context.Context, frag *core.Fragment, document string) {
	passage, err := fp.contextualizer.Contextualize(ctx, document, frag.Content)
	if err != nil {
		fp.logger.Warn("contextualization failed, embedding plain chunk",
			"documentId", frag.DocumentID,
			"position", frag.Position,
			"err", err)
		return
	}
	frag.Context = passage
}

func (fp *fragmentProcessor) fail(frag *core.Fragment, err error) error {
	fp.logger.Error("fragment failed",
		"documentId", frag.DocumentID,
		"position", frag.Position,
		"fragmentId", frag.ID,
		"err", err)
	return &core.FragmentError{
		DocumentID: frag.DocumentID,
		FragmentID: frag.ID,
		Position:   frag.Position,
		Err:        err,
	}
}
