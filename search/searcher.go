package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/storage"
)

const (
	// DefaultLimit caps the number of results of a query.
	DefaultLimit = 20

	// DefaultThreshold is the minimum similarity of a result.
	DefaultThreshold float32 = 0.1
)

// Searcher retrieves fragments similar to a query.
type Searcher struct {
	fragments storage.FragmentRepository
	embedder  ai.Embedder
	agentID   core.ID
	limit     int
	threshold float32
	gate      *gate.Gate
	logger    *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLimit sets the result cap. Default is DefaultLimit.
func WithLimit(limit int) Option {
	return func(s *Searcher) error {
		if limit < 1 {
			return ErrInvalidLimit
		}
		s.limit = limit
		return nil
	}
}

// WithThreshold sets the minimum similarity. Default is DefaultThreshold.
func WithThreshold(threshold float32) Option {
	return func(s *Searcher) error {
		if threshold < -1 || threshold > 1 {
			return ErrInvalidThreshold
		}
		s.threshold = threshold
		return nil
	}
}

// WithAgentID restricts results to fragments owned by agentID.
func WithAgentID(agentID core.ID) Option {
	return func(s *Searcher) error {
		s.agentID = agentID
		return nil
	}
}

// WithGate makes each query embedding hold a permit of g, so queries share
// the provider budget with ingestion. Without a gate queries are not limited.
func WithGate(g *gate.Gate) Option {
	return func(s *Searcher) error {
		s.gate = g
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(fragments storage.FragmentRepository, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if fragments == nil {
		return nil, ErrFragmentRepositoryRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		fragments: fragments,
		embedder:  embedder,
		limit:     DefaultLimit,
		threshold: DefaultThreshold,
		logger:    slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "search")

	return s, nil
}

// Query returns the fragments most similar to text, highest similarity
// first. A nil scope searches every scope; otherwise each non-nil field
// of scope must match. Blank text returns no results without embedding.
func (s *Searcher) Query(ctx context.Context, text string, scope *core.Scope) ([]*core.SearchResult, error) {
	return s.QueryWithMonitor(ctx, text, scope, nil)
}

// QueryWithMonitor is Query with monitoring.
// The monitor receives callbacks at each stage of the search process.
func (s *Searcher) QueryWithMonitor(ctx context.Context, text string, scope *core.Scope, monitor SearchMonitor) ([]*core.SearchResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}

	monitor.Start(text, scope)

	if strings.TrimSpace(text) == "" {
		s.logger.Debug("blank query, skipping embedding")
		results := []*core.SearchResult{}
		monitor.Finish(results)
		return results, nil
	}

	embedding, err := s.embed(ctx, text)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", text, "err", err)
		return nil, err
	}
	embedding = core.NormalizeVector(embedding)
	monitor.AfterEmbedding(len(embedding))

	filter := storage.Filter{AgentID: s.agentID}
	if scope != nil {
		filter.Scope = *scope
	}

	candidates, err := s.fragments.SimilaritySearch(ctx, embedding, filter, s.limit, s.threshold)
	if err != nil {
		s.logger.Error("error querying for similar fragments", "err", err)
		return nil, err
	}
	monitor.AfterSimilaritySearch(candidates)

	terms := queryTerms(text)
	results := make([]*core.SearchResult, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate == nil || candidate.Fragment == nil || candidate.Fragment.ID == core.NilID {
			continue
		}
		candidate.MatchedTerms = matchedTerms(candidate.Fragment.Content, terms)
		results = append(results, candidate)
	}

	s.logger.Debug("query complete", "results", len(results), "limit", s.limit, "threshold", s.threshold)
	monitor.Finish(results)

	return results, nil
}

func (s *Searcher) embed(ctx context.Context, text string) ([]float32, error) {
	if s.gate == nil {
		return s.embedder.EmbedText(ctx, text)
	}
	var embedding []float32
	err := s.gate.Do(ctx, func(ctx context.Context) error {
		var err error
		embedding, err = s.embedder.EmbedText(ctx, text)
		return err
	})
	return embedding, err
}
