package resilient

import (
	"context"
	"log/slog"
	"time"

	"github.com/poiesic/knowledge/ai"
)

// Default retry settings used by WithRetry callers that pass zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Embedder wraps an ai.Embedder with retries, rate limiting and fallback.
type Embedder struct {
	inner       ai.Embedder
	maxAttempts int
	baseDelay   time.Duration
	limiter     *Limiter
	fallbackDim int
	logger      *slog.Logger
}

// Option configures a resilient Embedder.
type Option func(*Embedder) error

// WithRetry retries failed calls up to maxAttempts times with exponential
// backoff starting at baseDelay. Zero values select the defaults.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(e *Embedder) error {
		if maxAttempts == 0 {
			maxAttempts = DefaultMaxAttempts
		}
		if maxAttempts < 0 {
			return ErrInvalidMaxAttempts
		}
		if baseDelay <= 0 {
			baseDelay = DefaultBaseDelay
		}
		e.maxAttempts = maxAttempts
		e.baseDelay = baseDelay
		return nil
	}
}

// WithRateLimit throttles calls to the given per-minute budgets.
func WithRateLimit(requestsPerMinute, tokensPerMinute int) Option {
	return func(e *Embedder) error {
		l, err := NewLimiter(requestsPerMinute, tokensPerMinute)
		if err != nil {
			return err
		}
		e.limiter = l
		return nil
	}
}

// WithFallback returns a deterministic vector of width dim when every
// attempt fails. Context cancellation is never masked.
func WithFallback(dim int) Option {
	return func(e *Embedder) error {
		if dim <= 0 {
			return ErrInvalidDimension
		}
		e.fallbackDim = dim
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Embedder) error {
		e.logger = logger
		return nil
	}
}

// Wrap decorates inner with the given options. With no options the result
// behaves exactly like inner.
func Wrap(inner ai.Embedder, opts ...Option) (ai.Embedder, error) {
	if inner == nil {
		return nil, ErrNilEmbedder
	}
	e := &Embedder{
		inner:       inner,
		maxAttempts: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.logger = e.logger.With("component", "resilient-embedder")
	return e, nil
}

// EmbedText embeds one text.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.run(ctx, EstimateTokens(text), func() error {
		var err error
		vec, err = e.inner.EmbedText(ctx, text)
		return err
	})
	if err != nil {
		if !e.canFallback(ctx) {
			return nil, err
		}
		e.logger.Warn("embedding failed, using fallback vector", "err", err)
		return FallbackVector(text, e.fallbackDim), nil
	}
	return vec, nil
}

// EmbedTexts embeds texts as one request.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := e.run(ctx, EstimateTokens(texts...), func() error {
		var err error
		vecs, err = e.inner.EmbedTexts(ctx, texts)
		return err
	})
	if err != nil {
		if !e.canFallback(ctx) {
			return nil, err
		}
		e.logger.Warn("batch embedding failed, using fallback vectors", "count", len(texts), "err", err)
		vecs = make([][]float32, len(texts))
		for i, t := range texts {
			vecs[i] = FallbackVector(t, e.fallbackDim)
		}
		return vecs, nil
	}
	return vecs, nil
}

func (e *Embedder) run(ctx context.Context, tokens int, call func() error) error {
	return RetryWithBackoff(ctx, func() error {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, tokens); err != nil {
				return err
			}
		}
		return call()
	}, e.maxAttempts, e.baseDelay)
}

func (e *Embedder) canFallback(ctx context.Context) bool {
	return e.fallbackDim > 0 && ctx.Err() == nil
}
