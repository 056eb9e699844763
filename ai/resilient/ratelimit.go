package resilient

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// charsPerToken is the heuristic used to estimate request token counts.
const charsPerToken = 4

// Limiter enforces requests-per-minute and tokens-per-minute budgets.
// A zero budget disables that dimension.
type Limiter struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

// NewLimiter creates a limiter for the given per-minute budgets.
func NewLimiter(requestsPerMinute, tokensPerMinute int) (*Limiter, error) {
	if requestsPerMinute < 0 || tokensPerMinute < 0 {
		return nil, ErrInvalidRateLimit
	}
	l := &Limiter{}
	if requestsPerMinute > 0 {
		l.requests = rate.NewLimiter(perMinute(requestsPerMinute), requestsPerMinute)
	}
	if tokensPerMinute > 0 {
		l.tokens = rate.NewLimiter(perMinute(tokensPerMinute), tokensPerMinute)
	}
	return l, nil
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// EstimateTokens approximates the token count of texts.
func EstimateTokens(texts ...string) int {
	total := 0
	for _, t := range texts {
		total += len(t) / charsPerToken
	}
	if total < 1 {
		total = 1
	}
	return total
}

// Wait blocks until one request carrying the given number of tokens fits
// both budgets. Requests larger than the whole token budget wait for a full
// bucket.
func (l *Limiter) Wait(ctx context.Context, tokens int) error {
	if l.requests != nil {
		if err := l.requests.Wait(ctx); err != nil {
			return err
		}
	}
	if l.tokens != nil {
		if burst := l.tokens.Burst(); tokens > burst {
			tokens = burst
		}
		if err := l.tokens.WaitN(ctx, tokens); err != nil {
			return err
		}
	}
	return nil
}
