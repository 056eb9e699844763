// Package resilient decorates an ai.Embedder with retries, provider rate
// limits and an optional deterministic fallback.
//
//	embedder, err := resilient.Wrap(provider.Embedder(),
//	    resilient.WithRetry(3, 500*time.Millisecond),
//	    resilient.WithRateLimit(cfg.RequestsPerMinute, cfg.TokensPerMinute),
//	)
//
// Each attempt waits on the rate limiter, so retries are throttled too.
// The fallback is consulted only after every retry has failed.
package resilient
