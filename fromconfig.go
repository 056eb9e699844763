package knowledge

import (
	"github.com/poiesic/knowledge/config"
)

// OptionsFromConfig translates an application configuration into Open
// options. The configuration is validated first.
func OptionsFromConfig(cfg *config.Config) ([]Option, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	agentID, err := cfg.AgentID()
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithAIConfig(cfg.AIConfig()),
		WithAgentID(agentID),
		WithChunking(cfg.Ingestion.TargetTokens, cfg.Ingestion.OverlapTokens),
		WithEncoding(cfg.Ingestion.Encoding),
		WithGateCapacity(cfg.Ingestion.GateCapacity),
		WithPoolSize(cfg.Ingestion.PoolSize),
		WithBatchLimit(cfg.Ingestion.BatchLimit),
		WithCorruptThreshold(cfg.Ingestion.CorruptThreshold),
		WithSearch(cfg.Search.Limit, cfg.Search.Threshold),
		WithRetry(cfg.Embedding.MaxRetries, cfg.RetryDelay()),
		WithFallback(cfg.Embedding.Fallback),
		WithMaxFileSize(cfg.Loader.MaxFileSize),
	}
	if cfg.Storage.InMemory {
		opts = append(opts, WithInMemory())
	}
	return opts, nil
}
