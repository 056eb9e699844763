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

package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/chunk"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/extract"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/search"
)

// Config is the complete service configuration.
type Config struct {
	Agent     AgentConfig     `toml:"agent"`
	Storage   StorageConfig   `toml:"storage"`
	Embedding EmbeddingConfig `toml:"embedding"`
	Text      TextConfig      `toml:"text"`
	Ingestion IngestionConfig `toml:"ingestion"`
	Search    SearchConfig    `toml:"search"`
	Loader    LoaderConfig    `toml:"loader"`
}

// AgentConfig identifies the agent that owns the knowledge.
type AgentConfig struct {
	// Name derives the agent id when ID is empty.
	Name string `toml:"name"`
	// ID is an explicit agent UUID.
	ID string `toml:"id"`
}

// StorageConfig locates the database.
type StorageConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// EmbeddingConfig describes the embedding provider.
type EmbeddingConfig struct {
	Provider              string `toml:"provider"`
	Host                  string `toml:"host"`
	Model                 string `toml:"model"`
	APIKey                string `toml:"api_key"`
	Dimension             int    `toml:"dimension"`
	MaxConcurrentRequests int    `toml:"max_concurrent_requests"`
	RequestsPerMinute     int    `toml:"requests_per_minute"`
	TokensPerMinute       int    `toml:"tokens_per_minute"`
	MaxRetries            int    `toml:"max_retries"`
	RetryDelayMillis      int    `toml:"retry_delay_ms"`
	// Fallback substitutes a hash-derived vector when the provider keeps failing.
	Fallback bool `toml:"fallback"`
}

// TextConfig describes the chat model used for contextual knowledge.
type TextConfig struct {
	ContextualKnowledge bool   `toml:"contextual_knowledge"`
	Host                string `toml:"host"`
	Model               string `toml:"model"`
	APIKey              string `toml:"api_key"`
	MaxInputTokens      int    `toml:"max_input_tokens"`
}

// IngestionConfig tunes chunking and concurrency.
type IngestionConfig struct {
	TargetTokens     int     `toml:"target_tokens"`
	OverlapTokens    int     `toml:"overlap_tokens"`
	ModelContextSize int     `toml:"model_context_size"`
	Encoding         string  `toml:"encoding"`
	GateCapacity     int     `toml:"gate_capacity"`
	PoolSize         int     `toml:"pool_size"`
	BatchLimit       int     `toml:"batch_limit"`
	CorruptThreshold float64 `toml:"corrupt_threshold"`
}

// SearchConfig tunes retrieval.
type SearchConfig struct {
	Limit     int     `toml:"limit"`
	Threshold float32 `toml:"threshold"`
}

// LoaderConfig controls loading documents from disk.
type LoaderConfig struct {
	Path          string `toml:"path"`
	LoadOnStartup bool   `toml:"load_on_startup"`
	Watch         bool   `toml:"watch"`
	MaxFileSize   int64  `toml:"max_file_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	aiCfg := ai.DefaultConfig()
	return &Config{
		Agent: AgentConfig{Name: "default"},
		Storage: StorageConfig{
			Path: "knowledge-data",
		},
		Embedding: EmbeddingConfig{
			Provider:              string(aiCfg.EmbeddingProvider),
			Host:                  aiCfg.EmbeddingHost,
			Model:                 aiCfg.EmbeddingModel,
			Dimension:             aiCfg.EmbeddingDimension,
			MaxConcurrentRequests: aiCfg.MaxConcurrentRequests,
			RequestsPerMinute:     aiCfg.RequestsPerMinute,
			TokensPerMinute:       aiCfg.TokensPerMinute,
			MaxRetries:            3,
			RetryDelayMillis:      500,
		},
		Text: TextConfig{
			Host:           aiCfg.TextHost,
			Model:          aiCfg.TextModel,
			MaxInputTokens: aiCfg.MaxInputTokens,
		},
		Ingestion: IngestionConfig{
			TargetTokens:     chunk.DefaultTargetTokens,
			OverlapTokens:    chunk.DefaultOverlapTokens,
			ModelContextSize: 8191,
			Encoding:         chunk.DefaultEncoding,
			GateCapacity:     gate.DefaultCapacity,
			CorruptThreshold: extract.DefaultCorruptThreshold,
		},
		Search: SearchConfig{
			Limit:     search.DefaultLimit,
			Threshold: search.DefaultThreshold,
		},
		Loader: LoaderConfig{
			Path: "docs",
		},
	}
}

// Load builds a configuration from the defaults, the TOML file at path and
// the environment, in that order. An empty path skips the file. Unknown
// keys in the file are an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	// A provider named in the file brings its own defaults, which explicit
	// keys in the same file then override
	var declared struct {
		Embedding struct {
			Provider string `toml:"provider"`
		} `toml:"embedding"`
	}
	if err := toml.Unmarshal(data, &declared); err != nil {
		return err
	}
	if declared.Embedding.Provider != "" {
		c.setProvider(declared.Embedding.Provider)
	}

	return toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(c)
}

// setProvider selects provider and resets host, model and dimension to its
// defaults.
func (c *Config) setProvider(name string) {
	p := ai.EmbeddingProvider(name)
	c.Embedding.Provider = name
	c.Embedding.Host = p.DefaultHost()
	c.Embedding.Model = p.DefaultModel()
	c.Embedding.Dimension = p.DefaultDimension()
}

// Validate checks the configuration as a whole.
func (c *Config) Validate() error {
	if _, err := c.AgentID(); err != nil {
		return err
	}
	if c.Storage.Path == "" && !c.Storage.InMemory {
		return fmt.Errorf("%w: storage path is required", ErrInvalidConfig)
	}

	in := c.Ingestion
	if in.TargetTokens < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, chunk.ErrInvalidTarget)
	}
	if in.OverlapTokens < 0 || in.OverlapTokens >= in.TargetTokens {
		return fmt.Errorf("%w: %w: overlap %d, target %d",
			ErrInvalidConfig, chunk.ErrInvalidOverlap, in.OverlapTokens, in.TargetTokens)
	}
	if in.ModelContextSize > 0 && in.TargetTokens > in.ModelContextSize {
		return fmt.Errorf("%w: target tokens %d exceed model context size %d",
			ErrInvalidConfig, in.TargetTokens, in.ModelContextSize)
	}
	if in.GateCapacity < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, gate.ErrInvalidCapacity)
	}
	if in.PoolSize < 0 {
		return fmt.Errorf("%w: pool size cannot be negative", ErrInvalidConfig)
	}
	if in.CorruptThreshold < 0 || in.CorruptThreshold > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, extract.ErrInvalidThreshold)
	}

	if c.Search.Limit < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, search.ErrInvalidLimit)
	}
	if c.Search.Threshold < -1 || c.Search.Threshold > 1 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, search.ErrInvalidThreshold)
	}

	if c.Embedding.MaxRetries < 0 || c.Embedding.RetryDelayMillis < 0 {
		return fmt.Errorf("%w: retry settings cannot be negative", ErrInvalidConfig)
	}
	if c.Loader.MaxFileSize < 0 {
		return fmt.Errorf("%w: max file size cannot be negative", ErrInvalidConfig)
	}

	if err := c.AIConfig().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// AgentID returns the configured agent id.
func (c *Config) AgentID() (core.ID, error) {
	if c.Agent.ID != "" {
		id, err := core.ParseID(c.Agent.ID)
		if err != nil {
			return core.NilID, fmt.Errorf("%w: agent id: %w", ErrInvalidConfig, err)
		}
		return id, nil
	}
	if c.Agent.Name == "" {
		return core.NilID, fmt.Errorf("%w: agent name or id is required", ErrInvalidConfig)
	}
	return core.AgentID(c.Agent.Name), nil
}

// AIConfig maps the embedding and text sections onto an ai.Config.
func (c *Config) AIConfig() *ai.Config {
	cfg := ai.NewConfig(
		ai.WithEmbeddingProvider(ai.EmbeddingProvider(c.Embedding.Provider)),
		ai.WithEmbeddingHost(c.Embedding.Host),
		ai.WithEmbeddingModel(c.Embedding.Model),
		ai.WithEmbeddingDimension(c.Embedding.Dimension),
		ai.WithTextHost(c.Text.Host),
		ai.WithMaxInputTokens(c.Text.MaxInputTokens),
		ai.WithRateLimits(c.Embedding.MaxConcurrentRequests, c.Embedding.RequestsPerMinute, c.Embedding.TokensPerMinute),
	)
	cfg.EmbeddingAPIKey = c.Embedding.APIKey
	cfg.TextAPIKey = c.Text.APIKey
	cfg.TextModel = c.Text.Model
	cfg.ContextualKnowledge = c.Text.ContextualKnowledge
	cfg.Normalize()
	return cfg
}

// RetryDelay returns the base delay between embedding retries.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.Embedding.RetryDelayMillis) * time.Millisecond
}
