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

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingProvider selects provider defaults for host, model and dimension.
	EmbeddingProvider EmbeddingProvider

	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// EmbeddingAPIKey authenticates against hosted providers.
	// Local OpenAI-compatible servers accept any value.
	EmbeddingAPIKey string

	// EmbeddingDimension is the expected vector width. Vectors of any other
	// width are rejected.
	EmbeddingDimension int

	// ContextualKnowledge enables LLM-generated chunk context.
	ContextualKnowledge bool

	// TextHost is the base URL of the chat completion API used for
	// contextual knowledge.
	TextHost string

	// TextModel is the chat model used for contextual knowledge.
	TextModel string

	// TextAPIKey authenticates against the chat completion API.
	TextAPIKey string

	// MaxInputTokens caps the document excerpt sent for contextualization.
	MaxInputTokens int

	// MaxConcurrentRequests, RequestsPerMinute and TokensPerMinute describe
	// the provider's rate limits.
	MaxConcurrentRequests int
	RequestsPerMinute     int
	TokensPerMinute       int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingProvider selects a provider and resets host, model and
// dimension to that provider's defaults. Apply it before overriding them.
func WithEmbeddingProvider(provider EmbeddingProvider) ConfigOption {
	return func(c *Config) {
		c.EmbeddingProvider = provider
		c.EmbeddingHost = provider.DefaultHost()
		c.EmbeddingModel = provider.DefaultModel()
		c.EmbeddingDimension = provider.DefaultDimension()
	}
}

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithTextHost sets the chat completion host URL.
func WithTextHost(host string) ConfigOption {
	return func(c *Config) {
		c.TextHost = host
	}
}

// WithHost sets both embedding and text hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.TextHost = host
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithEmbeddingDimension sets the expected embedding width.
func WithEmbeddingDimension(dim int) ConfigOption {
	return func(c *Config) {
		c.EmbeddingDimension = dim
	}
}

// WithAPIKey sets the API key for both embedding and text services.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingAPIKey = key
		c.TextAPIKey = key
	}
}

// WithContextualKnowledge enables contextual enrichment with the given chat model.
func WithContextualKnowledge(model string) ConfigOption {
	return func(c *Config) {
		c.ContextualKnowledge = true
		c.TextModel = model
	}
}

// WithMaxInputTokens caps the document excerpt used for contextualization.
func WithMaxInputTokens(n int) ConfigOption {
	return func(c *Config) {
		c.MaxInputTokens = n
	}
}

// WithRateLimits sets the provider rate limits.
func WithRateLimits(maxConcurrent, requestsPerMinute, tokensPerMinute int) ConfigOption {
	return func(c *Config) {
		c.MaxConcurrentRequests = maxConcurrent
		c.RequestsPerMinute = requestsPerMinute
		c.TokensPerMinute = tokensPerMinute
	}
}

// DefaultConfig returns a Config with sensible defaults for a local
// OpenAI-compatible server. Contextual knowledge is off.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingProvider:     ProviderOllama,
		EmbeddingHost:         defaultHost,
		EmbeddingModel:        "embeddinggemma",
		EmbeddingAPIKey:       "none",
		EmbeddingDimension:    ProviderOllama.DefaultDimension(),
		TextHost:              defaultHost,
		TextModel:             "qwen2.5:3b",
		TextAPIKey:            "none",
		MaxInputTokens:        4000,
		MaxConcurrentRequests: 30,
		RequestsPerMinute:     60,
		TokensPerMinute:       150000,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithEmbeddingProvider(ProviderOpenAI),
//	    WithAPIKey(os.Getenv("OPENAI_API_KEY")),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It automatically adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.TextHost = normalizeHost(c.TextHost)
	if c.EmbeddingAPIKey == "" {
		c.EmbeddingAPIKey = "none"
	}
	if c.TextAPIKey == "" {
		c.TextAPIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It automatically normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingProvider != "" && !c.EmbeddingProvider.Valid() {
		return errors.New("ai config: unknown EmbeddingProvider " + string(c.EmbeddingProvider))
	}
	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.EmbeddingDimension < 0 {
		return errors.New("ai config: EmbeddingDimension cannot be negative")
	}
	if c.ContextualKnowledge {
		if c.TextHost == "" {
			return errors.New("ai config: TextHost is required when contextual knowledge is enabled")
		}
		if c.TextModel == "" {
			return errors.New("ai config: TextModel is required when contextual knowledge is enabled")
		}
	}
	if c.MaxConcurrentRequests < 0 || c.RequestsPerMinute < 0 || c.TokensPerMinute < 0 {
		return errors.New("ai config: rate limits cannot be negative")
	}
	return nil
}
