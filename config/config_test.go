package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/ai"
	"github.com/poiesic/knowledge/chunk"
	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/gate"
	"github.com/poiesic/knowledge/search"
)

func env(vars map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "knowledge.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ollama", cfg.Embedding.Provider)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
	assert.Equal(t, 1500, cfg.Ingestion.TargetTokens)
	assert.Equal(t, 200, cfg.Ingestion.OverlapTokens)
	assert.Equal(t, chunk.DefaultEncoding, cfg.Ingestion.Encoding)
	assert.Equal(t, gate.DefaultCapacity, cfg.Ingestion.GateCapacity)
	assert.Equal(t, 20, cfg.Search.Limit)
	assert.Equal(t, float32(0.1), cfg.Search.Threshold)
	assert.False(t, cfg.Text.ContextualKnowledge)
	assert.False(t, cfg.Loader.LoadOnStartup)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryDelay())

	id, err := cfg.AgentID()
	require.NoError(t, err)
	assert.Equal(t, core.AgentID("default"), id)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
[agent]
name = "eliza"

[storage]
path = "/var/lib/knowledge"

[embedding]
provider = "openai"
api_key = "sk-test"

[text]
contextual_knowledge = true
model = "gpt-4o-mini"
host = "https://api.openai.com"

[ingestion]
target_tokens = 1000
overlap_tokens = 100
gate_capacity = 4

[search]
limit = 5
threshold = 0.3

[loader]
path = "/srv/docs"
load_on_startup = true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "eliza", cfg.Agent.Name)
	assert.Equal(t, "/var/lib/knowledge", cfg.Storage.Path)
	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.Host, "provider defaults fill unset keys")
	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.True(t, cfg.Text.ContextualKnowledge)
	assert.Equal(t, 1000, cfg.Ingestion.TargetTokens)
	assert.Equal(t, 4, cfg.Ingestion.GateCapacity)
	assert.Equal(t, 5, cfg.Search.Limit)
	assert.InDelta(t, 0.3, cfg.Search.Threshold, 0.0001)
	assert.True(t, cfg.Loader.LoadOnStartup)

	aiCfg := cfg.AIConfig()
	assert.Equal(t, ai.ProviderOpenAI, aiCfg.EmbeddingProvider)
	assert.Equal(t, "sk-test", aiCfg.EmbeddingAPIKey)
	assert.Equal(t, "https://api.openai.com/v1", aiCfg.TextHost)
	assert.Equal(t, "gpt-4o-mini", aiCfg.TextModel)
	assert.True(t, aiCfg.ContextualKnowledge)
}

func TestLoad_ProviderDefaultsYieldToExplicitKeys(t *testing.T) {
	path := writeConfig(t, `
[embedding]
provider = "akash"
dimension = 512
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 512, cfg.Embedding.Dimension)
	assert.Equal(t, ai.ProviderAkash.DefaultModel(), cfg.Embedding.Model)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[agent\nname="))
		assert.Error(t, err)
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[search]\nlimitt = 3\n"))
		assert.Error(t, err)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, "[ingestion]\ntarget_tokens = 100\noverlap_tokens = 100\n"))
		assert.ErrorIs(t, err, ErrInvalidConfig)
		assert.ErrorIs(t, err, chunk.ErrInvalidOverlap)
	})
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Ingestion, cfg.Ingestion)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"EMBEDDING_PROVIDER":      "openai",
		"TEXT_EMBEDDING_MODEL":    "text-embedding-3-large",
		"EMBEDDING_DIMENSION":     "3072",
		"EMBEDDING_API_KEY":       "sk-env",
		"CTX_KNOWLEDGE_ENABLED":   "TRUE",
		"TEXT_MODEL":              "gpt-4o",
		"MAX_INPUT_TOKENS":        "8000",
		"MAX_CONCURRENT_REQUESTS": "10",
		"REQUESTS_PER_MINUTE":     "100",
		"TOKENS_PER_MINUTE":       "200000",
		"KNOWLEDGE_PATH":          "/data/docs",
		"LOAD_DOCS_ON_STARTUP":    "true",
		"EMBEDDING_HOST":          "   ",
	}))
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Embedding.Provider)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedding.Host, "blank variables are ignored")
	assert.Equal(t, "text-embedding-3-large", cfg.Embedding.Model)
	assert.Equal(t, 3072, cfg.Embedding.Dimension)
	assert.Equal(t, "sk-env", cfg.Embedding.APIKey)
	assert.True(t, cfg.Text.ContextualKnowledge)
	assert.Equal(t, "gpt-4o", cfg.Text.Model)
	assert.Equal(t, 8000, cfg.Text.MaxInputTokens)
	assert.Equal(t, 10, cfg.Embedding.MaxConcurrentRequests)
	assert.Equal(t, 100, cfg.Embedding.RequestsPerMinute)
	assert.Equal(t, 200000, cfg.Embedding.TokensPerMinute)
	assert.Equal(t, "/data/docs", cfg.Loader.Path)
	assert.True(t, cfg.Loader.LoadOnStartup)
	require.NoError(t, cfg.Validate())
}

func TestApplyEnv_Booleans(t *testing.T) {
	for value, want := range map[string]bool{"true": true, "True": true, "false": false, "1": false, "yes": false} {
		cfg := Default()
		cfg.Text.ContextualKnowledge = !want
		require.NoError(t, cfg.ApplyEnv(env(map[string]string{"CTX_KNOWLEDGE_ENABLED": value})))
		assert.Equal(t, want, cfg.Text.ContextualKnowledge, value)
	}
}

func TestApplyEnv_InvalidNumber(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{"EMBEDDING_DIMENSION": "wide"}))
	assert.ErrorIs(t, err, ErrInvalidEnv)
	assert.Contains(t, err.Error(), "EMBEDDING_DIMENSION")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("KNOWLEDGE_PATH", "/from/env")
	path := writeConfig(t, "[loader]\npath = \"/from/file\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Loader.Path)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{name: "overlap equals target", mutate: func(c *Config) { c.Ingestion.OverlapTokens = c.Ingestion.TargetTokens }, wantErr: chunk.ErrInvalidOverlap},
		{name: "negative overlap", mutate: func(c *Config) { c.Ingestion.OverlapTokens = -1 }, wantErr: chunk.ErrInvalidOverlap},
		{name: "zero target", mutate: func(c *Config) { c.Ingestion.TargetTokens = 0 }, wantErr: chunk.ErrInvalidTarget},
		{name: "target beyond model context", mutate: func(c *Config) { c.Ingestion.TargetTokens = 9000 }, wantErr: ErrInvalidConfig},
		{name: "gate capacity", mutate: func(c *Config) { c.Ingestion.GateCapacity = 0 }, wantErr: gate.ErrInvalidCapacity},
		{name: "result cap", mutate: func(c *Config) { c.Search.Limit = 0 }, wantErr: search.ErrInvalidLimit},
		{name: "threshold", mutate: func(c *Config) { c.Search.Threshold = 1.5 }, wantErr: search.ErrInvalidThreshold},
		{name: "corrupt threshold", mutate: func(c *Config) { c.Ingestion.CorruptThreshold = 2 }, wantErr: ErrInvalidConfig},
		{name: "agent", mutate: func(c *Config) { c.Agent.Name = "" }, wantErr: ErrInvalidConfig},
		{name: "agent id", mutate: func(c *Config) { c.Agent.ID = "not-a-uuid" }, wantErr: ErrInvalidConfig},
		{name: "storage path", mutate: func(c *Config) { c.Storage.Path = "" }, wantErr: ErrInvalidConfig},
		{name: "provider", mutate: func(c *Config) { c.Embedding.Provider = "bogus" }, wantErr: ErrInvalidConfig},
		{name: "text model with contextual knowledge", mutate: func(c *Config) {
			c.Text.ContextualKnowledge = true
			c.Text.Model = ""
		}, wantErr: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	t.Run("in-memory needs no path", func(t *testing.T) {
		cfg := Default()
		cfg.Storage.Path = ""
		cfg.Storage.InMemory = true
		assert.NoError(t, cfg.Validate())
	})

	t.Run("explicit agent id", func(t *testing.T) {
		cfg := Default()
		want := core.AgentID("someone")
		cfg.Agent.ID = want.String()
		require.NoError(t, cfg.Validate())
		got, err := cfg.AgentID()
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}
