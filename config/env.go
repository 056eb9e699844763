package config

import (
	"fmt"
	"strconv"
	"strings"
)

// LookupFunc reads one environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from environment variables. Unset variables
// leave the field alone; a variable that cannot be parsed is an error.
// EMBEDDING_PROVIDER resets host, model and dimension to the provider's
// defaults before the other overrides apply.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	e := envReader{lookup: lookup}

	if v, ok := e.str("EMBEDDING_PROVIDER"); ok {
		c.setProvider(v)
	}
	e.setStr("EMBEDDING_HOST", &c.Embedding.Host)
	e.setStr("TEXT_EMBEDDING_MODEL", &c.Embedding.Model)
	e.setStr("EMBEDDING_API_KEY", &c.Embedding.APIKey)
	e.setInt("EMBEDDING_DIMENSION", &c.Embedding.Dimension)
	e.setInt("MAX_CONCURRENT_REQUESTS", &c.Embedding.MaxConcurrentRequests)
	e.setInt("REQUESTS_PER_MINUTE", &c.Embedding.RequestsPerMinute)
	e.setInt("TOKENS_PER_MINUTE", &c.Embedding.TokensPerMinute)

	e.setBool("CTX_KNOWLEDGE_ENABLED", &c.Text.ContextualKnowledge)
	e.setStr("TEXT_MODEL", &c.Text.Model)
	e.setStr("TEXT_HOST", &c.Text.Host)
	e.setStr("TEXT_API_KEY", &c.Text.APIKey)
	e.setInt("MAX_INPUT_TOKENS", &c.Text.MaxInputTokens)

	e.setStr("KNOWLEDGE_PATH", &c.Loader.Path)
	e.setBool("LOAD_DOCS_ON_STARTUP", &c.Loader.LoadOnStartup)

	return e.err
}

// envReader remembers the first parse failure.
type envReader struct {
	lookup LookupFunc
	err    error
}

func (e *envReader) str(key string) (string, bool) {
	v, ok := e.lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

func (e *envReader) setStr(key string, dst *string) {
	if v, ok := e.str(key); ok {
		*dst = v
	}
}

func (e *envReader) setInt(key string, dst *int) {
	v, ok := e.str(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		if e.err == nil {
			e.err = fmt.Errorf("%w: %s=%q: %w", ErrInvalidEnv, key, v, err)
		}
		return
	}
	*dst = n
}

// setBool treats only "true" (any case) as true.
func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.str(key); ok {
		*dst = strings.EqualFold(v, "true")
	}
}
