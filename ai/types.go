package ai

// EmbeddingProvider names a family of embedding backends. All of them are
// reached over an OpenAI-compatible API; the provider only selects defaults.
type EmbeddingProvider string

const (
	ProviderOpenAI EmbeddingProvider = "openai"
	ProviderOllama EmbeddingProvider = "ollama"
	ProviderAkash  EmbeddingProvider = "akash"
	ProviderLocal  EmbeddingProvider = "local"
)

// DefaultDimension returns the embedding width produced by the provider's
// default model.
func (p EmbeddingProvider) DefaultDimension() int {
	switch p {
	case ProviderOpenAI:
		return 1536
	case ProviderAkash:
		return 1024
	default:
		return 768
	}
}

// DefaultModel returns the provider's default embedding model.
func (p EmbeddingProvider) DefaultModel() string {
	switch p {
	case ProviderOpenAI:
		return "text-embedding-3-small"
	case ProviderAkash:
		return "BAAI-bge-large-en-v1-5"
	default:
		return "embeddinggemma"
	}
}

// DefaultHost returns the provider's default API base URL.
func (p EmbeddingProvider) DefaultHost() string {
	switch p {
	case ProviderOpenAI:
		return "https://api.openai.com/v1"
	case ProviderAkash:
		return "https://chatapi.akash.network/api/v1"
	default:
		return "http://localhost:11434/v1"
	}
}

// Valid reports whether p is a known provider.
func (p EmbeddingProvider) Valid() bool {
	switch p {
	case ProviderOpenAI, ProviderOllama, ProviderAkash, ProviderLocal:
		return true
	}
	return false
}
