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

// Package ai provides abstractions for the model services used by the
// knowledge pipeline.
//
// Two capabilities are modelled:
//
//   - Embedder: turns text into fixed-width vectors
//   - Contextualizer: writes a passage situating a chunk in its document
//
// Provider bundles both with a shared lifecycle.
//
// # Implementation Packages
//
//   - ai/openai: OpenAI-compatible HTTP implementation (OpenAI, Ollama, Akash, local servers)
//   - ai/resilient: retry, rate limiting and fallback decorators for any Embedder
//   - ai/mock: deterministic test doubles
//
// Public constructors return interfaces. Mock constructors return concrete
// types so tests can inject behavior and read call counts.
//
//	cfg := ai.NewConfig(ai.WithEmbeddingProvider(ai.ProviderOpenAI), ai.WithAPIKey(key))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "Hello world")
package ai
