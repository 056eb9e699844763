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

package mock

import "github.com/poiesic/knowledge/ai"

// MockProvider is a test double for ai.Provider.
type MockProvider struct {
	embedder       *MockEmbedder
	contextualizer *MockContextualizer
	closed         bool
}

// NewMockProvider creates a new mock provider with default mock services.
// Contextual enrichment is enabled.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:       NewMockEmbedder(),
		contextualizer: NewMockContextualizer(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// A nil contextualizer disables contextual enrichment.
func NewMockProviderWithServices(embedder *MockEmbedder, contextualizer *MockContextualizer) *MockProvider {
	return &MockProvider{
		embedder:       embedder,
		contextualizer: contextualizer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Contextualizer returns the mock contextualizer, or nil if none was configured.
func (p *MockProvider) Contextualizer() ai.Contextualizer {
	if p.contextualizer == nil {
		return nil
	}
	return p.contextualizer
}

// Close marks the provider closed.
func (p *MockProvider) Close() error {
	p.closed = true
	return nil
}

// Closed reports whether Close was called.
func (p *MockProvider) Closed() bool {
	return p.closed
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockContextualizer returns the underlying mock contextualizer.
func (p *MockProvider) GetMockContextualizer() *MockContextualizer {
	return p.contextualizer
}
