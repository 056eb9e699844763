package mock

import (
	"context"
	"strings"
	"sync/atomic"
)

// MockContextualizer is a test double for ai.Contextualizer.
type MockContextualizer struct {
	// ContextualizeFunc is called by Contextualize if set.
	// If nil, returns the first sentence of the document.
	ContextualizeFunc func(ctx context.Context, document, chunk string) (string, error)

	callCount atomic.Int64
}

// NewMockContextualizer creates a mock contextualizer with default behavior.
func NewMockContextualizer() *MockContextualizer {
	return &MockContextualizer{}
}

// Contextualize returns a deterministic context for chunk.
func (m *MockContextualizer) Contextualize(ctx context.Context, document, chunk string) (string, error) {
	m.callCount.Add(1)

	if m.ContextualizeFunc != nil {
		return m.ContextualizeFunc(ctx, document, chunk)
	}

	doc := strings.TrimSpace(document)
	if i := strings.IndexAny(doc, ".!?\n"); i >= 0 {
		doc = doc[:i]
	}
	return strings.TrimSpace(doc), nil
}

// CallCount returns the number of times Contextualize was called.
func (m *MockContextualizer) CallCount() int {
	return int(m.callCount.Load())
}

// Reset clears the call count and custom function.
func (m *MockContextualizer) Reset() {
	m.callCount.Store(0)
	m.ContextualizeFunc = nil
}
