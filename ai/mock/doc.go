// Package mock provides test double implementations of AI service interfaces.
//
// The mocks allow tests to run without external AI services and give
// controlled, deterministic behavior.
//
//	mockEmbedder := mock.NewMockEmbedder(mock.WithDimension(8))
//	mockEmbedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return nil, errors.New("boom")
//	}
//	count := mockEmbedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns unit vectors derived from an FNV hash of the text
//   - MockContextualizer: returns the first sentence of the document
//   - MockProvider: aggregates the two
package mock
