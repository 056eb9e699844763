package storage

import (
	"context"

	"github.com/poiesic/knowledge/core"
)

// Filter restricts list and search operations. Zero fields match anything.
type Filter struct {
	AgentID core.ID
	Scope   core.Scope
}

// Matches reports whether a record owned by agentID with the given scope
// satisfies the filter.
func (f Filter) Matches(agentID core.ID, scope core.Scope) bool {
	if f.AgentID != core.NilID && f.AgentID != agentID {
		return false
	}
	return f.Scope.Matches(scope)
}

// DocumentRepository provides operations for managing document records.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// CreateDocument stores a new document.
	// Sets CreatedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if a document with the same ID exists.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// UpdateDocument replaces an existing document, preserving CreatedAt.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument retrieves a single document by ID.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id core.ID) (*core.Document, error)

	// ListDocuments returns the documents matching filter, newest first.
	ListDocuments(ctx context.Context, filter Filter) ([]*core.Document, error)

	// DeleteDocument removes a document record. Fragments are not touched.
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id core.ID) error
}

// FragmentRepository provides operations for managing fragments and their
// embeddings.
// Implementations must be thread-safe and support concurrent access.
type FragmentRepository interface {
	// CreateFragments stores new fragments atomically.
	// Returns ErrDuplicateKey if any fragment ID already exists.
	CreateFragments(ctx context.Context, frags ...*core.Fragment) error

	// UpdateFragments replaces existing fragments, preserving CreatedAt.
	// Returns ErrNotFound if any fragment doesn't exist.
	UpdateFragments(ctx context.Context, frags ...*core.Fragment) error

	// GetFragment retrieves a single fragment by ID, including its embedding.
	// Returns ErrNotFound if the fragment doesn't exist.
	GetFragment(ctx context.Context, id core.ID) (*core.Fragment, error)

	// FragmentsByDocument returns a document's fragments ordered by position.
	FragmentsByDocument(ctx context.Context, documentID core.ID) ([]*core.Fragment, error)

	// CountByDocument returns the number of fragments stored for a document.
	CountByDocument(ctx context.Context, documentID core.ID) (int, error)

	// DeleteByDocument removes every fragment of a document and returns how
	// many were removed.
	DeleteByDocument(ctx context.Context, documentID core.ID) (int, error)

	// ForEachFragment calls fn for every stored fragment. Iteration stops at
	// the first error, which is returned. fn may modify the repository.
	ForEachFragment(ctx context.Context, fn func(*core.Fragment) error) error

	// SimilaritySearch finds fragments whose embedding scores at least
	// threshold against vector, restricted by filter.
	// Results are ordered by similarity (highest first), up to limit.
	SimilaritySearch(ctx context.Context, vector []float32, filter Filter, limit int, threshold float32) ([]*core.SearchResult, error)
}

// Sequence hands out monotonically increasing, persistent numbers.
type Sequence interface {
	Next() (uint64, error)
}
