package badger

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/storage"
)

// forEachPageSize is the number of fragments read per transaction by
// ForEachFragment.
const forEachPageSize = 256

// FragmentRepository implements storage.FragmentRepository for BadgerDB.
// Fragment records and embeddings are kept under separate keys so that
// similarity search only decodes full records for candidate hits.
type FragmentRepository struct {
	backend *Backend
}

var _ storage.FragmentRepository = (*FragmentRepository)(nil)

// NewFragmentRepository creates a new FragmentRepository.
func NewFragmentRepository(backend *Backend) *FragmentRepository {
	return &FragmentRepository{backend: backend}
}

// CreateFragments stores new fragments atomically.
func (r *FragmentRepository) CreateFragments(ctx context.Context, frags ...*core.Fragment) error {
	for _, frag := range frags {
		if err := core.ValidateFragment(frag); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, frag := range frags {
			key := makeFragmentKey(frag.ID)
			if _, err := tx.Get(key); err == nil {
				return storage.ErrDuplicateKey
			} else if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			if frag.CreatedAt.IsZero() {
				frag.CreatedAt = now
			}
			frag.UpdatedAt = frag.CreatedAt

			if err := writeFragment(tx, frag); err != nil {
				return err
			}
			indexKey := makeFragmentIndexKey(frag.DocumentID, frag.Position, frag.ID)
			if err := tx.Set(indexKey, storage.MarshalID(frag.ID)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// UpdateFragments replaces existing fragments.
func (r *FragmentRepository) UpdateFragments(ctx context.Context, frags ...*core.Fragment) error {
	for _, frag := range frags {
		if err := core.ValidateFragment(frag); err != nil {
			return err
		}
	}
	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, frag := range frags {
			old, err := readFragment(tx, frag.ID, false)
			if err != nil {
				return err
			}
			if old == nil {
				return storage.ErrNotFound
			}

			frag.CreatedAt = old.CreatedAt
			frag.UpdatedAt = time.Now().UTC()

			if err := writeFragment(tx, frag); err != nil {
				return err
			}

			// Keep the document index consistent if ownership or position moved
			if old.DocumentID != frag.DocumentID || old.Position != frag.Position {
				if err := tx.Delete(makeFragmentIndexKey(old.DocumentID, old.Position, old.ID)); err != nil {
					return err
				}
				indexKey := makeFragmentIndexKey(frag.DocumentID, frag.Position, frag.ID)
				if err := tx.Set(indexKey, storage.MarshalID(frag.ID)); err != nil {
					return err
				}
			}
		}
		return tx.Commit()
	}, true)
}

// GetFragment retrieves a single fragment by ID.
func (r *FragmentRepository) GetFragment(ctx context.Context, id core.ID) (*core.Fragment, error) {
	var result *core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = readFragment(tx, id, true)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// FragmentsByDocument returns a document's fragments ordered by position.
func (r *FragmentRepository) FragmentsByDocument(ctx context.Context, documentID core.ID) ([]*core.Fragment, error) {
	var results []*core.Fragment
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		ids, err := fragmentIDsForDocument(tx, documentID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			frag, err := readFragment(tx, id, true)
			if err != nil {
				return err
			}
			if frag != nil {
				results = append(results, frag)
			}
		}
		return nil
	}, false)
	return results, err
}

// CountByDocument returns the number of fragments stored for a document.
func (r *FragmentRepository) CountByDocument(ctx context.Context, documentID core.ID) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialFragmentIndexKey(documentID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// DeleteByDocument removes every fragment of a document.
func (r *FragmentRepository) DeleteByDocument(ctx context.Context, documentID core.ID) (int, error) {
	deleted := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = makePartialFragmentIndexKey(documentID)
		iter := tx.NewIterator(opts)

		var indexKeys [][]byte
		var ids []core.ID
		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().KeyCopy(nil)
			var id core.ID
			copy(id[:], key[len(key)-len(id):])
			indexKeys = append(indexKeys, key)
			ids = append(ids, id)
		}
		iter.Close()

		for i, id := range ids {
			for _, key := range [][]byte{indexKeys[i], makeFragmentKey(id), makeVectorKey(id)} {
				if err := tx.Delete(key); err != nil {
					return err
				}
			}
		}
		deleted = len(ids)
		return tx.Commit()
	}, true)
	return deleted, err
}

// ForEachFragment calls fn for every stored fragment, reading one page per
// transaction so fn may write to the repository.
func (r *FragmentRepository) ForEachFragment(ctx context.Context, fn func(*core.Fragment) error) error {
	var after []byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		page, last, err := r.readPage(after, forEachPageSize)
		if err != nil {
			return err
		}
		for _, frag := range page {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := fn(frag); err != nil {
				return err
			}
		}
		if len(page) < forEachPageSize {
			return nil
		}
		after = last
	}
}

// readPage reads up to limit fragments whose keys sort after the given key.
func (r *FragmentRepository) readPage(after []byte, limit int) ([]*core.Fragment, []byte, error) {
	var page []*core.Fragment
	var last []byte
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(fragmentPrefix)
		if after != nil {
			start = after
		}
		for iter.Seek(start); iter.Valid() && len(page) < limit; iter.Next() {
			key := iter.Item().Key()
			if after != nil && bytes.Equal(key, after) {
				continue
			}
			id, ok := idFromKey(fragmentPrefix, key)
			if !ok {
				continue
			}
			frag, err := readFragment(tx, id, true)
			if err != nil {
				return err
			}
			if frag == nil {
				continue
			}
			page = append(page, frag)
			last = iter.Item().KeyCopy(nil)
		}
		return nil
	}, false)
	return page, last, err
}

// SimilaritySearch finds fragments similar to the given vector.
// Vectors are assumed normalized, so the dot product is the cosine similarity.
func (r *FragmentRepository) SimilaritySearch(ctx context.Context, vector []float32, filter storage.Filter, limit int, threshold float32) ([]*core.SearchResult, error) {
	if limit <= 0 || len(vector) == 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.SearchResult
	skipped := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(fragmentVecPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := iter.Item()
			id, ok := idFromKey(fragmentVecPrefix, item.Key())
			if !ok {
				continue
			}

			var embedding []float32
			if err := item.Value(func(val []byte) error {
				var err error
				embedding, err = storage.UnmarshalVector(val)
				return err
			}); err != nil {
				return err
			}

			// Vectors from a different model are incomparable
			if len(embedding) != len(vector) {
				skipped++
				continue
			}

			similarity := core.DotProduct(vector, embedding)
			if similarity < threshold {
				continue
			}

			frag, err := readFragment(tx, id, false)
			if err != nil {
				return err
			}
			if frag == nil || !filter.Matches(frag.AgentID, frag.Scope) {
				continue
			}
			frag.Embedding = embedding
			results = append(results, &core.SearchResult{
				Fragment:   frag,
				Similarity: similarity,
			})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	if skipped > 0 {
		r.backend.logger.Debug("skipped fragments with mismatched dimension", "count", skipped, "dimension", len(vector))
	}

	// Sort by similarity descending, then document order for ties
	slices.SortStableFunc(results, func(a, b *core.SearchResult) int {
		if a.Similarity > b.Similarity {
			return -1
		}
		if a.Similarity < b.Similarity {
			return 1
		}
		if c := bytes.Compare(a.Fragment.DocumentID[:], b.Fragment.DocumentID[:]); c != 0 {
			return c
		}
		return a.Fragment.Position - b.Fragment.Position
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Helper functions

// readFragment reads a fragment, optionally with its embedding.
// Returns nil, nil if the fragment does not exist.
func readFragment(tx *badger.Txn, id core.ID, withEmbedding bool) (*core.Fragment, error) {
	item, err := tx.Get(makeFragmentKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var frag *core.Fragment
	if err := item.Value(func(val []byte) error {
		var unmarshalErr error
		frag, unmarshalErr = storage.UnmarshalFragment(val)
		return unmarshalErr
	}); err != nil {
		return nil, err
	}

	if !withEmbedding {
		return frag, nil
	}

	vecItem, err := tx.Get(makeVectorKey(id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return frag, nil
		}
		return nil, err
	}
	err = vecItem.Value(func(val []byte) error {
		var unmarshalErr error
		frag.Embedding, unmarshalErr = storage.UnmarshalVector(val)
		return unmarshalErr
	})
	return frag, err
}

// writeFragment stores the fragment record and its embedding.
func writeFragment(tx *badger.Txn, frag *core.Fragment) error {
	value, err := storage.MarshalFragment(frag)
	if err != nil {
		return err
	}
	if err := tx.Set(makeFragmentKey(frag.ID), value); err != nil {
		return err
	}
	return tx.Set(makeVectorKey(frag.ID), storage.MarshalVector(frag.Embedding))
}

// fragmentIDsForDocument reads a document's fragment IDs in position order.
func fragmentIDsForDocument(tx *badger.Txn, documentID core.ID) ([]core.ID, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = makePartialFragmentIndexKey(documentID)
	iter := tx.NewIterator(opts)
	defer iter.Close()

	var ids []core.ID
	for iter.Rewind(); iter.Valid(); iter.Next() {
		var id core.ID
		err := iter.Item().Value(func(val []byte) error {
			var err error
			id, err = storage.UnmarshalID(val)
			return err
		})
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
