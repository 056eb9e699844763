package badger

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/poiesic/knowledge/storage"
)

// Sequence implements storage.Sequence on a persisted BadgerDB sequence.
// It never returns 0.
type Sequence struct {
	seq *badger.Sequence
}

var _ storage.Sequence = (*Sequence)(nil)

// NewSequence leases the named sequence from the backend.
func NewSequence(backend *Backend, name string) (*Sequence, error) {
	seq, err := backend.GetSequence(name)
	if err != nil {
		return nil, err
	}
	return &Sequence{seq: seq}, nil
}

// NewGenerationSequence leases the sequence used for fragment generations.
func NewGenerationSequence(backend *Backend) (*Sequence, error) {
	return NewSequence(backend, generationSeq)
}

// Next returns the next value.
func (s *Sequence) Next() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, err
	}
	// BadgerDB sequences can return 0 on first call, so we skip it
	if n == 0 {
		return s.seq.Next()
	}
	return n, nil
}

// Close returns unused leased values to the database.
func (s *Sequence) Close() error {
	return s.seq.Release()
}
