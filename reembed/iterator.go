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

package reembed

import (
	"context"

	"github.com/poiesic/knowledge/core"
	"github.com/poiesic/knowledge/storage"
)

const (
	// DefaultBatchSize is the default number of fragments in each batch
	DefaultBatchSize = 100
)

// FragmentIterator iterates over all stored fragments in batches.
type FragmentIterator struct {
	repo      storage.FragmentRepository
	batchSize int
}

// NewFragmentIterator creates a new fragment iterator.
// batchSize: number of fragments in each batch (defaults when <= 0)
func NewFragmentIterator(repo storage.FragmentRepository, batchSize int) *FragmentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &FragmentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// Count returns the number of stored fragments.
func (it *FragmentIterator) Count(ctx context.Context) (int, error) {
	count := 0
	err := it.repo.ForEachFragment(ctx, func(*core.Fragment) error {
		count++
		return nil
	})
	return count, err
}

// ForEach calls fn for each batch of fragments.
// Iteration stops on the first error from fn or when every fragment has been
// visited. fn may update the fragments it receives.
func (it *FragmentIterator) ForEach(ctx context.Context, fn func([]*core.Fragment) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := make([]*core.Fragment, 0, it.batchSize)
	err := it.repo.ForEachFragment(ctx, func(frag *core.Fragment) error {
		batch = append(batch, frag)
		if len(batch) < it.batchSize {
			return nil
		}
		err := fn(batch)
		batch = make([]*core.Fragment, 0, it.batchSize)
		return err
	})
	if err != nil {
		return err
	}

	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}
