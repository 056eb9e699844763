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

package core

import (
	"fmt"
	"strings"
)

func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}
	if doc.ID == NilID {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrInvalidID)
	}
	if doc.AgentID == NilID {
		return fmt.Errorf("%w: agent id is required", ErrInvalidDocument)
	}
	if strings.TrimSpace(doc.Content) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyContent)
	}
	if doc.Metadata.Kind != KindDocument {
		return fmt.Errorf("%w: kind %q", ErrInvalidDocument, doc.Metadata.Kind)
	}
	return nil
}

func ValidateFragment(frag *Fragment) error {
	if frag == nil {
		return fmt.Errorf("%w: fragment is nil", ErrInvalidFragment)
	}
	if frag.ID == NilID {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrInvalidID)
	}
	if frag.DocumentID == NilID {
		return fmt.Errorf("%w: document id is required", ErrInvalidFragment)
	}
	if frag.Position < 0 {
		return fmt.Errorf("%w: negative position %d", ErrInvalidFragment, frag.Position)
	}
	if frag.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrEmptyContent)
	}
	if len(frag.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidFragment, ErrMissingEmbedding)
	}
	if frag.Metadata.Kind != KindFragment {
		return fmt.Errorf("%w: kind %q", ErrInvalidFragment, frag.Metadata.Kind)
	}
	return nil
}

// ValidateDimension checks vec against an expected dimension. A non-positive
// expected dimension accepts any non-empty vector.
func ValidateDimension(vec []float32, expected int) error {
	if len(vec) == 0 {
		return ErrMissingEmbedding
	}
	if expected > 0 && len(vec) != expected {
		return fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, expected, len(vec))
	}
	return nil
}
