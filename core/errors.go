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
	"errors"
	"fmt"
)

var (
	// ErrInvalidEncoding indicates base64 decoding failed for content expected to be binary.
	ErrInvalidEncoding = errors.New("invalid encoding")

	// ErrCorruptContent indicates decoded text contained too many replacement characters.
	ErrCorruptContent = errors.New("corrupt content")

	// ErrEmptyContent indicates no text could be extracted.
	ErrEmptyContent = errors.New("no extractable text")

	// ErrFragmentProcessing indicates a single fragment failed to embed or persist.
	ErrFragmentProcessing = errors.New("fragment processing failed")

	// ErrUnsupportedContentType indicates a binary format with no text extractor.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrInvalidID indicates an identifier could not be parsed.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidFragment indicates a Fragment failed validation.
	ErrInvalidFragment = errors.New("invalid fragment")

	// ErrMissingEmbedding indicates a fragment has no embedding vector.
	ErrMissingEmbedding = errors.New("missing embedding")

	// ErrDimensionMismatch indicates an embedding of unexpected length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrMalformedRecord indicates an encoded record with an impossible length.
	ErrMalformedRecord = errors.New("malformed record")
)

// FragmentError records the failure of one fragment of a document.
type FragmentError struct {
	DocumentID ID
	FragmentID ID
	Position   int
	Err        error
}

func (e *FragmentError) Error() string {
	return fmt.Sprintf("%s: document %s position %d: %v", ErrFragmentProcessing, e.DocumentID, e.Position, e.Err)
}

// Unwrap exposes both ErrFragmentProcessing and the underlying cause.
func (e *FragmentError) Unwrap() []error {
	return []error{ErrFragmentProcessing, e.Err}
}
