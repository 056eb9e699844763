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

package chunk

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTargetTokens is the maximum number of tokens per chunk.
	DefaultTargetTokens = 1500
	// DefaultOverlapTokens is the number of tokens shared by consecutive chunks.
	DefaultOverlapTokens = 200
)

var (
	// ErrInvalidOverlap is returned when overlap is negative or not smaller than the target.
	ErrInvalidOverlap = errors.New("overlap must be non-negative and smaller than target tokens")

	// ErrInvalidTarget is returned for a target below one token.
	ErrInvalidTarget = errors.New("target tokens must be at least 1")

	// ErrTokenizerRequired is returned when no tokenizer is supplied.
	ErrTokenizerRequired = errors.New("tokenizer required")
)

// Splitter cuts text into windows of at most targetTokens tokens where each
// window starts overlapTokens before the previous one ended.
type Splitter struct {
	tokenizer     Tokenizer
	targetTokens  int
	overlapTokens int
}

// Option configures a Splitter.
type Option func(*Splitter) error

// WithTargetTokens sets the maximum chunk size in tokens.
func WithTargetTokens(n int) Option {
	return func(s *Splitter) error {
		if n < 1 {
			return ErrInvalidTarget
		}
		s.targetTokens = n
		return nil
	}
}

// WithOverlap sets how many tokens consecutive chunks share.
func WithOverlap(n int) Option {
	return func(s *Splitter) error {
		if n < 0 {
			return ErrInvalidOverlap
		}
		s.overlapTokens = n
		return nil
	}
}

// NewSplitter creates a Splitter. Overlap must be strictly smaller than the
// target; the combination is checked after all options are applied.
func NewSplitter(tokenizer Tokenizer, opts ...Option) (*Splitter, error) {
	if tokenizer == nil {
		return nil, ErrTokenizerRequired
	}
	s := &Splitter{
		tokenizer:     tokenizer,
		targetTokens:  DefaultTargetTokens,
		overlapTokens: DefaultOverlapTokens,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	if s.overlapTokens >= s.targetTokens {
		return nil, fmt.Errorf("%w: overlap %d, target %d", ErrInvalidOverlap, s.overlapTokens, s.targetTokens)
	}
	return s, nil
}

// TargetTokens returns the configured chunk size.
func (s *Splitter) TargetTokens() int { return s.targetTokens }

// OverlapTokens returns the configured overlap.
func (s *Splitter) OverlapTokens() int { return s.overlapTokens }

// Count returns the number of tokens in text.
func (s *Splitter) Count(text string) int {
	return len(s.tokenizer.Encode(text))
}

// Split returns the chunks of text in source order. Text that fits in one
// window is returned as a single chunk; blank text yields no chunks.
//
// Window edges never fall inside a multi-byte character. An edge that would
// is moved back to the start of that character, or forward when moving back
// would leave the window empty, so a window can exceed the target by the
// tokens of one character.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := s.tokenizer.Encode(text)
	if len(tokens) <= s.targetTokens {
		return []string{text}
	}

	edges := s.runeEdges(tokens)
	chunks := make([]string, 0, ExpectedChunks(len(tokens), s.targetTokens, s.overlapTokens))
	for start := 0; ; {
		end := snapEnd(edges, start, min(start+s.targetTokens, len(tokens)))
		chunks = append(chunks, s.tokenizer.Decode(tokens[start:end]))
		if end == len(tokens) {
			break
		}
		start = snapStart(edges, start, max(end-s.overlapTokens, start+1), end)
	}
	return chunks
}

// runeEdges reports for each token index whether a window may begin or end
// there: true unless the token at that index starts inside a character.
func (s *Splitter) runeEdges(tokens []int) []bool {
	edges := make([]bool, len(tokens)+1)
	edges[0], edges[len(tokens)] = true, true
	for i := 1; i < len(tokens); i++ {
		piece := s.tokenizer.Decode(tokens[i : i+1])
		edges[i] = piece == "" || utf8.RuneStart(piece[0])
	}
	return edges
}

// snapEnd moves end back to the nearest edge after start, or forward to the
// next edge if there is none.
func snapEnd(edges []bool, start, end int) int {
	for e := end; e > start; e-- {
		if edges[e] {
			return e
		}
	}
	for e := end + 1; e < len(edges); e++ {
		if edges[e] {
			return e
		}
	}
	return len(edges) - 1
}

// snapStart moves next back to the nearest edge after start, or forward to
// the next edge before end. It returns end when neither exists.
func snapStart(edges []bool, start, next, end int) int {
	for b := next; b > start; b-- {
		if edges[b] {
			return b
		}
	}
	for b := next + 1; b < end; b++ {
		if edges[b] {
			return b
		}
	}
	return end
}

// ExpectedChunks returns how many chunks Split produces for tokenCount tokens.
func ExpectedChunks(tokenCount, target, overlap int) int {
	if tokenCount == 0 {
		return 0
	}
	if tokenCount <= target {
		return 1
	}
	step := target - overlap
	// windows after the first each contribute step new tokens
	return 1 + (tokenCount-target+step-1)/step
}
