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
	"time"

	"github.com/google/uuid"
)

// ID identifies agents, scopes, documents and fragments.
type ID = uuid.UUID

// NilID is the zero ID.
var NilID = uuid.Nil

// MemoryKind distinguishes document records from fragment records.
type MemoryKind string

const (
	KindDocument MemoryKind = "document"
	KindFragment MemoryKind = "fragment"
)

// Scope restricts visibility of documents and fragments.
// A zero field means "unscoped" when used as a query filter.
type Scope struct {
	RoomID   ID `json:"roomId"`
	WorldID  ID `json:"worldId"`
	EntityID ID `json:"entityId"`
}

// WithDefaults returns a copy of s with every unset field replaced by agentID.
func (s Scope) WithDefaults(agentID ID) Scope {
	if s.RoomID == NilID {
		s.RoomID = agentID
	}
	if s.WorldID == NilID {
		s.WorldID = agentID
	}
	if s.EntityID == NilID {
		s.EntityID = agentID
	}
	return s
}

// Matches reports whether other satisfies every field set in s.
func (s Scope) Matches(other Scope) bool {
	if s.RoomID != NilID && s.RoomID != other.RoomID {
		return false
	}
	if s.WorldID != NilID && s.WorldID != other.WorldID {
		return false
	}
	if s.EntityID != NilID && s.EntityID != other.EntityID {
		return false
	}
	return true
}

// Metadata describes where a document came from. Fragments carry a copy of
// their parent's metadata with the fragment-specific fields overridden.
type Metadata struct {
	Kind        MemoryKind        `json:"type"`
	Source      string            `json:"source,omitempty"`
	Filename    string            `json:"originalFilename,omitempty"`
	ContentType string            `json:"contentType,omitempty"`
	FileSize    int64             `json:"fileSize,omitempty"`
	Path        string            `json:"path,omitempty"`
	Title       string            `json:"title,omitempty"`
	FileExt     string            `json:"fileExt,omitempty"`
	FileType    string            `json:"fileType,omitempty"`
	DocumentID  ID                `json:"documentId"`
	Position    int               `json:"position"`
	Timestamp   time.Time         `json:"timestamp"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Clone returns a deep copy of m.
func (m Metadata) Clone() Metadata {
	if m.Extra != nil {
		extra := make(map[string]string, len(m.Extra))
		for k, v := range m.Extra {
			extra[k] = v
		}
		m.Extra = extra
	}
	return m
}

// Document is a top-level knowledge unit. Content holds the stored payload:
// base64 for PDFs, extracted or plain text otherwise.
type Document struct {
	ID        ID        `json:"id"`
	AgentID   ID        `json:"agentId"`
	Scope     Scope     `json:"scope"`
	Content   string    `json:"content"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Fragment is a token-bounded chunk of a document's extracted text.
type Fragment struct {
	ID         ID     `json:"id"`
	AgentID    ID     `json:"agentId"`
	DocumentID ID     `json:"documentId"`
	Position   int    `json:"position"`
	Scope      Scope  `json:"scope"`
	Content    string `json:"content"`
	// Context is an optional generated passage situating Content within its
	// document. When present it was prepended to Content for embedding.
	Context   string    `json:"context,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Metadata  Metadata  `json:"metadata"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmbeddingText returns the text that is sent to the embedder.
func (f *Fragment) EmbeddingText() string {
	if f.Context == "" {
		return f.Content
	}
	return f.Context + "\n\n" + f.Content
}

// SearchResult is a fragment matched by similarity search.
type SearchResult struct {
	Fragment   *Fragment
	Similarity float32
	// MatchedTerms lists the filtered query words found verbatim in the fragment.
	MatchedTerms []string
}
