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
	"hash"
	"strconv"

	"github.com/go-crypt/x/blake2b"
	"github.com/google/uuid"
)

// idVersion marks derived identifiers as custom (RFC 9562 version 8) UUIDs.
const idVersion = 8

func newHash() hash.Hash {
	h, _ := blake2b.New(32, nil) // only fails for invalid sizes or keys
	return h
}

// DocumentID derives a stable identifier from an agent and a content seed.
// Identical (agentID, seed) pairs always yield the same ID.
func DocumentID(agentID ID, seed string) ID {
	return uuid.NewHash(newHash(), agentID, []byte(seed), idVersion)
}

// FragmentID derives the identifier of the fragment at position within
// documentID. generation must differ between ingestion runs of the same
// document so that re-ingestion never reuses fragment IDs.
func FragmentID(agentID, documentID ID, position int, generation uint64) ID {
	seed := documentID.String() + "-fragment-" + strconv.Itoa(position) + "-" + strconv.FormatUint(generation, 10)
	return uuid.NewHash(newHash(), agentID, []byte(seed), idVersion)
}

// AgentID derives an agent identifier from its name.
func AgentID(name string) ID {
	return uuid.NewHash(newHash(), uuid.NameSpaceURL, []byte("agent:"+name), idVersion)
}

// ParseID parses a textual UUID.
func ParseID(s string) (ID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return NilID, ErrInvalidID
	}
	return id, nil
}
