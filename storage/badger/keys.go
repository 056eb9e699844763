package badger

import (
	"encoding/binary"

	"github.com/poiesic/knowledge/core"
)

// Key prefixes for different data types
const (
	documentPrefix      = "docrec:"
	fragmentPrefix      = "fragrec:"
	fragmentVecPrefix   = "fragvec:"
	fragmentIndexPrefix = "fragdoc:"
	generationSeq       = "fraggen:seq"
)

func makeKey(prefix string, id core.ID) []byte {
	buf := make([]byte, len(prefix)+len(id))
	offset := copy(buf, prefix)
	copy(buf[offset:], id[:])
	return buf
}

// makeDocumentKey generates a key for a document by ID.
func makeDocumentKey(id core.ID) []byte {
	return makeKey(documentPrefix, id)
}

// makeFragmentKey generates a key for a fragment record by ID.
func makeFragmentKey(id core.ID) []byte {
	return makeKey(fragmentPrefix, id)
}

// makeVectorKey generates a key for a fragment embedding by fragment ID.
func makeVectorKey(id core.ID) []byte {
	return makeKey(fragmentVecPrefix, id)
}

// makeFragmentIndexKey generates a composite key for the document index.
// Format: prefix:documentID:position:fragmentID
func makeFragmentIndexKey(documentID core.ID, position int, fragmentID core.ID) []byte {
	buf := make([]byte, len(fragmentIndexPrefix)+16+4+16)
	offset := copy(buf, fragmentIndexPrefix)
	offset += copy(buf[offset:], documentID[:])
	// BigEndian so lexicographic order is position order
	binary.BigEndian.PutUint32(buf[offset:], uint32(position))
	offset += 4
	copy(buf[offset:], fragmentID[:])
	return buf
}

// makePartialFragmentIndexKey generates the index prefix of one document.
func makePartialFragmentIndexKey(documentID core.ID) []byte {
	return makeKey(fragmentIndexPrefix, documentID)
}

// idFromKey extracts the trailing ID of a record key.
func idFromKey(prefix string, key []byte) (core.ID, bool) {
	var id core.ID
	if len(key) != len(prefix)+len(id) {
		return id, false
	}
	copy(id[:], key[len(prefix):])
	return id, true
}
