package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/knowledge/core"
)

func TestMarshalUnmarshalID(t *testing.T) {
	tests := []struct {
		name string
		id   core.ID
	}{
		{"nil ID", core.NilID},
		{"agent ID", core.AgentID("eliza")},
		{"document ID", core.DocumentID(core.AgentID("eliza"), "doc-1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := MarshalID(tt.id)
			require.Len(t, data, 16)

			decoded, err := UnmarshalID(data)
			require.NoError(t, err)
			assert.Equal(t, tt.id, decoded)
		})
	}
}

func TestUnmarshalID_Invalid(t *testing.T) {
	for _, data := range [][]byte{{}, make([]byte, 15), make([]byte, 17)} {
		_, err := UnmarshalID(data)
		assert.ErrorIs(t, err, ErrTruncatedData)
	}
}

func TestMarshalFragment_OmitsEmbedding(t *testing.T) {
	agent := core.AgentID("eliza")
	doc := core.DocumentID(agent, "doc")
	frag := &core.Fragment{
		ID:         core.FragmentID(agent, doc, 0, 1),
		AgentID:    agent,
		DocumentID: doc,
		Content:    "hello",
		Context:    "greeting",
		Embedding:  []float32{1, 2, 3},
		Metadata:   core.Metadata{Kind: core.KindFragment, DocumentID: doc, Extra: map[string]string{"k": "v"}},
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	data, err := MarshalFragment(frag)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "embedding")
	assert.Equal(t, []float32{1, 2, 3}, frag.Embedding, "input must not be modified")

	decoded, err := UnmarshalFragment(data)
	require.NoError(t, err)
	assert.Nil(t, decoded.Embedding)
	assert.Equal(t, frag.Content, decoded.Content)
	assert.Equal(t, frag.Context, decoded.Context)
	assert.Equal(t, frag.Metadata, decoded.Metadata)
	assert.True(t, frag.CreatedAt.Equal(decoded.CreatedAt))
}

func TestMarshalDocument_RoundTrip(t *testing.T) {
	agent := core.AgentID("eliza")
	now := time.Now().UTC().Truncate(time.Microsecond)
	doc := &core.Document{
		ID:      core.DocumentID(agent, "doc"),
		AgentID: agent,
		Scope:   core.Scope{RoomID: core.AgentID("room")}.WithDefaults(agent),
		Content: "JVBERi0xLjQK",
		Metadata: core.Metadata{
			Kind:        core.KindDocument,
			Source:      "upload",
			Filename:    "guide.pdf",
			ContentType: "application/pdf",
			FileSize:    1 << 20,
			Title:       "guide",
			FileExt:     "pdf",
			Timestamp:   now,
			Extra:       map[string]string{"b": "2", "a": "1"},
		},
		CreatedAt: now,
		UpdatedAt: now.Add(time.Second),
	}

	data, err := MarshalDocument(doc)
	require.NoError(t, err)

	decoded, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.Equal(t, doc, decoded)

	again, err := MarshalDocument(decoded)
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding must be deterministic")
}

func TestMarshalDocument_ZeroTimes(t *testing.T) {
	data, err := MarshalDocument(&core.Document{Content: "plain"})
	require.NoError(t, err)

	decoded, err := UnmarshalDocument(data)
	require.NoError(t, err)
	assert.True(t, decoded.CreatedAt.IsZero())
	assert.True(t, decoded.Metadata.Timestamp.IsZero())
	assert.Nil(t, decoded.Metadata.Extra)
}

func TestMarshalFragment_KeepsRawBytes(t *testing.T) {
	// A chunk boundary inside a multi-byte rune must survive storage unchanged
	frag := &core.Fragment{Content: "\x9f\x9a\x80 \u30cd\u30c3", Context: "\xe3\x83"}

	data, err := MarshalFragment(frag)
	require.NoError(t, err)

	decoded, err := UnmarshalFragment(data)
	require.NoError(t, err)
	assert.Equal(t, frag.Content, decoded.Content)
	assert.Equal(t, frag.Context, decoded.Context)
}

func TestUnmarshal_Corrupt(t *testing.T) {
	_, err := UnmarshalDocument([]byte("{not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalFragment([]byte("[]"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	doc, err := MarshalDocument(&core.Document{Content: "truncated"})
	require.NoError(t, err)
	_, err = UnmarshalDocument(doc[:len(doc)-3])
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMarshalVector(t *testing.T) {
	vec := []float32{0.5, -0.25, 0, 1e-7}
	decoded, err := UnmarshalVector(MarshalVector(vec))
	require.NoError(t, err)
	assert.Equal(t, vec, decoded)

	empty, err := UnmarshalVector(MarshalVector(nil))
	require.NoError(t, err)
	assert.Empty(t, empty)

	data := MarshalVector(vec)
	_, err = UnmarshalVector(data[:len(data)-1])
	assert.ErrorIs(t, err, ErrSerializationFailed)

	// A length prefix larger than the payload is rejected before allocating
	_, err = UnmarshalVector([]byte{0xfe, 0xff, 0xff, 0x7f})
	assert.ErrorIs(t, err, ErrSerializationFailed)
	assert.ErrorIs(t, err, core.ErrMalformedRecord)
}

func TestFilterMatches(t *testing.T) {
	agent := core.AgentID("eliza")
	other := core.AgentID("other")
	room := core.AgentID("room-1")
	scope := core.Scope{}.WithDefaults(agent)
	scoped := core.Scope{RoomID: room}.WithDefaults(agent)

	assert.True(t, Filter{}.Matches(agent, scope))
	assert.True(t, Filter{AgentID: agent}.Matches(agent, scope))
	assert.False(t, Filter{AgentID: other}.Matches(agent, scope))
	assert.True(t, Filter{Scope: core.Scope{RoomID: room}}.Matches(agent, scoped))
	assert.False(t, Filter{Scope: core.Scope{RoomID: room}}.Matches(agent, scope))
}
