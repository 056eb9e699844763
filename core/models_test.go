package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope_WithDefaults(t *testing.T) {
	agent := AgentID("eliza")
	room := AgentID("room")

	s := Scope{RoomID: room}.WithDefaults(agent)
	assert.Equal(t, room, s.RoomID)
	assert.Equal(t, agent, s.WorldID)
	assert.Equal(t, agent, s.EntityID)
}

func TestScope_Matches(t *testing.T) {
	roomA := AgentID("room-a")
	roomB := AgentID("room-b")
	world := AgentID("world")
	stored := Scope{RoomID: roomA, WorldID: world, EntityID: world}

	tests := []struct {
		name   string
		filter Scope
		want   bool
	}{
		{name: "empty filter matches", filter: Scope{}, want: true},
		{name: "same room", filter: Scope{RoomID: roomA}, want: true},
		{name: "other room", filter: Scope{RoomID: roomB}, want: false},
		{name: "room and world", filter: Scope{RoomID: roomA, WorldID: world}, want: true},
		{name: "entity mismatch", filter: Scope{EntityID: roomB}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(stored))
		})
	}
}

func TestMetadata_Clone(t *testing.T) {
	m := Metadata{Kind: KindDocument, Extra: map[string]string{"k": "v"}}
	c := m.Clone()
	c.Extra["k"] = "changed"
	assert.Equal(t, "v", m.Extra["k"])
}

func TestFragment_EmbeddingText(t *testing.T) {
	f := &Fragment{Content: "chunk"}
	assert.Equal(t, "chunk", f.EmbeddingText())

	f.Context = "about cats"
	assert.Equal(t, "about cats\n\nchunk", f.EmbeddingText())
}

func TestFragmentError(t *testing.T) {
	cause := errors.New("embedding service down")
	err := error(&FragmentError{DocumentID: AgentID("d"), Position: 3, Err: cause})

	assert.ErrorIs(t, err, ErrFragmentProcessing)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "position 3")

	var fe *FragmentError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, 3, fe.Position)
}
