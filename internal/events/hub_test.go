package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FiltersByScope(t *testing.T) {
	h := NewHub(4)
	_, alice := h.Subscribe("character:alice")
	_, all := h.Subscribe()

	h.Publish(MapUpdate{Scope: "character:bob", SectorID: 1})
	h.Publish(MapUpdate{Scope: "character:alice", SectorID: 2})

	require.Len(t, alice, 1)
	assert.Equal(t, 2, (<-alice).SectorID)
	assert.Len(t, all, 2)
}

func TestHub_PublishDoesNotBlock(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Subscribe()
	for i := 0; i < 10; i++ {
		h.Publish(MapUpdate{SectorID: i})
	}
	require.Len(t, ch, 1)
	assert.Equal(t, 0, (<-ch).SectorID)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(1)
	id, ch := h.Subscribe()
	require.Equal(t, 1, h.Len())
	h.Unsubscribe(id)
	h.Unsubscribe(id)
	assert.Equal(t, 0, h.Len())
	_, open := <-ch
	assert.False(t, open)
}

func TestMulti_SkipsNil(t *testing.T) {
	h := NewHub(1)
	_, ch := h.Subscribe()
	Multi{nil, h}.Publish(MapUpdate{SectorID: 7})
	assert.Len(t, ch, 1)
}
