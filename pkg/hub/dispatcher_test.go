package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_SendToAllExcept(t *testing.T) {
	d := NewDispatcher()
	a := &recordingPeer{id: "a"}
	b := &recordingPeer{id: "b"}
	c := &recordingPeer{id: "c", refuse: true}
	d.Add(a)
	d.Add(b)
	d.Add(c)

	msg := []byte(`{"type":"undo"}`)
	assert.Equal(t, 1, d.SendToAllExcept("a", msg))
	assert.Empty(t, a.take())
	assert.Len(t, b.take(), 1)

	assert.Equal(t, 2, d.SendToAll(msg))
	assert.Equal(t, 1, d.SendTo("b", msg))
	assert.Equal(t, 0, d.SendTo("gone", msg))

	_, ok := d.Remove("b")
	assert.True(t, ok)
	_, ok = d.Remove("b")
	assert.False(t, ok)
	assert.Equal(t, 1, d.SendToAllExcept("", msg))
	assert.Equal(t, 2, d.Len())
}
