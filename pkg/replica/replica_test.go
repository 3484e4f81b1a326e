package replica

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/sketchboard/pkg/protocol"
)

func apply(t *testing.T, r *Replica, typ protocol.EventType, data interface{}) {
	t.Helper()
	env, err := protocol.NewEnvelope(typ, data)
	require.NoError(t, err)
	require.NoError(t, r.Apply(env))
}

func stroke(id, owner string) protocol.Stroke {
	return protocol.Stroke{ID: id, OwnerID: owner, Tool: protocol.ToolBrush, Color: "#000000", Width: 2, Points: []protocol.Point{{X: 1, Y: 1}}}
}

func TestApply_snapshots_replace_wholesale(t *testing.T) {
	r := New()
	apply(t, r, protocol.EventIdentityAssigned, protocol.Identity{ID: "me", Color: "#e6194b"})
	apply(t, r, protocol.EventStrokeSnapshot, []protocol.Stroke{stroke("1", "me"), stroke("2", "other")})
	assert.True(t, r.CanUndo())

	apply(t, r, protocol.EventStrokeSnapshot, []protocol.Stroke{stroke("2", "other")})
	assert.Equal(t, []protocol.Stroke{stroke("2", "other")}, r.Strokes())
	assert.False(t, r.CanUndo())
	assert.Equal(t, 2, r.Snapshots())
	assert.Equal(t, protocol.Identity{ID: "me", Color: "#e6194b"}, r.Identity())

	apply(t, r, protocol.EventStrokeSnapshot, []protocol.Stroke{})
	assert.Empty(t, r.Strokes())
}

func TestApply_transient_state(t *testing.T) {
	r := New()
	apply(t, r, protocol.EventIdentityAssigned, protocol.Identity{ID: "me", Color: "#e6194b"})
	apply(t, r, protocol.EventPresenceSnapshot, []protocol.PresenceEntry{{ID: "me", Color: "#e6194b"}, {ID: "b", Color: "#3cb44b"}})

	apply(t, r, protocol.EventCursorUpdate, protocol.CursorUpdate{ConnectionID: "b", X: 1, Y: 2, Color: "#3cb44b"})
	apply(t, r, protocol.EventCursorUpdate, protocol.CursorUpdate{ConnectionID: "b", X: 5, Y: 6, Color: "#3cb44b"})
	// our own echo never shows up as a remote cursor
	apply(t, r, protocol.EventCursorUpdate, protocol.CursorUpdate{ConnectionID: "me", X: 0, Y: 0})

	draft := protocol.Draft{Tool: protocol.ToolBrush, Color: "#ff0000", Width: 4, Points: []protocol.Point{{X: 1, Y: 1}}}
	apply(t, r, protocol.EventPreviewUpdate, protocol.PreviewUpdate{OwnerID: "b", Stroke: draft})

	sc := r.Scene()
	assert.Equal(t, []protocol.CursorUpdate{{ConnectionID: "b", X: 5, Y: 6, Color: "#3cb44b"}}, sc.Cursors)
	assert.Equal(t, []protocol.PreviewUpdate{{OwnerID: "b", Stroke: draft}}, sc.Previews)

	apply(t, r, protocol.EventPreviewEnded, protocol.PreviewEnded{OwnerID: "b"})
	apply(t, r, protocol.EventCursorRemoved, protocol.CursorRemoved{ConnectionID: "b"})
	sc = r.Scene()
	assert.Empty(t, sc.Cursors)
	assert.Empty(t, sc.Previews)
}

func TestApply_presence_prunes_departed_owners(t *testing.T) {
	r := New()
	apply(t, r, protocol.EventPresenceSnapshot, []protocol.PresenceEntry{{ID: "a"}, {ID: "b"}})
	apply(t, r, protocol.EventCursorUpdate, protocol.CursorUpdate{ConnectionID: "a", X: 1})
	apply(t, r, protocol.EventCursorUpdate, protocol.CursorUpdate{ConnectionID: "b", X: 2})
	apply(t, r, protocol.EventPreviewUpdate, protocol.PreviewUpdate{OwnerID: "a", Stroke: protocol.Draft{Tool: protocol.ToolEraser, Width: 5}})

	apply(t, r, protocol.EventPresenceSnapshot, []protocol.PresenceEntry{{ID: "b"}})
	sc := r.Scene()
	require.Len(t, sc.Cursors, 1)
	assert.Equal(t, "b", sc.Cursors[0].ConnectionID)
	assert.Empty(t, sc.Previews)
	assert.Equal(t, []protocol.PresenceEntry{{ID: "b"}}, r.Presence())
}

func TestApply_rejects_unknown_and_malformed(t *testing.T) {
	r := New()
	err := r.Apply(protocol.Envelope{Type: "teleport"})
	assert.True(t, errors.Is(err, protocol.ErrUnknownEvent))

	err = r.Apply(protocol.Envelope{Type: protocol.EventStrokeSnapshot, Data: []byte(`{"not":"a list"}`)})
	assert.Error(t, err)
}

func TestOnChange(t *testing.T) {
	r := New()
	var seen []protocol.EventType
	r.OnChange(func(typ protocol.EventType) {
		seen = append(seen, typ)
		// the callback runs outside the lock
		_ = r.Strokes()
	})
	apply(t, r, protocol.EventStrokeSnapshot, []protocol.Stroke{})
	_ = r.Apply(protocol.Envelope{Type: "teleport"})
	assert.Equal(t, []protocol.EventType{protocol.EventStrokeSnapshot}, seen)
}

func TestGesture(t *testing.T) {
	var g Gesture
	_, ok := g.Extend(protocol.Point{X: 1})
	assert.False(t, ok)
	_, ok = g.Finish()
	assert.False(t, ok)

	d := g.Begin(protocol.ToolBrush, "#ff0000", 50, protocol.Point{X: 0, Y: 0})
	assert.Equal(t, protocol.MaxWidth, d.Width)
	assert.True(t, g.Active())

	d, ok = g.Extend(protocol.Point{X: 10, Y: 10})
	require.True(t, ok)
	assert.Len(t, d.Points, 2)

	// the returned draft is a copy
	d.Points[0].X = 99
	d, ok = g.Finish()
	require.True(t, ok)
	assert.Equal(t, protocol.Draft{Tool: protocol.ToolBrush, Color: "#ff0000", Width: 20, Points: []protocol.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}}, d)
	assert.False(t, g.Active())

	d = g.Begin(protocol.ToolEraser, "#ff0000", 0, protocol.Point{})
	assert.Equal(t, "", d.Color)
	assert.Equal(t, protocol.MinWidth, d.Width)
}
