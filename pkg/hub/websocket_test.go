package hub

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/sketchboard/pkg/board"
	"github.com/astromechza/sketchboard/pkg/protocol"
)

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(raw)
	require.NoError(t, err)
	return env
}

func readUntil(t *testing.T, conn *websocket.Conn, typ protocol.EventType) protocol.Envelope {
	t.Helper()
	for i := 0; i < 20; i++ {
		if env := readEvent(t, conn); env.Type == typ {
			return env
		}
	}
	t.Fatalf("no %s event received", typ)
	return protocol.Envelope{}
}

func write(t *testing.T, conn *websocket.Conn, typ protocol.EventType, data interface{}) {
	t.Helper()
	raw, err := protocol.Encode(typ, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func TestWebsocketHandler_end_to_end(t *testing.T) {
	h := New(board.New(), nil)
	ts := httptest.NewServer(NewWebsocketHandler(h, 0))
	defer ts.Close()

	a := dial(t, ts)
	ident := readEvent(t, a)
	require.Equal(t, protocol.EventIdentityAssigned, ident.Type)
	var id protocol.Identity
	require.NoError(t, ident.DecodeData(&id))
	assert.True(t, board.InPalette(id.Color))
	assert.NotEmpty(t, id.ID)
	snap := readEvent(t, a)
	assert.Equal(t, protocol.EventStrokeSnapshot, snap.Type)
	assert.JSONEq(t, `[]`, string(snap.Data))
	readUntil(t, a, protocol.EventPresenceSnapshot)

	write(t, a, protocol.EventStrokeCommit, protocol.Draft{Tool: protocol.ToolBrush, Color: "#ff0000", Width: 3, Points: []protocol.Point{{X: 0, Y: 0}, {X: 10, Y: 10}}})
	committed := readUntil(t, a, protocol.EventStrokeSnapshot)

	b := dial(t, ts)
	readUntil(t, b, protocol.EventIdentityAssigned)
	late := readEvent(t, b)
	require.Equal(t, protocol.EventStrokeSnapshot, late.Type)
	assert.Equal(t, string(committed.Data), string(late.Data))

	write(t, b, protocol.EventCursorMove, protocol.CursorMove{X: 3, Y: 4})
	cursor := readUntil(t, a, protocol.EventCursorUpdate)
	var cu protocol.CursorUpdate
	require.NoError(t, cursor.DecodeData(&cu))
	assert.Equal(t, 3.0, cu.X)
	assert.NotEqual(t, id.ID, cu.ConnectionID)

	require.NoError(t, b.Close())
	removed := readUntil(t, a, protocol.EventCursorRemoved)
	var cr protocol.CursorRemoved
	require.NoError(t, removed.DecodeData(&cr))
	assert.Equal(t, cu.ConnectionID, cr.ConnectionID)
	presence := readEvent(t, a)
	assert.Equal(t, protocol.EventPresenceSnapshot, presence.Type)
	var entries []protocol.PresenceEntry
	require.NoError(t, presence.DecodeData(&entries))
	assert.Equal(t, []protocol.PresenceEntry{{ID: id.ID, Color: id.Color}}, entries)
}
