package replica

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/astromechza/sketchboard/pkg/board"
	"github.com/astromechza/sketchboard/pkg/hub"
	"github.com/astromechza/sketchboard/pkg/protocol"
)

const (
	waitFor = 2 * time.Second
	tick    = 10 * time.Millisecond
)

func startClient(t *testing.T, ts *httptest.Server) (*Client, context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c, err := Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() {
		done <- c.Sync(ctx)
	}()
	t.Cleanup(cancel)
	require.Eventually(t, func() bool {
		return c.Replica().Identity().ID != "" && c.Replica().Snapshots() > 0
	}, waitFor, tick)
	return c, cancel, done
}

func TestClient_converges_with_server(t *testing.T) {
	h := hub.New(board.New(), nil)
	ts := httptest.NewServer(hub.NewWebsocketHandler(h, 0))
	defer ts.Close()

	a, cancelA, doneA := startClient(t, ts)
	b, _, _ := startClient(t, ts)
	aID := a.Replica().Identity().ID

	require.Eventually(t, func() bool { return len(a.Replica().Presence()) == 2 }, waitFor, tick)

	require.NoError(t, a.BeginStroke(protocol.ToolBrush, "#ff0000", 3, protocol.Point{X: 0, Y: 0}))
	require.NoError(t, a.ExtendStroke(protocol.Point{X: 10, Y: 10}))
	require.Eventually(t, func() bool {
		sc := b.Replica().Scene()
		return len(sc.Previews) == 1 && len(sc.Previews[0].Stroke.Points) == 2
	}, waitFor, tick)
	assert.Empty(t, a.Replica().Scene().Previews)

	require.NoError(t, a.FinishStroke())
	require.Eventually(t, func() bool {
		return len(b.Replica().Strokes()) == 1 && len(b.Replica().Scene().Previews) == 0
	}, waitFor, tick)
	require.Eventually(t, func() bool { return len(a.Replica().Strokes()) == 1 }, waitFor, tick)
	assert.Equal(t, aID, b.Replica().Strokes()[0].OwnerID)
	assert.True(t, a.Replica().CanUndo())
	assert.False(t, b.Replica().CanUndo())

	// b owns nothing, so its undo changes nothing
	require.NoError(t, b.Undo())
	require.NoError(t, a.Undo())
	require.Eventually(t, func() bool {
		return len(a.Replica().Strokes()) == 0 && len(b.Replica().Strokes()) == 0
	}, waitFor, tick)
	require.NoError(t, a.Redo())
	require.Eventually(t, func() bool {
		return len(a.Replica().Strokes()) == 1 && len(b.Replica().Strokes()) == 1
	}, waitFor, tick)
	assert.Equal(t, a.Replica().Strokes(), b.Replica().Strokes())
	assert.Equal(t, h.Strokes(), b.Replica().Strokes())

	require.NoError(t, a.MoveCursor(4, 2))
	require.Eventually(t, func() bool { return len(b.Replica().Scene().Cursors) == 1 }, waitFor, tick)
	assert.Empty(t, a.Replica().Scene().Cursors)

	cancelA()
	select {
	case err := <-doneA:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("sync did not stop")
	}
	assert.ErrorIs(t, a.Undo(), ErrClosed)

	require.Eventually(t, func() bool {
		return len(b.Replica().Presence()) == 1 && len(b.Replica().Scene().Cursors) == 0
	}, waitFor, tick)
	// strokes outlive their owner
	assert.Len(t, b.Replica().Strokes(), 1)
}
