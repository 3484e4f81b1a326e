package replica

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/astromechza/sketchboard/pkg/protocol"
)

var ErrClosed = errors.New("client closed")

// Client couples a websocket connection to a Replica: inbound events are applied to the replica, local actions
// are queued as outbound events.
type Client struct {
	conn    *websocket.Conn
	replica *Replica
	logger  *slog.Logger

	outbound chan []byte
	done     chan struct{}
	doneOnce sync.Once

	gmu     sync.Mutex
	gesture Gesture
}

func Dial(ctx context.Context, url string, logger *slog.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	return NewClient(conn, New(), logger), nil
}

func NewClient(conn *websocket.Conn, r *Replica, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		conn:     conn,
		replica:  r,
		logger:   logger,
		outbound: make(chan []byte, 64),
		done:     make(chan struct{}),
	}
}

func (c *Client) Replica() *Replica {
	return c.replica
}

// Sync pumps events in both directions until ctx is cancelled or the connection drops.
func (c *Client) Sync(ctx context.Context) error {
	defer c.doneOnce.Do(func() { close(c.done) })

	readErr := make(chan error, 1)
	wg := new(sync.WaitGroup)
	wg.Add(1)
	go func() {
		defer wg.Done()
		readErr <- c.readLoop()
	}()

	var err error
	func() {
		for {
			select {
			case raw := <-c.outbound:
				_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				if werr := c.conn.WriteMessage(websocket.TextMessage, raw); werr != nil {
					err = fmt.Errorf("failed to write message: %w", werr)
					return
				}
			case rerr := <-readErr:
				readErr <- rerr
				return
			case <-ctx.Done():
				_ = c.conn.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(time.Second),
				)
				return
			}
		}
	}()
	_ = c.conn.Close()
	wg.Wait()

	rerr := <-readErr
	if err != nil || ctx.Err() != nil {
		return err
	}
	var ce *websocket.CloseError
	if errors.As(rerr, &ce) && ce.Code == websocket.CloseNormalClosure {
		return nil
	}
	return rerr
}

func (c *Client) readLoop() error {
	for {
		mt, raw, err := c.conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}
		if mt != websocket.TextMessage {
			continue
		}
		env, err := protocol.Decode(raw)
		if err != nil {
			c.logger.Warn("ignoring malformed event", "err", err)
			continue
		}
		if err := c.replica.Apply(env); err != nil {
			c.logger.Warn("ignoring event", "type", env.Type, "err", err)
		}
	}
}

func (c *Client) send(t protocol.EventType, data interface{}) error {
	raw, err := protocol.Encode(t, data)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbound <- raw:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

func (c *Client) MoveCursor(x, y float64) error {
	return c.send(protocol.EventCursorMove, protocol.CursorMove{X: x, Y: y})
}

func (c *Client) LeaveCursor() error {
	return c.send(protocol.EventCursorLeave, nil)
}

// BeginStroke starts a local gesture and announces it as a preview.
func (c *Client) BeginStroke(tool protocol.Tool, color string, width int, at protocol.Point) error {
	c.gmu.Lock()
	d := c.gesture.Begin(tool, color, width, at)
	c.gmu.Unlock()
	return c.send(protocol.EventPreviewStart, d)
}

func (c *Client) ExtendStroke(at protocol.Point) error {
	c.gmu.Lock()
	d, ok := c.gesture.Extend(at)
	c.gmu.Unlock()
	if !ok {
		return nil
	}
	return c.send(protocol.EventPreviewUpdate, d)
}

// FinishStroke commits the gesture. The server ends the preview for everyone else.
func (c *Client) FinishStroke() error {
	c.gmu.Lock()
	d, ok := c.gesture.Finish()
	c.gmu.Unlock()
	if !ok {
		return nil
	}
	return c.send(protocol.EventStrokeCommit, d)
}

// CancelStroke drops the gesture without committing it.
func (c *Client) CancelStroke() error {
	c.gmu.Lock()
	_, ok := c.gesture.Finish()
	c.gmu.Unlock()
	if !ok {
		return nil
	}
	return c.send(protocol.EventPreviewEnd, nil)
}

func (c *Client) Undo() error {
	return c.send(protocol.EventUndo, nil)
}

func (c *Client) Redo() error {
	return c.send(protocol.EventRedo, nil)
}
