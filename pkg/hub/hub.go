package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/astromechza/sketchboard/pkg/board"
	"github.com/astromechza/sketchboard/pkg/protocol"
)

var ErrMissingPayload = errors.New("event requires a payload")

// Hub is the single authority over a board. Every board operation and the delivery of the events it produces
// happen under one lock, so each peer receives events in the order the operations were applied.
type Hub struct {
	mu         sync.Mutex
	board      *board.Board
	dispatcher *Dispatcher
	logger     *slog.Logger
	dropped    atomic.Int64
}

func New(b *board.Board, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{board: b, dispatcher: NewDispatcher(), logger: logger}
	h.dispatcher.drops = func(peer string) {
		h.dropped.Add(1)
		h.logger.Debug("dropped message for slow peer", "peer", peer)
	}
	return h
}

// Connect joins p to the board and sends it the welcome. The returned session is the only way to feed
// messages from p into the board.
func (h *Hub) Connect(p Peer) (*Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ident, out, err := h.board.Join(p.ID())
	if err != nil {
		return nil, fmt.Errorf("failed to join: %w", err)
	}
	h.dispatcher.Add(p)
	h.deliver(out)
	h.logger.Info("joined", "peer", ident.ID, "color", ident.Color, "peers", h.dispatcher.Len())

	s := &Session{hub: h, identity: ident}
	s.handlers = s.dispatchTable()
	return s, nil
}

func (h *Hub) Strokes() []protocol.Stroke {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.board.Strokes()
}

// Snapshot returns the encoded stroke store as last broadcast.
func (h *Hub) Snapshot() json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.board.Snapshot()
}

func (h *Hub) Presence() []protocol.PresenceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.board.Presence()
}

type Stats struct {
	board.Stats
	Peers           int   `json:"peers"`
	DroppedMessages int64 `json:"dropped_messages"`
}

func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{
		Stats:           h.board.Stats(),
		Peers:           h.dispatcher.Len(),
		DroppedMessages: h.dropped.Load(),
	}
}

// deliver must be called with h.mu held.
func (h *Hub) deliver(out []board.Outbound) {
	for _, o := range out {
		msg, err := json.Marshal(o.Event)
		if err != nil {
			h.logger.Error("failed to encode event", "type", o.Event.Type, "err", err)
			continue
		}
		switch o.Audience {
		case board.ToAll:
			h.dispatcher.SendToAll(msg)
		case board.ToAllExcept:
			h.dispatcher.SendToAllExcept(o.Peer, msg)
		case board.ToOne:
			h.dispatcher.SendTo(o.Peer, msg)
		}
	}
}

type handlerFunc func(env protocol.Envelope) ([]board.Outbound, error)

// Session binds one connection to the hub for its lifetime.
type Session struct {
	hub      *Hub
	identity protocol.Identity
	handlers map[protocol.EventType]handlerFunc
	closed   bool
}

func (s *Session) ID() string {
	return s.identity.ID
}

func (s *Session) Identity() protocol.Identity {
	return s.identity
}

// Handle routes one inbound frame to the board. Frames that fail to decode, carry an unknown type or do not
// validate change nothing and are reported through the returned error only.
func (s *Session) Handle(raw []byte) error {
	env, err := protocol.Decode(raw)
	if err != nil {
		return err
	}
	fn, ok := s.handlers[env.Type]
	if !ok {
		return fmt.Errorf("%q: %w", env.Type, protocol.ErrUnknownEvent)
	}

	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return board.ErrUnknownConnection
	}
	out, err := fn(env)
	h.deliver(out)
	if err != nil {
		return fmt.Errorf("%s: %w", env.Type, err)
	}
	return nil
}

// Close runs the disconnect path once: the board forgets everything the connection owned apart from its
// strokes and the remaining peers are told in the same critical section.
func (s *Session) Close() {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	out, err := h.board.Leave(s.ID())
	h.dispatcher.Remove(s.ID())
	h.deliver(out)
	if err != nil {
		h.logger.Error("failed to leave cleanly", "peer", s.ID(), "err", err)
	}
	h.logger.Info("left", "peer", s.ID(), "peers", h.dispatcher.Len())
}

func (s *Session) dispatchTable() map[protocol.EventType]handlerFunc {
	b := s.hub.board
	id := s.ID()
	preview := func(env protocol.Envelope) ([]board.Outbound, error) {
		var d protocol.Draft
		if err := decodeRequired(env, &d); err != nil {
			return nil, err
		}
		return b.UpdatePreview(id, d)
	}
	return map[protocol.EventType]handlerFunc{
		protocol.EventCursorMove: func(env protocol.Envelope) ([]board.Outbound, error) {
			var m protocol.CursorMove
			if err := decodeRequired(env, &m); err != nil {
				return nil, err
			}
			return b.MoveCursor(id, m.X, m.Y)
		},
		protocol.EventCursorLeave: func(protocol.Envelope) ([]board.Outbound, error) {
			return b.LeaveCursor(id)
		},
		protocol.EventPreviewStart:  preview,
		protocol.EventPreviewUpdate: preview,
		protocol.EventPreviewEnd: func(protocol.Envelope) ([]board.Outbound, error) {
			return b.EndPreview(id)
		},
		protocol.EventStrokeCommit: func(env protocol.Envelope) ([]board.Outbound, error) {
			var d protocol.Draft
			if err := decodeRequired(env, &d); err != nil {
				return nil, err
			}
			return b.Commit(id, d)
		},
		protocol.EventUndo: func(protocol.Envelope) ([]board.Outbound, error) {
			return b.Undo(id)
		},
		protocol.EventRedo: func(protocol.Envelope) ([]board.Outbound, error) {
			return b.Redo(id)
		},
	}
}

func decodeRequired(env protocol.Envelope, out interface{}) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return ErrMissingPayload
	}
	return env.DecodeData(out)
}
