package board

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/segmentio/ksuid"

	"github.com/astromechza/sketchboard/pkg/protocol"
)

type Audience int

const (
	ToAll Audience = iota
	// ToAllExcept skips Outbound.Peer.
	ToAllExcept
	// ToOne reaches only Outbound.Peer.
	ToOne
)

// Outbound is an event produced by a board operation, waiting to be delivered.
type Outbound struct {
	Audience Audience
	Peer     string
	Event    protocol.Envelope
}

// Board is the authoritative state of one drawing surface: the stroke store, the per-connection redo stacks,
// presence, cursors and previews. Each operation mutates the state and returns the events that describe the
// change. A Board is not safe for concurrent use; the caller serializes operations and delivers the returned
// events in the same critical section so every connection observes them in operation order.
type Board struct {
	palette *Palette
	newID   func() string

	strokes  []protocol.Stroke
	snapshot json.RawMessage
	redo     map[string][]protocol.Stroke

	presence []protocol.PresenceEntry
	cursors  map[string]protocol.CursorUpdate
	previews map[string]protocol.Draft
}

type Option func(*Board)

func WithPalette(p *Palette) Option {
	return func(b *Board) {
		b.palette = p
	}
}

// WithStrokeIDs replaces the KSUID generator used to name committed strokes.
func WithStrokeIDs(f func() string) Option {
	return func(b *Board) {
		b.newID = f
	}
}

func New(opts ...Option) *Board {
	b := &Board{
		strokes:  make([]protocol.Stroke, 0),
		snapshot: json.RawMessage(`[]`),
		redo:     make(map[string][]protocol.Stroke),
		presence: make([]protocol.PresenceEntry, 0),
		cursors:  make(map[string]protocol.CursorUpdate),
		previews: make(map[string]protocol.Draft),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.palette == nil {
		b.palette = NewPalette(nil)
	}
	if b.newID == nil {
		b.newID = func() string {
			return ksuid.New().String()
		}
	}
	return b
}

// Join registers a connection, assigns its identity color and returns the welcome for that connection followed
// by the presence broadcast.
func (b *Board) Join(id string) (protocol.Identity, []Outbound, error) {
	if id == "" {
		return protocol.Identity{}, nil, fmt.Errorf("empty connection id: %w", ErrUnknownConnection)
	}
	if _, ok := b.entry(id); ok {
		return protocol.Identity{}, nil, fmt.Errorf("%s: %w", id, ErrConnectionExists)
	}
	ident := protocol.Identity{ID: id, Color: b.palette.Assign()}
	b.presence = append(b.presence, protocol.PresenceEntry{ID: ident.ID, Color: ident.Color})

	o := &outbox{}
	o.add(ToOne, id, protocol.EventIdentityAssigned, ident)
	o.addRaw(ToOne, id, protocol.EventStrokeSnapshot, b.snapshot)
	o.add(ToAll, "", protocol.EventPresenceSnapshot, b.Presence())
	return ident, o.out, o.err
}

// Leave drops everything the connection owns except its committed strokes. Unknown ids are a no-op.
func (b *Board) Leave(id string) ([]Outbound, error) {
	idx := -1
	for i, e := range b.presence {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, nil
	}
	b.presence = append(b.presence[:idx], b.presence[idx+1:]...)
	delete(b.redo, id)
	delete(b.cursors, id)
	_, hadPreview := b.previews[id]
	delete(b.previews, id)

	o := &outbox{}
	if hadPreview {
		o.add(ToAllExcept, id, protocol.EventPreviewEnded, protocol.PreviewEnded{OwnerID: id})
	}
	o.add(ToAllExcept, id, protocol.EventCursorRemoved, protocol.CursorRemoved{ConnectionID: id})
	o.add(ToAll, "", protocol.EventPresenceSnapshot, b.Presence())
	return o.out, o.err
}

// Commit appends a validated draft to the stroke store. It clears the committer's redo stack and ends its preview.
func (b *Board) Commit(id string, d protocol.Draft) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	if err := Validate(d); err != nil {
		return nil, err
	}
	s := protocol.Stroke{
		ID:      b.newID(),
		OwnerID: id,
		Tool:    d.Tool,
		Color:   d.Color,
		Width:   d.Width,
		Points:  append([]protocol.Point(nil), d.Points...),
	}
	if s.Tool == protocol.ToolEraser {
		s.Color = ""
	}
	b.strokes = append(b.strokes, s)
	delete(b.redo, id)
	delete(b.previews, id)

	o := &outbox{}
	o.err = b.refreshSnapshot()
	o.addRaw(ToAll, "", protocol.EventStrokeSnapshot, b.snapshot)
	o.add(ToAllExcept, id, protocol.EventPreviewEnded, protocol.PreviewEnded{OwnerID: id})
	return o.out, o.err
}

// Undo removes the newest surviving stroke owned by id, wherever it sits in the store, and pushes it on id's
// redo stack. Strokes of other connections committed after it are left in place.
func (b *Board) Undo(id string) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	for i := len(b.strokes) - 1; i >= 0; i-- {
		if b.strokes[i].OwnerID != id {
			continue
		}
		s := b.strokes[i]
		b.strokes = append(b.strokes[:i], b.strokes[i+1:]...)
		b.redo[id] = append(b.redo[id], s)
		return b.snapshotToAll()
	}
	return nil, nil
}

// Redo re-appends the most recently undone stroke at the tail, not at its old index.
func (b *Board) Redo(id string) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	stack := b.redo[id]
	if len(stack) == 0 {
		return nil, nil
	}
	s := stack[len(stack)-1]
	b.redo[id] = stack[:len(stack)-1]
	b.strokes = append(b.strokes, s)
	return b.snapshotToAll()
}

func (b *Board) MoveCursor(id string, x, y float64) ([]Outbound, error) {
	e, ok := b.entry(id)
	if !ok {
		return nil, ErrUnknownConnection
	}
	if !finite(x) || !finite(y) {
		return nil, ErrBadCoordinate
	}
	c := protocol.CursorUpdate{ConnectionID: id, X: x, Y: y, Color: e.Color}
	b.cursors[id] = c

	o := &outbox{}
	o.add(ToAllExcept, id, protocol.EventCursorUpdate, c)
	return o.out, o.err
}

// LeaveCursor forgets the cursor of id, for example when the pointer left the surface.
func (b *Board) LeaveCursor(id string) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	if _, ok := b.cursors[id]; !ok {
		return nil, nil
	}
	delete(b.cursors, id)

	o := &outbox{}
	o.add(ToAllExcept, id, protocol.EventCursorRemoved, protocol.CursorRemoved{ConnectionID: id})
	return o.out, o.err
}

// UpdatePreview replaces the in-progress stroke of id wholesale. A preview may not have any points yet.
func (b *Board) UpdatePreview(id string, d protocol.Draft) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	if err := validateShape(d); err != nil {
		return nil, err
	}
	if d.Tool == protocol.ToolEraser {
		d.Color = ""
	}
	d.Points = append([]protocol.Point(nil), d.Points...)
	b.previews[id] = d

	o := &outbox{}
	o.add(ToAllExcept, id, protocol.EventPreviewUpdate, protocol.PreviewUpdate{OwnerID: id, Stroke: d})
	return o.out, o.err
}

func (b *Board) EndPreview(id string) ([]Outbound, error) {
	if _, ok := b.entry(id); !ok {
		return nil, ErrUnknownConnection
	}
	delete(b.previews, id)

	o := &outbox{}
	o.add(ToAllExcept, id, protocol.EventPreviewEnded, protocol.PreviewEnded{OwnerID: id})
	return o.out, o.err
}

// Strokes returns a copy of the stroke store in store order.
func (b *Board) Strokes() []protocol.Stroke {
	return append(make([]protocol.Stroke, 0, len(b.strokes)), b.strokes...)
}

// Snapshot returns the encoded stroke store exactly as it was last broadcast.
func (b *Board) Snapshot() json.RawMessage {
	return b.snapshot
}

// Presence returns the live connections in join order.
func (b *Board) Presence() []protocol.PresenceEntry {
	return append(make([]protocol.PresenceEntry, 0, len(b.presence)), b.presence...)
}

func (b *Board) Cursors() []protocol.CursorUpdate {
	out := make([]protocol.CursorUpdate, 0, len(b.cursors))
	for _, c := range b.cursors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectionID < out[j].ConnectionID
	})
	return out
}

func (b *Board) Previews() []protocol.PreviewUpdate {
	out := make([]protocol.PreviewUpdate, 0, len(b.previews))
	for owner, d := range b.previews {
		out = append(out, protocol.PreviewUpdate{OwnerID: owner, Stroke: d})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OwnerID < out[j].OwnerID
	})
	return out
}

func (b *Board) RedoDepth(id string) int {
	return len(b.redo[id])
}

type Stats struct {
	Strokes     int `json:"strokes"`
	Connections int `json:"connections"`
	Cursors     int `json:"cursors"`
	Previews    int `json:"previews"`
	RedoDepth   int `json:"redo_depth"`
}

func (b *Board) Stats() Stats {
	st := Stats{
		Strokes:     len(b.strokes),
		Connections: len(b.presence),
		Cursors:     len(b.cursors),
		Previews:    len(b.previews),
	}
	for _, stack := range b.redo {
		st.RedoDepth += len(stack)
	}
	return st
}

// Validate checks a draft before it may enter the stroke store.
func Validate(d protocol.Draft) error {
	if len(d.Points) == 0 {
		return ErrEmptyStroke
	}
	return validateShape(d)
}

func validateShape(d protocol.Draft) error {
	if !d.Tool.Valid() {
		return fmt.Errorf("%q: %w", d.Tool, ErrUnknownTool)
	}
	if d.Width < protocol.MinWidth || d.Width > protocol.MaxWidth {
		return fmt.Errorf("%d: %w", d.Width, ErrWidthOutOfRange)
	}
	for _, p := range d.Points {
		if !finite(p.X) || !finite(p.Y) {
			return ErrBadCoordinate
		}
	}
	return nil
}

func (b *Board) entry(id string) (protocol.PresenceEntry, bool) {
	for _, e := range b.presence {
		if e.ID == id {
			return e, true
		}
	}
	return protocol.PresenceEntry{}, false
}

func (b *Board) refreshSnapshot() error {
	raw, err := json.Marshal(b.strokes)
	if err != nil {
		return fmt.Errorf("failed to encode stroke store: %w", err)
	}
	b.snapshot = raw
	return nil
}

func (b *Board) snapshotToAll() ([]Outbound, error) {
	if err := b.refreshSnapshot(); err != nil {
		return nil, err
	}
	o := &outbox{}
	o.addRaw(ToAll, "", protocol.EventStrokeSnapshot, b.snapshot)
	return o.out, o.err
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

type outbox struct {
	out []Outbound
	err error
}

func (o *outbox) add(a Audience, peer string, t protocol.EventType, data interface{}) {
	if o.err != nil {
		return
	}
	env, err := protocol.NewEnvelope(t, data)
	if err != nil {
		o.err = err
		return
	}
	o.out = append(o.out, Outbound{Audience: a, Peer: peer, Event: env})
}

func (o *outbox) addRaw(a Audience, peer string, t protocol.EventType, raw json.RawMessage) {
	if o.err != nil {
		return
	}
	o.out = append(o.out, Outbound{Audience: a, Peer: peer, Event: protocol.Envelope{Type: t, Data: raw}})
}
