package replica

import (
	"fmt"
	"sort"
	"sync"

	"github.com/astromechza/sketchboard/pkg/protocol"
)

// Replica is a client's view of a board, built only from what the server sends. Committed strokes are replaced
// wholesale by every snapshot, transient state is patched event by event.
type Replica struct {
	mu sync.RWMutex

	identity protocol.Identity
	strokes  []protocol.Stroke
	presence []protocol.PresenceEntry
	cursors  map[string]protocol.CursorUpdate
	previews map[string]protocol.Draft

	snapshots int
	onChange  func(protocol.EventType)
}

func New() *Replica {
	return &Replica{
		cursors:  make(map[string]protocol.CursorUpdate),
		previews: make(map[string]protocol.Draft),
	}
}

// OnChange registers a callback invoked after every applied event, outside the replica lock.
func (r *Replica) OnChange(f func(protocol.EventType)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = f
}

func (r *Replica) Apply(env protocol.Envelope) error {
	r.mu.Lock()
	err := r.apply(env)
	cb := r.onChange
	r.mu.Unlock()
	if err != nil {
		return err
	}
	if cb != nil {
		cb(env.Type)
	}
	return nil
}

func (r *Replica) apply(env protocol.Envelope) error {
	switch env.Type {
	case protocol.EventIdentityAssigned:
		var ident protocol.Identity
		if err := env.DecodeData(&ident); err != nil {
			return err
		}
		r.identity = ident

	case protocol.EventStrokeSnapshot:
		var strokes []protocol.Stroke
		if err := env.DecodeData(&strokes); err != nil {
			return err
		}
		r.strokes = strokes
		r.snapshots++

	case protocol.EventPresenceSnapshot:
		var entries []protocol.PresenceEntry
		if err := env.DecodeData(&entries); err != nil {
			return err
		}
		r.presence = entries
		r.prune()

	case protocol.EventCursorUpdate:
		var c protocol.CursorUpdate
		if err := env.DecodeData(&c); err != nil {
			return err
		}
		if c.ConnectionID == "" || c.ConnectionID == r.identity.ID {
			return nil
		}
		r.cursors[c.ConnectionID] = c

	case protocol.EventCursorRemoved:
		var c protocol.CursorRemoved
		if err := env.DecodeData(&c); err != nil {
			return err
		}
		delete(r.cursors, c.ConnectionID)

	case protocol.EventPreviewUpdate:
		var p protocol.PreviewUpdate
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		if p.OwnerID == "" || p.OwnerID == r.identity.ID {
			return nil
		}
		r.previews[p.OwnerID] = p.Stroke

	case protocol.EventPreviewEnded:
		var p protocol.PreviewEnded
		if err := env.DecodeData(&p); err != nil {
			return err
		}
		delete(r.previews, p.OwnerID)

	default:
		return fmt.Errorf("%q: %w", env.Type, protocol.ErrUnknownEvent)
	}
	return nil
}

// prune drops transient state of owners that are no longer present, in case their removal events were lost.
func (r *Replica) prune() {
	live := make(map[string]bool, len(r.presence))
	for _, e := range r.presence {
		live[e.ID] = true
	}
	for id := range r.cursors {
		if !live[id] {
			delete(r.cursors, id)
		}
	}
	for id := range r.previews {
		if !live[id] {
			delete(r.previews, id)
		}
	}
}

func (r *Replica) Identity() protocol.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.identity
}

func (r *Replica) Strokes() []protocol.Stroke {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.Stroke(nil), r.strokes...)
}

func (r *Replica) Presence() []protocol.PresenceEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]protocol.PresenceEntry(nil), r.presence...)
}

// Snapshots counts the stroke snapshots applied so far.
func (r *Replica) Snapshots() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshots
}

// CanUndo reports whether the server holds any stroke of ours, i.e. whether an undo would do anything.
func (r *Replica) CanUndo() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.identity.ID == "" {
		return false
	}
	for _, s := range r.strokes {
		if s.OwnerID == r.identity.ID {
			return true
		}
	}
	return false
}

// Scene is everything a renderer needs for one frame. Previews paint above committed strokes, cursors above both.
type Scene struct {
	Strokes  []protocol.Stroke
	Previews []protocol.PreviewUpdate
	Cursors  []protocol.CursorUpdate
}

func (r *Replica) Scene() Scene {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc := Scene{
		Strokes:  append([]protocol.Stroke(nil), r.strokes...),
		Previews: make([]protocol.PreviewUpdate, 0, len(r.previews)),
		Cursors:  make([]protocol.CursorUpdate, 0, len(r.cursors)),
	}
	for owner, d := range r.previews {
		sc.Previews = append(sc.Previews, protocol.PreviewUpdate{OwnerID: owner, Stroke: d})
	}
	sort.Slice(sc.Previews, func(i, j int) bool {
		return sc.Previews[i].OwnerID < sc.Previews[j].OwnerID
	})
	for _, c := range r.cursors {
		sc.Cursors = append(sc.Cursors, c)
	}
	sort.Slice(sc.Cursors, func(i, j int) bool {
		return sc.Cursors[i].ConnectionID < sc.Cursors[j].ConnectionID
	})
	return sc
}
