package hub

import (
	"sync"
)

// Peer is one connected participant as the dispatcher sees it.
type Peer interface {
	ID() string
	// Send queues msg without blocking and reports whether it was accepted.
	Send(msg []byte) bool
}

// Dispatcher owns the set of connected peers and is the only place that fans messages out to them.
type Dispatcher struct {
	mu    sync.RWMutex
	peers map[string]Peer
	order []string
	drops func(peer string)
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{peers: make(map[string]Peer)}
}

func (d *Dispatcher) Add(p Peer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[p.ID()]; !ok {
		d.order = append(d.order, p.ID())
	}
	d.peers[p.ID()] = p
}

func (d *Dispatcher) Remove(id string) (Peer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.peers[id]
	if !ok {
		return nil, false
	}
	delete(d.peers, id)
	for i, o := range d.order {
		if o == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return p, true
}

func (d *Dispatcher) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.peers)
}

// SendTo delivers to a single peer. A peer that is gone is skipped.
func (d *Dispatcher) SendTo(id string, msg []byte) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	if !ok {
		return 0
	}
	return d.deliver(p, msg)
}

func (d *Dispatcher) SendToAll(msg []byte) int {
	return d.SendToAllExcept("", msg)
}

// SendToAllExcept delivers to every peer registered at call time other than origin and returns how many
// accepted the message. A peer refusing the message does not affect the others.
func (d *Dispatcher) SendToAllExcept(origin string, msg []byte) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, id := range d.order {
		if id == origin {
			continue
		}
		n += d.deliver(d.peers[id], msg)
	}
	return n
}

func (d *Dispatcher) deliver(p Peer, msg []byte) int {
	if p.Send(msg) {
		return 1
	}
	if d.drops != nil {
		d.drops(p.ID())
	}
	return 0
}
