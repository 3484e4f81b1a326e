package replica

import (
	"github.com/astromechza/sketchboard/pkg/protocol"
)

// Gesture accumulates the points of one pointer-down to pointer-up sequence.
type Gesture struct {
	draft  protocol.Draft
	active bool
}

// Begin starts a gesture with the current tool settings. Width is clamped to what the server accepts.
func (g *Gesture) Begin(tool protocol.Tool, color string, width int, at protocol.Point) protocol.Draft {
	if width < protocol.MinWidth {
		width = protocol.MinWidth
	} else if width > protocol.MaxWidth {
		width = protocol.MaxWidth
	}
	if tool == protocol.ToolEraser {
		color = ""
	}
	g.draft = protocol.Draft{Tool: tool, Color: color, Width: width, Points: []protocol.Point{at}}
	g.active = true
	return g.Draft()
}

// Extend adds a point and returns the preview to send. It reports false when no gesture is active.
func (g *Gesture) Extend(at protocol.Point) (protocol.Draft, bool) {
	if !g.active {
		return protocol.Draft{}, false
	}
	g.draft.Points = append(g.draft.Points, at)
	return g.Draft(), true
}

// Finish ends the gesture and returns the stroke to commit.
func (g *Gesture) Finish() (protocol.Draft, bool) {
	if !g.active {
		return protocol.Draft{}, false
	}
	d := g.Draft()
	g.active = false
	g.draft = protocol.Draft{}
	return d, true
}

func (g *Gesture) Active() bool {
	return g.active
}

// Draft returns a copy that stays valid while the gesture keeps growing.
func (g *Gesture) Draft() protocol.Draft {
	d := g.draft
	d.Points = append([]protocol.Point(nil), g.draft.Points...)
	return d
}
