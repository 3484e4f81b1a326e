package protocol

type Tool string

const (
	ToolBrush  Tool = "brush"
	ToolEraser Tool = "eraser"
)

func (t Tool) Valid() bool {
	return t == ToolBrush || t == ToolEraser
}

const (
	MinWidth = 1
	MaxWidth = 20
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Draft is a stroke as a client describes it, either in progress or ready to commit.
type Draft struct {
	Tool   Tool    `json:"tool"`
	Color  string  `json:"color,omitempty"`
	Width  int     `json:"width"`
	Points []Point `json:"points"`
}

// Stroke is a committed draft. It is never edited once it has an ID.
type Stroke struct {
	ID      string  `json:"id"`
	OwnerID string  `json:"ownerId"`
	Tool    Tool    `json:"tool"`
	Color   string  `json:"color,omitempty"`
	Width   int     `json:"width"`
	Points  []Point `json:"points"`
}

type PresenceEntry struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

type Identity struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

type CursorMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type CursorUpdate struct {
	ConnectionID string  `json:"connectionId"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Color        string  `json:"color"`
}

type CursorRemoved struct {
	ConnectionID string `json:"connectionId"`
}

type PreviewUpdate struct {
	OwnerID string `json:"ownerId"`
	Stroke  Draft  `json:"stroke"`
}

type PreviewEnded struct {
	OwnerID string `json:"ownerId"`
}
