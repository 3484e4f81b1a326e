package board

import (
	"math/rand"
	"sync"
	"time"
)

// Colors is the identity palette handed out to connections. Changing it changes what every client sees.
var Colors = [12]string{
	"#e6194b",
	"#3cb44b",
	"#ffe119",
	"#4363d8",
	"#f58231",
	"#911eb4",
	"#46f0f0",
	"#f032e6",
	"#bcf60c",
	"#fabebe",
	"#008080",
	"#e6beff",
}

// Rand is the slice of math/rand the palette needs.
type Rand interface {
	Intn(n int) int
}

type Palette struct {
	rnd Rand
}

func NewPalette(rnd Rand) *Palette {
	if rnd == nil {
		rnd = &lockedRand{r: rand.New(rand.NewSource(time.Now().UnixNano()))}
	}
	return &Palette{rnd: rnd}
}

// Assign picks a color uniformly at random. Two connections may share one.
func (p *Palette) Assign() string {
	return Colors[p.rnd.Intn(len(Colors))]
}

func InPalette(color string) bool {
	for _, c := range Colors {
		if c == color {
			return true
		}
	}
	return false
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}
