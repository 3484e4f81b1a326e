package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/astromechza/sketchboard/pkg/protocol"
)

const (
	pageWidth  = 297.0
	pageHeight = 210.0
	margin     = 10.0
)

// PDF writes the strokes onto a single landscape A4 page, scaled to fit. Erasers paint with the paper color,
// which matches erasing on a white page.
func PDF(w io.Writer, strokes []protocol.Stroke) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetLineCapStyle("round")
	p.SetLineJoinStyle("round")
	p.AddPage()

	scale, offX, offY := fit(strokes)
	for _, st := range strokes {
		r, g, b := 0, 0, 0
		if st.Tool == protocol.ToolEraser {
			r, g, b = 255, 255, 255
		} else {
			r, g, b = parseHex(st.Color)
		}
		p.SetDrawColor(r, g, b)
		p.SetFillColor(r, g, b)
		width := float64(st.Width) * scale
		p.SetLineWidth(width)

		if len(st.Points) == 1 {
			pt := st.Points[0]
			p.Circle(offX+pt.X*scale, offY+pt.Y*scale, width/2, "F")
			continue
		}
		for i := 1; i < len(st.Points); i++ {
			from, to := st.Points[i-1], st.Points[i]
			p.Line(offX+from.X*scale, offY+from.Y*scale, offX+to.X*scale, offY+to.Y*scale)
		}
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

// fit returns the scale and offsets mapping board coordinates into the printable area.
func fit(strokes []protocol.Stroke) (float64, float64, float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, st := range strokes {
		half := float64(st.Width) / 2
		for _, pt := range st.Points {
			minX = math.Min(minX, pt.X-half)
			minY = math.Min(minY, pt.Y-half)
			maxX = math.Max(maxX, pt.X+half)
			maxY = math.Max(maxY, pt.Y+half)
		}
	}
	if math.IsInf(minX, 1) {
		return 1, margin, margin
	}
	w, h := maxX-minX, maxY-minY
	scale := 1.0
	if w > 0 && h > 0 {
		scale = math.Min((pageWidth-2*margin)/w, (pageHeight-2*margin)/h)
	}
	return scale, margin - minX*scale, margin - minY*scale
}

func parseHex(color string) (int, int, int) {
	c := strings.TrimPrefix(color, "#")
	if len(c) == 3 {
		c = string([]byte{c[0], c[0], c[1], c[1], c[2], c[2]})
	}
	if len(c) != 6 {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(c, 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
