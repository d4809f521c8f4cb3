package export

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/npezzotti/go-whiteboard/internal/types"
)

// scale converts canvas pixels to millimetres on the page.
const scale = 1.0 / 3

type rgb struct {
	r, g, b int
}

// parseColor accepts #rgb and #rrggbb. Anything else renders black.
func parseColor(s string) rgb {
	s = strings.TrimPrefix(s, "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return rgb{}
	}

	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return rgb{}
	}
	return rgb{r: int(v >> 16 & 0xff), g: int(v >> 8 & 0xff), b: int(v & 0xff)}
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

// WritePDF renders board onto a single A4 landscape page.
func WritePDF(w io.Writer, board types.Board) error {
	p := gofpdf.New("L", "mm", "A4", "")
	p.SetTitle(fmt.Sprintf("Board %s", board.RoomId), true)
	p.AddPage()
	p.SetFont("Helvetica", "", 12)
	tr := p.UnicodeTranslatorFromDescriptor("")

	for _, el := range board.Elements {
		el.Normalize()
		c := parseColor(el.Color)
		p.SetDrawColor(c.r, c.g, c.b)
		p.SetTextColor(c.r, c.g, c.b)
		p.SetLineWidth(el.Thickness * scale)

		switch el.Type {
		case types.ElementPath:
			for i := 2; i+1 < len(el.Points); i += 2 {
				p.Line(
					el.Points[i-2]*scale, el.Points[i-1]*scale,
					el.Points[i]*scale, el.Points[i+1]*scale,
				)
			}
		case types.ElementRectangle:
			p.Rect(deref(el.X)*scale, deref(el.Y)*scale, deref(el.Width)*scale, deref(el.Height)*scale, "D")
		case types.ElementCircle:
			p.Circle(deref(el.X)*scale, deref(el.Y)*scale, deref(el.Radius)*scale, "D")
		case types.ElementText:
			p.SetFontUnitSize(el.FontSize * scale)
			p.Text(deref(el.X)*scale, deref(el.Y)*scale, tr(el.Text))
		}
	}

	if err := p.Output(w); err != nil {
		return fmt.Errorf("render pdf: %w", err)
	}
	return nil
}
