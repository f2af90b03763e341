package visualizer

import (
	"fmt"
	"image"
	"image/color"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// CellSize converts a terminal area into surface pixels. Each cell holds two
// vertically stacked pixels drawn with a half block.
func CellSize(cols, rows int) (width, height int) {
	return max(cols, 0), max(rows, 0) * 2
}

type cellKey struct{ top, bot color.RGBA }

func hexColor(c color.RGBA) lipgloss.Color {
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B))
}

// quantize drops the low bits so neighbouring shades share a style.
func quantize(c color.RGBA) color.RGBA {
	return color.RGBA{R: c.R &^ 0x07, G: c.G &^ 0x07, B: c.B &^ 0x07, A: 255}
}

func isDark(c color.RGBA) bool {
	return c.R < 12 && c.G < 12 && c.B < 12
}

// Terminal renders img into cols x rows half-block cells. The image is
// sampled nearest-neighbour, so it need not match the cell grid exactly.
func Terminal(img *image.RGBA, cols, rows int) string {
	b := img.Bounds()
	if cols <= 0 || rows <= 0 {
		return ""
	}
	pixel := func(x, y int) color.RGBA {
		if b.Empty() {
			return color.RGBA{}
		}
		px := b.Min.X + x*b.Dx()/cols
		py := b.Min.Y + y*b.Dy()/(rows*2)
		return quantize(img.RGBAAt(px, py))
	}

	styles := make(map[cellKey]lipgloss.Style)
	var out strings.Builder
	for cy := 0; cy < rows; cy++ {
		for cx := 0; cx < cols; cx++ {
			top, bot := pixel(cx, cy*2), pixel(cx, cy*2+1)
			if isDark(top) && isDark(bot) {
				out.WriteByte(' ')
				continue
			}
			key := cellKey{top, bot}
			st, ok := styles[key]
			if !ok {
				st = lipgloss.NewStyle().Foreground(hexColor(top)).Background(hexColor(bot))
				styles[key] = st
			}
			out.WriteString(st.Render("▀"))
		}
		if cy < rows-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}
