package main

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cbegin/gridpulse-go"
	"github.com/cbegin/gridpulse-go/internal/animator"
	"github.com/cbegin/gridpulse-go/internal/structure"
)

// Terminal cells are roughly twice as tall as wide; scroll offsets are in
// pixels, one character is about this many.
const (
	pxPerCol = 8.0
	pxPerRow = 16.0
)

// flashSteps quantises the flash fade so styles can be cached.
const flashSteps = 4

type styleKey struct {
	depth int
	flash int
}

type gridRenderer struct {
	styles map[styleKey]lipgloss.Style
}

func newGridRenderer() *gridRenderer {
	return &gridRenderer{styles: make(map[styleKey]lipgloss.Style)}
}

func (g *gridRenderer) style(depth int, level float64) lipgloss.Style {
	k := styleKey{depth: depth, flash: int(math.Ceil(level * flashSteps))}
	if st, ok := g.styles[k]; ok {
		return st
	}
	bg := animator.CellColor(depth, float64(k.flash)/flashSteps)
	fg := "#e8e8e8"
	if _, _, l := bg.Hcl(); l > 0.6 {
		fg = "#101010"
	}
	st := lipgloss.NewStyle().
		Background(lipgloss.Color(bg.Hex())).
		Foreground(lipgloss.Color(fg))
	g.styles[k] = st
	return st
}

// owners maps every character of a w×h grid to the cell covering it, or -1.
func owners(s gridpulse.Snapshot, w, h int) [][]int {
	grid := make([][]int, h)
	for y := range grid {
		grid[y] = make([]int, w)
		for x := range grid[y] {
			grid[y][x] = -1
		}
	}
	if s.Tree == nil {
		return grid
	}
	rects := structure.Layout(s.Tree, float64(w), float64(h))
	for i, c := range s.Cells {
		r := rects[c.Handle]
		x0, y0 := int(math.Round(r.X)), int(math.Round(r.Y))
		x1, y1 := int(math.Round(r.X+r.W)), int(math.Round(r.Y+r.H))
		for y := max(y0, 0); y < min(y1, h); y++ {
			for x := max(x0, 0); x < min(x1, w); x++ {
				grid[y][x] = i
			}
		}
	}
	return grid
}

// glyph returns the character cell i shows at (x, y) relative to its
// top-left corner. Horizontal cells scroll their label sideways, vertical
// cells scroll it upwards one character per row.
func glyph(text string, c structure.Cell, x, y int) byte {
	text += animator.HorizontalSeparator
	n := len(text)
	if c.Horizontal {
		shift := int(-c.ScrollOffset / pxPerCol)
		return text[((x+shift+y*3)%n+n)%n]
	}
	shift := int(-c.ScrollOffset / pxPerRow)
	if x != 0 {
		return ' '
	}
	return text[((y+shift)%n+n)%n]
}

// render draws the snapshot into a w×h block of styled text.
func (g *gridRenderer) render(s gridpulse.Snapshot, w, h int) string {
	if w <= 0 || h <= 0 {
		return ""
	}
	grid := owners(s, w, h)
	origin := make(map[int][2]int, len(s.Cells))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if i := grid[y][x]; i >= 0 {
				if _, ok := origin[i]; !ok {
					origin[i] = [2]int{x, y}
				}
			}
		}
	}

	var b strings.Builder
	run := make([]byte, 0, w)
	for y := 0; y < h; y++ {
		x := 0
		for x < w {
			i := grid[y][x]
			run = run[:0]
			for x < w && grid[y][x] == i {
				if i < 0 {
					run = append(run, ' ')
				} else {
					c := s.Cells[i]
					o := origin[i]
					run = append(run, glyph(animator.Label(s.Texts, c.Label), c, x-o[0], y-o[1]))
				}
				x++
			}
			if i < 0 {
				b.Write(run)
				continue
			}
			level := 0.0
			if i < len(s.FlashUntil) {
				level = animator.FlashLevel(s.FlashUntil[i], s.Now)
			}
			b.WriteString(g.style(s.Cells[i].Depth, level).Render(string(run)))
		}
		if y < h-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
