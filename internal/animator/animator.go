package animator

import (
	"math"
	"strings"
	"sync/atomic"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/cbegin/gridpulse-go/internal/pattern"
	"github.com/cbegin/gridpulse-go/internal/structure"
)

// ResetDistance is the scroll offset magnitude at which a cell wraps to 0.
const ResetDistance = 150.0

// FlashDuration is how long a triggered cell stays highlighted, in seconds of
// audio time.
const FlashDuration = 0.15

// Text repetition used to fill a cell, horizontal runs are joined by a dash.
const (
	HorizontalRepeat    = 20
	VerticalRepeat      = 60
	HorizontalSeparator = " - "
)

// Advance moves one cell by its speed and wraps it back to zero once it has
// travelled past ResetDistance.
func Advance(c *structure.Cell) {
	c.ScrollOffset -= c.ScrollSpeed
	if math.Abs(c.ScrollOffset) > ResetDistance {
		c.ScrollOffset = 0
	}
}

// Translate returns the x/y translation of a cell's content.
func Translate(c structure.Cell) (dx, dy float64) {
	if c.Horizontal {
		return c.ScrollOffset, 0
	}
	return 0, c.ScrollOffset
}

// Animator runs on the display goroutine. It never touches timing or the
// audio path.
type Animator struct {
	pattern *pattern.State
	frames  atomic.Uint64
}

func New(p *pattern.State) *Animator {
	return &Animator{pattern: p}
}

// Frame advances every cell of the current generation and returns the
// number of frames drawn so far.
func (a *Animator) Frame() uint64 {
	a.pattern.UpdateCells(Advance)
	return a.frames.Add(1)
}

func (a *Animator) Frames() uint64 {
	return a.frames.Load()
}

// Flashing reports whether a cell flashed until the given audio time is still
// lit at now.
func Flashing(until, now float64) bool {
	return until > 0 && now < until && now >= until-FlashDuration
}

// FlashLevel fades from 1 at the trigger to 0 when the flash ends.
func FlashLevel(until, now float64) float64 {
	if !Flashing(until, now) {
		return 0
	}
	return (until - now) / FlashDuration
}

var (
	shallow = colorful.Hcl(200, 0.2, 0.6)
	deep    = colorful.Hcl(330, 0.3, 0.25)
	flash   = colorful.Color{R: 1, G: 1, B: 1}
)

// DepthColor shades a cell by its depth, from a light teal at the roots to a
// dark magenta at MaxDepth.
func DepthColor(depth int) colorful.Color {
	if depth < 0 {
		depth = 0
	}
	if depth > structure.MaxDepth {
		depth = structure.MaxDepth
	}
	t := float64(depth) / structure.MaxDepth
	return shallow.BlendHcl(deep, t).Clamped()
}

// CellColor is DepthColor blended toward white by the flash level.
func CellColor(depth int, flashLevel float64) colorful.Color {
	base := DepthColor(depth)
	if flashLevel <= 0 {
		return base
	}
	if flashLevel > 1 {
		flashLevel = 1
	}
	return base.BlendRgb(flash, flashLevel).Clamped()
}

// CellText fills a cell with its label: a single line for horizontal cells,
// a column of lines for vertical ones.
func CellText(text string, horizontal bool) string {
	if horizontal {
		return strings.Repeat(text+HorizontalSeparator, HorizontalRepeat)
	}
	return strings.Repeat(text+"\n", VerticalRepeat)
}

// Label picks the display text for a cell. Out-of-range labels fall back to
// the first text.
func Label(texts []string, label int) string {
	if len(texts) == 0 {
		return ""
	}
	if label < 0 || label >= len(texts) {
		label = 0
	}
	return texts[label]
}
