package voice

import (
	"fmt"

	"github.com/cbegin/gridpulse-go/internal/debug"
)

// Kind identifies the voice an event triggers.
type Kind int

const (
	KindNote Kind = iota
	KindKick
	KindClick
)

func (k Kind) String() string {
	switch k {
	case KindNote:
		return "note"
	case KindKick:
		return "kick"
	case KindClick:
		return "click"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Params carries the pitch and timbre inputs of an event. Fields not used by
// a kind are left zero.
type Params struct {
	Freq       float64 // note frequency in Hz, already clamped
	Tick       bool    // tick register (depth > 1)
	Depth      int
	CellIndex  int
	ChordIndex int

	FilterFreq float64 // click high-pass cutoff in Hz
	ReverbSend float64 // click reverb send level
	AvgDepth   float64 // mean depth of the pattern when the click fired
}

// Event is a fire-and-forget request to sound a voice at Time on the audio
// timeline.
type Event struct {
	Kind   Kind
	Time   float64
	Step   int64
	Params Params
}

// Renderer consumes scheduled events. Render must not block.
type Renderer interface {
	Render(ev Event)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Event)

func (f RendererFunc) Render(ev Event) { f(ev) }

// Fanout forwards each event to every renderer in order. A renderer that
// panics is skipped for that event only.
type Fanout []Renderer

func (f Fanout) Render(ev Event) {
	for _, r := range f {
		Safe(r, ev)
	}
}

// Safe renders ev on r, recovering and logging a panic. It reports whether
// the renderer returned normally.
func Safe(r Renderer, ev Event) (ok bool) {
	if r == nil {
		return false
	}
	defer func() {
		if p := recover(); p != nil {
			debug.Log("voice", "%s at %.3f dropped: %v", ev.Kind, ev.Time, p)
			ok = false
		}
	}()
	r.Render(ev)
	return true
}
