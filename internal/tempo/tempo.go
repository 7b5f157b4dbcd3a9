package tempo

import (
	"math"
	"sync/atomic"
)

// DefaultBPM is used until the environment reports a level.
const DefaultBPM = 120.0

// BPM range spanned by a level in [0, 1].
const (
	MinBPM   = 60.0
	BPMRange = 60.0
)

// StepsPerBeat sets sixteenth-note resolution.
const StepsPerBeat = 4

// Controller holds the current tempo. It is safe for concurrent use: the
// environment probe writes, the scheduler reads on every wake.
type Controller struct {
	bpm uint64
}

func New() *Controller {
	return &Controller{bpm: math.Float64bits(DefaultBPM)}
}

// SetLevel maps a normalised battery-like level to BPM = 60 + 60·level.
func (c *Controller) SetLevel(level float64) {
	if math.IsNaN(level) {
		return
	}
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	c.SetBPM(MinBPM + BPMRange*level)
}

// SetBPM overrides the tempo directly. Non-positive values are ignored.
func (c *Controller) SetBPM(bpm float64) {
	if bpm <= 0 || math.IsNaN(bpm) || math.IsInf(bpm, 0) {
		return
	}
	atomic.StoreUint64(&c.bpm, math.Float64bits(bpm))
}

func (c *Controller) BPM() float64 {
	return math.Float64frombits(atomic.LoadUint64(&c.bpm))
}

// StepDuration returns the length of one step in seconds.
func (c *Controller) StepDuration() float64 {
	return StepDuration(c.BPM())
}

// StepDuration returns 60 / bpm / StepsPerBeat.
func StepDuration(bpm float64) float64 {
	return 60 / bpm / StepsPerBeat
}
