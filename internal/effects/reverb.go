package effects

import "math"

// Reverb is a Schroeder-style send reverb: four parallel comb filters into
// two allpass filters, returned 100% wet. The comb feedback is derived from
// the requested decay time so that the tail falls by 60 dB over decaySec.
type Reverb struct {
	combs   [4]combFilter
	allpass [2]allpassFilter
	spread  int
	delayR  []float32
	posR    int
}

type combFilter struct {
	buf []float32
	pos int
	fb  float32
	lp  float32 // damping state
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

// Comb delay lengths in seconds, mutually prime-ish to avoid resonances.
var combDelays = [4]float64{0.0297, 0.0371, 0.0411, 0.0437}

var allpassDelays = [2]float64{0.005, 0.0017}

// NewReverb creates a reverb whose tail lasts about decaySec seconds.
func NewReverb(sampleRate int, decaySec float64) *Reverb {
	if decaySec < 0.1 {
		decaySec = 0.1
	}
	r := &Reverb{spread: sampleRate / 1000 * 7}
	for i := range r.combs {
		n := maxInt(int(combDelays[i]*float64(sampleRate)), 1)
		fb := math.Pow(10, -3*combDelays[i]/decaySec)
		r.combs[i] = combFilter{
			buf: make([]float32, n),
			fb:  clamp(float32(fb), 0, 0.98),
		}
	}
	for i := range r.allpass {
		r.allpass[i] = allpassFilter{
			buf: make([]float32, maxInt(int(allpassDelays[i]*float64(sampleRate)), 1)),
			fb:  0.5,
		}
	}
	r.delayR = make([]float32, maxInt(r.spread, 1))
	return r
}

// Process takes the send signal and returns the wet stereo return. The right
// channel is delayed slightly for width.
func (r *Reverb) Process(l, r2 float32) (float32, float32) {
	mono := (l + r2) * 0.5
	var out float32
	for i := range r.combs {
		out += r.combs[i].process(mono)
	}
	out *= 0.25
	for i := range r.allpass {
		out = r.allpass[i].process(out)
	}
	right := r.delayR[r.posR]
	r.delayR[r.posR] = out
	r.posR++
	if r.posR >= len(r.delayR) {
		r.posR = 0
	}
	return out, right
}

func (r *Reverb) Reset() {
	for i := range r.combs {
		clear(r.combs[i].buf)
		r.combs[i].pos = 0
		r.combs[i].lp = 0
	}
	for i := range r.allpass {
		clear(r.allpass[i].buf)
		r.allpass[i].pos = 0
	}
	clear(r.delayR)
	r.posR = 0
}

func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.lp += 0.3 * (out - c.lp)
	c.buf[c.pos] = in + c.lp*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
