package effects

// HighPass is a one-pole high-pass filter on a mono signal. The cutoff can
// be moved per voice without resetting state.
type HighPass struct {
	sampleRate int
	alpha      float32
	lp         float32
}

// NewHighPass creates a high-pass filter. cutoff is clamped to
// [20, sampleRate/2).
func NewHighPass(sampleRate int, cutoff float64) *HighPass {
	h := &HighPass{sampleRate: sampleRate}
	h.SetCutoff(cutoff)
	return h
}

func (h *HighPass) SetCutoff(cutoff float64) {
	nyquist := float64(h.sampleRate) / 2
	if cutoff < 20 {
		cutoff = 20
	}
	if cutoff >= nyquist {
		cutoff = nyquist - 1
	}
	h.alpha = onePoleAlpha(h.sampleRate, cutoff)
}

// Step filters one sample.
func (h *HighPass) Step(x float32) float32 {
	h.lp += h.alpha * (x - h.lp)
	return x - h.lp
}

func (h *HighPass) Reset() { h.lp = 0 }

// DCBlock removes DC offset from a stereo signal with a 20 Hz high-pass per
// channel.
type DCBlock struct {
	l, r *HighPass
}

func NewDCBlock(sampleRate int) *DCBlock {
	return &DCBlock{l: NewHighPass(sampleRate, 20), r: NewHighPass(sampleRate, 20)}
}

func (d *DCBlock) Process(l, r float32) (float32, float32) {
	return d.l.Step(l), d.r.Step(r)
}

func (d *DCBlock) Reset() {
	d.l.Reset()
	d.r.Reset()
}
