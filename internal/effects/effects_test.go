package effects

import (
	"math"
	"testing"
)

func TestReverbProducesTail(t *testing.T) {
	r := NewReverb(44100, 2.0)
	r.Process(1.0, 1.0)
	var maxL, maxR float32
	for i := 0; i < 20000; i++ {
		l, rr := r.Process(0, 0)
		if l > maxL {
			maxL = l
		}
		if rr > maxR {
			maxR = rr
		}
	}
	if maxL < 0.001 || maxR < 0.001 {
		t.Fatalf("expected reverb tail on both channels, got %f/%f", maxL, maxR)
	}
}

func TestReverbLongerDecayRingsLonger(t *testing.T) {
	energyAfter := func(decay float64) float64 {
		r := NewReverb(44100, decay)
		r.Process(1, 1)
		var e float64
		for i := 0; i < 44100; i++ {
			l, _ := r.Process(0, 0)
			if i > 22050 {
				e += float64(l * l)
			}
		}
		return e
	}
	short, long := energyAfter(0.3), energyAfter(4.0)
	if long <= short {
		t.Fatalf("long decay energy %g should exceed short %g", long, short)
	}
}

func TestReverbResetSilences(t *testing.T) {
	r := NewReverb(44100, 3)
	for i := 0; i < 1000; i++ {
		r.Process(0.5, 0.5)
	}
	r.Reset()
	for i := 0; i < 5000; i++ {
		if l, rr := r.Process(0, 0); l != 0 || rr != 0 {
			t.Fatalf("output after reset at %d: %f/%f", i, l, rr)
		}
	}
}

func TestHighPassRemovesDC(t *testing.T) {
	h := NewHighPass(44100, 2000)
	var out float32
	for i := 0; i < 2000; i++ {
		out = h.Step(1)
	}
	if math.Abs(float64(out)) > 0.01 {
		t.Fatalf("DC should be removed, got %f", out)
	}
}

func TestHighPassPassesAlternatingSignal(t *testing.T) {
	h := NewHighPass(44100, 2000)
	var peak float32
	for i := 0; i < 2000; i++ {
		x := float32(1)
		if i%2 == 1 {
			x = -1
		}
		if y := h.Step(x); y > peak {
			peak = y
		}
	}
	if peak < 0.5 {
		t.Fatalf("nyquist signal attenuated to %f", peak)
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	var out float32
	for i := 0; i < 1000; i++ {
		out, _ = c.Process(1.0, 1.0)
	}
	if out >= 1.0 {
		t.Errorf("compressor should reduce loud signals, got %f", out)
	}
}

func TestCompressorLinksChannels(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	var l, r float32
	for i := 0; i < 1000; i++ {
		l, r = c.Process(1.0, 0.1)
	}
	if math.Abs(float64(l/r)-10) > 1e-3 {
		t.Fatalf("stereo ratio changed: l=%f r=%f", l, r)
	}
}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	c := NewChain(NewCompressor(44100, -6, 2, 1, 50, 0))
	c.Add(NewReverb(44100, 1))
	if c.Len() != 2 {
		t.Fatalf("chain length = %d", c.Len())
	}
	for i := 0; i < 3000; i++ {
		c.Process(0.5, 0.5)
	}
	if l, r := c.Process(0, 0); l == 0 && r == 0 {
		t.Error("chain should still be ringing")
	}
}

func TestDCBlockCentresBothChannels(t *testing.T) {
	d := NewDCBlock(44100)
	var l, r float32
	for i := 0; i < 20000; i++ {
		l, r = d.Process(0.5, -0.5)
	}
	if math.Abs(float64(l)) > 0.05 || math.Abs(float64(r)) > 0.05 {
		t.Fatalf("offset left: l=%f r=%f", l, r)
	}
	d.Reset()
	if l, _ := d.Process(0.5, 0); l < 0.49 {
		t.Fatalf("reset state: first sample %f, want about 0.5", l)
	}
}
