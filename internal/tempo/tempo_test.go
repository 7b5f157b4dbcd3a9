package tempo

import (
	"math"
	"testing"
)

func TestDefaultTempo(t *testing.T) {
	c := New()
	if c.BPM() != DefaultBPM {
		t.Fatalf("default BPM = %v, want %v", c.BPM(), DefaultBPM)
	}
	if got := c.StepDuration(); got != 0.125 {
		t.Fatalf("step at 120 BPM = %v, want 0.125", got)
	}
}

func TestSetLevelMapsToBPM(t *testing.T) {
	cases := []struct {
		level float64
		want  float64
	}{
		{0, 60},
		{0.5, 90},
		{1, 120},
		{-0.3, 60},
		{1.7, 120},
	}
	c := New()
	for _, tc := range cases {
		c.SetLevel(tc.level)
		if got := c.BPM(); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("SetLevel(%v) BPM = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestSetLevelIgnoresNaN(t *testing.T) {
	c := New()
	c.SetLevel(0.25)
	c.SetLevel(math.NaN())
	if got := c.BPM(); got != 75 {
		t.Fatalf("BPM = %v after NaN level, want 75", got)
	}
}

func TestSetBPMRejectsInvalid(t *testing.T) {
	c := New()
	c.SetBPM(0)
	c.SetBPM(-10)
	c.SetBPM(math.Inf(1))
	if c.BPM() != DefaultBPM {
		t.Fatalf("invalid BPM accepted: %v", c.BPM())
	}
	c.SetBPM(60)
	if got := c.StepDuration(); got != 0.25 {
		t.Fatalf("step at 60 BPM = %v, want 0.25", got)
	}
}
