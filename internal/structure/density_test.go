package structure

import (
	"math"
	"math/rand"
	"testing"
)

func TestStepDensityStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := InitialDensity
	for i := 0; i < 10000; i++ {
		next := StepDensity(d, rng)
		if next < MinDensity || next > MaxDensity {
			t.Fatalf("step %d: density %f out of range", i, next)
		}
		if math.Abs(next-d) > DensityStep/2+1e-12 {
			t.Fatalf("step %d: moved %f, limit %f", i, next-d, DensityStep/2)
		}
		d = next
	}
}

func TestStepDensityClamps(t *testing.T) {
	cases := []struct {
		name    string
		current float64
		draw    float64
		want    float64
	}{
		{"centre draw keeps value", 0.4, 0.5, 0.4},
		{"low draw clamps at min", 0.15, 0.0, MinDensity},
		{"high draw clamps at max", 0.75, 0.99, MaxDensity},
		{"high draw moves up", 0.4, 0.75, 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := StepDensity(tc.current, &scriptRand{vals: []float64{tc.draw}})
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("StepDensity(%v) with draw %v = %v, want %v", tc.current, tc.draw, got, tc.want)
			}
		})
	}
}

func TestStepDensityDeterministicForSeed(t *testing.T) {
	a := rand.New(rand.NewSource(99))
	b := rand.New(rand.NewSource(99))
	da, db := InitialDensity, InitialDensity
	for i := 0; i < 64; i++ {
		da = StepDensity(da, a)
		db = StepDensity(db, b)
		if da != db {
			t.Fatalf("step %d diverged: %v vs %v", i, da, db)
		}
	}
}
