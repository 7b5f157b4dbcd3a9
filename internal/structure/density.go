package structure

// Density bounds and the maximum random-walk excursion per regeneration.
const (
	MinDensity     = 0.1
	MaxDensity     = 0.8
	DensityStep    = 0.4 // full width of the perturbation, centred on zero
	InitialDensity = 0.4
)

// StepDensity random-walks current by a perturbation drawn uniformly from
// [-0.2, +0.2) and clamps the result to [MinDensity, MaxDensity].
func StepDensity(current float64, rng Rand) float64 {
	change := (rng.Float64() - 0.5) * DensityStep
	return clampDensity(current + change)
}

func clampDensity(v float64) float64 {
	if v < MinDensity {
		return MinDensity
	}
	if v > MaxDensity {
		return MaxDensity
	}
	return v
}
