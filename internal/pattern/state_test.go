package pattern

import (
	"math"
	"math/rand"
	"testing"

	"github.com/cbegin/gridpulse-go/internal/structure"
)

func TestNewStateHasInitialPattern(t *testing.T) {
	s := New(rand.New(rand.NewSource(1)))
	if s.Generation() != 1 {
		t.Fatalf("generation = %d, want 1", s.Generation())
	}
	if n := s.Len(); n < structure.RootCount || n > structure.MaxCells() {
		t.Fatalf("initial cell count %d out of range", n)
	}
	if d := s.Density(); d < structure.MinDensity || d > structure.MaxDensity {
		t.Fatalf("initial density %f out of range", d)
	}
	step, at := s.Cursor()
	if step != 0 || at != 0 {
		t.Fatalf("cursor = (%d, %f), want (0, 0)", step, at)
	}
}

func TestRegeneratePersistsCountersAndBumpsGeneration(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	s := New(rng)
	s.StartAt(1.5)
	s.Advance(0.125)
	s.AdvanceChord()
	before := s.Density()

	gen := s.Regenerate(rng)
	if gen != 2 {
		t.Fatalf("generation = %d, want 2", gen)
	}
	step, at := s.Cursor()
	if step != 1 || at != 1.625 {
		t.Fatalf("cursor = (%d, %f) after regeneration", step, at)
	}
	if s.ChordIndex() != 1 {
		t.Fatalf("chord index reset by regeneration")
	}
	if d := s.Density(); math.Abs(d-before) > structure.DensityStep/2+1e-12 {
		t.Fatalf("density moved from %f to %f", before, d)
	}
}

func TestAdvanceChordWraps(t *testing.T) {
	s := New(rand.New(rand.NewSource(3)))
	for i := 1; i <= len(Chords)*2; i++ {
		if got, want := s.AdvanceChord(), i%len(Chords); got != want {
			t.Fatalf("advance %d: chord %d, want %d", i, got, want)
		}
	}
}

func TestStepCellIndexIsAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	s := New(rng)
	for step := int64(0); step < 2000; step++ {
		if step%97 == 0 {
			s.Regenerate(rng)
		}
		ref, cell, ok := s.StepCell(step)
		if !ok {
			t.Fatalf("step %d: empty pattern", step)
		}
		n := s.Len()
		if ref.Index < 0 || ref.Index >= n || int64(ref.Index) != step%int64(n) {
			t.Fatalf("step %d: index %d for %d cells", step, ref.Index, n)
		}
		if cell.Depth < 0 || cell.Depth > structure.MaxDepth {
			t.Fatalf("step %d: bad cell %+v", step, cell)
		}
	}
}

func TestStepCellEmptyPattern(t *testing.T) {
	var s State
	if _, _, ok := s.StepCell(5); ok {
		t.Fatalf("expected no cell on an empty pattern")
	}
	if avg, n := s.Stats(); avg != 0 || n != 0 {
		t.Fatalf("Stats on empty = (%f, %d)", avg, n)
	}
}

func TestFlashIgnoresStaleGeneration(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	s := New(rng)
	ref, _, _ := s.StepCell(0)
	if !s.Flash(ref, 1.0) {
		t.Fatalf("flash on current generation should apply")
	}
	if got := s.Snapshot().FlashUntil[0]; got != 1.0 {
		t.Fatalf("flash until = %f, want 1", got)
	}
	s.Regenerate(rng)
	if s.Flash(ref, 2.0) {
		t.Fatalf("flash on a stale generation should be ignored")
	}
	if got := s.Snapshot().FlashUntil[0]; got != 0 {
		t.Fatalf("new generation starts flashed: %f", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New(rand.New(rand.NewSource(6)))
	v := s.Snapshot()
	v.Cells[0].ScrollOffset = 99
	if s.Snapshot().Cells[0].ScrollOffset != 0 {
		t.Fatalf("snapshot aliases pattern cells")
	}
	s.UpdateCells(func(c *structure.Cell) { c.ScrollOffset = -1 })
	if v.Cells[1].ScrollOffset != 0 {
		t.Fatalf("update leaked into an earlier snapshot")
	}
}

func TestSnapshotTreeDoesNotShareLiveCells(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := New(rng)
	if v := s.Snapshot(); v.Tree == nil || v.Tree.Cells != nil {
		t.Fatalf("tree cells = %v, want nil", v.Tree.Cells)
	}
	s.Regenerate(rng)
	v := s.Snapshot()
	if v.Tree.Cells != nil {
		t.Fatal("regenerated tree still holds the live cells")
	}
	if len(v.Cells) == 0 {
		t.Fatal("snapshot lost its cells")
	}
	for i, c := range v.Cells {
		if n := v.Tree.Node(c.Handle); n.Cell != i {
			t.Fatalf("cell %d handle points at node for cell %d", i, n.Cell)
		}
	}
}

func TestStartAtNeverRewinds(t *testing.T) {
	s := New(rand.New(rand.NewSource(8)))
	s.StartAt(1)
	for i := 0; i < 8; i++ {
		s.Advance(0.25)
	}
	s.StartAt(0)
	step, at := s.Cursor()
	if step != 8 || at != 3 {
		t.Fatalf("cursor = (%d, %v), want (8, 3)", step, at)
	}
	s.StartAt(5)
	if _, at := s.Cursor(); at != 5 {
		t.Fatalf("forward anchor ignored: %v", at)
	}
}

func TestNoteFrequency(t *testing.T) {
	cases := []struct {
		name                    string
		chord, cellIndex, depth int
		want                    float64
	}{
		{"tone register even", 0, 0, 0, 65.41 * 0.5},
		{"tone register odd depth 1", 0, 1, 1, 98.0 * 0.5},
		{"tick register depth 2", 1, 2, 2, 73.42 * 4},
		{"tick register depth 5", 2, 3, 5, 130.81 * 32},
		{"chord index wraps", 3, 0, 0, 65.41 * 0.5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NoteFrequency(tc.chord, tc.cellIndex, tc.depth)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("NoteFrequency = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClampFrequency(t *testing.T) {
	if got := ClampFrequency(50000); got != MaxFrequency {
		t.Fatalf("clamp high = %v", got)
	}
	if got := ClampFrequency(-3); got != 0 {
		t.Fatalf("clamp low = %v", got)
	}
	if got := ClampFrequency(math.NaN()); got != 0 {
		t.Fatalf("clamp NaN = %v", got)
	}
}
