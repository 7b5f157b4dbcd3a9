package pattern

import (
	"math"
	"sync"

	"github.com/cbegin/gridpulse-go/internal/structure"
)

// Chords lists the two base frequencies of each chord, cycled by the
// regeneration trigger.
var Chords = [][2]float64{
	{65.41, 98.0},
	{73.42, 110.0},
	{87.31, 130.81},
}

// MaxFrequency is the ceiling applied to every frequency handed to a renderer.
const MaxFrequency = 22000

// CellRef identifies a cell of one generation. It goes stale once the
// pattern regenerates.
type CellRef struct {
	Generation uint64
	Index      int
}

// View is a consistent copy of the pattern for readers outside the
// scheduler. Tree is shared and must not be modified; its Cells field is
// nil, the cells of the generation are in Cells.
type View struct {
	Generation uint64
	Tree       *structure.Tree
	Cells      []structure.Cell
	FlashUntil []float64
	Density    float64
	ChordIndex int
	GlobalStep int64
}

// State is the session-wide pattern. Every method takes the lock for the
// duration of a single read or mutation.
type State struct {
	mu           sync.Mutex
	generation   uint64
	tree         *structure.Tree
	cells        []structure.Cell
	flashUntil   []float64
	density      float64
	chordIndex   int
	globalStep   int64
	nextStepTime float64
}

// New builds the initial pattern: one density step from the initial density
// followed by one generation.
func New(rng structure.Rand) *State {
	s := &State{density: structure.InitialDensity}
	s.Regenerate(rng)
	return s
}

// Regenerate random-walks the density and replaces the cell sequence
// wholesale. It returns the new generation token.
func (s *State) Regenerate(rng structure.Rand) uint64 {
	s.mu.Lock()
	density := structure.StepDensity(s.density, rng)
	s.mu.Unlock()

	tree := structure.Generate(density, rng)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.density = density
	s.tree = tree
	s.cells = tree.Cells
	s.flashUntil = make([]float64, len(tree.Cells))
	tree.Cells = nil
	s.generation++
	return s.generation
}

func (s *State) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *State) Density() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.density
}

func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.cells)
}

func (s *State) ChordIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chordIndex
}

// AdvanceChord moves to the next chord and returns its index.
func (s *State) AdvanceChord() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chordIndex = (s.chordIndex + 1) % len(Chords)
	return s.chordIndex
}

// Cursor returns the step counter and the timestamp of the next
// unscheduled step.
func (s *State) Cursor() (step int64, at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.globalStep, s.nextStepTime
}

// StartAt anchors the next unscheduled step at an activation time. The step
// time never decreases: an anchor behind the cursor is ignored.
func (s *State) StartAt(at float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if at > s.nextStepTime {
		s.nextStepTime = at
	}
}

// Advance moves the cursor one step forward by stepLen.
func (s *State) Advance(stepLen float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextStepTime += stepLen
	s.globalStep++
}

// StepCell resolves the cell played at step against the current sequence.
// ok is false when the sequence is empty.
func (s *State) StepCell(step int64) (ref CellRef, cell structure.Cell, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.cells) == 0 {
		return CellRef{}, structure.Cell{}, false
	}
	idx := int(step % int64(len(s.cells)))
	return CellRef{Generation: s.generation, Index: idx}, s.cells[idx], true
}

// Stats returns the mean cell depth and the cell count.
func (s *State) Stats() (avgDepth float64, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.cells {
		total += c.Depth
	}
	n := len(s.cells)
	if n == 0 {
		return 0, 0
	}
	return float64(total) / float64(n), n
}

// Flash marks the referenced cell as triggered until the given audio time.
// A reference from an older generation is ignored and false is returned.
func (s *State) Flash(ref CellRef, until float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref.Generation != s.generation || ref.Index < 0 || ref.Index >= len(s.flashUntil) {
		return false
	}
	s.flashUntil[ref.Index] = until
	return true
}

// UpdateCells runs fn over every cell of the current generation. It is the
// write path of the visual animator.
func (s *State) UpdateCells(fn func(c *structure.Cell)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.cells {
		fn(&s.cells[i])
	}
}

// Snapshot copies the mutable parts of the pattern.
func (s *State) Snapshot() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	cells := make([]structure.Cell, len(s.cells))
	copy(cells, s.cells)
	flash := make([]float64, len(s.flashUntil))
	copy(flash, s.flashUntil)
	return View{
		Generation: s.generation,
		Tree:       s.tree,
		Cells:      cells,
		FlashUntil: flash,
		Density:    s.density,
		ChordIndex: s.chordIndex,
		GlobalStep: s.globalStep,
	}
}

// NoteFrequency applies the pitch rule: the chord's base frequency picked by
// cell index parity, raised 2^depth in the tick register (depth > 1) or
// dropped an octave in the tone register. The result is clamped to
// [0, MaxFrequency].
func NoteFrequency(chordIndex, cellIndex, depth int) float64 {
	chord := Chords[((chordIndex%len(Chords))+len(Chords))%len(Chords)]
	base := chord[cellIndex%2]
	var freq float64
	if TickRegister(depth) {
		freq = base * math.Pow(2, float64(depth))
	} else {
		freq = base * 0.5
	}
	return ClampFrequency(freq)
}

// TickRegister reports whether a cell at depth plays in the tick register.
func TickRegister(depth int) bool {
	return depth > 1
}

// ClampFrequency limits f to [0, MaxFrequency].
func ClampFrequency(f float64) float64 {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > MaxFrequency {
		return MaxFrequency
	}
	return f
}
