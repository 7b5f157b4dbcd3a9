package scheduler

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/gridpulse-go/internal/animator"
	"github.com/cbegin/gridpulse-go/internal/debug"
	"github.com/cbegin/gridpulse-go/internal/pattern"
	"github.com/cbegin/gridpulse-go/internal/structure"
	"github.com/cbegin/gridpulse-go/internal/tempo"
	"github.com/cbegin/gridpulse-go/internal/voice"
)

var (
	// ErrClockUnavailable is returned by Activate when no audio clock exists.
	ErrClockUnavailable = errors.New("scheduler: audio clock unavailable")
	// ErrIdle is returned by Run before a successful Activate.
	ErrIdle = errors.New("scheduler: not running")
)

// Defaults for the lookahead loop.
const (
	DefaultLookahead    = 0.1
	DefaultWakeInterval = 25 * time.Millisecond
)

// Event selection constants.
const (
	ClickProbability = 0.3
	ClickJitter      = 0.05
	KickEvery        = 4
	RegenerateEvery  = 32
)

// Click filter mapping: base cutoff plus a share per root fan-out of cells
// plus random spread.
const (
	clickBaseFreq    = 2000.0
	clickFreqPerFan  = 4000.0
	clickFreqSpread  = 500.0
	clickMaxSend     = 0.5
	clickSendPerDeep = 0.1
)

// Clock reports the audio timeline in seconds.
type Clock interface {
	Now() float64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() float64

func (f ClockFunc) Now() float64 { return f() }

// Status is the scheduler's lifecycle state.
type Status int32

const (
	Idle Status = iota
	Running
)

func (s Status) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Ambient is the derived signal refreshed by every click: the mean cell
// depth and the filter/reverb values it produced.
type Ambient struct {
	AvgDepth   float64
	Cells      int
	FilterFreq float64
	ReverbSend float64
}

// Step describes one processed step, reported to Options.OnStep.
type Step struct {
	Index int64
	Time  float64
	Len   float64
}

type Options struct {
	Lookahead    float64       // seconds ahead of the clock to fill; 0 = DefaultLookahead
	WakeInterval time.Duration // Run's wake cadence; 0 = DefaultWakeInterval
	OnStep       func(Step)
	OnRegenerate func(generation uint64, density float64)
}

// Scheduler advances musical time against the audio clock and dispatches
// events ahead of it. Tick and Run must be driven from a single goroutine;
// the pattern and tempo it reads are safe to share.
type Scheduler struct {
	pattern  *pattern.State
	tempo    *tempo.Controller
	renderer voice.Renderer
	rng      structure.Rand
	opts     Options

	status   atomic.Int32
	clock    Clock
	deferred deferredQueue

	ambientMu sync.Mutex
	ambient   Ambient
}

func New(p *pattern.State, t *tempo.Controller, r voice.Renderer, rng structure.Rand, opts Options) *Scheduler {
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.WakeInterval <= 0 {
		opts.WakeInterval = DefaultWakeInterval
	}
	return &Scheduler{
		pattern:  p,
		tempo:    t,
		renderer: r,
		rng:      rng,
		opts:     opts,
	}
}

// Activate moves the scheduler from Idle to Running and anchors the next
// step at the clock's current time, or leaves it where it is when the
// pattern is already further along. Activating twice is a no-op; a nil clock
// leaves the scheduler Idle so activation can be retried.
func (s *Scheduler) Activate(clock Clock) error {
	if clock == nil {
		return ErrClockUnavailable
	}
	if Status(s.status.Load()) == Running {
		return nil
	}
	s.clock = clock
	s.pattern.StartAt(clock.Now())
	s.status.Store(int32(Running))
	debug.Log("sched", "activated at %.3f, %.1f BPM", clock.Now(), s.tempo.BPM())
	return nil
}

func (s *Scheduler) Status() Status {
	return Status(s.status.Load())
}

// Ambient returns the values produced by the most recent click.
func (s *Scheduler) Ambient() Ambient {
	s.ambientMu.Lock()
	defer s.ambientMu.Unlock()
	return s.ambient
}

// PendingTasks returns the number of deferred regeneration and flash tasks
// not yet due.
func (s *Scheduler) PendingTasks() int {
	return s.deferred.Len()
}

// Run wakes every WakeInterval until ctx is done. It never stops on its own.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.Status() != Running {
		return ErrIdle
	}
	ticker := time.NewTicker(s.opts.WakeInterval)
	defer ticker.Stop()

	s.Tick()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick performs one wake-up: deferred tasks due by now run first, then every
// step whose time falls inside the lookahead window is processed in order.
// The step length is read once per wake so a tempo change lands on the next
// unscheduled step.
func (s *Scheduler) Tick() {
	if s.Status() != Running {
		return
	}
	now := s.clock.Now()
	s.deferred.RunDue(now)

	stepLen := s.tempo.StepDuration()
	horizon := now + s.opts.Lookahead
	for {
		step, at := s.pattern.Cursor()
		if at >= horizon {
			return
		}
		s.processStep(step, at)
		s.pattern.Advance(stepLen)
		if s.opts.OnStep != nil {
			s.opts.OnStep(Step{Index: step, Time: at, Len: stepLen})
		}
	}
}

func (s *Scheduler) processStep(step int64, at float64) {
	// The click draw happens every step so the random stream does not depend
	// on step parity.
	hit := s.rng.Float64() < ClickProbability
	if step%2 != 0 && hit {
		jitter := s.rng.Float64() * ClickJitter
		s.dispatch(voice.Event{Kind: voice.KindClick, Time: at + jitter, Step: step, Params: s.clickParams()})
	}

	if step%KickEvery == 0 {
		s.dispatch(voice.Event{Kind: voice.KindKick, Time: at, Step: step})
	}

	if step%RegenerateEvery == 0 {
		s.pattern.AdvanceChord()
		s.deferred.Add(at, s.regenerate)
	}

	ref, cell, ok := s.pattern.StepCell(step)
	if !ok {
		return
	}
	chord := s.pattern.ChordIndex()
	s.dispatch(voice.Event{
		Kind: voice.KindNote,
		Time: at,
		Step: step,
		Params: voice.Params{
			Freq:       pattern.NoteFrequency(chord, ref.Index, cell.Depth),
			Tick:       pattern.TickRegister(cell.Depth),
			Depth:      cell.Depth,
			CellIndex:  ref.Index,
			ChordIndex: chord,
		},
	})
	until := at + animator.FlashDuration
	s.deferred.Add(at, func() { s.pattern.Flash(ref, until) })
}

func (s *Scheduler) clickParams() voice.Params {
	avg, n := s.pattern.Stats()
	freq := clickBaseFreq + float64(n)/float64(structure.RootCount)*clickFreqPerFan + s.rng.Float64()*clickFreqSpread
	freq = pattern.ClampFrequency(freq)
	send := math.Min(clickMaxSend, avg*clickSendPerDeep)

	s.ambientMu.Lock()
	s.ambient = Ambient{AvgDepth: avg, Cells: n, FilterFreq: freq, ReverbSend: send}
	s.ambientMu.Unlock()

	return voice.Params{FilterFreq: freq, ReverbSend: send, AvgDepth: avg}
}

func (s *Scheduler) regenerate() {
	gen := s.pattern.Regenerate(s.rng)
	density := s.pattern.Density()
	debug.Log("sched", "regenerated gen=%d density=%.3f cells=%d", gen, density, s.pattern.Len())
	if s.opts.OnRegenerate != nil {
		s.opts.OnRegenerate(gen, density)
	}
}

func (s *Scheduler) dispatch(ev voice.Event) {
	voice.Safe(s.renderer, ev)
}
