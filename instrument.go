package gridpulse

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	intanim "github.com/cbegin/gridpulse-go/internal/animator"
	intaudio "github.com/cbegin/gridpulse-go/internal/audio"
	"github.com/cbegin/gridpulse-go/internal/debug"
	intenv "github.com/cbegin/gridpulse-go/internal/envprobe"
	intpat "github.com/cbegin/gridpulse-go/internal/pattern"
	intsched "github.com/cbegin/gridpulse-go/internal/scheduler"
	inttempo "github.com/cbegin/gridpulse-go/internal/tempo"
	intvoice "github.com/cbegin/gridpulse-go/internal/voice"
)

// ErrClockUnavailable is returned by Activate when the audio backend could
// not be started. The instrument stays idle and Activate may be retried.
var ErrClockUnavailable = intsched.ErrClockUnavailable

// ErrSessionEnded is returned by Activate once Stop has ended the session.
var ErrSessionEnded = errors.New("gridpulse: session ended")

// Event is published on the Watch channel.
type Event struct {
	Kind       int // EventStep or EventRegenerated
	Step       int64
	Time       float64
	Generation uint64
	Density    float64
}

const (
	EventStep int = iota
	EventRegenerated
)

type Option func(*instrumentConfig)

type instrumentConfig struct {
	seed           int64
	deviceMemoryGB float64
	viewportWidth  int
	lookahead      float64
	wakeInterval   time.Duration
	masterGain     float64
	bpm            float64
	batteryLevel   float64
	hasBattery     bool
	batteryPoll    time.Duration
	startTime      time.Time
	renderers      []intvoice.Renderer
	sampleTap      func([]float32)
	probe          *intenv.Probe
}

func defaultInstrumentConfig() instrumentConfig {
	return instrumentConfig{
		seed:         time.Now().UnixNano(),
		lookahead:    intsched.DefaultLookahead,
		wakeInterval: intsched.DefaultWakeInterval,
		masterGain:   0.9,
		batteryPoll:  30 * time.Second,
	}
}

// WithSeed fixes the random stream that drives generation and event choice.
func WithSeed(seed int64) Option {
	return func(cfg *instrumentConfig) { cfg.seed = seed }
}

// WithDeviceMemory overrides the probed memory class in GB.
func WithDeviceMemory(gb float64) Option {
	return func(cfg *instrumentConfig) { cfg.deviceMemoryGB = gb }
}

// WithViewportWidth sets the view width in pixels. It is read once at
// activation.
func WithViewportWidth(width int) Option {
	return func(cfg *instrumentConfig) { cfg.viewportWidth = width }
}

func WithLookahead(seconds float64) Option {
	return func(cfg *instrumentConfig) { cfg.lookahead = seconds }
}

func WithWakeInterval(d time.Duration) Option {
	return func(cfg *instrumentConfig) { cfg.wakeInterval = d }
}

func WithMasterGain(gain float64) Option {
	return func(cfg *instrumentConfig) { cfg.masterGain = gain }
}

// WithFixedBPM pins the tempo and disables battery tracking. Zero keeps the
// battery-driven tempo.
func WithFixedBPM(bpm float64) Option {
	return func(cfg *instrumentConfig) { cfg.bpm = bpm }
}

// WithBatteryLevel seeds the tempo from a level in [0, 1] instead of the
// probe.
func WithBatteryLevel(level float64) Option {
	return func(cfg *instrumentConfig) {
		cfg.batteryLevel = level
		cfg.hasBattery = true
	}
}

func WithBatteryPoll(d time.Duration) Option {
	return func(cfg *instrumentConfig) { cfg.batteryPoll = d }
}

// WithStartTime sets the moment the reverb tail and display texts are
// derived from.
func WithStartTime(t time.Time) Option {
	return func(cfg *instrumentConfig) { cfg.startTime = t }
}

// WithRenderer adds a renderer that receives every event next to the synth.
func WithRenderer(r intvoice.Renderer) Option {
	return func(cfg *instrumentConfig) { cfg.renderers = append(cfg.renderers, r) }
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *instrumentConfig) { cfg.sampleTap = tap }
}

// WithProbe replaces the environment probe. A nil probe disables probing.
func WithProbe(p *intenv.Probe) Option {
	return func(cfg *instrumentConfig) { cfg.probe = p }
}

// Snapshot is what a view draws from.
type Snapshot struct {
	intpat.View
	Now     float64
	BPM     float64
	Running bool
	Ambient intsched.Ambient
	Texts   []string
}

type output interface {
	Play()
	Close() error
}

// Instrument is one session: pattern, tempo, scheduler and audio backend.
type Instrument struct {
	mu         sync.Mutex
	sampleRate int
	cfg        instrumentConfig
	rng        *rand.Rand
	pattern    *intpat.State
	tempo      *inttempo.Controller
	animator   *intanim.Animator
	env        intenv.Reading
	texts      []string
	now        func() time.Time
	ended      bool

	synth  *intvoice.Synth
	sched  *intsched.Scheduler
	out    output
	cancel context.CancelFunc
	group  *errgroup.Group

	eventCh   chan Event
	eventChMu sync.Mutex

	openOutput func(sampleRate int, src intaudio.Source) (output, error)
}

// tapSource forwards rendered buffers to an optional tap.
type tapSource struct {
	synth *intvoice.Synth
	tap   func([]float32)
}

func (s tapSource) Process(dst []float32) {
	s.synth.Process(dst)
	if s.tap != nil {
		s.tap(dst)
	}
}

// NewInstrument builds an idle instrument. The initial pattern exists right
// away so a view can draw before the first activation.
func NewInstrument(sampleRate int, opts ...Option) (*Instrument, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	cfg := defaultInstrumentConfig()
	cfg.probe = intenv.New()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.startTime.IsZero() {
		cfg.startTime = time.Now()
	}
	in := &Instrument{
		sampleRate: sampleRate,
		cfg:        cfg,
		openOutput: func(sr int, src intaudio.Source) (output, error) {
			return intaudio.Open(sr, src)
		},
		now: time.Now,
	}
	in.rng, in.pattern, in.tempo = newSession(cfg)
	in.animator = intanim.New(in.pattern)
	in.env = in.reading()
	in.texts = intenv.Texts(cfg.startTime, in.env)
	return in, nil
}

func newSession(cfg instrumentConfig) (*rand.Rand, *intpat.State, *inttempo.Controller) {
	rng := rand.New(rand.NewSource(cfg.seed))
	p := intpat.New(rng)
	t := inttempo.New()
	switch {
	case cfg.bpm > 0:
		t.SetBPM(cfg.bpm)
	case cfg.hasBattery:
		t.SetLevel(cfg.batteryLevel)
	}
	return rng, p, t
}

func synthParams(cfg instrumentConfig, r intenv.Reading) intvoice.SynthParams {
	params := intvoice.DefaultSynthParams()
	params.Seed = cfg.seed
	params.MasterGain = cfg.masterGain
	params.ReverbDecaySec = intvoice.ReverbDecayFor(cfg.startTime)
	params.ViewportWidth = r.ViewportWidth
	if r.HasMemory {
		params.DeviceMemoryGB = r.DeviceMemoryGB
	}
	return params
}

// reading merges probe results with the configured overrides.
func (in *Instrument) reading() intenv.Reading {
	var r intenv.Reading
	if in.cfg.probe != nil {
		r = in.cfg.probe.Read(in.cfg.viewportWidth)
	}
	if in.cfg.viewportWidth > 0 {
		r.ViewportWidth = in.cfg.viewportWidth
	}
	if r.ViewportWidth <= 0 {
		r.ViewportWidth = intvoice.ReferenceWidth
	}
	if in.cfg.deviceMemoryGB > 0 {
		r.DeviceMemoryGB = intenv.MemoryClass(in.cfg.deviceMemoryGB)
		r.HasMemory = true
	}
	if in.cfg.hasBattery {
		r.Battery, r.HasBattery = in.cfg.batteryLevel, true
	}
	return r
}

// Activate opens the audio backend and starts the scheduler. A second call
// while running is a no-op. On failure the instrument stays idle and
// Activate may be retried. After Stop it returns ErrSessionEnded.
func (in *Instrument) Activate(ctx context.Context) error {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.ended {
		return ErrSessionEnded
	}
	if in.sched != nil {
		return nil
	}

	r := in.reading()
	if in.cfg.bpm <= 0 && r.HasBattery {
		in.tempo.SetLevel(r.Battery)
	}
	synth := intvoice.NewSynth(in.sampleRate, synthParams(in.cfg, r))
	out, err := in.openOutput(in.sampleRate, tapSource{synth: synth, tap: in.cfg.sampleTap})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrClockUnavailable, err)
	}

	renderers := append(intvoice.Fanout{synth}, in.cfg.renderers...)
	sched := intsched.New(in.pattern, in.tempo, renderers, in.rng, intsched.Options{
		Lookahead:    in.cfg.lookahead,
		WakeInterval: in.cfg.wakeInterval,
		OnStep: func(s intsched.Step) {
			in.sendEvent(Event{Kind: EventStep, Step: s.Index, Time: s.Time})
		},
		OnRegenerate: func(gen uint64, density float64) {
			in.refreshTexts()
			in.sendEvent(Event{Kind: EventRegenerated, Generation: gen, Density: density})
		},
	})
	if err := sched.Activate(synth); err != nil {
		_ = out.Close()
		return err
	}
	out.Play()

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return sched.Run(gctx) })
	if in.cfg.bpm <= 0 && !in.cfg.hasBattery && in.cfg.probe != nil {
		probe := in.cfg.probe
		g.Go(func() error {
			return probe.WatchBattery(gctx, in.cfg.batteryPoll, in.tempo.SetLevel)
		})
	}

	in.synth, in.sched, in.out = synth, sched, out
	in.cancel, in.group = cancel, g
	in.env = r
	in.texts = intenv.Texts(in.cfg.startTime, r)
	debug.Log("instrument", "activated: %d Hz, %.1f BPM, %d cells", in.sampleRate, in.tempo.BPM(), in.pattern.Len())
	return nil
}

// Stop halts the scheduler and closes the audio backend, ending the session.
// Stopping an idle instrument is a no-op.
func (in *Instrument) Stop() error {
	in.mu.Lock()
	if in.sched == nil {
		in.mu.Unlock()
		return nil
	}
	in.ended = true
	cancel, g, out := in.cancel, in.group, in.out
	in.sched, in.synth, in.out, in.cancel, in.group = nil, nil, nil, nil, nil
	in.mu.Unlock()

	cancel()
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func (in *Instrument) Running() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sched != nil && in.sched.Status() == intsched.Running
}

// Now returns the audio clock, or 0 while idle.
func (in *Instrument) Now() float64 {
	in.mu.Lock()
	synth := in.synth
	in.mu.Unlock()
	if synth == nil {
		return 0
	}
	return synth.Now()
}

// SetViewportWidth records the view width used by the next activation.
func (in *Instrument) SetViewportWidth(width int) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if width > 0 {
		in.cfg.viewportWidth = width
	}
}

// SetBatteryLevel updates the tempo from a level in [0, 1]. It is ignored
// when the tempo is fixed.
func (in *Instrument) SetBatteryLevel(level float64) {
	if in.FixedTempo() {
		return
	}
	in.tempo.SetLevel(level)
}

// FixedTempo reports whether WithFixedBPM pinned the tempo.
func (in *Instrument) FixedTempo() bool {
	return in.cfg.bpm > 0
}

func (in *Instrument) BPM() float64 {
	return in.tempo.BPM()
}

// Frame advances the scrolling of every cell by one display frame.
func (in *Instrument) Frame() uint64 {
	return in.animator.Frame()
}

func (in *Instrument) Snapshot() Snapshot {
	in.mu.Lock()
	sched, synth, texts := in.sched, in.synth, in.texts
	in.mu.Unlock()

	s := Snapshot{
		View:  in.pattern.Snapshot(),
		BPM:   in.tempo.BPM(),
		Texts: texts,
	}
	if sched != nil {
		s.Running = sched.Status() == intsched.Running
		s.Ambient = sched.Ambient()
	}
	if synth != nil {
		s.Now = synth.Now()
	}
	return s
}

// refreshTexts recomputes the display texts for a new generation.
func (in *Instrument) refreshTexts() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.texts = intenv.Texts(in.now(), in.env)
}

// Watch returns a channel that receives step and regeneration events.
// The channel is buffered (cap 64); receive in a goroutine. Events are
// dropped when it is full. Only the most recent Watch channel receives events.
func (in *Instrument) Watch() <-chan Event {
	ch := make(chan Event, 64)
	in.eventChMu.Lock()
	in.eventCh = ch
	in.eventChMu.Unlock()
	return ch
}

func (in *Instrument) sendEvent(ev Event) {
	in.eventChMu.Lock()
	ch := in.eventCh
	in.eventChMu.Unlock()
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
