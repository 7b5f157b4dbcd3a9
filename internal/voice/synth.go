package voice

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/gridpulse-go/internal/debug"
	"github.com/cbegin/gridpulse-go/internal/effects"
)

const twoPi = math.Pi * 2

// Voice envelope timings in seconds.
const (
	noteAttack   = 0.01
	noteDecayEnd = 0.3
	noteStop     = 0.4
	notePeak     = 0.1

	kickSweep    = 0.12
	kickDecay    = 0.45
	kickStop     = 0.5
	kickPeak     = 0.7
	kickEndFreq  = 35.0
	kickBaseFreq = 130.0

	clickNoise = 0.02
	clickDecay = 0.03
	clickPeak  = 0.1

	envFloor = 0.001
)

// ReferenceWidth is the viewport width at which the kick plays at its base
// pitch.
const ReferenceWidth = 1920

// SynthParams configures the sample renderer.
type SynthParams struct {
	DeviceMemoryGB float64 // below 4 selects sawtooth notes
	ViewportWidth  int     // scales kick pitch
	ReverbDecaySec float64
	MasterGain     float64
	Seed           int64
}

func DefaultSynthParams() SynthParams {
	return SynthParams{
		DeviceMemoryGB: 8,
		ViewportWidth:  ReferenceWidth,
		ReverbDecaySec: ReverbDecayFor(time.Now()),
		MasterGain:     0.9,
		Seed:           1,
	}
}

// ReverbDecayFor derives the reverb tail length from the second of the
// minute: one second plus up to four more.
func ReverbDecayFor(t time.Time) float64 {
	return 1.0 + float64(t.Second())/60.0*4.0
}

// Waveform is the oscillator shape of a note voice.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSawtooth
)

// NoteWaveform picks the note oscillator from device memory and register.
func NoteWaveform(deviceMemoryGB float64, tick bool) Waveform {
	if deviceMemoryGB < 4 {
		return WaveSawtooth
	}
	if tick {
		return WaveSquare
	}
	return WaveSine
}

// KickFrequency returns the kick's starting pitch for a viewport width.
func KickFrequency(width int) float64 {
	if width <= 0 {
		width = ReferenceWidth
	}
	f := kickBaseFreq * float64(width) / ReferenceWidth
	if f < 1 {
		f = 1
	}
	if f > 22000 {
		f = 22000
	}
	return f
}

type scheduled struct {
	start int64
	ev    Event
}

type voiceState struct {
	kind  Kind
	start int64
	wave  Waveform
	freq  float64
	phase float64
	send  float32
	hp    *effects.HighPass
	noise []float32
}

// Synth renders scheduled events into interleaved stereo float32 frames. Its
// rendered frame count is the audio clock the scheduler runs against.
type Synth struct {
	mu         sync.Mutex
	sampleRate int
	params     SynthParams
	pending    []scheduled
	voices     []voiceState
	frame      atomic.Int64
	masterGain uint64
	reverb     *effects.Reverb
	master     *effects.Chain
	noise      *rand.Rand
}

func NewSynth(sampleRate int, params SynthParams) *Synth {
	if params.DeviceMemoryGB <= 0 {
		params.DeviceMemoryGB = 8
	}
	if params.ViewportWidth <= 0 {
		params.ViewportWidth = ReferenceWidth
	}
	if params.ReverbDecaySec <= 0 {
		params.ReverbDecaySec = 1
	}
	s := &Synth{
		sampleRate: sampleRate,
		params:     params,
		reverb:     effects.NewReverb(sampleRate, params.ReverbDecaySec),
		master:     effects.NewChain(effects.NewDCBlock(sampleRate), effects.NewCompressor(sampleRate, -6, 4, 2, 120, 0)),
		noise:      rand.New(rand.NewSource(params.Seed)),
	}
	s.SetMasterGain(params.MasterGain)
	return s
}

// Now returns the audio clock in seconds.
func (s *Synth) Now() float64 {
	return float64(s.frame.Load()) / float64(s.sampleRate)
}

func (s *Synth) SampleRate() int { return s.sampleRate }

// Render queues ev at its timestamp. Events already in the past start on the
// next rendered frame.
func (s *Synth) Render(ev Event) {
	start := int64(math.Round(ev.Time * float64(s.sampleRate)))
	if now := s.frame.Load(); start < now {
		debug.LogEvery(64, "synth", "late %s by %d frames", ev.Kind, now-start)
		start = now
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := sort.Search(len(s.pending), func(i int) bool { return s.pending[i].start > start })
	s.pending = append(s.pending, scheduled{})
	copy(s.pending[i+1:], s.pending[i:])
	s.pending[i] = scheduled{start: start, ev: ev}
}

// Pending returns the number of queued events not yet started.
func (s *Synth) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// ActiveVoiceCount returns the number of voices still sounding.
func (s *Synth) ActiveVoiceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.voices)
}

func (s *Synth) SetMasterGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	atomic.StoreUint64(&s.masterGain, math.Float64bits(gain))
}

func (s *Synth) MasterGain() float64 {
	return math.Float64frombits(atomic.LoadUint64(&s.masterGain))
}

// Process renders len(dst)/2 stereo frames and advances the clock.
func (s *Synth) Process(dst []float32) {
	frames := len(dst) / 2
	base := s.frame.Load()
	end := base + int64(frames)

	s.mu.Lock()
	n := sort.Search(len(s.pending), func(i int) bool { return s.pending[i].start >= end })
	due := make([]scheduled, n)
	copy(due, s.pending[:n])
	s.pending = s.pending[n:]
	voices := s.voices
	s.mu.Unlock()

	gain := float32(s.MasterGain())
	sr := float64(s.sampleRate)
	for f := 0; f < frames; f++ {
		now := base + int64(f)
		for len(due) > 0 && due[0].start <= now {
			voices = append(voices, s.startVoice(due[0]))
			due = due[1:]
		}
		var dry, send float32
		live := voices[:0]
		for i := range voices {
			v := &voices[i]
			t := float64(now-v.start) / sr
			d, w, done := s.renderVoice(v, t)
			dry += d
			send += w
			if !done {
				live = append(live, *v)
			}
		}
		voices = live
		wetL, wetR := s.reverb.Process(send, send)
		l, r := s.master.Process(dry+wetL, dry+wetR)
		dst[f*2] = clampSample(l * gain)
		dst[f*2+1] = clampSample(r * gain)
	}

	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
	s.frame.Store(end)
}

func (s *Synth) startVoice(sc scheduled) voiceState {
	ev := sc.ev
	v := voiceState{kind: ev.Kind, start: sc.start}
	switch ev.Kind {
	case KindNote:
		v.wave = NoteWaveform(s.params.DeviceMemoryGB, ev.Params.Tick)
		v.freq = ev.Params.Freq
	case KindKick:
		v.freq = KickFrequency(s.params.ViewportWidth)
	case KindClick:
		v.hp = effects.NewHighPass(s.sampleRate, ev.Params.FilterFreq)
		v.send = float32(clampUnit(ev.Params.ReverbSend))
		v.noise = make([]float32, int(clickNoise*float64(s.sampleRate)))
		for i := range v.noise {
			v.noise[i] = float32(s.noise.Float64()*2 - 1)
		}
	}
	return v
}

// renderVoice returns the dry and reverb-send contributions of v at t seconds
// after its start, and whether it has stopped.
func (s *Synth) renderVoice(v *voiceState, t float64) (dry, send float32, done bool) {
	sr := float64(s.sampleRate)
	switch v.kind {
	case KindNote:
		if t >= noteStop {
			return 0, 0, true
		}
		sig := oscillator(v.wave, v.phase, v.freq/sr)
		v.phase += v.freq / sr
		if v.phase >= 1 {
			v.phase -= math.Floor(v.phase)
		}
		// Notes feed the reverb only.
		return 0, float32(sig * noteEnvelope(t)), false
	case KindKick:
		if t >= kickStop {
			return 0, 0, true
		}
		freq := kickEndFreq
		if t < kickSweep {
			freq = v.freq * math.Pow(kickEndFreq/v.freq, t/kickSweep)
		}
		sig := math.Sin(twoPi * v.phase)
		v.phase += freq / sr
		if v.phase >= 1 {
			v.phase -= math.Floor(v.phase)
		}
		return float32(sig * expRamp(kickPeak, envFloor, t, kickDecay)), 0, false
	case KindClick:
		if t >= clickDecay {
			return 0, 0, true
		}
		idx := int(t * sr)
		var x float32
		if idx < len(v.noise) {
			x = v.noise[idx]
		}
		y := v.hp.Step(x) * float32(expRamp(clickPeak, envFloor, t, clickDecay))
		return y, y * v.send, false
	}
	return 0, 0, true
}

func noteEnvelope(t float64) float64 {
	switch {
	case t < noteAttack:
		return notePeak * t / noteAttack
	case t < noteDecayEnd:
		return expRamp(notePeak, envFloor, t-noteAttack, noteDecayEnd-noteAttack)
	default:
		return envFloor
	}
}

// expRamp moves exponentially from a to b over dur seconds and holds b.
func expRamp(a, b, t, dur float64) float64 {
	if t >= dur {
		return b
	}
	return a * math.Pow(b/a, t/dur)
}

// polyBLEP reduces aliasing at waveform discontinuities.
// t is the phase position [0,1), dt is the phase increment per sample.
func polyBLEP(t, dt float64) float64 {
	if t < dt {
		t /= dt
		return t + t - t*t - 1
	}
	if t > 1-dt {
		t = (t - 1) / dt
		return t*t + t + t + 1
	}
	return 0
}

func oscillator(w Waveform, phase, dt float64) float64 {
	switch w {
	case WaveSquare:
		out := -1.0
		if phase < 0.5 {
			out = 1
		}
		out += polyBLEP(phase, dt)
		out -= polyBLEP(math.Mod(phase+0.5, 1), dt)
		return out
	case WaveSawtooth:
		return 2*phase - 1 - polyBLEP(phase, dt)
	default:
		return math.Sin(twoPi * phase)
	}
}

func clampSample(v float32) float32 {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}

func clampUnit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
