package midiout

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/gridpulse-go/internal/debug"
	"github.com/cbegin/gridpulse-go/internal/voice"
)

// Channels and keys used for each event kind. Percussion follows the General
// MIDI drum map on channel 10.
const (
	NoteChannel   = 0
	DrumChannel   = 9
	KickKey       = 36
	ClickKey      = 42
	DefaultGate   = 120 * time.Millisecond
	noteVelocity  = 90
	kickVelocity  = 110
	clickVelocity = 60
)

// Sender is the raw output a Renderer writes to. drivers.Out satisfies it.
type Sender interface {
	Send(data []byte) error
}

// Renderer turns scheduled events into timed MIDI note pairs. Send failures
// are logged and dropped.
type Renderer struct {
	out   Sender
	clock func() float64
	gate  time.Duration

	// afterFunc is replaced in tests.
	afterFunc func(d time.Duration, f func())

	mu sync.Mutex
}

// New builds a Renderer. clock reports the same audio timeline the events
// are stamped with.
func New(out Sender, clock func() float64) *Renderer {
	return &Renderer{
		out:   out,
		clock: clock,
		gate:  DefaultGate,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// SetGate changes how long each note is held.
func (r *Renderer) SetGate(d time.Duration) {
	if d > 0 {
		r.gate = d
	}
}

func (r *Renderer) Render(ev voice.Event) {
	ch, key, vel, ok := Mapping(ev)
	if !ok {
		return
	}
	delay := time.Duration((ev.Time - r.clock()) * float64(time.Second))
	if delay < 0 {
		delay = 0
	}
	r.afterFunc(delay, func() {
		r.send(midi.NoteOn(ch, key, vel))
		r.afterFunc(r.gate, func() {
			r.send(midi.NoteOff(ch, key))
		})
	})
}

func (r *Renderer) send(msg midi.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.out.Send(msg.Bytes()); err != nil {
		debug.Log("midi", "send %s: %v", msg, err)
	}
}

// Mapping returns channel, key and velocity for an event.
func Mapping(ev voice.Event) (ch, key, vel uint8, ok bool) {
	switch ev.Kind {
	case voice.KindNote:
		k, valid := FreqToKey(ev.Params.Freq)
		return NoteChannel, k, noteVelocity, valid
	case voice.KindKick:
		return DrumChannel, KickKey, kickVelocity, true
	case voice.KindClick:
		return DrumChannel, ClickKey, clickVelocity, true
	}
	return 0, 0, 0, false
}

// FreqToKey returns the nearest MIDI key for freq, with A4 = 440 Hz = 69.
func FreqToKey(freq float64) (uint8, bool) {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0, false
	}
	k := math.Round(69 + 12*math.Log2(freq/440))
	if k < 0 {
		k = 0
	}
	if k > 127 {
		k = 127
	}
	return uint8(k), true
}

// Port is an opened hardware or virtual output.
type Port struct {
	drivers.Out
	drv *rtmididrv.Driver
}

// Open finds the first output whose name contains name (case-insensitive)
// and opens it. An empty name picks the first port.
func Open(name string) (*Port, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("rtmididrv: %w", err)
	}
	outs, err := drv.Outs()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("list midi outputs: %w", err)
	}
	out := pick(outs, name)
	if out == nil {
		drv.Close()
		return nil, fmt.Errorf("no midi output matching %q", name)
	}
	if err := out.Open(); err != nil {
		drv.Close()
		return nil, fmt.Errorf("open %s: %w", out.String(), err)
	}
	return &Port{Out: out, drv: drv}, nil
}

func pick(outs []drivers.Out, name string) drivers.Out {
	want := strings.ToLower(name)
	for _, o := range outs {
		if strings.Contains(strings.ToLower(o.String()), want) {
			return o
		}
	}
	return nil
}

func (p *Port) Close() error {
	err := p.Out.Close()
	p.drv.Close()
	return err
}
