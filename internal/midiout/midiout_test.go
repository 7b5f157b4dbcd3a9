package midiout

import (
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/cbegin/gridpulse-go/internal/voice"
)

type fakeOut struct {
	sent [][]byte
	err  error
}

func (f *fakeOut) Send(data []byte) error {
	f.sent = append(f.sent, append([]byte(nil), data...))
	return f.err
}

// newTestRenderer runs delayed callbacks inline and records their delays.
func newTestRenderer(out Sender, now float64) (*Renderer, *[]time.Duration) {
	var delays []time.Duration
	r := New(out, func() float64 { return now })
	r.afterFunc = func(d time.Duration, f func()) {
		delays = append(delays, d)
		f()
	}
	return r, &delays
}

func TestFreqToKey(t *testing.T) {
	tests := []struct {
		freq float64
		key  uint8
		ok   bool
	}{
		{440, 69, true},
		{65.41, 36, true},
		{98, 43, true},
		{261.63, 60, true},
		{22000, 127, true},
		{1, 0, true},
		{0, 0, false},
		{-5, 0, false},
	}
	for _, tc := range tests {
		key, ok := FreqToKey(tc.freq)
		if key != tc.key || ok != tc.ok {
			t.Fatalf("FreqToKey(%v) = %d, %v; want %d, %v", tc.freq, key, ok, tc.key, tc.ok)
		}
	}
}

func TestRenderSendsTimedNotePair(t *testing.T) {
	out := &fakeOut{}
	r, delays := newTestRenderer(out, 1.0)

	r.Render(voice.Event{Kind: voice.KindNote, Time: 1.05, Params: voice.Params{Freq: 440}})

	if len(out.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(out.sent))
	}
	var ch, key, vel uint8
	if !midi.Message(out.sent[0]).GetNoteOn(&ch, &key, &vel) || ch != NoteChannel || key != 69 {
		t.Fatalf("first message %v is not note on 69", midi.Message(out.sent[0]))
	}
	if !midi.Message(out.sent[1]).GetNoteOff(&ch, &key, &vel) || key != 69 {
		t.Fatalf("second message %v is not note off 69", midi.Message(out.sent[1]))
	}
	d := *delays
	if len(d) != 2 || d[1] != DefaultGate {
		t.Fatalf("delays = %v", d)
	}
	if d[0] < 49*time.Millisecond || d[0] > 51*time.Millisecond {
		t.Fatalf("note delayed %v, want about 50ms", d[0])
	}
}

func TestRenderDrums(t *testing.T) {
	tests := []struct {
		kind voice.Kind
		key  uint8
	}{
		{voice.KindKick, KickKey},
		{voice.KindClick, ClickKey},
	}
	for _, tc := range tests {
		out := &fakeOut{}
		r, _ := newTestRenderer(out, 0)
		r.Render(voice.Event{Kind: tc.kind, Time: 0})

		var ch, key, vel uint8
		if len(out.sent) == 0 || !midi.Message(out.sent[0]).GetNoteOn(&ch, &key, &vel) {
			t.Fatalf("%s: no note on sent", tc.kind)
		}
		if ch != DrumChannel || key != tc.key {
			t.Fatalf("%s: channel %d key %d", tc.kind, ch, key)
		}
	}
}

func TestRenderLateEventPlaysNow(t *testing.T) {
	out := &fakeOut{}
	r, delays := newTestRenderer(out, 5)
	r.Render(voice.Event{Kind: voice.KindKick, Time: 4})
	if (*delays)[0] != 0 {
		t.Fatalf("late event delayed %v", (*delays)[0])
	}
}

func TestRenderSwallowsSendErrors(t *testing.T) {
	out := &fakeOut{err: errors.New("unplugged")}
	r, _ := newTestRenderer(out, 0)
	r.Render(voice.Event{Kind: voice.KindKick})
	if len(out.sent) != 2 {
		t.Fatalf("sent %d messages, want 2 attempts", len(out.sent))
	}
}

func TestSetGate(t *testing.T) {
	out := &fakeOut{}
	r, delays := newTestRenderer(out, 0)
	r.SetGate(0)
	r.SetGate(40 * time.Millisecond)
	r.Render(voice.Event{Kind: voice.KindClick})
	if (*delays)[1] != 40*time.Millisecond {
		t.Fatalf("gate = %v", (*delays)[1])
	}
}
