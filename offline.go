package gridpulse

import (
	"encoding/binary"
	"errors"
	"math"
	"time"

	intsched "github.com/cbegin/gridpulse-go/internal/scheduler"
	intvoice "github.com/cbegin/gridpulse-go/internal/voice"
)

// RenderSession renders seconds of a session without an audio device. The
// scheduler wakes every wake interval of rendered audio, so the result is
// identical for identical options. The environment is not probed; pass
// WithDeviceMemory, WithViewportWidth and WithBatteryLevel to vary it.
// Without WithStartTime the reverb uses the shortest tail.
func RenderSession(sampleRate int, seconds float64, opts ...Option) ([]float32, error) {
	if sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if seconds < 0 || math.IsNaN(seconds) {
		return nil, errors.New("seconds must not be negative")
	}
	cfg := defaultInstrumentConfig()
	cfg.seed = 1
	cfg.startTime = time.Unix(0, 0)
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.probe = nil

	rng, p, t := newSession(cfg)
	in := &Instrument{cfg: cfg}
	synth := intvoice.NewSynth(sampleRate, synthParams(cfg, in.reading()))
	renderers := append(intvoice.Fanout{synth}, cfg.renderers...)
	sched := intsched.New(p, t, renderers, rng, intsched.Options{
		Lookahead:    cfg.lookahead,
		WakeInterval: cfg.wakeInterval,
	})
	if err := sched.Activate(synth); err != nil {
		return nil, err
	}

	frames := int(float64(sampleRate) * seconds)
	block := int(cfg.wakeInterval.Seconds() * float64(sampleRate))
	if block <= 0 {
		block = 1
	}
	out := make([]float32, frames*2)
	src := tapSource{synth: synth, tap: cfg.sampleTap}
	for off := 0; off < frames; off += block {
		sched.Tick()
		end := min(off+block, frames)
		src.Process(out[off*2 : end*2])
	}
	return out, nil
}

func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	out := make([]byte, 44+dataSize)
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(36+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3) // IEEE float
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], "data")
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
