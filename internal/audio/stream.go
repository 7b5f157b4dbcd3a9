package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// DefaultBufferSize keeps the device buffer well inside the scheduler's
// lookahead window.
const DefaultBufferSize = 40 * time.Millisecond

// Source renders interleaved stereo float32 frames on demand.
type Source interface {
	Process(dst []float32)
}

// streamReader exposes a Source as the little-endian float32 byte stream
// ebiten's F32 players consume.
type streamReader struct {
	mu     sync.Mutex
	source Source
	buf    []float32
	frames uint64
}

func newStreamReader(source Source) *streamReader {
	return &streamReader{source: source}
}

func (r *streamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / 8
	if frames == 0 {
		return 0, nil
	}
	need := frames * 2
	if cap(r.buf) < need {
		r.buf = make([]float32, need)
	}
	r.buf = r.buf[:need]
	r.source.Process(r.buf)
	for i, v := range r.buf {
		binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(v))
	}
	r.frames += uint64(frames)
	return frames * 8, nil
}

func (r *streamReader) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *streamReader) Close() error { return nil }

// Output plays a Source through the shared ebiten audio context.
type Output struct {
	player     *ebitaudio.Player
	reader     *streamReader
	sampleRate int
}

var (
	contextOnce      sync.Once
	sharedContext    *ebitaudio.Context
	sharedSampleRate int
)

func audioContext(sampleRate int) (*ebitaudio.Context, error) {
	contextOnce.Do(func() {
		sharedSampleRate = sampleRate
		sharedContext = ebitaudio.NewContext(sampleRate)
	})
	if sharedContext == nil {
		return nil, fmt.Errorf("audio context unavailable")
	}
	if sharedSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", sharedSampleRate, sampleRate)
	}
	return sharedContext, nil
}

// Open creates a paused Output. ebiten allows one audio context per process,
// so every Output must use the same sample rate.
func Open(sampleRate int, source Source) (*Output, error) {
	ctx, err := audioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := newStreamReader(source)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("new player: %w", err)
	}
	pl.SetBufferSize(DefaultBufferSize)
	return &Output{player: pl, reader: reader, sampleRate: sampleRate}, nil
}

func (o *Output) Play()  { o.player.Play() }
func (o *Output) Pause() { o.player.Pause() }
func (o *Output) IsPlaying() bool {
	return o.player.IsPlaying()
}

// Rendered returns how much audio the source has produced so far.
func (o *Output) Rendered() time.Duration {
	return time.Duration(float64(o.reader.Frames()) / float64(o.sampleRate) * float64(time.Second))
}

// Position returns what the listener has actually heard.
func (o *Output) Position() time.Duration {
	return o.player.Position()
}

// Latency is the gap between rendered and heard audio.
func (o *Output) Latency() time.Duration {
	if d := o.Rendered() - o.Position(); d > 0 {
		return d
	}
	return 0
}

func (o *Output) Close() error {
	o.player.Pause()
	if err := o.player.Close(); err != nil {
		return err
	}
	return o.reader.Close()
}
