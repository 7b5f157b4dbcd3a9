package cli

import (
	"flag"
	"fmt"
	"log"

	"github.com/cbegin/gridpulse-go"
	"github.com/cbegin/gridpulse-go/internal/config"
	"github.com/cbegin/gridpulse-go/internal/debug"
	"github.com/cbegin/gridpulse-go/internal/midiout"
)

// Flags are the command-line settings shared by every front end. Set flags
// override the config file.
type Flags struct {
	ConfigPath string
	SampleRate int
	Seed       int64
	BPM        float64
	Volume     float64
	Width      int
	Memory     float64
	MIDIOut    string
	Debug      bool
}

func Register(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "config file (default ~/.config/gridpulse/config.json)")
	fs.IntVar(&f.SampleRate, "sample-rate", 48000, "output sample rate")
	fs.Int64Var(&f.Seed, "seed", 0, "random seed (0 = time based)")
	fs.Float64Var(&f.BPM, "bpm", 0, "fixed tempo (0 = follow battery level)")
	fs.Float64Var(&f.Volume, "volume", 1.0, "master gain")
	fs.IntVar(&f.Width, "width", 0, "viewport width in pixels for kick pitch (0 = default)")
	fs.Float64Var(&f.Memory, "memory", 0, "device memory in GB (0 = probe)")
	fs.StringVar(&f.MIDIOut, "midi-out", "", "also send events to the MIDI output whose name contains this")
	fs.BoolVar(&f.Debug, "debug", false, "write a debug log next to the config file")
	return f
}

// Load reads the config file and applies every flag that was set explicitly.
func (f *Flags) Load(fs *flag.FlagSet) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if f.ConfigPath != "" {
		cfg, err = config.LoadFrom(f.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "sample-rate":
			cfg.SampleRate = f.SampleRate
		case "seed":
			cfg.Seed = f.Seed
		case "bpm":
			cfg.BPM = f.BPM
		case "volume":
			cfg.MasterGain = f.Volume
		case "width":
			cfg.ViewportWidth = f.Width
		case "memory":
			cfg.DeviceMemoryGB = f.Memory
		case "midi-out":
			cfg.MIDIOut = f.MIDIOut
		case "debug":
			cfg.DebugLog = f.Debug
		}
	})
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to the -config path or the default location.
func (f *Flags) Save(cfg *config.Config) error {
	if f.ConfigPath != "" {
		return cfg.SaveTo(f.ConfigPath)
	}
	return cfg.Save()
}

// Options translates a config into instrument options.
func Options(cfg *config.Config) []gridpulse.Option {
	opts := []gridpulse.Option{
		gridpulse.WithLookahead(cfg.Lookahead()),
		gridpulse.WithWakeInterval(cfg.WakeInterval()),
		gridpulse.WithMasterGain(cfg.MasterGain),
		gridpulse.WithBatteryPoll(cfg.BatteryPoll()),
	}
	if cfg.Seed != 0 {
		opts = append(opts, gridpulse.WithSeed(cfg.Seed))
	}
	if cfg.BPM > 0 {
		opts = append(opts, gridpulse.WithFixedBPM(cfg.BPM))
	}
	if cfg.ViewportWidth > 0 {
		opts = append(opts, gridpulse.WithViewportWidth(cfg.ViewportWidth))
	}
	if cfg.DeviceMemoryGB > 0 {
		opts = append(opts, gridpulse.WithDeviceMemory(cfg.DeviceMemoryGB))
	}
	return opts
}

// Build enables debug logging, opens the MIDI port if configured and creates
// the instrument. The returned cleanup stops the instrument and releases
// everything Build opened.
func Build(cfg *config.Config, extra ...gridpulse.Option) (*gridpulse.Instrument, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DebugLog {
		path, err := config.DebugLogPath()
		if err != nil {
			return nil, nil, err
		}
		if err := debug.Enable(path); err != nil {
			return nil, nil, fmt.Errorf("debug log: %w", err)
		}
		closers = append(closers, debug.Disable)
		log.Printf("debug log: %s", path)
	}

	opts := append(Options(cfg), extra...)
	var in *gridpulse.Instrument
	if cfg.MIDIOut != "" {
		port, err := midiout.Open(cfg.MIDIOut)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { _ = port.Close() })
		log.Printf("midi out: %s", port.String())
		r := midiout.New(port, func() float64 { return in.Now() })
		opts = append(opts, gridpulse.WithRenderer(r))
	}

	in, err := gridpulse.NewInstrument(cfg.SampleRate, opts...)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	closers = append(closers, func() {
		if err := in.Stop(); err != nil {
			log.Printf("stop: %v", err)
		}
	})
	return in, cleanup, nil
}
