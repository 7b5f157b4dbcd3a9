package cli

import (
	"flag"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func newFlagSet() (*flag.FlagSet, *Flags) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs, Register(fs)
}

func TestLoadOverlaysOnlySetFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"bpm": 80, "masterGain": 0.5, "seed": 7}`), 0o644); err != nil {
		t.Fatal(err)
	}
	fs, f := newFlagSet()
	if err := fs.Parse([]string{"-config", path, "-bpm", "100", "-midi-out", "IAC"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Load(fs)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BPM != 100 || cfg.MIDIOut != "IAC" {
		t.Fatalf("flags not applied: %+v", cfg)
	}
	if cfg.MasterGain != 0.5 || cfg.Seed != 7 {
		t.Fatalf("unset flags overrode the file: %+v", cfg)
	}
}

func TestLoadValidatesFlags(t *testing.T) {
	fs, f := newFlagSet()
	path := filepath.Join(t.TempDir(), "missing.json")
	if err := fs.Parse([]string{"-config", path, "-sample-rate", "12"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Load(fs); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestSaveWritesToConfigPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.json")
	fs, f := newFlagSet()
	if err := fs.Parse([]string{"-config", path, "-seed", "3"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Load(fs)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Save(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}
}

func TestOptionsOnlyAddsOverrides(t *testing.T) {
	fs, f := newFlagSet()
	path := filepath.Join(t.TempDir(), "missing.json")
	if err := fs.Parse([]string{"-config", path}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Load(fs)
	if err != nil {
		t.Fatal(err)
	}
	base := len(Options(cfg))
	cfg.Seed = 1
	cfg.BPM = 90
	cfg.ViewportWidth = 800
	cfg.DeviceMemoryGB = 2
	if got := len(Options(cfg)); got != base+4 {
		t.Fatalf("got %d options, want %d", got, base+4)
	}
}

func TestBuildWithoutExtras(t *testing.T) {
	fs, f := newFlagSet()
	path := filepath.Join(t.TempDir(), "missing.json")
	if err := fs.Parse([]string{"-config", path, "-seed", "4"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := f.Load(fs)
	if err != nil {
		t.Fatal(err)
	}
	in, cleanup, err := Build(cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer cleanup()
	if in.Running() {
		t.Fatal("instrument running before activation")
	}
	if len(in.Snapshot().Cells) == 0 {
		t.Fatal("no initial pattern")
	}
}
