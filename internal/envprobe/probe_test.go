package envprobe

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cbegin/gridpulse-go/internal/structure"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func supply(t *testing.T, root, name, kind, capacity string) {
	t.Helper()
	dir := filepath.Join(root, "sys", "class", "power_supply", name)
	writeFile(t, filepath.Join(dir, "type"), kind+"\n")
	if capacity != "" {
		writeFile(t, filepath.Join(dir, "capacity"), capacity+"\n")
	}
}

func TestBatteryPicksBatterySupply(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "AC", "Mains", "")
	supply(t, root, "BAT0", "Battery", "73")

	p := &Probe{Root: root}
	level, ok := p.Battery()
	if !ok || level != 0.73 {
		t.Fatalf("Battery = %v, %v; want 0.73, true", level, ok)
	}
}

func TestBatteryUnavailable(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "AC", "Mains", "")
	supply(t, root, "BAT0", "Battery", "garbage")

	p := &Probe{Root: root}
	if _, ok := p.Battery(); ok {
		t.Fatal("Battery reported a level without a readable capacity")
	}
	if _, ok := (&Probe{Root: t.TempDir()}).Battery(); ok {
		t.Fatal("Battery reported a level with no power supplies")
	}
}

func TestDeviceMemory(t *testing.T) {
	tests := []struct {
		name  string
		kb    string
		want  float64
		avail bool
	}{
		{"16GB clamps to 8", "16303412", 8, true},
		{"6GB rounds to 4", "6291456", 4, true},
		{"3.8GB rounds to 2", "3984588", 2, true},
		{"tiny clamps to quarter", "100000", 0.25, true},
		{"unparseable", "lots", 0, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			root := t.TempDir()
			writeFile(t, filepath.Join(root, "proc", "meminfo"),
				"MemTotal:       "+tc.kb+" kB\nMemFree:         1000 kB\n")
			got, ok := (&Probe{Root: root}).DeviceMemory()
			if ok != tc.avail || got != tc.want {
				t.Fatalf("DeviceMemory = %v, %v; want %v, %v", got, ok, tc.want, tc.avail)
			}
		})
	}
}

func TestDeviceMemoryMissing(t *testing.T) {
	if _, ok := (&Probe{Root: t.TempDir()}).DeviceMemory(); ok {
		t.Fatal("DeviceMemory reported a value without meminfo")
	}
}

func TestLocale(t *testing.T) {
	tests := []struct {
		env  map[string]string
		want string
	}{
		{map[string]string{"LANG": "de_DE.UTF-8"}, "de-DE"},
		{map[string]string{"LC_ALL": "fr_FR@euro", "LANG": "de_DE.UTF-8"}, "fr-FR"},
		{map[string]string{"LANG": "C"}, DefaultLocale},
		{map[string]string{}, DefaultLocale},
	}
	for _, tc := range tests {
		p := &Probe{Getenv: func(k string) string { return tc.env[k] }}
		if got := p.Locale(); got != tc.want {
			t.Fatalf("Locale with %v = %q, want %q", tc.env, got, tc.want)
		}
	}
}

func TestTextsFillEveryLabelSlot(t *testing.T) {
	now := time.Date(2026, time.October, 19, 12, 0, 42, 0, time.UTC)
	texts := Texts(now, Reading{
		CPUCount:      8,
		ViewportWidth: 1280,
		Platform:      "linux/amd64",
		Locale:        "en-US",
		Runtime:       "go1.24.0",
	})
	if len(texts) != structure.LabelSlots {
		t.Fatalf("got %d texts, want %d", len(texts), structure.LabelSlots)
	}
	want := []string{
		"YEAR: 2026",
		"MONTH: OCTOBER",
		"SECOND: 42",
		"DAY: 19",
		"CPU CORES: 8",
		"MEMORY: U/NGB",
		"WINDOW WIDTH: 1280PX",
		"PLATFORM: LINUX/AMD64",
		"RUNTIME: go1.24.0",
		"LANGUAGE: EN-US",
	}
	for i := range want {
		if texts[i] != want[i] {
			t.Fatalf("text %d = %q, want %q", i, texts[i], want[i])
		}
	}
}

func TestTextsShowMemoryClass(t *testing.T) {
	texts := Texts(time.Now(), Reading{DeviceMemoryGB: 0.5, HasMemory: true})
	if !strings.Contains(strings.Join(texts, "|"), "MEMORY: 0.5GB") {
		t.Fatalf("texts = %v", texts)
	}
}

func TestWatchBatteryReportsChanges(t *testing.T) {
	root := t.TempDir()
	supply(t, root, "BAT0", "Battery", "50")
	p := &Probe{Root: root}

	var mu sync.Mutex
	var levels []float64
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.WatchBattery(ctx, time.Millisecond, func(l float64) {
			mu.Lock()
			levels = append(levels, l)
			mu.Unlock()
		})
	}()

	waitFor := func(n int) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			got := len(levels)
			mu.Unlock()
			if got >= n {
				return
			}
			time.Sleep(time.Millisecond)
		}
		t.Fatalf("timed out waiting for %d readings", n)
	}

	waitFor(1)
	time.Sleep(10 * time.Millisecond)
	supply(t, root, "BAT0", "Battery", "20")
	waitFor(2)
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("WatchBattery = %v, want context.Canceled", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if levels[0] != 0.5 || levels[1] != 0.2 {
		t.Fatalf("levels = %v, want [0.5 0.2 ...]", levels)
	}
	if len(levels) != 2 {
		t.Fatalf("repeated unchanged readings: %v", levels)
	}
}
