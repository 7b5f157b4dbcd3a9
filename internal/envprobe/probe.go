package envprobe

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/cbegin/gridpulse-go/internal/debug"
)

// Device memory bounds, in GB.
const (
	MinDeviceMemory = 0.25
	MaxDeviceMemory = 8
)

// DefaultLocale is reported when the environment names none.
const DefaultLocale = "en-US"

// Probe reads host properties. Every accessor reports unavailability instead
// of failing; callers fall back to defaults.
type Probe struct {
	// Root is prepended to /sys and /proc paths.
	Root   string
	Getenv func(string) string
}

func New() *Probe {
	return &Probe{Root: "/", Getenv: os.Getenv}
}

func (p *Probe) path(parts ...string) string {
	root := p.Root
	if root == "" {
		root = "/"
	}
	return filepath.Join(append([]string{root}, parts...)...)
}

// Battery returns the charge of the first battery power supply in [0, 1].
func (p *Probe) Battery() (float64, bool) {
	dirs, err := filepath.Glob(p.path("sys", "class", "power_supply", "*"))
	if err != nil {
		return 0, false
	}
	for _, dir := range dirs {
		kind, err := readTrimmed(filepath.Join(dir, "type"))
		if err != nil || kind != "Battery" {
			continue
		}
		raw, err := readTrimmed(filepath.Join(dir, "capacity"))
		if err != nil {
			continue
		}
		pct, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		return math.Max(0, math.Min(1, pct/100)), true
	}
	return 0, false
}

// DeviceMemory returns total memory in GB rounded down to a power of two and
// clamped to [MinDeviceMemory, MaxDeviceMemory].
func (p *Probe) DeviceMemory() (float64, bool) {
	f, err := os.Open(p.path("proc", "meminfo"))
	if err != nil {
		return 0, false
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 || fields[0] != "MemTotal:" {
			continue
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || kb <= 0 {
			return 0, false
		}
		return MemoryClass(kb / (1024 * 1024)), true
	}
	return 0, false
}

// MemoryClass rounds gb down to a power of two within the device memory
// bounds.
func MemoryClass(gb float64) float64 {
	if gb <= MinDeviceMemory {
		return MinDeviceMemory
	}
	class := math.Pow(2, math.Floor(math.Log2(gb)))
	return math.Max(MinDeviceMemory, math.Min(MaxDeviceMemory, class))
}

// Locale returns the user's language tag, e.g. "en-US" for LANG=en_US.UTF-8.
func (p *Probe) Locale() string {
	getenv := p.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag := localeTag(getenv(key)); tag != "" {
			return tag
		}
	}
	return DefaultLocale
}

func localeTag(v string) string {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(v, "_", "-")
}

func Platform() string {
	return runtime.GOOS + "/" + runtime.GOARCH
}

func CPUCount() int {
	return runtime.NumCPU()
}

// Reading is one snapshot of the environment.
type Reading struct {
	Battery        float64
	HasBattery     bool
	DeviceMemoryGB float64
	HasMemory      bool
	CPUCount       int
	ViewportWidth  int
	Platform       string
	Locale         string
	Runtime        string
}

// Read collects a Reading. viewportWidth is supplied by the caller since
// only the view knows it.
func (p *Probe) Read(viewportWidth int) Reading {
	r := Reading{
		CPUCount:      CPUCount(),
		ViewportWidth: viewportWidth,
		Platform:      Platform(),
		Locale:        p.Locale(),
		Runtime:       runtime.Version(),
	}
	r.Battery, r.HasBattery = p.Battery()
	r.DeviceMemoryGB, r.HasMemory = p.DeviceMemory()
	return r
}

// WatchBattery polls the battery every interval and calls fn with the level
// whenever it changes, starting with the first successful read. It returns
// when ctx is done.
func (p *Probe) WatchBattery(ctx context.Context, interval time.Duration, fn func(level float64)) error {
	if interval <= 0 {
		interval = time.Minute
	}
	last := math.NaN()
	poll := func() {
		level, ok := p.Battery()
		if !ok || level == last {
			return
		}
		debug.Log("probe", "battery %.2f", level)
		last = level
		fn(level)
	}

	poll()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			poll()
		}
	}
}

var months = [...]string{
	"JANUARY", "FEBRUARY", "MARCH", "APRIL", "MAY", "JUNE",
	"JULY", "AUGUST", "SEPTEMBER", "OCTOBER", "NOVEMBER", "DECEMBER",
}

const unknown = "U/N"

// Texts returns the display strings cells are labelled with.
func Texts(now time.Time, r Reading) []string {
	cores := unknown
	if r.CPUCount > 0 {
		cores = strconv.Itoa(r.CPUCount)
	}
	memory := unknown
	if r.HasMemory {
		memory = strconv.FormatFloat(r.DeviceMemoryGB, 'f', -1, 64)
	}
	return []string{
		fmt.Sprintf("YEAR: %d", now.Year()),
		fmt.Sprintf("MONTH: %s", months[now.Month()-1]),
		fmt.Sprintf("SECOND: %d", now.Second()),
		fmt.Sprintf("DAY: %d", now.Day()),
		fmt.Sprintf("CPU CORES: %s", cores),
		fmt.Sprintf("MEMORY: %sGB", memory),
		fmt.Sprintf("WINDOW WIDTH: %dPX", r.ViewportWidth),
		fmt.Sprintf("PLATFORM: %s", strings.ToUpper(r.Platform)),
		fmt.Sprintf("RUNTIME: %s", r.Runtime),
		fmt.Sprintf("LANGUAGE: %s", strings.ToUpper(r.Locale)),
	}
}

func readTrimmed(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
