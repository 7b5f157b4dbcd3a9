package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cbegin/gridpulse-go"
	"github.com/cbegin/gridpulse-go/internal/cli"
	"github.com/cbegin/gridpulse-go/internal/config"
)

func main() {
	f := cli.Register(flag.CommandLine)
	var (
		wavPath    = flag.String("wav", "", "render offline to this WAV file instead of playing")
		seconds    = flag.Float64("seconds", 30, "length of the -wav render")
		duration   = flag.Duration("duration", 0, "stop live playback after this long (0 = until interrupted)")
		quiet      = flag.Bool("quiet", false, "do not print regenerations")
		saveConfig = flag.Bool("save-config", false, "write the effective config and exit")
	)
	flag.Parse()

	cfg, err := f.Load(flag.CommandLine)
	if err != nil {
		log.Fatal(err)
	}
	if *saveConfig {
		if err := f.Save(cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	if *wavPath != "" {
		samples, err := gridpulse.RenderSession(cfg.SampleRate, *seconds, cli.Options(cfg)...)
		if err != nil {
			log.Fatal(err)
		}
		wav := gridpulse.EncodeWAVFloat32LE(samples, cfg.SampleRate, 2)
		if err := os.WriteFile(*wavPath, wav, 0o644); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s (%.1fs)\n", *wavPath, *seconds)
		return
	}

	if err := play(cfg, *duration, *quiet); err != nil {
		log.Fatal(err)
	}
}

// play runs the instrument live until interrupted or duration elapses.
func play(cfg *config.Config, duration time.Duration, quiet bool) error {
	in, cleanup, err := cli.Build(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	return run(ctx, in, os.Stdout, quiet)
}

type player interface {
	Watch() <-chan gridpulse.Event
	Activate(ctx context.Context) error
	BPM() float64
	Snapshot() gridpulse.Snapshot
}

// run activates p and reports regenerations to w until ctx ends.
func run(ctx context.Context, p player, w io.Writer, quiet bool) error {
	events := p.Watch()
	if err := p.Activate(ctx); err != nil {
		return err
	}
	fmt.Fprintf(w, "playing at %.0f BPM, %d cells (ctrl-c to stop)\n", p.BPM(), len(p.Snapshot().Cells))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			if ev.Kind == gridpulse.EventRegenerated && !quiet {
				s := p.Snapshot()
				fmt.Fprintf(w, "regenerated #%d: density %.2f, %d cells, %.0f BPM\n", ev.Generation, ev.Density, len(s.Cells), s.BPM)
			}
		}
	}
}
