package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/gridpulse-go"
	"github.com/cbegin/gridpulse-go/internal/animator"
	"github.com/cbegin/gridpulse-go/internal/cli"
	"github.com/cbegin/gridpulse-go/internal/structure"
)

const (
	windowW    = 1280
	windowH    = 800
	minWindowW = 320
	minWindowH = 240
	statusH    = 22

	glyphW = 7
	glyphH = 14
)

var (
	bgColor     = color.RGBA{8, 8, 12, 255}
	borderColor = color.RGBA{0, 0, 0, 255}
	statusColor = color.RGBA{24, 24, 32, 230}
)

type game struct {
	in     *gridpulse.Instrument
	events <-chan gridpulse.Event

	active    bool
	status    string
	statusErr bool

	textCache map[string]*ebiten.Image
	viewW     int
	viewH     int
}

func newGame(in *gridpulse.Instrument) *game {
	return &game{
		in:        in,
		events:    in.Watch(),
		status:    "click to start",
		textCache: make(map[string]*ebiten.Image, 64),
		viewW:     windowW,
		viewH:     windowH,
	}
}

func (g *game) Update() error {
	if !g.active && g.startRequested() {
		g.activate()
	}
	if g.active {
		g.in.Frame()
		g.pollEvents()
	}
	return nil
}

func (g *game) startRequested() bool {
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		return true
	}
	return inpututil.IsKeyJustPressed(ebiten.KeySpace) || inpututil.IsKeyJustPressed(ebiten.KeyEnter)
}

func (g *game) activate() {
	g.in.SetViewportWidth(g.viewW)
	if err := g.in.Activate(context.Background()); err != nil {
		g.setError(err.Error())
		return
	}
	g.active = true
	g.setStatus("playing")
}

func (g *game) pollEvents() {
	for {
		select {
		case ev := <-g.events:
			if ev.Kind == gridpulse.EventRegenerated {
				g.setStatus(fmt.Sprintf("generation %d, density %.2f", ev.Generation, ev.Density))
			}
		default:
			return
		}
	}
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	s := g.in.Snapshot()
	if s.Tree == nil {
		return
	}
	gridH := g.viewH - statusH
	rects := structure.Layout(s.Tree, float64(g.viewW), float64(gridH))
	for i, c := range s.Cells {
		r := rects[c.Handle]
		level := 0.0
		if i < len(s.FlashUntil) {
			level = animator.FlashLevel(s.FlashUntil[i], s.Now)
		}
		g.drawCell(screen, r, c, animator.CellColor(c.Depth, level), animator.Label(s.Texts, c.Label))
	}
	g.drawStatus(screen, s)
}

func (g *game) drawCell(screen *ebiten.Image, r structure.Rect, c structure.Cell, fill color.Color, label string) {
	ebitenutil.DrawRect(screen, r.X, r.Y, r.W, r.H, fill)

	clip := image.Rect(int(r.X)+1, int(r.Y)+1, int(math.Ceil(r.X+r.W))-1, int(math.Ceil(r.Y+r.H))-1)
	if clip.Dx() <= 0 || clip.Dy() <= 0 {
		return
	}
	sub := screen.SubImage(clip).(*ebiten.Image)
	img := g.textImage(animator.CellText(label, c.Horizontal))
	scale := structure.FontSize(c.Depth) / glyphH
	dx, dy := animator.Translate(c)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(r.X+2+dx, r.Y+2+dy)
	sub.DrawImage(img, op)

	drawOutline(screen, r)
}

func (g *game) textImage(msg string) *ebiten.Image {
	img := g.textCache[msg]
	if img != nil {
		return img
	}
	cols, rows := 1, 0
	line := 0
	for _, ch := range msg {
		if ch == '\n' {
			rows++
			line = 0
			continue
		}
		line++
		cols = max(cols, line)
	}
	if line > 0 || rows == 0 {
		rows++
	}
	img = ebiten.NewImage(cols*glyphW, rows*glyphH)
	ebitenutil.DebugPrintAt(img, msg, 0, 0)
	if len(g.textCache) > 512 {
		g.textCache = make(map[string]*ebiten.Image, 64)
	}
	g.textCache[msg] = img
	return img
}

func (g *game) drawStatus(screen *ebiten.Image, s gridpulse.Snapshot) {
	y := float64(g.viewH - statusH)
	ebitenutil.DrawRect(screen, 0, y, float64(g.viewW), statusH, statusColor)
	msg := fmt.Sprintf("%.0f BPM  %d cells  density %.2f  chord %d  step %d  %s",
		s.BPM, len(s.Cells), s.Density, s.ChordIndex, s.GlobalStep, g.status)
	if g.statusErr {
		msg = "error: " + g.status
	}
	ebitenutil.DebugPrintAt(screen, msg, 6, int(y)+4)
}

func drawOutline(screen *ebiten.Image, r structure.Rect) {
	ebitenutil.DrawRect(screen, r.X, r.Y, r.W, 1, borderColor)
	ebitenutil.DrawRect(screen, r.X, r.Y, 1, r.H, borderColor)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	g.viewW = max(outsideW, minWindowW)
	g.viewH = max(outsideH, minWindowH)
	return g.viewW, g.viewH
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func main() {
	f := cli.Register(flag.CommandLine)
	flag.Parse()

	cfg, err := f.Load(flag.CommandLine)
	if err != nil {
		log.Fatal(err)
	}
	in, cleanup, err := cli.Build(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer cleanup()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	ebiten.SetWindowSizeLimits(minWindowW, minWindowH, -1, -1)
	ebiten.SetWindowTitle("gridpulse")
	if err := ebiten.RunGame(newGame(in)); err != nil {
		log.Fatal(err)
	}
}
