// Command voxterm is a terminal viewer for multi-resolution volumes.
// It renders a demo dataset through the progressive renderer and
// displays it with half-block characters, two pixels per cell.
//
// Keys: arrows pan, +/- zoom, r/R rotate, z/Z slice, i interpolation,
// q quit.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/gogpu/multires"
	"github.com/gogpu/multires/blockstore"
	"github.com/gogpu/multires/viewer"
	"github.com/gogpu/multires/volume"
)

func main() {
	dbPath := flag.String("db", "", "SQLite block store path (empty: in-memory)")
	threads := flag.Int("threads", 4, "rendering threads")
	targetMs := flag.Int("target", 30, "target render time per frame, milliseconds")
	delay := flag.Duration("delay", 2*time.Millisecond, "simulated IO latency per block (in-memory store only)")
	verbose := flag.Bool("v", false, "log scheduling diagnostics to stderr")
	flag.Parse()

	if *verbose {
		multires.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if err := run(*dbPath, *threads, *targetMs, *delay); err != nil {
		fmt.Fprintln(os.Stderr, "voxterm:", err)
		os.Exit(1)
	}
}

const volumeSize = 192

func run(dbPath string, threads, targetMs int, delay time.Duration) error {
	pyramid := volume.BuildPyramid(demoVolume(volumeSize), 5)

	var (
		store blockstore.Store
		geom  blockstore.Geometry
		err   error
	)
	blockSize := [3]int{32, 32, 32}
	if dbPath != "" {
		sqlStore, err2 := blockstore.OpenSQLStore(dbPath)
		if err2 != nil {
			return err2
		}
		defer sqlStore.Close()
		if geom, err = blockstore.WritePyramid(sqlStore, 0, pyramid, blockSize); err != nil {
			return err
		}
		store = sqlStore
	} else {
		memStore := blockstore.NewMemStore()
		memStore.Delay = func(blockstore.Key) { time.Sleep(delay) }
		if geom, err = blockstore.WritePyramid(memStore, 0, pyramid, blockSize); err != nil {
			return err
		}
		store = memStore
	}

	cache := blockstore.NewBlockCache(store, 512, 2)
	defer cache.Close()

	conv, err := volume.NewRampConverter("#000000", "#5ec1a2", 0, 4000)
	if err != nil {
		return err
	}
	source := blockstore.NewCachedSource("demo", cache, 0, geom, multires.Identity3D())
	state := viewer.NewState([]multires.SourceAndConverter{source.SourceAndConverter(conv)}, 1)

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	cols, rows := screen.Size()
	canvasW, canvasH := cols, rows*2

	target := multires.NewBufferedTarget(canvasW, canvasH)
	painter := multires.NewPainterThread()
	renderer := multires.New(target, painter, cache,
		multires.WithScreenScales(1, 0.5, 0.25, 0.125, 0.0625),
		multires.WithTargetRenderNanos(time.Duration(targetMs)*time.Millisecond),
		multires.WithRenderingThreads(threads),
	)
	defer renderer.Kill()

	state.SetViewerTransform(fitTransform(canvasW, canvasH))

	painter.Start(func() {
		renderer.Paint(state)
		if res := target.DisplayedResult(); res != nil && res.TakeUpdated() {
			draw(screen, res, target.Width(), target.Height())
		}
	})
	defer painter.Stop()

	renderer.RequestRepaint()

	for {
		switch ev := screen.PollEvent().(type) {
		case *tcell.EventResize:
			cols, rows = screen.Size()
			target.SetSize(cols, rows*2)
			screen.Sync()
			renderer.RequestRepaint()

		case *tcell.EventKey:
			if !handleKey(ev, state, target) {
				return nil
			}
			renderer.RequestRepaint()
		}
	}
}

// handleKey mutates the viewer transform for one key press. Returns
// false on quit.
func handleKey(ev *tcell.EventKey, state *viewer.State, target *multires.BufferedTarget) bool {
	t := state.ViewerTransform()
	cx := float64(target.Width()) / 2
	cy := float64(target.Height()) / 2
	about := func(m multires.Affine3D) multires.Affine3D {
		return multires.Translate3D(cx, cy, 0).Mul(m).Mul(multires.Translate3D(-cx, -cy, 0))
	}

	switch ev.Key() {
	case tcell.KeyEscape:
		return false
	case tcell.KeyLeft:
		t = t.Translated(-10, 0, 0)
	case tcell.KeyRight:
		t = t.Translated(10, 0, 0)
	case tcell.KeyUp:
		t = t.Translated(0, -10, 0)
	case tcell.KeyDown:
		t = t.Translated(0, 10, 0)
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case '+', '=':
			t = about(multires.UniformScale3D(1.25)).Mul(t)
		case '-', '_':
			t = about(multires.UniformScale3D(0.8)).Mul(t)
		case 'r':
			t = about(multires.RotateZ(math.Pi / 24)).Mul(t)
		case 'R':
			t = about(multires.RotateZ(-math.Pi / 24)).Mul(t)
		case 'z':
			t = t.Translated(0, 0, 4)
		case 'Z':
			t = t.Translated(0, 0, -4)
		case 'i':
			if state.Interpolation() == multires.NearestNeighbor {
				state.SetInterpolation(multires.NLinear)
			} else {
				state.SetInterpolation(multires.NearestNeighbor)
			}
		}
	}
	state.SetViewerTransform(t)
	return true
}

// fitTransform centers the demo volume's mid slice on the canvas.
func fitTransform(canvasW, canvasH int) multires.Affine3D {
	s := float64(min(canvasW, canvasH)) / volumeSize
	return multires.Translate3D(
		(float64(canvasW)-s*volumeSize)/2,
		(float64(canvasH)-s*volumeSize)/2,
		0,
	).Mul(multires.UniformScale3D(s)).Mul(multires.Translate3D(0, 0, -volumeSize/2))
}

// draw blits a render result to the terminal, two vertical pixels per
// cell using the upper-half-block glyph.
func draw(screen tcell.Screen, res multires.RenderResult, canvasW, canvasH int) {
	img := multires.ScaleToCanvas(res, canvasW, canvasH)
	for cy := 0; cy < canvasH/2; cy++ {
		for cx := 0; cx < canvasW; cx++ {
			top := img.RGBAAt(cx, cy*2)
			bot := img.RGBAAt(cx, cy*2+1)
			style := tcell.StyleDefault.
				Foreground(tcell.NewRGBColor(int32(top.R), int32(top.G), int32(top.B))).
				Background(tcell.NewRGBColor(int32(bot.R), int32(bot.G), int32(bot.B)))
			screen.SetContent(cx, cy, '▀', nil, style)
		}
	}
	screen.Show()
}

// demoVolume builds a synthetic test volume: nested spherical shells
// with a periodic intensity modulation, so that every zoom level has
// visible structure.
func demoVolume(n int) *volume.Volume {
	vol, _ := volume.NewVolume(n, n, n)
	c := float64(n-1) / 2
	for z := 0; z < n; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				dx, dy, dz := float64(x)-c, float64(y)-c, float64(z)-c
				r := math.Sqrt(dx*dx + dy*dy + dz*dz)
				if r > c {
					continue
				}
				shell := 0.5 + 0.5*math.Sin(r/3)
				swirl := 0.5 + 0.5*math.Sin(math.Atan2(dy, dx)*6+r/10)
				vol.Set(x, y, z, uint16(4000*shell*swirl))
			}
		}
	}
	return vol
}
