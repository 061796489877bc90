// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command framepace renders cleared frames into a window
// until it is closed, interrupted or the run duration
// elapses.
//
// Usage:
//
//	framepace [flags]
//
// The sim driver and headless windows are used by
// default. Building with the vulkan tag adds the vulkan
// driver and desktop windows.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"

	_ "github.com/gviegas/framepace/driver/sim"
	"github.com/gviegas/framepace/engine"
	"github.com/gviegas/framepace/wsi"
)

const appName = "framepace"

// How long to sleep between frames while the window has
// no area.
const minimizedPoll = 10 * time.Millisecond

type options struct {
	config  string
	driver  string
	frames  int
	timeout time.Duration
	run     time.Duration
	resize  time.Duration
	width   int
	height  int
	verbose bool
}

func parseFlags(args []string) (*options, *pflag.FlagSet, error) {
	var o options
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.StringVarP(&o.config, "config", "c", "", "TOML configuration file, reloaded when written")
	fs.StringVarP(&o.driver, "driver", "d", "sim", "GPU driver name (empty tries every driver)")
	fs.IntVarP(&o.frames, "frames", "f", 0, "frames in flight (overrides the configuration)")
	fs.DurationVar(&o.timeout, "timeout", 0, "bound on GPU waits (overrides the configuration)")
	fs.DurationVar(&o.run, "run", 0, "stop after this long (0 runs until the window closes)")
	fs.DurationVar(&o.resize, "resize", 0, "resize the window periodically (0 disables)")
	fs.IntVar(&o.width, "width", 800, "window width")
	fs.IntVar(&o.height, "height", 600, "window height")
	fs.BoolVarP(&o.verbose, "verbose", "v", false, "log per-frame events")
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	return &o, fs, nil
}

// apply overrides the settings of c given on the command
// line.
func (o *options) apply(fs *pflag.FlagSet, c *engine.Config) {
	if fs.Changed("frames") {
		c.Frames = o.frames
		c.Images = 0
	}
	if fs.Changed("timeout") {
		c.WaitTimeout = o.timeout
	}
}

// windowHandler implements wsi.WindowHandler.
type windowHandler struct {
	r      *engine.Onscreen
	once   sync.Once
	closed chan struct{}
}

func (h *windowHandler) WindowClose(wsi.Window) {
	h.once.Do(func() { close(h.closed) })
}

func (h *windowHandler) WindowResize(wsi.Window, int, int) {
	h.r.Invalidate()
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	o, fs, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	cfg := engine.DefaultConfig()
	cfg.Logger = log
	if o.config != "" {
		if cfg, err = engine.LoadConfig(o.config, cfg); err != nil {
			log.Error("load config", slog.Any("err", err))
			return 1
		}
	}
	o.apply(fs, &cfg)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", slog.Any("err", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if o.run > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.run)
		defer cancel()
	}

	drv, gpu, err := engine.OpenDriver(o.driver)
	if err != nil {
		log.Error("open driver", slog.String("driver", o.driver), slog.Any("err", err))
		return 1
	}
	defer drv.Close()
	log.Info("driver opened", slog.String("driver", drv.Name()))

	wsi.SetAppName(appName)
	win, err := wsi.NewWindow(o.width, o.height, appName)
	if err != nil {
		log.Error("create window", slog.Any("err", err))
		return 1
	}
	defer win.Close()
	if err := win.Map(); err != nil {
		log.Error("map window", slog.Any("err", err))
		return 1
	}

	r, err := engine.NewOnscreen(gpu, win, &engine.ClearRecorder{Color: [4]float32{0.1, 0.1, 0.12, 1}, Depth: 1}, &cfg)
	if err != nil {
		log.Error("create renderer", slog.Any("err", err))
		return 1
	}
	defer r.Free()

	h := &windowHandler{r: r, closed: make(chan struct{})}
	wsi.SetWindowHandler(h)
	defer wsi.SetWindowHandler(nil)

	if o.config != "" {
		cw, err := engine.WatchConfig(o.config, cfg, func(c engine.Config) {
			o.apply(fs, &c)
			if err := r.Reconfigure(c); err != nil {
				log.Warn("config rejected", slog.Any("err", err))
			}
		})
		if err != nil {
			log.Warn("config will not be reloaded", slog.Any("err", err))
		} else {
			defer cw.Close()
		}
	}

	var resize <-chan time.Time
	if o.resize > 0 {
		tk := time.NewTicker(o.resize)
		defer tk.Stop()
		resize = tk.C
	}
	sizes := [...][2]int{
		{o.width * 3 / 4, o.height * 3 / 4},
		{0, 0},
		{o.width, o.height},
	}
	nresize := 0

	code := 0
loop:
	for {
		select {
		case <-ctx.Done():
			log.Info("stopping", slog.Any("cause", context.Cause(ctx)))
			break loop
		case <-h.closed:
			log.Info("window closed")
			break loop
		case <-resize:
			sz := sizes[nresize%len(sizes)]
			nresize++
			if err := win.Resize(sz[0], sz[1]); err != nil {
				log.Warn("resize window", slog.Any("err", err))
			}
		default:
		}
		wsi.Dispatch()
		if err := r.RenderFrame(); err != nil {
			log.Error("render frame", slog.Any("err", err))
			code = 1
			break loop
		}
		if r.Minimized() {
			time.Sleep(minimizedPoll)
		}
	}

	if err := r.WaitIdle(); err != nil && code == 0 {
		log.Error("wait idle", slog.Any("err", err))
		code = 1
	}
	st := r.Stats()
	log.Info("done",
		slog.Int("frames", st.Frames),
		slog.Int("presented", st.Presented),
		slog.Int("dropped", st.Dropped),
		slog.Int("skipped", st.Skipped),
		slog.Int("rebuilds", st.Rebuilds))
	return code
}
