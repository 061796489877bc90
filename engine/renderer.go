// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/trace"

	"github.com/gviegas/framepace/driver"
	"github.com/gviegas/framepace/wsi"
)

func newRendErr(s string) error { return errors.New("renderer: " + s) }

// ErrDeviceUnresponsive means that a bounded wait for the
// GPU elapsed. It is fatal.
var ErrDeviceUnresponsive = errors.New("renderer: device unresponsive")

// ErrFreed is returned by an Onscreen renderer after its
// Free method is called.
var ErrFreed = errors.New("renderer: renderer was freed")

// Stats contains counters of an Onscreen renderer's
// activity.
type Stats struct {
	// Frames that were submitted.
	Frames int
	// Frames that were presented.
	Presented int
	// Frames abandoned due to a stale swapchain.
	Dropped int
	// Calls to RenderFrame that did nothing because the
	// window had no area.
	Skipped int
	// Swapchain rebuilds.
	Rebuilds int
	// Current swapchain generation.
	Gen int
}

// Onscreen is a renderer that targets a wsi.Window.
// It keeps up to Config.Frames frames in flight and
// rebuilds its swapchain when the window changes.
//
// Methods other than Invalidate and Reconfigure must be
// called from a single goroutine.
type Onscreen struct {
	gpu    driver.GPU
	win    wsi.Window
	sc     driver.Swapchain
	rec    Recorder
	cfg    Config
	log    *slog.Logger
	tracer trace.Tracer

	pass    driver.RenderPass
	passFmt [2]driver.PixelFmt
	slots   []slot
	frame   int
	tgt     *Targets
	gen     int

	// A rebuild is owed but the window has no area.
	deferred bool
	// A rebuild is owed because the configuration changed.
	owed     bool
	subCount int
	stats    Stats
	// Sticky error.
	err error

	invalid atomic.Bool
	mu      sync.Mutex
	pending *Config
}

// NewOnscreen creates a new onscreen renderer.
// gpu must implement driver.Presenter. rec records the
// commands of every frame. If cfg is nil, DefaultConfig
// is used.
func NewOnscreen(gpu driver.GPU, win wsi.Window, rec Recorder, cfg *Config) (_ *Onscreen, err error) {
	switch {
	case gpu == nil:
		return nil, newRendErr("nil driver.GPU in call to NewOnscreen")
	case win == nil:
		return nil, newRendErr("nil wsi.Window in call to NewOnscreen")
	case rec == nil:
		return nil, newRendErr("nil Recorder in call to NewOnscreen")
	}
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c = c.withDefaults()
	pres, ok := gpu.(driver.Presenter)
	if !ok {
		return nil, newRendErr("NewOnscreen requires driver.Presenter")
	}

	r := &Onscreen{
		gpu:    gpu,
		win:    win,
		rec:    rec,
		cfg:    c,
		log:    c.Logger,
		tracer: c.TracerProvider.Tracer(tracerName),
	}
	defer func() {
		if err != nil {
			r.release()
		}
	}()
	if r.sc, err = pres.NewSwapchain(win, c.Images); err != nil {
		return nil, errors.Wrap(err, "renderer: new swapchain")
	}
	if r.slots, err = newSlots(gpu, c.Frames); err != nil {
		return nil, err
	}
	if err = r.ensurePass(); err != nil {
		return nil, err
	}
	if r.tgt, err = buildTargets(gpu, r.sc, r.pass, c.DepthFmt, r.gen); err != nil {
		return nil, err
	}
	r.log.Info("renderer created",
		slog.Int("frames", c.Frames),
		slog.Int("images", len(r.tgt.Views)),
		slog.String("format", r.tgt.Format.String()),
		slog.Int("width", r.tgt.Extent.Width),
		slog.Int("height", r.tgt.Extent.Height))
	return r, nil
}

// Window returns the wsi.Window associated with r.
func (r *Onscreen) Window() wsi.Window { return r.win }

// Generation returns the current swapchain generation.
// It starts at zero and increases with each rebuild.
func (r *Onscreen) Generation() int { return r.gen }

// Stats returns r's counters.
func (r *Onscreen) Stats() Stats {
	s := r.stats
	s.Gen = r.gen
	return s
}

// Err returns the error that stopped r, if any.
func (r *Onscreen) Err() error { return r.err }

// Minimized returns whether r is waiting for the window
// to have area again.
func (r *Onscreen) Minimized() bool { return r.deferred }

// Invalidate tells r that the window changed.
// The swapchain will be rebuilt after the next frame
// is presented.
// It is safe to call Invalidate from any goroutine.
func (r *Onscreen) Invalidate() { r.invalid.Store(true) }

// Reconfigure replaces r's configuration.
// The change takes effect at the start of the next call
// to RenderFrame. Changing Config.Images has no effect
// on an existing renderer.
// It is safe to call Reconfigure from any goroutine.
func (r *Onscreen) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.pending = &cfg
	r.mu.Unlock()
	return nil
}

// RenderFrame renders and presents one frame.
//
// It waits for the current frame slot to become
// available, acquires a swapchain image, records the
// frame's commands with the Recorder, submits them and
// presents the image. A stale swapchain causes the
// frame to be dropped and the swapchain to be rebuilt;
// this is not an error.
//
// Any error returned is fatal: every later call returns
// the same error without doing anything.
func (r *Onscreen) RenderFrame() (err error) {
	if r.err != nil {
		return r.err
	}
	defer func() {
		if err != nil {
			r.fail(err)
		}
	}()
	if err = r.reconfigure(); err != nil {
		return err
	}
	ctx, span := r.tracer.Start(context.Background(), spanFrame,
		trace.WithAttributes(attrSlot.Int(r.frame), attrGen.Int(r.gen)))
	defer func() { endSpan(span, err) }()

	if r.deferred || r.owed {
		if r.minimized() {
			r.deferred = true
			r.stats.Skipped++
			return nil
		}
		reason := "deferred"
		if !r.deferred {
			reason = "reconfigured"
		}
		if err = r.rebuild(ctx, reason); err != nil || r.deferred {
			return err
		}
	}

	s := &r.slots[r.frame]
	if err = s.fence.Wait(r.cfg.timeout()); err != nil {
		return r.stepErr(err, "wait for frame")
	}

	idx, ast, err := r.sc.Next(s.avail)
	if err != nil {
		return r.stepErr(err, "acquire")
	}
	span.SetAttributes(statusAttr(attrAcquire, ast))
	if ast == driver.Stale {
		r.stats.Dropped++
		r.log.Debug("frame dropped", slog.Int("slot", r.frame), slog.String("reason", "stale acquire"))
		return r.rebuild(ctx, "stale acquire")
	}
	span.SetAttributes(attrImage.Int(idx))

	if err = s.fence.Reset(); err != nil {
		return r.stepErr(err, "reset fence")
	}
	s.armed = true

	if err = r.record(s, idx); err != nil {
		return err
	}
	if err = r.submit(s); err != nil {
		return err
	}

	pst, err := r.sc.Present(idx, s.done)
	if err != nil {
		return r.stepErr(err, "present")
	}
	span.SetAttributes(statusAttr(attrPresent, pst))

	var reason string
	switch {
	case pst == driver.Stale:
		r.stats.Dropped++
		reason = "stale present"
		r.log.Debug("frame dropped", slog.Int("slot", r.frame), slog.String("reason", reason))
	case pst == driver.Suboptimal || ast == driver.Suboptimal:
		r.stats.Presented++
		reason = r.suboptimal()
	default:
		r.stats.Presented++
		r.subCount = 0
	}
	if reason == "" && r.invalid.Load() {
		reason = "window changed"
	}
	if reason != "" {
		if err = r.rebuild(ctx, reason); err != nil {
			return err
		}
	}
	r.frame = (r.frame + 1) % len(r.slots)
	return nil
}

// record records the commands of the frame that targets
// the swapchain image idx.
func (r *Onscreen) record(s *slot, idx int) error {
	if r.tgt == nil || r.tgt.Gen != r.gen {
		return errors.AssertionFailedf("renderer: recording with targets of another generation (current %d)", r.gen)
	}
	if idx < 0 || idx >= len(r.tgt.Framebufs) {
		return errors.AssertionFailedf("renderer: image index %d out of range [0, %d)", idx, len(r.tgt.Framebufs))
	}
	if err := s.cb.Reset(); err != nil {
		return r.stepErr(err, "reset command buffer")
	}
	if err := s.cb.Begin(); err != nil {
		return r.stepErr(err, "begin command buffer")
	}
	f := Frame{Slot: r.frame, Image: idx, Targets: r.tgt}
	if err := r.rec.Record(s.cb, &f); err != nil {
		return r.stepErr(err, "record")
	}
	if err := s.cb.End(); err != nil {
		return r.stepErr(err, "end command buffer")
	}
	return nil
}

// submit commits the recorded frame.
// The work waits on the acquired image at the color
// output stage and signals the slot's render-finished
// semaphore and fence.
func (r *Onscreen) submit(s *slot) error {
	if !s.armed {
		return errors.AssertionFailedf("renderer: slot %d submitted without resetting its fence", r.frame)
	}
	err := r.gpu.Commit(&driver.WorkItem{
		Work:   []driver.CmdBuffer{s.cb},
		Wait:   []driver.Semaphore{s.avail},
		WaitAt: []driver.Sync{driver.SColorOutput},
		Signal: []driver.Semaphore{s.done},
		Fence:  s.fence,
	})
	if err != nil {
		return r.stepErr(err, "submit")
	}
	s.armed = false
	r.stats.Frames++
	return nil
}

// suboptimal applies the suboptimal policy and returns
// a rebuild reason, or the empty string if the rebuild
// should not happen yet.
func (r *Onscreen) suboptimal() string {
	if r.cfg.Suboptimal == RebuildNow {
		return "suboptimal"
	}
	r.subCount++
	if r.subCount >= r.cfg.SuboptimalGrace {
		return fmt.Sprintf("suboptimal for %d frames", r.subCount)
	}
	return ""
}

// Rebuild rebuilds the swapchain and every target
// derived from it.
// If the window has no area, the rebuild is deferred
// until it has. Errors are fatal, as in RenderFrame.
func (r *Onscreen) Rebuild() (err error) {
	if r.err != nil {
		return r.err
	}
	if err = r.rebuild(context.Background(), "requested"); err != nil {
		r.fail(err)
	}
	return
}

// rebuild waits for the GPU to become idle, destroys the
// targets, recreates the swapchain and builds new targets.
func (r *Onscreen) rebuild(ctx context.Context, reason string) (err error) {
	r.invalid.Store(false)
	if r.minimized() {
		if !r.deferred {
			r.log.Info("rebuild deferred", slog.String("reason", reason))
		}
		r.deferred = true
		return nil
	}
	_, span := r.tracer.Start(ctx, spanRebuild,
		trace.WithAttributes(attrReason.String(reason), attrGen.Int(r.gen)))
	defer func() { endSpan(span, err) }()

	if err = r.gpu.WaitIdle(r.cfg.timeout()); err != nil {
		return r.stepErr(err, "rebuild: wait idle")
	}
	destroyTargets(r.tgt)
	r.tgt = nil
	if err = r.sc.Recreate(); err != nil {
		if errors.Is(err, driver.ErrWindow) {
			r.log.Info("rebuild deferred", slog.String("reason", reason), slog.Any("err", err))
			r.deferred = true
			return nil
		}
		return r.stepErr(err, "rebuild: recreate swapchain")
	}
	if err = r.ensurePass(); err != nil {
		return r.stepErr(err, "rebuild")
	}
	tgt, err := buildTargets(r.gpu, r.sc, r.pass, r.cfg.DepthFmt, r.gen+1)
	if err != nil {
		return r.stepErr(err, "rebuild")
	}
	r.gen++
	r.tgt = tgt
	r.deferred = false
	r.owed = false
	r.subCount = 0
	r.stats.Rebuilds++
	span.SetAttributes(attrExtent.String(fmt.Sprintf("%dx%d", tgt.Extent.Width, tgt.Extent.Height)))
	r.log.Info("swapchain rebuilt",
		slog.String("reason", reason),
		slog.Int("generation", r.gen),
		slog.Int("images", len(tgt.Views)),
		slog.Int("width", tgt.Extent.Width),
		slog.Int("height", tgt.Extent.Height))
	return nil
}

// ensurePass (re)creates the render pass if the color
// or depth format changed.
// Framebuffers created from the previous pass must
// have been destroyed.
func (r *Onscreen) ensurePass() error {
	want := [2]driver.PixelFmt{r.sc.Format(), r.cfg.DepthFmt}
	if r.pass != nil && r.passFmt == want {
		return nil
	}
	pass, err := newPass(r.gpu, want[0], want[1])
	if err != nil {
		return err
	}
	if r.pass != nil {
		r.pass.Destroy()
	}
	r.pass = pass
	r.passFmt = want
	return nil
}

// reconfigure applies a configuration set by Reconfigure.
func (r *Onscreen) reconfigure() error {
	r.mu.Lock()
	c := r.pending
	r.pending = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}
	old := r.cfg
	next := *c
	if next.Logger == nil {
		next.Logger = old.Logger
	}
	if next.TracerProvider == nil {
		next.TracerProvider = old.TracerProvider
	}
	if next.Images == 0 {
		next.Images = old.Images
	}
	if next.Images != old.Images {
		r.log.Warn("Config.Images cannot change on an existing renderer",
			slog.Int("have", old.Images), slog.Int("want", next.Images))
		next.Images = old.Images
	}
	if next.Frames != old.Frames {
		if err := r.gpu.WaitIdle(old.timeout()); err != nil {
			return r.stepErr(err, "reconfigure: wait idle")
		}
		freeSlots(r.slots)
		r.slots = nil
		slots, err := newSlots(r.gpu, next.Frames)
		if err != nil {
			return err
		}
		r.slots = slots
		r.frame = 0
	}
	if next.DepthFmt != old.DepthFmt {
		r.owed = true
	}
	r.cfg = next
	r.log = next.Logger
	r.tracer = next.TracerProvider.Tracer(tracerName)
	r.log.Info("renderer reconfigured",
		slog.Int("frames", next.Frames),
		slog.Duration("wait_timeout", next.WaitTimeout),
		slog.String("suboptimal", next.Suboptimal.String()),
		slog.String("depth_format", next.DepthFmt.String()))
	return nil
}

// WaitIdle blocks until the GPU has completed all work.
// It fails with ErrDeviceUnresponsive if Config.WaitTimeout
// elapses, in which case the error is also sticky.
func (r *Onscreen) WaitIdle() error {
	if r.gpu == nil {
		return r.err
	}
	if errors.Is(r.err, ErrFreed) || errors.Is(r.err, ErrDeviceUnresponsive) {
		return r.err
	}
	if err := r.gpu.WaitIdle(r.cfg.timeout()); err != nil {
		err = r.stepErr(err, "wait idle")
		r.fail(err)
		return err
	}
	return nil
}

// Free waits for the GPU to become idle and then
// destroys r's resources.
// r cannot be used after Free is called.
func (r *Onscreen) Free() {
	if r.gpu == nil {
		return
	}
	if err := r.gpu.WaitIdle(r.cfg.timeout()); err != nil {
		r.log.Warn("freeing renderer while device is busy", slog.Any("err", err))
	}
	r.release()
	if r.err == nil {
		r.err = ErrFreed
	}
	r.log.Info("renderer freed", slog.Int("frames", r.stats.Frames), slog.Int("rebuilds", r.stats.Rebuilds))
	r.gpu = nil
	r.win = nil
	r.rec = nil
}

// release destroys every resource owned by r.
func (r *Onscreen) release() {
	destroyTargets(r.tgt)
	r.tgt = nil
	if r.pass != nil {
		r.pass.Destroy()
		r.pass = nil
	}
	freeSlots(r.slots)
	r.slots = nil
	if r.sc != nil {
		r.sc.Destroy()
		r.sc = nil
	}
}

// fail makes err sticky.
func (r *Onscreen) fail(err error) {
	if r.err != nil {
		return
	}
	r.err = err
	r.log.Error("renderer stopped", slog.Int("slot", r.frame), slog.Int("generation", r.gen), slog.Any("err", err))
}

// stepErr wraps an error that occurred in the given step.
// Bounded waits that elapsed are joined with
// ErrDeviceUnresponsive.
func (r *Onscreen) stepErr(err error, step string) error {
	err = errors.Wrapf(err, "renderer: %s (slot %d)", step, r.frame)
	if errors.Is(err, driver.ErrTimeout) {
		err = errors.Join(ErrDeviceUnresponsive, err)
	}
	return err
}

// minimized returns whether the window has no area.
func (r *Onscreen) minimized() bool { return r.win.Width() <= 0 || r.win.Height() <= 0 }
