// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
	"github.com/gviegas/framepace/internal/bitm"
	"github.com/gviegas/framepace/wsi"
)

// The longest time that Next blocks waiting for an
// image to be released.
const acquireTimeout = 10 * time.Second

// swapchain implements driver.Swapchain.
// Its state is guarded by g.mu.
type swapchain struct {
	g      *GPU
	win    wsi.Window
	hint   int
	images []*image
	// Images held by the application or by the
	// presentation engine.
	busy bitm.Bitm[uint64]
	// Images held by the application.
	acquired bitm.Bitm[uint64]
	extent   driver.Dim3D
	gen      int
	invalid  bool
	changed  chan struct{}

	staleNext, stalePresent int
	subNext, subPresent     int
	destroyed               bool
}

type presentReq struct {
	sc    *swapchain
	index int
	gen   int
	wait  *semaphore
	st    driver.Status
}

// NewSwapchain creates a new swapchain.
func (g *GPU) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	if win == nil {
		return nil, errors.New("sim: nil wsi.Window in call to NewSwapchain")
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(OpNewSwapchain); err != nil {
		return nil, err
	}
	for _, sc := range g.swapchains {
		if sc.win == win {
			return nil, errors.Wrap(driver.ErrWindow, "sim: window already has a swapchain")
		}
	}
	sc := &swapchain{g: g, win: win, hint: imageCount, changed: make(chan struct{})}
	if err := sc.build(); err != nil {
		return nil, err
	}
	g.swapchains = append(g.swapchains, sc)
	return sc, nil
}

// build replaces sc's images with a new set that
// matches the window.
// It must be called with g.mu held.
func (sc *swapchain) build() error {
	w, h := sc.win.Width(), sc.win.Height()
	if w <= 0 || h <= 0 {
		return errors.Wrapf(driver.ErrWindow, "sim: window has no area (%dx%d)", w, h)
	}
	n := min(max(sc.hint, sc.g.cfg.MinImages), sc.g.cfg.MaxImages)
	sc.gen++
	sc.extent = driver.Dim3D{Width: w, Height: h, Depth: 1}
	sc.images = make([]*image, n)
	for i := range sc.images {
		sc.images[i] = &image{
			g:     sc.g,
			pf:    sc.g.cfg.Format,
			size:  sc.extent,
			usg:   driver.URenderTarget | driver.UCopySrc,
			sc:    sc,
			gen:   sc.gen,
			index: i,
		}
	}
	sc.busy = bitm.Bitm[uint64]{}
	sc.busy.Grow((n + 63) / 64)
	sc.acquired = bitm.Bitm[uint64]{}
	sc.acquired.Grow((n + 63) / 64)
	sc.invalid = false
	sc.broadcast()
	return nil
}

// broadcast wakes goroutines blocked in Next.
// It must be called with g.mu held.
func (sc *swapchain) broadcast() {
	close(sc.changed)
	sc.changed = make(chan struct{})
}

// stale returns whether sc no longer matches its window.
// It must be called with g.mu held.
func (sc *swapchain) stale() bool {
	return sc.invalid || sc.win.Width() != sc.extent.Width || sc.win.Height() != sc.extent.Height
}

// Images returns sc's images.
func (sc *swapchain) Images() []driver.Image {
	sc.g.mu.Lock()
	defer sc.g.mu.Unlock()
	imgs := make([]driver.Image, len(sc.images))
	for i := range sc.images {
		imgs[i] = sc.images[i]
	}
	return imgs
}

// Next acquires the next writable image.
func (sc *swapchain) Next(sig driver.Semaphore) (int, driver.Status, error) {
	sem := sig.(*semaphore)
	deadline := time.Now().Add(acquireTimeout)
	sc.g.mu.Lock()
	if err := sc.g.fault(OpNext); err != nil {
		sc.g.mu.Unlock()
		return -1, driver.Ready, err
	}
	for {
		if sc.destroyed {
			sc.g.mu.Unlock()
			return -1, driver.Ready, errors.New("sim: Next on destroyed swapchain")
		}
		if sc.staleNext > 0 {
			sc.staleNext--
			sc.g.mu.Unlock()
			return -1, driver.Stale, nil
		}
		if sc.stale() {
			sc.g.mu.Unlock()
			return -1, driver.Stale, nil
		}
		if idx, ok := sc.busy.Search(len(sc.images)); ok {
			sc.busy.Set(idx)
			sc.acquired.Set(idx)
			sc.g.stats.Acquired++
			sc.g.event(EvAcquire, idx, sc.gen, "")
			st := driver.Ready
			if sc.subNext > 0 {
				sc.subNext--
				st = driver.Suboptimal
			}
			sc.g.mu.Unlock()
			if !sem.signal() {
				return -1, driver.Ready, errors.Wrap(driver.ErrFatal, "sim: GPU closed")
			}
			return idx, st, nil
		}
		ch := sc.changed
		sc.g.mu.Unlock()
		if err := sc.g.await(ch, max(time.Until(deadline), 0), "swapchain image"); err != nil {
			return -1, driver.Ready, err
		}
		sc.g.mu.Lock()
	}
}

// Present queues an image for presentation.
func (sc *swapchain) Present(index int, wait driver.Semaphore) (driver.Status, error) {
	sem := wait.(*semaphore)
	sc.g.mu.Lock()
	if err := sc.g.fault(OpPresent); err != nil {
		sc.g.mu.Unlock()
		return driver.Ready, err
	}
	if sc.destroyed {
		sc.g.mu.Unlock()
		return driver.Ready, errors.New("sim: Present on destroyed swapchain")
	}
	if index < 0 || index >= len(sc.images) || !sc.acquired.IsSet(index) {
		sc.g.violate("present of unacquired image %d", index)
		sc.g.mu.Unlock()
		return driver.Ready, errors.Newf("sim: image %d was not acquired", index)
	}
	sc.acquired.Unset(index)
	st := driver.Ready
	switch {
	case sc.stalePresent > 0:
		sc.stalePresent--
		st = driver.Stale
	case sc.stale():
		st = driver.Stale
	case sc.subPresent > 0:
		sc.subPresent--
		st = driver.Suboptimal
	}
	sc.g.addBusy(0, 1)
	req := &presentReq{sc: sc, index: index, gen: sc.gen, wait: sem, st: st}
	sc.g.mu.Unlock()
	select {
	case sc.g.present <- req:
		return st, nil
	case <-sc.g.quit:
		return driver.Ready, errors.Wrap(driver.ErrFatal, "sim: GPU closed")
	}
}

// Recreate recreates sc.
func (sc *swapchain) Recreate() error {
	sc.g.mu.Lock()
	defer sc.g.mu.Unlock()
	if err := sc.g.fault(OpRecreate); err != nil {
		return err
	}
	if sc.destroyed {
		return errors.New("sim: Recreate on destroyed swapchain")
	}
	if sc.g.outstanding > 0 {
		sc.g.violate("swapchain recreated while %d submission(s) are outstanding", sc.g.outstanding)
	}
	for _, img := range sc.images {
		if img.views > 0 {
			sc.g.violate("swapchain recreated with %d live view(s) of image %d", img.views, img.index)
		}
	}
	if err := sc.build(); err != nil {
		return err
	}
	sc.g.stats.Recreated++
	sc.g.event(EvRecreate, -1, sc.gen, "")
	return nil
}

func (sc *swapchain) Format() driver.PixelFmt { return sc.g.cfg.Format }

func (sc *swapchain) Extent() driver.Dim3D {
	sc.g.mu.Lock()
	defer sc.g.mu.Unlock()
	return sc.extent
}

// Destroy destroys sc.
func (sc *swapchain) Destroy() {
	sc.g.mu.Lock()
	defer sc.g.mu.Unlock()
	if sc.destroyed {
		return
	}
	sc.g.checkIdle("swapchain")
	sc.destroyed = true
	for i, x := range sc.g.swapchains {
		if x == sc {
			sc.g.swapchains = append(sc.g.swapchains[:i], sc.g.swapchains[i+1:]...)
			break
		}
	}
	sc.broadcast()
}

// presentation consumes presentation requests.
func (g *GPU) presentation() {
	defer g.wg.Done()
	for {
		var req *presentReq
		select {
		case req = <-g.present:
		case <-g.quit:
			return
		}
		if !req.wait.consume(g.quit) {
			return
		}
		g.mu.Lock()
		g.addBusy(0, -1)
		if req.st != driver.Stale {
			g.stats.Presented++
			g.event(EvPresent, req.index, req.gen, req.st.String())
		}
		g.mu.Unlock()
		if req.st == driver.Stale || g.cfg.DisplayTime <= 0 {
			req.release()
		} else {
			time.AfterFunc(g.cfg.DisplayTime, req.release)
		}
	}
}

// release makes the presented image available again.
func (req *presentReq) release() {
	sc := req.sc
	sc.g.mu.Lock()
	defer sc.g.mu.Unlock()
	if sc.gen == req.gen && !sc.destroyed {
		sc.busy.Unset(req.index)
		sc.broadcast()
	}
}

// Invalidate makes every swapchain of g stale until
// it is recreated.
func (g *GPU) Invalidate() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, sc := range g.swapchains {
		sc.invalid = true
	}
}

// StaleNext causes the next n calls to Next, on any
// swapchain of g, to report driver.Stale.
func (g *GPU) StaleNext(n int) { g.inject(func(sc *swapchain) { sc.staleNext += n }) }

// StalePresent causes the next n calls to Present
// to report driver.Stale.
func (g *GPU) StalePresent(n int) { g.inject(func(sc *swapchain) { sc.stalePresent += n }) }

// SuboptimalNext causes the next n successful calls to
// Next to report driver.Suboptimal.
func (g *GPU) SuboptimalNext(n int) { g.inject(func(sc *swapchain) { sc.subNext += n }) }

// SuboptimalPresent causes the next n calls to Present
// that are not stale to report driver.Suboptimal.
func (g *GPU) SuboptimalPresent(n int) { g.inject(func(sc *swapchain) { sc.subPresent += n }) }

func (g *GPU) inject(f func(*swapchain)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, sc := range g.swapchains {
		f(sc)
	}
}
