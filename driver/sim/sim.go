// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Package sim implements a software GPU and presentation
// engine.
// Committed work executes asynchronously, in submission
// order, on a timeline goroutine; presentation requests
// are consumed by a second goroutine. Faults can be
// injected into any operation and misuse of the
// synchronization primitives is recorded as violations,
// which makes the package suitable for testing code
// that paces frames.
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

const driverName = "sim"

// Config is used to configure a simulated GPU.
type Config struct {
	// Time that the GPU spends executing each WorkItem.
	//
	// Default is 1ms.
	Latency time.Duration

	// Time that a presented image stays on display
	// before it can be acquired again.
	//
	// Default is 0.
	DisplayTime time.Duration

	// Bounds on the number of swapchain images.
	//
	// Default is 2 and 8.
	MinImages int
	MaxImages int

	// Format of swapchain images.
	//
	// Default is driver.BGRA8sRGB.
	Format driver.PixelFmt

	// How long a binary semaphore that is still signaled
	// may delay another signal before this is recorded as
	// a violation.
	//
	// Default is 1s.
	Grace time.Duration

	// Whether to record an Event for each operation.
	//
	// Default is false.
	Record bool

	// Logger for violations.
	//
	// Default is slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Latency:   time.Millisecond,
		MinImages: 2,
		MaxImages: 8,
		Format:    driver.BGRA8sRGB,
		Grace:     time.Second,
	}
}

func (c *Config) setDefaults() {
	dfl := DefaultConfig()
	if c.MinImages <= 0 {
		c.MinImages = dfl.MinImages
	}
	if c.MaxImages < c.MinImages {
		c.MaxImages = max(dfl.MaxImages, c.MinImages)
	}
	if c.Format == driver.FInvalid {
		c.Format = dfl.Format
	}
	if c.Grace <= 0 {
		c.Grace = dfl.Grace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Driver implements driver.Driver.
type Driver struct {
	cfg Config
	gpu *GPU
}

func init() {
	driver.Register(&Driver{cfg: DefaultConfig()})
}

// New creates a new, unregistered Driver.
func New(cfg Config) *Driver { return &Driver{cfg: cfg} }

// Open initializes the driver.
func (d *Driver) Open() (driver.GPU, error) {
	if d.gpu == nil {
		d.gpu = newGPU(d, d.cfg)
	}
	return d.gpu, nil
}

// Name returns the driver's name.
func (d *Driver) Name() string { return driverName }

// Close deinitializes the driver.
func (d *Driver) Close() {
	if d.gpu != nil {
		d.gpu.close()
		d.gpu = nil
	}
}

// Open creates a new Driver and opens it.
func Open(cfg Config) *GPU {
	d := New(cfg)
	d.Open()
	return d.gpu
}

// Op identifies an operation for fault injection.
type Op int

// Operations.
const (
	OpCommit Op = iota
	OpWaitIdle
	OpNewCmdBuffer
	OpNewSemaphore
	OpNewFence
	OpFenceWait
	OpNewRenderPass
	OpNewImage
	OpNewView
	OpNewFB
	OpNewSwapchain
	OpNext
	OpPresent
	OpRecreate
	numOp
)

// Stats contains counters of a GPU's activity.
type Stats struct {
	Submitted      int
	Retired        int
	Acquired       int
	Presented      int
	Recreated      int
	Outstanding    int
	MaxOutstanding int
}

// EventKind is the type of an Event.
type EventKind int

// Event kinds.
const (
	EvCommit EventKind = iota
	EvRetire
	EvAcquire
	EvPresent
	EvRecreate
	EvDestroy
)

func (k EventKind) String() string {
	switch k {
	case EvCommit:
		return "commit"
	case EvRetire:
		return "retire"
	case EvAcquire:
		return "acquire"
	case EvPresent:
		return "present"
	case EvRecreate:
		return "recreate"
	case EvDestroy:
		return "destroy"
	}
	return "invalid"
}

// Event describes an operation performed by a GPU.
// Index is the swapchain image for acquire/present
// events and the submission number for commit/retire
// events. Outstanding is the number of uncompleted
// submissions when the event occurred.
type Event struct {
	Kind        EventKind
	Index       int
	Gen         int
	Outstanding int
	What        string
}

// GPU implements driver.GPU and driver.Presenter.
type GPU struct {
	drv *Driver
	cfg Config
	log *slog.Logger

	// mu guards every field below and the state of
	// images, views, passes, framebuffers and
	// swapchains.
	mu          sync.Mutex
	outstanding int
	presenting  int
	idle        chan struct{}
	faults      [numOp][]error
	violations  []string
	events      []Event
	stats       Stats
	hung        bool
	resume      chan struct{}
	swapchains  []*swapchain
	nsub        int

	cmu     sync.Mutex
	work    chan *submission
	present chan *presentReq
	quit    chan struct{}
	wg      sync.WaitGroup
}

type submission struct {
	num    int
	work   []*cmdBuffer
	wait   []*semaphore
	signal []*semaphore
	fence  *fence
}

func newGPU(drv *Driver, cfg Config) *GPU {
	cfg.setDefaults()
	g := &GPU{
		drv:     drv,
		cfg:     cfg,
		log:     cfg.Logger,
		idle:    make(chan struct{}),
		work:    make(chan *submission, 256),
		present: make(chan *presentReq, 256),
		quit:    make(chan struct{}),
	}
	close(g.idle)
	g.wg.Add(2)
	go g.timeline()
	go g.presentation()
	return g
}

func (g *GPU) close() {
	close(g.quit)
	g.wg.Wait()
}

// Driver returns the Driver that owns g.
func (g *GPU) Driver() driver.Driver { return g.drv }

// Fail causes the next call of op to fail with err.
// Calling Fail multiple times queues errors.
func (g *GPU) Fail(op Op, err error) {
	g.mu.Lock()
	g.faults[op] = append(g.faults[op], err)
	g.mu.Unlock()
}

// fault pops the next injected error for op.
// It must be called with g.mu held.
func (g *GPU) fault(op Op) error {
	if len(g.faults[op]) == 0 {
		return nil
	}
	err := g.faults[op][0]
	g.faults[op] = g.faults[op][1:]
	return err
}

func (g *GPU) faultLocked(op Op) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fault(op)
}

// Hang stops the timeline from completing work until
// Resume is called.
func (g *GPU) Hang() {
	g.mu.Lock()
	if !g.hung {
		g.hung = true
		g.resume = make(chan struct{})
	}
	g.mu.Unlock()
}

// Resume undoes Hang.
func (g *GPU) Resume() {
	g.mu.Lock()
	if g.hung {
		g.hung = false
		close(g.resume)
	}
	g.mu.Unlock()
}

// Stats returns a snapshot of g's counters.
func (g *GPU) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.stats
	s.Outstanding = g.outstanding
	return s
}

// Violations returns the recorded misuses of g.
func (g *GPU) Violations() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.violations...)
}

// Events returns the recorded events.
// Events are only recorded if Config.Record is set.
func (g *GPU) Events() []Event {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...)
}

// violate records a violation.
// It must be called with g.mu held.
func (g *GPU) violate(format string, args ...any) {
	s := fmt.Sprintf(format, args...)
	g.violations = append(g.violations, s)
	g.log.Warn("sim: violation", slog.String("what", s))
}

// event records an Event.
// It must be called with g.mu held.
func (g *GPU) event(kind EventKind, index, gen int, what string) {
	if g.cfg.Record {
		g.events = append(g.events, Event{kind, index, gen, g.outstanding, what})
	}
}

// busy returns whether there is uncompleted work.
// It must be called with g.mu held.
func (g *GPU) busy() bool { return g.outstanding+g.presenting > 0 }

// addBusy updates the outstanding and presenting
// counts, maintaining the idle channel.
// It must be called with g.mu held.
func (g *GPU) addBusy(work, pres int) {
	was := g.busy()
	g.outstanding += work
	g.presenting += pres
	switch is := g.busy(); {
	case !was && is:
		g.idle = make(chan struct{})
	case was && !is:
		close(g.idle)
	}
}

// checkIdle records a violation if the GPU is busy
// when a resource is destroyed.
// It must be called with g.mu held.
func (g *GPU) checkIdle(what string) {
	if g.busy() {
		g.violate("%s destroyed while %d submission(s) and %d presentation(s) are outstanding",
			what, g.outstanding, g.presenting)
	}
	g.event(EvDestroy, -1, 0, what)
}

// Commit commits a WorkItem to the GPU for execution.
func (g *GPU) Commit(wk *driver.WorkItem) error {
	if len(wk.Wait) != len(wk.WaitAt) {
		return errors.New("sim: mismatched WorkItem.Wait and WorkItem.WaitAt")
	}
	s := &submission{
		work:   make([]*cmdBuffer, len(wk.Work)),
		wait:   make([]*semaphore, len(wk.Wait)),
		signal: make([]*semaphore, len(wk.Signal)),
	}
	for i, cb := range wk.Work {
		s.work[i] = cb.(*cmdBuffer)
	}
	for i, sem := range wk.Wait {
		s.wait[i] = sem.(*semaphore)
	}
	for i, sem := range wk.Signal {
		s.signal[i] = sem.(*semaphore)
	}
	if wk.Fence != nil {
		s.fence = wk.Fence.(*fence)
	}

	g.cmu.Lock()
	defer g.cmu.Unlock()
	g.mu.Lock()
	if err := g.fault(OpCommit); err != nil {
		g.mu.Unlock()
		return err
	}
	for _, cb := range s.work {
		if err := cb.submit(); err != nil {
			for _, x := range s.work {
				if x == cb {
					break
				}
				x.unsubmit()
			}
			g.mu.Unlock()
			return err
		}
	}
	if s.fence != nil {
		if err := s.fence.submit(); err != nil {
			for _, cb := range s.work {
				cb.unsubmit()
			}
			g.mu.Unlock()
			return err
		}
	}
	g.nsub++
	s.num = g.nsub
	g.addBusy(1, 0)
	g.stats.Submitted++
	g.stats.MaxOutstanding = max(g.stats.MaxOutstanding, g.outstanding)
	g.event(EvCommit, s.num, 0, "")
	g.mu.Unlock()

	select {
	case g.work <- s:
		return nil
	case <-g.quit:
		return errors.Wrap(driver.ErrFatal, "sim: GPU closed")
	}
}

// WaitIdle blocks until g is idle.
func (g *GPU) WaitIdle(timeout time.Duration) error {
	g.mu.Lock()
	if err := g.fault(OpWaitIdle); err != nil {
		g.mu.Unlock()
		return err
	}
	ch := g.idle
	g.mu.Unlock()
	return g.await(ch, timeout, "GPU idle")
}

// await waits for ch to be closed.
func (g *GPU) await(ch <-chan struct{}, timeout time.Duration, what string) error {
	if timeout < 0 {
		select {
		case <-ch:
			return nil
		case <-g.quit:
			return errors.Wrap(driver.ErrFatal, "sim: GPU closed")
		}
	}
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case <-ch:
		return nil
	case <-g.quit:
		return errors.Wrap(driver.ErrFatal, "sim: GPU closed")
	case <-tm.C:
		return errors.Wrapf(driver.ErrTimeout, "sim: waiting for %s (%v)", what, timeout)
	}
}

// sleep sleeps for d or until g is closed.
func (g *GPU) sleep(d time.Duration) bool {
	if d <= 0 {
		return true
	}
	tm := time.NewTimer(d)
	defer tm.Stop()
	select {
	case <-tm.C:
		return true
	case <-g.quit:
		return false
	}
}

// timeline executes submissions in order.
func (g *GPU) timeline() {
	defer g.wg.Done()
	for {
		var s *submission
		select {
		case s = <-g.work:
		case <-g.quit:
			return
		}
		for _, sem := range s.wait {
			if !sem.consume(g.quit) {
				return
			}
		}
		if !g.sleep(g.cfg.Latency) {
			return
		}
		g.mu.Lock()
		if g.hung {
			ch := g.resume
			g.mu.Unlock()
			select {
			case <-ch:
			case <-g.quit:
				return
			}
			g.mu.Lock()
		}
		for _, cb := range s.work {
			cb.execute()
		}
		g.mu.Unlock()
		for _, sem := range s.signal {
			if !sem.signal() {
				return
			}
		}
		g.mu.Lock()
		if s.fence != nil {
			s.fence.signal()
		}
		g.addBusy(-1, 0)
		g.stats.Retired++
		g.event(EvRetire, s.num, 0, "")
		g.mu.Unlock()
	}
}
