// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

// semaphore implements driver.Semaphore.
// The channel holds at most one pending signal.
type semaphore struct {
	g  *GPU
	ch chan struct{}
}

// NewSemaphore creates a new binary semaphore.
func (g *GPU) NewSemaphore() (driver.Semaphore, error) {
	if err := g.faultLocked(OpNewSemaphore); err != nil {
		return nil, err
	}
	return &semaphore{g: g, ch: make(chan struct{}, 1)}, nil
}

// signal signals s. If s is still signaled, it waits
// up to Config.Grace for the pending signal to be
// consumed and records a violation otherwise.
// It returns false if the GPU was closed.
func (s *semaphore) signal() bool {
	select {
	case s.ch <- struct{}{}:
		return true
	default:
	}
	tm := time.NewTimer(s.g.cfg.Grace)
	defer tm.Stop()
	select {
	case s.ch <- struct{}{}:
		return true
	case <-tm.C:
		s.g.mu.Lock()
		s.g.violate("binary semaphore signaled while already signaled")
		s.g.mu.Unlock()
		return true
	case <-s.g.quit:
		return false
	}
}

// consume waits for s to be signaled and unsignals it.
func (s *semaphore) consume(quit <-chan struct{}) bool {
	select {
	case <-s.ch:
		return true
	case <-quit:
		return false
	}
}

// Destroy destroys s.
func (s *semaphore) Destroy() {
	s.g.mu.Lock()
	s.g.checkIdle("semaphore")
	s.g.mu.Unlock()
}

// fence implements driver.Fence.
// Its state is guarded by g.mu.
type fence struct {
	g        *GPU
	ch       chan struct{}
	signaled bool
	pending  bool
}

// NewFence creates a new fence.
func (g *GPU) NewFence(signaled bool) (driver.Fence, error) {
	if err := g.faultLocked(OpNewFence); err != nil {
		return nil, err
	}
	f := &fence{g: g, ch: make(chan struct{})}
	if signaled {
		close(f.ch)
		f.signaled = true
	}
	return f, nil
}

// submit marks f as belonging to a submission.
// It must be called with g.mu held.
func (f *fence) submit() error {
	switch {
	case f.pending:
		f.g.violate("fence submitted while pending")
		return errors.New("sim: fence already in use")
	case f.signaled:
		f.g.violate("fence submitted without being reset")
		return errors.New("sim: fence is signaled")
	}
	f.pending = true
	return nil
}

// signal signals f.
// It must be called with g.mu held.
func (f *fence) signal() {
	f.pending = false
	if !f.signaled {
		f.signaled = true
		close(f.ch)
	}
}

// Wait blocks until f is signaled.
func (f *fence) Wait(timeout time.Duration) error {
	f.g.mu.Lock()
	if err := f.g.fault(OpFenceWait); err != nil {
		f.g.mu.Unlock()
		return err
	}
	ch := f.ch
	f.g.mu.Unlock()
	return f.g.await(ch, timeout, "fence")
}

// Reset unsignals f.
func (f *fence) Reset() error {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	if f.pending {
		f.g.violate("fence reset while pending")
		return errors.New("sim: fence in use")
	}
	if f.signaled {
		f.signaled = false
		f.ch = make(chan struct{})
	}
	return nil
}

// Signaled returns whether f is signaled.
func (f *fence) Signaled() bool {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	return f.signaled
}

// Destroy destroys f.
func (f *fence) Destroy() {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	if f.pending {
		f.g.violate("fence destroyed while pending")
	}
	f.g.checkIdle("fence")
}
