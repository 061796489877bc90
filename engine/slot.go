// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

// slot holds the GPU objects of one frame in flight.
// The fence is created signaled so the first wait on
// a fresh slot does not block.
type slot struct {
	cb    driver.CmdBuffer
	avail driver.Semaphore
	done  driver.Semaphore
	fence driver.Fence

	// The fence was reset and the submission that will
	// signal it has not been committed yet.
	armed bool
}

// newSlots creates n frame slots.
// It destroys everything it created on failure.
func newSlots(gpu driver.GPU, n int) (_ []slot, err error) {
	s := make([]slot, n)
	defer func() {
		if err != nil {
			freeSlots(s)
		}
	}()
	for i := range s {
		if s[i].cb, err = gpu.NewCmdBuffer(); err != nil {
			return nil, errors.Wrapf(err, "renderer: slot %d command buffer", i)
		}
		if s[i].avail, err = gpu.NewSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "renderer: slot %d semaphore", i)
		}
		if s[i].done, err = gpu.NewSemaphore(); err != nil {
			return nil, errors.Wrapf(err, "renderer: slot %d semaphore", i)
		}
		if s[i].fence, err = gpu.NewFence(true); err != nil {
			return nil, errors.Wrapf(err, "renderer: slot %d fence", i)
		}
	}
	return s, nil
}

// freeSlots destroys every object in s.
// The GPU must be idle.
func freeSlots(s []slot) {
	for i := range s {
		if s[i].fence != nil {
			s[i].fence.Destroy()
		}
		if s[i].done != nil {
			s[i].done.Destroy()
		}
		if s[i].avail != nil {
			s[i].avail.Destroy()
		}
		if s[i].cb != nil {
			s[i].cb.Destroy()
		}
		s[i] = slot{}
	}
}
