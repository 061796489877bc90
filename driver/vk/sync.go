// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
)

// semaphore implements driver.Semaphore.
type semaphore struct {
	d   *Driver
	sem vulkan.Semaphore
}

// NewSemaphore creates a new binary semaphore.
func (d *Driver) NewSemaphore() (driver.Semaphore, error) {
	info := vulkan.SemaphoreCreateInfo{SType: vulkan.StructureTypeSemaphoreCreateInfo}
	var sem vulkan.Semaphore
	if err := checkResult(vulkan.CreateSemaphore(d.dev, &info, nil, &sem)); err != nil {
		return nil, errors.Wrap(err, "vk: create semaphore")
	}
	return &semaphore{d: d, sem: sem}, nil
}

// Destroy destroys the semaphore.
func (s *semaphore) Destroy() {
	if s == nil || s.d == nil {
		return
	}
	vulkan.DestroySemaphore(s.d.dev, s.sem, nil)
	*s = semaphore{}
}

// fence implements driver.Fence.
type fence struct {
	d   *Driver
	fen vulkan.Fence
}

// NewFence creates a new fence.
func (d *Driver) NewFence(signaled bool) (driver.Fence, error) {
	info := vulkan.FenceCreateInfo{SType: vulkan.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vulkan.FenceCreateFlags(vulkan.FenceCreateSignaledBit)
	}
	var fen vulkan.Fence
	if err := checkResult(vulkan.CreateFence(d.dev, &info, nil, &fen)); err != nil {
		return nil, errors.Wrap(err, "vk: create fence")
	}
	return &fence{d: d, fen: fen}, nil
}

// Wait blocks until the fence is signaled.
func (f *fence) Wait(timeout time.Duration) error {
	res := vulkan.WaitForFences(f.d.dev, 1, []vulkan.Fence{f.fen}, vulkan.True, nanoseconds(timeout))
	if err := checkResult(res); err != nil {
		return errors.Wrapf(err, "vk: wait fence (%v)", timeout)
	}
	return nil
}

// Reset sets the fence to the unsignaled state.
func (f *fence) Reset() error {
	return errors.Wrap(checkResult(vulkan.ResetFences(f.d.dev, 1, []vulkan.Fence{f.fen})), "vk: reset fence")
}

// Signaled returns whether the fence is signaled.
func (f *fence) Signaled() bool {
	return vulkan.GetFenceStatus(f.d.dev, f.fen) == vulkan.Success
}

// Destroy destroys the fence.
func (f *fence) Destroy() {
	if f == nil || f.d == nil {
		return
	}
	vulkan.DestroyFence(f.d.dev, f.fen, nil)
	*f = fence{}
}

// WaitIdle blocks until the device is idle.
// vkDeviceWaitIdle takes no timeout, so a bounded wait
// leaves the call running in the background when it
// elapses. Queue operations block until it returns.
func (d *Driver) WaitIdle(timeout time.Duration) error {
	idle := func() error {
		d.qmu.Lock()
		defer d.qmu.Unlock()
		return checkResult(vulkan.DeviceWaitIdle(d.dev))
	}
	if timeout < 0 {
		return errors.Wrap(idle(), "vk: wait idle")
	}
	done := make(chan error, 1)
	go func() { done <- idle() }()
	tm := time.NewTimer(timeout)
	defer tm.Stop()
	select {
	case err := <-done:
		return errors.Wrap(err, "vk: wait idle")
	case <-tm.C:
		return errors.Wrapf(driver.ErrTimeout, "vk: wait idle (%v)", timeout)
	}
}

// nanoseconds converts a driver timeout into a Vulkan one.
func nanoseconds(timeout time.Duration) uint64 {
	if timeout < 0 {
		return vulkan.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}
