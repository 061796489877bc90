// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/framepace/driver"
	"github.com/gviegas/framepace/wsi"
)

func newTestGPU(t *testing.T, cfg Config) *GPU {
	t.Helper()
	g := Open(cfg)
	t.Cleanup(g.drv.Close)
	return g
}

func newTestWindow(t *testing.T, width, height int) wsi.Window {
	t.Helper()
	win, err := wsi.NewWindow(width, height, t.Name())
	require.NoError(t, err)
	t.Cleanup(win.Close)
	return win
}

func recorded(t *testing.T, g *GPU) driver.CmdBuffer {
	t.Helper()
	cb, err := g.NewCmdBuffer()
	require.NoError(t, err)
	require.NoError(t, cb.Begin())
	require.NoError(t, cb.End())
	return cb
}

func TestRegistered(t *testing.T) {
	var found bool
	for _, d := range driver.Drivers() {
		if d.Name() == driverName {
			found = true
		}
	}
	if !found {
		t.Fatalf("driver.Drivers: %q not registered", driverName)
	}
}

func TestDriver(t *testing.T) {
	d := New(DefaultConfig())
	u, err := d.Open()
	require.NoError(t, err)
	v, err := d.Open()
	require.NoError(t, err)
	if u != v {
		t.Fatal("Driver.Open: GPU differs between calls")
	}
	if u.Driver() != d {
		t.Fatal("GPU.Driver: unexpected Driver value")
	}
	d.Close()
	d.Close()
	if d.Name() != driverName {
		t.Fatalf("Driver.Name:\nhave %s\nwant %s", d.Name(), driverName)
	}
}

func TestCommitFence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Latency = 50 * time.Millisecond
	g := newTestGPU(t, cfg)

	f, err := g.NewFence(true)
	require.NoError(t, err)
	assert.True(t, f.Signaled())
	require.NoError(t, f.Wait(0))

	cb := recorded(t, g)
	err = g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}, Fence: f})
	require.Error(t, err, "Commit must reject a signaled fence")
	assert.Len(t, g.Violations(), 1)

	require.NoError(t, f.Reset())
	assert.False(t, f.Signaled())
	require.NoError(t, g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}, Fence: f}))
	assert.Error(t, f.Reset(), "Reset of a pending fence")
	assert.Error(t, cb.Begin(), "Begin of a pending command buffer")
	require.NoError(t, f.Wait(time.Second))
	assert.True(t, f.Signaled())
	require.NoError(t, g.WaitIdle(time.Second))

	s := g.Stats()
	assert.Equal(t, 1, s.Submitted)
	assert.Equal(t, 1, s.Retired)
	assert.Equal(t, 0, s.Outstanding)
	assert.Len(t, g.Violations(), 3)
}

func TestSemaphoreOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Latency = 0
	g := newTestGPU(t, cfg)

	sem, err := g.NewSemaphore()
	require.NoError(t, err)
	f1, _ := g.NewFence(false)
	f2, _ := g.NewFence(false)

	// Work waiting on sem must not start until the
	// swapchain signals it.
	win := newTestWindow(t, 64, 64)
	sc, err := g.NewSwapchain(win, 3)
	require.NoError(t, err)
	defer sc.Destroy()

	require.NoError(t, g.Commit(&driver.WorkItem{
		Work:   []driver.CmdBuffer{recorded(t, g)},
		Wait:   []driver.Semaphore{sem},
		WaitAt: []driver.Sync{driver.SColorOutput},
		Fence:  f1,
	}))
	assert.ErrorIs(t, f1.Wait(20*time.Millisecond), driver.ErrTimeout)

	idx, st, err := sc.Next(sem)
	require.NoError(t, err)
	assert.Equal(t, driver.Ready, st)
	assert.Equal(t, 0, idx)
	require.NoError(t, f1.Wait(time.Second))

	require.NoError(t, g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{recorded(t, g)}, Fence: f2}))
	require.NoError(t, f2.Wait(time.Second))
	assert.Empty(t, g.Violations())
}

func TestWaitAtMismatch(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	sem, _ := g.NewSemaphore()
	err := g.Commit(&driver.WorkItem{Wait: []driver.Semaphore{sem}})
	assert.Error(t, err)
}

func TestHang(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	f, _ := g.NewFence(false)
	g.Hang()
	require.NoError(t, g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{recorded(t, g)}, Fence: f}))
	assert.ErrorIs(t, f.Wait(30*time.Millisecond), driver.ErrTimeout)
	assert.ErrorIs(t, g.WaitIdle(10*time.Millisecond), driver.ErrTimeout)
	g.Resume()
	require.NoError(t, g.WaitIdle(time.Second))
	assert.True(t, f.Signaled())
}

func TestFail(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	boom := errors.New("boom")
	g.Fail(OpNewImage, boom)
	_, err := g.NewImage(driver.D16un, driver.Dim3D{Width: 4, Height: 4}, driver.URenderTarget)
	assert.ErrorIs(t, err, boom)
	img, err := g.NewImage(driver.D16un, driver.Dim3D{Width: 4, Height: 4}, driver.URenderTarget)
	require.NoError(t, err)

	g.Fail(OpNewView, boom)
	_, err = img.NewView()
	assert.ErrorIs(t, err, boom)
	v, err := img.NewView()
	require.NoError(t, err)

	img.Destroy()
	v.Destroy()
	assert.Len(t, g.Violations(), 1, "image destroyed with live view")
}

func TestRenderPass(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	att := []driver.Attachment{
		{Format: driver.BGRA8sRGB, Load: driver.LClear, Store: driver.SStore, Present: true},
		{Format: driver.D16un, Load: driver.LClear, Store: driver.SDontCare},
	}
	pass, err := g.NewRenderPass(att)
	require.NoError(t, err)
	_, err = g.NewRenderPass(att[1:])
	assert.Error(t, err, "depth-only pass")

	size := driver.Dim3D{Width: 32, Height: 16, Depth: 1}
	color, _ := g.NewImage(driver.BGRA8sRGB, size, driver.URenderTarget)
	depth, _ := g.NewImage(driver.D16un, size, driver.URenderTarget)
	cv, _ := color.NewView()
	dv, _ := depth.NewView()

	_, err = pass.NewFB([]driver.ImageView{dv, cv}, 32, 16)
	assert.Error(t, err, "format mismatch")
	_, err = pass.NewFB([]driver.ImageView{cv, dv}, 64, 16)
	assert.Error(t, err, "size mismatch")
	fb, err := pass.NewFB([]driver.ImageView{cv, dv}, 32, 16)
	require.NoError(t, err)

	cb, _ := g.NewCmdBuffer()
	require.NoError(t, cb.Begin())
	assert.True(t, cb.IsRecording())
	cb.BeginPass(pass, fb, make([]driver.ClearValue, 2))
	cb.EndPass()
	require.NoError(t, cb.End())
	assert.False(t, cb.IsRecording())

	require.NoError(t, cb.Begin())
	cb.BeginPass(pass, fb, nil)
	cb.EndPass()
	assert.Error(t, cb.End(), "missing clear values")

	f, _ := g.NewFence(false)
	require.NoError(t, cb.Reset())
	require.NoError(t, cb.Begin())
	cb.BeginPass(pass, fb, make([]driver.ClearValue, 2))
	cb.EndPass()
	require.NoError(t, cb.End())
	require.NoError(t, g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}, Fence: f}))
	require.NoError(t, f.Wait(time.Second))

	fb.Destroy()
	pass.Destroy()
	cv.Destroy()
	dv.Destroy()
	color.Destroy()
	depth.Destroy()
	cb.Destroy()
	assert.Empty(t, g.Violations())
}

func TestDestroyWhileBusy(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	g.Hang()
	f, _ := g.NewFence(false)
	cb := recorded(t, g)
	require.NoError(t, g.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}, Fence: f}))
	img, _ := g.NewImage(driver.RGBA8un, driver.Dim3D{Width: 1, Height: 1}, driver.UGeneric)
	img.Destroy()
	cb.Destroy()
	g.Resume()
	require.NoError(t, g.WaitIdle(time.Second))
	assert.Len(t, g.Violations(), 3)
}
