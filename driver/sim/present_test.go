// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/framepace/driver"
)

// frame submits and presents a single frame that only
// waits on acquisition.
func frame(t *testing.T, g *GPU, sc driver.Swapchain, avail, done driver.Semaphore, f driver.Fence) driver.Status {
	t.Helper()
	require.NoError(t, f.Wait(time.Second))
	idx, st, err := sc.Next(avail)
	require.NoError(t, err)
	if st == driver.Stale {
		return st
	}
	require.NoError(t, f.Reset())
	require.NoError(t, g.Commit(&driver.WorkItem{
		Work:   []driver.CmdBuffer{recorded(t, g)},
		Wait:   []driver.Semaphore{avail},
		WaitAt: []driver.Sync{driver.SColorOutput},
		Signal: []driver.Semaphore{done},
		Fence:  f,
	}))
	pst, err := sc.Present(idx, done)
	require.NoError(t, err)
	if pst != driver.Ready {
		return pst
	}
	return st
}

func TestSwapchain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Record = true
	g := newTestGPU(t, cfg)
	win := newTestWindow(t, 320, 240)

	_, err := g.NewSwapchain(nil, 3)
	assert.Error(t, err)
	sc, err := g.NewSwapchain(win, 3)
	require.NoError(t, err)
	_, err = g.NewSwapchain(win, 3)
	assert.ErrorIs(t, err, driver.ErrWindow)

	assert.Len(t, sc.Images(), 3)
	assert.Equal(t, driver.Dim3D{Width: 320, Height: 240, Depth: 1}, sc.Extent())
	assert.Equal(t, cfg.Format, sc.Format())

	avail, _ := g.NewSemaphore()
	done, _ := g.NewSemaphore()
	f, _ := g.NewFence(true)

	for k := 0; k < 10; k++ {
		assert.Equal(t, driver.Ready, frame(t, g, sc, avail, done, f))
	}
	require.NoError(t, g.WaitIdle(time.Second))
	s := g.Stats()
	assert.Equal(t, 10, s.Acquired)
	assert.Equal(t, 10, s.Presented)
	assert.Empty(t, g.Violations())

	// Resizing makes the swapchain stale.
	require.NoError(t, win.Resize(640, 480))
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))
	require.NoError(t, sc.Recreate())
	assert.Equal(t, driver.Dim3D{Width: 640, Height: 480, Depth: 1}, sc.Extent())
	assert.Equal(t, driver.Ready, frame(t, g, sc, avail, done, f))

	// Minimized windows cannot back a swapchain.
	require.NoError(t, win.Resize(0, 0))
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))
	require.NoError(t, g.WaitIdle(time.Second))
	assert.ErrorIs(t, sc.Recreate(), driver.ErrWindow)
	require.NoError(t, win.Resize(100, 100))
	require.NoError(t, sc.Recreate())

	g.Invalidate()
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))
	require.NoError(t, g.WaitIdle(time.Second))
	require.NoError(t, sc.Recreate())

	g.StaleNext(2)
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))
	assert.Equal(t, driver.Ready, frame(t, g, sc, avail, done, f))

	g.SuboptimalNext(1)
	assert.Equal(t, driver.Suboptimal, frame(t, g, sc, avail, done, f))
	g.SuboptimalPresent(1)
	assert.Equal(t, driver.Suboptimal, frame(t, g, sc, avail, done, f))
	g.StalePresent(1)
	assert.Equal(t, driver.Stale, frame(t, g, sc, avail, done, f))

	require.NoError(t, g.WaitIdle(time.Second))
	assert.Equal(t, 3, g.Stats().Recreated)
	assert.Empty(t, g.Violations())

	var nrec int
	for _, ev := range g.Events() {
		if ev.Kind == EvRecreate {
			assert.Zero(t, ev.Outstanding)
			nrec++
		}
	}
	assert.Equal(t, 3, nrec)

	sc.Destroy()
	_, _, err = sc.Next(avail)
	assert.Error(t, err)
}

func TestPresentUnacquired(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	win := newTestWindow(t, 8, 8)
	sc, err := g.NewSwapchain(win, 2)
	require.NoError(t, err)
	defer sc.Destroy()
	done, _ := g.NewSemaphore()
	_, err = sc.Present(1, done)
	assert.Error(t, err)
	assert.Len(t, g.Violations(), 1)
}

func TestRecreateWithViews(t *testing.T) {
	g := newTestGPU(t, DefaultConfig())
	win := newTestWindow(t, 8, 8)
	sc, err := g.NewSwapchain(win, 2)
	require.NoError(t, err)
	defer sc.Destroy()
	v, err := sc.Images()[0].NewView()
	require.NoError(t, err)
	require.NoError(t, sc.Recreate())
	v.Destroy()
	assert.Len(t, g.Violations(), 1)
}
