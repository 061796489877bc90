// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"log/slog"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/gviegas/framepace/driver"
)

// openDriver opens a Driver or skips the test if no
// Vulkan implementation is available.
func openDriver(t *testing.T) *Driver {
	t.Helper()
	d := &Driver{}
	if _, err := d.Open(); err != nil {
		t.Skipf("d.Open(): %v", err)
	}
	t.Cleanup(d.Close)
	return d
}

func TestOpen(t *testing.T) {
	d := Driver{}
	gpu, err := d.Open()
	defer d.Close()
	switch err {
	default:
		t.Logf("d.Open(): %v", err)
		if d.inst != nil || d.dev != nil {
			t.Error("d.Open(): Driver\nhave non-zero\nwant Driver{}")
		}
		if gpu != nil {
			t.Error("d.Open(): GPU\nhave non-nil\nwant nil")
		}
		return
	case nil:
		if d.inst == nil {
			t.Error("d.Open(): d.inst\nhave nil\nwant non-nil")
		}
		if d.pdev == nil {
			t.Error("d.Open(): d.pdev\nhave nil\nwant non-nil")
		}
		if d.dev == nil {
			t.Error("d.Open(): d.dev\nhave nil\nwant non-nil")
		}
		if d.que == nil {
			t.Error("d.Open(): d.que\nhave nil\nwant non-nil")
		}
		if d.dname == "" {
			t.Error("d.Open(): d.dname\nhave \"\"\nwant non-empty")
		}
		if x, ok := gpu.(*Driver); !ok || x != &d {
			t.Errorf("d.Open(): GPU\nhave %p\nwant %p", gpu, &d)
		}
	}
	// Subsequent calls to Open should return the same GPU.
	if g, err := d.Open(); err != nil || g != gpu {
		t.Errorf("d.Open(): second call\nhave %v, %v\nwant %v, nil", g, err, gpu)
	}
	d.Close()
	if d.inst != nil || d.dev != nil {
		t.Error("d.Close(): Driver\nhave non-zero\nwant Driver{}")
	}
	d.Close()
}

func TestName(t *testing.T) {
	var d Driver
	if s := d.Name(); s != driverName {
		t.Errorf("d.Name()\nhave %s\nwant %s", s, driverName)
	}
	var found bool
	for _, x := range driver.Drivers() {
		if x.Name() == driverName {
			found = true
		}
	}
	if !found {
		t.Error("driver.Drivers(): vulkan driver not registered")
	}
}

func TestCheckResult(t *testing.T) {
	for _, x := range [...]struct {
		res  vulkan.Result
		want error
	}{
		{vulkan.Timeout, driver.ErrTimeout},
		{vulkan.ErrorOutOfHostMemory, driver.ErrNoHostMemory},
		{vulkan.ErrorOutOfDeviceMemory, driver.ErrNoDeviceMemory},
		{vulkan.ErrorDeviceLost, driver.ErrFatal},
		{vulkan.ErrorIncompatibleDriver, driver.ErrNotInstalled},
		{vulkan.ErrorSurfaceLost, driver.ErrWindow},
		{vulkan.ErrorOutOfDate, errOutOfDate},
	} {
		assert.ErrorIs(t, checkResult(x.res), x.want, "checkResult(%d)", x.res)
	}
	for _, res := range [...]vulkan.Result{vulkan.Success, vulkan.Suboptimal, vulkan.Incomplete} {
		assert.NoError(t, checkResult(res), "checkResult(%d)", res)
	}
	err := checkResult(vulkan.ErrorTooManyObjects)
	assert.Error(t, err)
	assert.False(t, errors.IsAny(err, driver.ErrFatal, driver.ErrTimeout, driver.ErrWindow))
}

func TestConvPixelFmt(t *testing.T) {
	for _, pf := range [...]driver.PixelFmt{
		driver.RGBA8un,
		driver.RGBA8sRGB,
		driver.BGRA8un,
		driver.BGRA8sRGB,
		driver.RGBA16f,
		driver.D16un,
		driver.D32f,
		driver.D24unS8ui,
	} {
		fmt := convPixelFmt(pf)
		if fmt == vulkan.FormatUndefined {
			t.Fatalf("convPixelFmt(%v): FormatUndefined", pf)
		}
		if x := pixelFmtFrom(fmt); x != pf {
			t.Fatalf("pixelFmtFrom(convPixelFmt(%v))\nhave %v", pf, x)
		}
	}
	assert.Equal(t, vulkan.FormatUndefined, convPixelFmt(driver.FInvalid))
	assert.Equal(t, driver.FInvalid, pixelFmtFrom(vulkan.FormatR8Unorm))
}

func TestConvUsage(t *testing.T) {
	flg := convUsage(driver.D32f, driver.URenderTarget)
	assert.Equal(t, vulkan.ImageUsageFlags(vulkan.ImageUsageDepthStencilAttachmentBit), flg)
	flg = convUsage(driver.RGBA8un, driver.URenderTarget|driver.UCopySrc)
	assert.Equal(t, vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit|vulkan.ImageUsageTransferSrcBit), flg)
}

func TestSelectInstanceExts(t *testing.T) {
	var d Driver
	assert.Nil(t, d.selectInstanceExts([]string{extXCBSurfaceS}))
	assert.False(t, d.exts[extSurface])

	names := d.selectInstanceExts([]string{"VK_EXT_debug_utils", extSurfaceS, extWaylandSurfaceS, extXCBSurfaceS})
	assert.ElementsMatch(t, []string{
		cstr(extSurfaceS),
		cstr(extWaylandSurfaceS),
		cstr(extXCBSurfaceS),
	}, names)
	assert.True(t, d.exts[extSurface])
	assert.True(t, d.exts[extWaylandSurface])
	assert.False(t, d.exts[extWin32Surface])
}

func TestFence(t *testing.T) {
	d := openDriver(t)
	f, err := d.NewFence(true)
	if err != nil {
		t.Fatalf("d.NewFence(true): %v", err)
	}
	defer f.Destroy()
	if !f.Signaled() {
		t.Fatal("fence.Signaled(): have false, want true")
	}
	assert.NoError(t, f.Wait(-1))
	assert.NoError(t, f.Reset())
	assert.False(t, f.Signaled())
	assert.ErrorIs(t, f.Wait(time.Millisecond), driver.ErrTimeout)
}

func TestCommit(t *testing.T) {
	d := openDriver(t)
	cb, err := d.NewCmdBuffer()
	if err != nil {
		t.Fatalf("d.NewCmdBuffer(): %v", err)
	}
	defer cb.Destroy()
	f, err := d.NewFence(false)
	if err != nil {
		t.Fatalf("d.NewFence(false): %v", err)
	}
	defer f.Destroy()
	img, err := d.NewImage(driver.RGBA8un, driver.Dim3D{Width: 64, Height: 64}, driver.URenderTarget)
	if err != nil {
		t.Fatalf("d.NewImage(): %v", err)
	}
	defer img.Destroy()
	iv, err := img.NewView()
	if err != nil {
		t.Fatalf("img.NewView(): %v", err)
	}
	defer iv.Destroy()
	pass, err := d.NewRenderPass([]driver.Attachment{{Format: driver.RGBA8un, Load: driver.LClear, Store: driver.SStore}})
	if err != nil {
		t.Fatalf("d.NewRenderPass(): %v", err)
	}
	defer pass.Destroy()
	fb, err := pass.NewFB([]driver.ImageView{iv}, 64, 64)
	if err != nil {
		t.Fatalf("pass.NewFB(): %v", err)
	}
	defer fb.Destroy()

	if err := cb.Begin(); err != nil {
		t.Fatalf("cb.Begin(): %v", err)
	}
	assert.True(t, cb.IsRecording())
	cb.BeginPass(pass, fb, []driver.ClearValue{{Color: [4]float32{0, 0, 1, 1}}})
	cb.EndPass()
	if err := cb.End(); err != nil {
		t.Fatalf("cb.End(): %v", err)
	}
	assert.False(t, cb.IsRecording())
	if err := d.Commit(&driver.WorkItem{Work: []driver.CmdBuffer{cb}, Fence: f}); err != nil {
		t.Fatalf("d.Commit(): %v", err)
	}
	assert.NoError(t, f.Wait(5*time.Second))
	assert.NoError(t, d.WaitIdle(-1))
	assert.NoError(t, cb.Reset())
}

func TestDebugLevel(t *testing.T) {
	for _, x := range [...]struct {
		flags vulkan.DebugReportFlagBits
		want  slog.Level
	}{
		{vulkan.DebugReportErrorBit, slog.LevelError},
		{vulkan.DebugReportErrorBit | vulkan.DebugReportWarningBit, slog.LevelError},
		{vulkan.DebugReportWarningBit, slog.LevelWarn},
		{vulkan.DebugReportPerformanceWarningBit, slog.LevelWarn},
		{vulkan.DebugReportInformationBit, slog.LevelDebug},
		{vulkan.DebugReportDebugBit, slog.LevelDebug},
	} {
		assert.Equal(t, x.want, debugLevel(vulkan.DebugReportFlags(x.flags)), "debugLevel(%d)", x.flags)
	}
	ret := debugReport(vulkan.DebugReportFlags(vulkan.DebugReportWarningBit), 0, 0, 0, 1, "test", "message", nil)
	assert.Equal(t, vulkan.Bool32(vulkan.False), ret, "callback must not abort the call")
}

func TestSelectValidation(t *testing.T) {
	t.Setenv(ValidationEnv, "")
	var d Driver
	layers, names := d.selectValidation([]string{extDebugReportS})
	assert.Nil(t, layers)
	assert.Nil(t, names)
	assert.False(t, d.exts[extDebugReport])

	if err := load(); err != nil {
		t.Skipf("load(): %v", err)
	}
	avail, err := instanceLayers()
	if err != nil || !hasExt(avail, validationLayer) {
		t.Skip("validation layer not installed")
	}
	t.Setenv(ValidationEnv, "1")
	layers, names = d.selectValidation([]string{extSurfaceS, extDebugReportS})
	assert.Equal(t, []string{cstr(validationLayer)}, layers)
	assert.Equal(t, []string{cstr(extDebugReportS)}, names)
	assert.True(t, d.exts[extDebugReport])

	var d2 Driver
	layers, names = d2.selectValidation([]string{extSurfaceS})
	assert.Equal(t, []string{cstr(validationLayer)}, layers)
	assert.Nil(t, names)
	assert.False(t, d2.exts[extDebugReport])

	d3 := &Driver{}
	if _, err := d3.Open(); err != nil {
		t.Skipf("d.Open(): %v", err)
	}
	defer d3.Close()
	if d3.exts[extDebugReport] {
		assert.NotEqual(t, vulkan.NullDebugReportCallback, d3.dbg)
	}
}
