// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
	"github.com/gviegas/framepace/wsi"
)

// The longest time that Next blocks waiting for an
// image to become available.
const acquireTimeout = 10 * time.Second

// surfacer is implemented by windows that can create a
// Vulkan surface, such as those of wsi/desktop.
type surfacer interface {
	CreateWindowSurface(instance any, allocCallbacks unsafe.Pointer) (uintptr, error)
}

// swapchain implements driver.Swapchain.
type swapchain struct {
	d      *Driver
	win    wsi.Window
	hint   int
	sf     vulkan.Surface
	sc     vulkan.Swapchain
	pf     driver.PixelFmt
	extent driver.Dim3D
	images []driver.Image
}

// Preferred surface formats, in order.
var surfaceFmts = [...]driver.PixelFmt{
	driver.BGRA8sRGB,
	driver.RGBA8sRGB,
	driver.BGRA8un,
	driver.RGBA8un,
	driver.RGBA16f,
}

// NewSwapchain creates a new swapchain.
func (d *Driver) NewSwapchain(win wsi.Window, imageCount int) (driver.Swapchain, error) {
	if !d.exts[extSwapchain] {
		return nil, driver.ErrCannotPresent
	}
	w, ok := win.(surfacer)
	if !ok {
		return nil, errors.Wrapf(driver.ErrCannotPresent, "vk: %T has no surface", win)
	}
	addr, err := w.CreateWindowSurface(d.inst, nil)
	if err != nil {
		return nil, errors.Join(driver.ErrWindow, errors.Wrap(err, "vk: create surface"))
	}
	sf := vulkan.SurfaceFromPointer(addr)
	var support vulkan.Bool32
	res := vulkan.GetPhysicalDeviceSurfaceSupport(d.pdev, d.qfam, sf, &support)
	if err := checkResult(res); err != nil || support != vulkan.True {
		vulkan.DestroySurface(d.inst, sf, nil)
		return nil, errors.Wrap(driver.ErrCannotPresent, "vk: queue cannot present to surface")
	}
	s := &swapchain{d: d, win: win, hint: imageCount, sf: sf, sc: vulkan.NullSwapchain}
	if err := s.build(); err != nil {
		vulkan.DestroySurface(d.inst, sf, nil)
		return nil, err
	}
	return s, nil
}

// build creates a swapchain that matches the surface,
// retiring the current one.
func (s *swapchain) build() error {
	var capab vulkan.SurfaceCapabilities
	res := vulkan.GetPhysicalDeviceSurfaceCapabilities(s.d.pdev, s.sf, &capab)
	if err := checkResult(res); err != nil {
		return errors.Wrap(err, "vk: surface capabilities")
	}
	capab.Deref()
	capab.CurrentExtent.Deref()
	capab.MinImageExtent.Deref()
	capab.MaxImageExtent.Deref()

	extent := capab.CurrentExtent
	if extent.Width == vulkan.MaxUint32 {
		// The surface size is set by the swapchain.
		extent.Width = clamp(s.win.Width(), capab.MinImageExtent.Width, capab.MaxImageExtent.Width)
		extent.Height = clamp(s.win.Height(), capab.MinImageExtent.Height, capab.MaxImageExtent.Height)
	}
	if extent.Width == 0 || extent.Height == 0 {
		return errors.Wrapf(driver.ErrWindow, "vk: surface has no area (%dx%d)", extent.Width, extent.Height)
	}

	n := uint32(max(s.hint, 1))
	if n < capab.MinImageCount {
		n = capab.MinImageCount
	} else if capab.MaxImageCount != 0 && n > capab.MaxImageCount {
		n = capab.MaxImageCount
	}

	sfmt, err := s.surfaceFormat()
	if err != nil {
		return err
	}

	calpha := vulkan.CompositeAlphaOpaqueBit
	for _, x := range [...]vulkan.CompositeAlphaFlagBits{
		vulkan.CompositeAlphaOpaqueBit,
		vulkan.CompositeAlphaInheritBit,
		vulkan.CompositeAlphaPreMultipliedBit,
		vulkan.CompositeAlphaPostMultipliedBit,
	} {
		if capab.SupportedCompositeAlpha&vulkan.CompositeAlphaFlags(x) != 0 {
			calpha = x
			break
		}
	}

	old := s.sc
	info := vulkan.SwapchainCreateInfo{
		SType:            vulkan.StructureTypeSwapchainCreateInfo,
		Surface:          s.sf,
		MinImageCount:    n,
		ImageFormat:      sfmt.Format,
		ImageColorSpace:  sfmt.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vulkan.ImageUsageFlags(vulkan.ImageUsageColorAttachmentBit),
		ImageSharingMode: vulkan.SharingModeExclusive,
		PreTransform:     capab.CurrentTransform,
		CompositeAlpha:   calpha,
		PresentMode:      vulkan.PresentModeFifo,
		Clipped:          vulkan.True,
		OldSwapchain:     old,
	}
	var sc vulkan.Swapchain
	res = vulkan.CreateSwapchain(s.d.dev, &info, nil, &sc)
	if old != vulkan.NullSwapchain {
		vulkan.DestroySwapchain(s.d.dev, old, nil)
		s.sc = vulkan.NullSwapchain
		s.images = nil
	}
	if err := checkResult(res); err != nil {
		return errors.Wrap(err, "vk: create swapchain")
	}
	s.sc = sc

	var nimg uint32
	if err := checkResult(vulkan.GetSwapchainImages(s.d.dev, s.sc, &nimg, nil)); err != nil {
		return errors.Wrap(err, "vk: swapchain images")
	}
	imgs := make([]vulkan.Image, nimg)
	if err := checkResult(vulkan.GetSwapchainImages(s.d.dev, s.sc, &nimg, imgs)); err != nil {
		return errors.Wrap(err, "vk: swapchain images")
	}
	s.pf = pixelFmtFrom(sfmt.Format)
	s.extent = driver.Dim3D{Width: int(extent.Width), Height: int(extent.Height), Depth: 1}
	s.images = make([]driver.Image, nimg)
	for i, img := range imgs[:nimg] {
		s.images[i] = &image{d: s.d, img: img, pf: s.pf, size: s.extent}
	}
	return nil
}

// surfaceFormat selects one of surfaceFmts.
func (s *swapchain) surfaceFormat() (vulkan.SurfaceFormat, error) {
	var n uint32
	res := vulkan.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.sf, &n, nil)
	if err := checkResult(res); err != nil {
		return vulkan.SurfaceFormat{}, errors.Wrap(err, "vk: surface formats")
	}
	fmts := make([]vulkan.SurfaceFormat, n)
	res = vulkan.GetPhysicalDeviceSurfaceFormats(s.d.pdev, s.sf, &n, fmts)
	if err := checkResult(res); err != nil {
		return vulkan.SurfaceFormat{}, errors.Wrap(err, "vk: surface formats")
	}
	fmts = fmts[:n]
	for i := range fmts {
		fmts[i].Deref()
	}
	for _, pf := range surfaceFmts {
		want := convPixelFmt(pf)
		for _, f := range fmts {
			if f.Format == want {
				return f, nil
			}
		}
	}
	return vulkan.SurfaceFormat{}, errors.Wrapf(driver.ErrCannotPresent, "vk: none of %d surface format(s) is supported", n)
}

func clamp(x int, lo, hi uint32) uint32 {
	return min(max(uint32(max(x, 0)), lo), hi)
}

// Next acquires the next writable image.
func (s *swapchain) Next(sig driver.Semaphore) (int, driver.Status, error) {
	if s.sc == vulkan.NullSwapchain {
		return 0, driver.Stale, nil
	}
	var idx uint32
	res := vulkan.AcquireNextImage(s.d.dev, s.sc, nanoseconds(acquireTimeout), sig.(*semaphore).sem, vulkan.NullFence, &idx)
	switch res {
	case vulkan.Success:
		return int(idx), driver.Ready, nil
	case vulkan.Suboptimal:
		return int(idx), driver.Suboptimal, nil
	case vulkan.ErrorOutOfDate:
		return 0, driver.Stale, nil
	}
	return 0, 0, errors.Wrap(checkResult(res), "vk: acquire next image")
}

// Present queues an image for presentation.
func (s *swapchain) Present(index int, wait driver.Semaphore) (driver.Status, error) {
	if index < 0 || index >= len(s.images) {
		return 0, errors.AssertionFailedf("vk: present index %d out of range [0, %d)", index, len(s.images))
	}
	info := vulkan.PresentInfo{
		SType:              vulkan.StructureTypePresentInfo,
		WaitSemaphoreCount: 1,
		PWaitSemaphores:    []vulkan.Semaphore{wait.(*semaphore).sem},
		SwapchainCount:     1,
		PSwapchains:        []vulkan.Swapchain{s.sc},
		PImageIndices:      []uint32{uint32(index)},
	}
	s.d.qmu.Lock()
	res := vulkan.QueuePresent(s.d.que, &info)
	s.d.qmu.Unlock()
	switch res {
	case vulkan.Success:
		return driver.Ready, nil
	case vulkan.Suboptimal:
		return driver.Suboptimal, nil
	case vulkan.ErrorOutOfDate:
		return driver.Stale, nil
	}
	return 0, errors.Wrap(checkResult(res), "vk: queue present")
}

// Recreate recreates the swapchain.
func (s *swapchain) Recreate() error { return s.build() }

// Images returns the swapchain's images.
func (s *swapchain) Images() []driver.Image { return s.images }

// Format returns the images' pixel format.
func (s *swapchain) Format() driver.PixelFmt { return s.pf }

// Extent returns the images' size.
func (s *swapchain) Extent() driver.Dim3D { return s.extent }

// Destroy destroys the swapchain and its surface.
func (s *swapchain) Destroy() {
	if s == nil || s.d == nil {
		return
	}
	if s.sc != vulkan.NullSwapchain {
		vulkan.DestroySwapchain(s.d.dev, s.sc, nil)
	}
	vulkan.DestroySurface(s.d.inst, s.sf, nil)
	*s = swapchain{}
}
