// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
)

// image implements driver.Image.
// Swapchain images are not owned and have no memory.
type image struct {
	d     *Driver
	img   vulkan.Image
	mem   vulkan.DeviceMemory
	owned bool
	pf    driver.PixelFmt
	size  driver.Dim3D
}

// NewImage creates a new 2D image.
func (d *Driver) NewImage(pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) (driver.Image, error) {
	if size.IsZero() {
		return nil, errors.Newf("vk: image size %dx%d", size.Width, size.Height)
	}
	fmt := convPixelFmt(pf)
	if fmt == vulkan.FormatUndefined {
		return nil, errors.Newf("vk: pixel format %v", pf)
	}
	info := vulkan.ImageCreateInfo{
		SType:     vulkan.StructureTypeImageCreateInfo,
		ImageType: vulkan.ImageType2d,
		Format:    fmt,
		Extent: vulkan.Extent3D{
			Width:  uint32(size.Width),
			Height: uint32(size.Height),
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vulkan.SampleCount1Bit,
		Tiling:        vulkan.ImageTilingOptimal,
		Usage:         convUsage(pf, usg),
		SharingMode:   vulkan.SharingModeExclusive,
		InitialLayout: vulkan.ImageLayoutUndefined,
	}
	var img vulkan.Image
	if err := checkResult(vulkan.CreateImage(d.dev, &info, nil, &img)); err != nil {
		return nil, errors.Wrap(err, "vk: create image")
	}
	var req vulkan.MemoryRequirements
	vulkan.GetImageMemoryRequirements(d.dev, img, &req)
	req.Deref()
	typ := d.selectMemory(req.MemoryTypeBits, vulkan.MemoryPropertyDeviceLocalBit)
	if typ == -1 {
		// Device-local memory is desired but not required.
		typ = d.selectMemory(req.MemoryTypeBits, 0)
	}
	if typ == -1 {
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, driver.ErrNoMemoryType
	}
	minfo := vulkan.MemoryAllocateInfo{
		SType:           vulkan.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: uint32(typ),
	}
	var mem vulkan.DeviceMemory
	if err := checkResult(vulkan.AllocateMemory(d.dev, &minfo, nil, &mem)); err != nil {
		vulkan.DestroyImage(d.dev, img, nil)
		return nil, errors.Wrap(err, "vk: allocate image memory")
	}
	if err := checkResult(vulkan.BindImageMemory(d.dev, img, mem, 0)); err != nil {
		vulkan.DestroyImage(d.dev, img, nil)
		vulkan.FreeMemory(d.dev, mem, nil)
		return nil, errors.Wrap(err, "vk: bind image memory")
	}
	return &image{
		d:     d,
		img:   img,
		mem:   mem,
		owned: true,
		pf:    pf,
		size:  driver.Dim3D{Width: size.Width, Height: size.Height, Depth: 1},
	}, nil
}

// NewView creates a new image view.
func (i *image) NewView() (driver.ImageView, error) {
	aspect := vulkan.ImageAspectColorBit
	switch i.pf {
	case driver.D16un, driver.D32f:
		aspect = vulkan.ImageAspectDepthBit
	case driver.D24unS8ui:
		aspect = vulkan.ImageAspectDepthBit | vulkan.ImageAspectStencilBit
	}
	info := vulkan.ImageViewCreateInfo{
		SType:    vulkan.StructureTypeImageViewCreateInfo,
		Image:    i.img,
		ViewType: vulkan.ImageViewType2d,
		Format:   convPixelFmt(i.pf),
		Components: vulkan.ComponentMapping{
			R: vulkan.ComponentSwizzleIdentity,
			G: vulkan.ComponentSwizzleIdentity,
			B: vulkan.ComponentSwizzleIdentity,
			A: vulkan.ComponentSwizzleIdentity,
		},
		SubresourceRange: vulkan.ImageSubresourceRange{
			AspectMask: vulkan.ImageAspectFlags(aspect),
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vulkan.ImageView
	if err := checkResult(vulkan.CreateImageView(i.d.dev, &info, nil, &view)); err != nil {
		return nil, errors.Wrap(err, "vk: create image view")
	}
	return &imageView{i: i, view: view}, nil
}

// Format returns the image's pixel format.
func (i *image) Format() driver.PixelFmt { return i.pf }

// Size returns the image's size.
func (i *image) Size() driver.Dim3D { return i.size }

// Destroy destroys the image.
// It has no effect on swapchain images.
func (i *image) Destroy() {
	if i == nil || !i.owned {
		return
	}
	vulkan.DestroyImage(i.d.dev, i.img, nil)
	vulkan.FreeMemory(i.d.dev, i.mem, nil)
	*i = image{}
}

// imageView implements driver.ImageView.
type imageView struct {
	i    *image
	view vulkan.ImageView
}

// Image returns the image from which the view was
// created.
func (v *imageView) Image() driver.Image { return v.i }

// Destroy destroys the image view.
func (v *imageView) Destroy() {
	if v == nil || v.i == nil {
		return
	}
	vulkan.DestroyImageView(v.i.d.dev, v.view, nil)
	*v = imageView{}
}

// Pixel formats and their Vulkan counterparts.
var pixelFmts = [...]struct {
	pf  driver.PixelFmt
	fmt vulkan.Format
}{
	{driver.RGBA8un, vulkan.FormatR8g8b8a8Unorm},
	{driver.RGBA8sRGB, vulkan.FormatR8g8b8a8Srgb},
	{driver.BGRA8un, vulkan.FormatB8g8r8a8Unorm},
	{driver.BGRA8sRGB, vulkan.FormatB8g8r8a8Srgb},
	{driver.RGBA16f, vulkan.FormatR16g16b16a16Sfloat},
	{driver.D16un, vulkan.FormatD16Unorm},
	{driver.D32f, vulkan.FormatD32Sfloat},
	{driver.D24unS8ui, vulkan.FormatD24UnormS8Uint},
}

// convPixelFmt converts a driver.PixelFmt.
// It returns FormatUndefined for FInvalid.
func convPixelFmt(pf driver.PixelFmt) vulkan.Format {
	for _, x := range pixelFmts {
		if x.pf == pf {
			return x.fmt
		}
	}
	return vulkan.FormatUndefined
}

// pixelFmtFrom converts a vulkan.Format.
// It returns FInvalid for formats that have no
// driver.PixelFmt counterpart.
func pixelFmtFrom(fmt vulkan.Format) driver.PixelFmt {
	for _, x := range pixelFmts {
		if x.fmt == fmt {
			return x.pf
		}
	}
	return driver.FInvalid
}

// convUsage converts a driver.Usage for an image of
// format pf.
func convUsage(pf driver.PixelFmt, usg driver.Usage) vulkan.ImageUsageFlags {
	var flg vulkan.ImageUsageFlagBits
	if usg&driver.UShaderSample != 0 {
		flg |= vulkan.ImageUsageSampledBit
	}
	if usg&driver.URenderTarget != 0 {
		if pf.IsDepth() {
			flg |= vulkan.ImageUsageDepthStencilAttachmentBit
		} else {
			flg |= vulkan.ImageUsageColorAttachmentBit
		}
	}
	if usg&driver.UCopySrc != 0 {
		flg |= vulkan.ImageUsageTransferSrcBit
	}
	if usg&driver.UCopyDst != 0 {
		flg |= vulkan.ImageUsageTransferDstBit
	}
	return vulkan.ImageUsageFlags(flg)
}
