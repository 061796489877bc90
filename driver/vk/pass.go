// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
)

// renderPass implements driver.RenderPass.
type renderPass struct {
	d    *Driver
	pass vulkan.RenderPass
	att  []driver.Attachment
}

// NewRenderPass creates a new render pass with a single
// subpass.
func (d *Driver) NewRenderPass(att []driver.Attachment) (driver.RenderPass, error) {
	if len(att) == 0 || att[0].Format.IsDepth() {
		return nil, errors.New("vk: render pass needs a color attachment first")
	}
	desc := make([]vulkan.AttachmentDescription, len(att))
	var color []vulkan.AttachmentReference
	var depth *vulkan.AttachmentReference
	for i, a := range att {
		fmt := convPixelFmt(a.Format)
		if fmt == vulkan.FormatUndefined {
			return nil, errors.Newf("vk: attachment %d: pixel format %v", i, a.Format)
		}
		layout := vulkan.ImageLayoutColorAttachmentOptimal
		final := layout
		if a.Format.IsDepth() {
			if depth != nil {
				return nil, errors.New("vk: render pass has more than one depth attachment")
			}
			layout = vulkan.ImageLayoutDepthStencilAttachmentOptimal
			final = layout
			depth = &vulkan.AttachmentReference{Attachment: uint32(i), Layout: layout}
		} else {
			if a.Present {
				final = vulkan.ImageLayoutPresentSrc
			}
			color = append(color, vulkan.AttachmentReference{Attachment: uint32(i), Layout: layout})
		}
		initial := vulkan.ImageLayoutUndefined
		if a.Load == driver.LLoad {
			initial = final
		}
		desc[i] = vulkan.AttachmentDescription{
			Format:         fmt,
			Samples:        vulkan.SampleCount1Bit,
			LoadOp:         convLoadOp(a.Load),
			StoreOp:        convStoreOp(a.Store),
			StencilLoadOp:  vulkan.AttachmentLoadOpDontCare,
			StencilStoreOp: vulkan.AttachmentStoreOpDontCare,
			InitialLayout:  initial,
			FinalLayout:    final,
		}
	}
	stages := vulkan.PipelineStageFlags(vulkan.PipelineStageColorAttachmentOutputBit | vulkan.PipelineStageEarlyFragmentTestsBit)
	info := vulkan.RenderPassCreateInfo{
		SType:           vulkan.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(desc)),
		PAttachments:    desc,
		SubpassCount:    1,
		PSubpasses: []vulkan.SubpassDescription{{
			PipelineBindPoint:       vulkan.PipelineBindPointGraphics,
			ColorAttachmentCount:    uint32(len(color)),
			PColorAttachments:       color,
			PDepthStencilAttachment: depth,
		}},
		// Writes wait for the image acquired from the
		// swapchain, which is waited on at these stages.
		DependencyCount: 1,
		PDependencies: []vulkan.SubpassDependency{{
			SrcSubpass:    vulkan.SubpassExternal,
			DstSubpass:    0,
			SrcStageMask:  stages,
			DstStageMask:  stages,
			DstAccessMask: vulkan.AccessFlags(vulkan.AccessColorAttachmentWriteBit | vulkan.AccessDepthStencilAttachmentWriteBit),
		}},
	}
	var pass vulkan.RenderPass
	if err := checkResult(vulkan.CreateRenderPass(d.dev, &info, nil, &pass)); err != nil {
		return nil, errors.Wrap(err, "vk: create render pass")
	}
	return &renderPass{d: d, pass: pass, att: append([]driver.Attachment(nil), att...)}, nil
}

// NewFB creates a new framebuffer.
func (p *renderPass) NewFB(iv []driver.ImageView, width, height int) (driver.Framebuf, error) {
	if len(iv) != len(p.att) {
		return nil, errors.Newf("vk: %d view(s) for %d attachment(s)", len(iv), len(p.att))
	}
	views := make([]vulkan.ImageView, len(iv))
	for i, x := range iv {
		v := x.(*imageView)
		if v.i.pf != p.att[i].Format {
			return nil, errors.Newf("vk: view %d has format %v, attachment has %v", i, v.i.pf, p.att[i].Format)
		}
		views[i] = v.view
	}
	info := vulkan.FramebufferCreateInfo{
		SType:           vulkan.StructureTypeFramebufferCreateInfo,
		RenderPass:      p.pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           uint32(width),
		Height:          uint32(height),
		Layers:          1,
	}
	var fb vulkan.Framebuffer
	if err := checkResult(vulkan.CreateFramebuffer(p.d.dev, &info, nil, &fb)); err != nil {
		return nil, errors.Wrap(err, "vk: create framebuffer")
	}
	return &framebuf{d: p.d, fb: fb, width: width, height: height}, nil
}

// Destroy destroys the render pass.
func (p *renderPass) Destroy() {
	if p == nil || p.d == nil {
		return
	}
	vulkan.DestroyRenderPass(p.d.dev, p.pass, nil)
	*p = renderPass{}
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	d             *Driver
	fb            vulkan.Framebuffer
	width, height int
}

// Destroy destroys the framebuffer.
func (f *framebuf) Destroy() {
	if f == nil || f.d == nil {
		return
	}
	vulkan.DestroyFramebuffer(f.d.dev, f.fb, nil)
	*f = framebuf{}
}

func convLoadOp(op driver.LoadOp) vulkan.AttachmentLoadOp {
	switch op {
	case driver.LClear:
		return vulkan.AttachmentLoadOpClear
	case driver.LLoad:
		return vulkan.AttachmentLoadOpLoad
	}
	return vulkan.AttachmentLoadOpDontCare
}

func convStoreOp(op driver.StoreOp) vulkan.AttachmentStoreOp {
	if op == driver.SStore {
		return vulkan.AttachmentStoreOpStore
	}
	return vulkan.AttachmentStoreOpDontCare
}
