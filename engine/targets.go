// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

// Targets are the render targets derived from a
// swapchain's current image pool.
// They are valid only for the generation in which
// they were built.
type Targets struct {
	// Gen is the swapchain generation.
	Gen    int
	Extent driver.Dim3D
	Format driver.PixelFmt
	Pass   driver.RenderPass
	// Views[i] is a view of the swapchain image i.
	Views []driver.ImageView
	// Depth and DepthView are nil if the depth target
	// is disabled.
	Depth     driver.Image
	DepthView driver.ImageView
	// Framebufs[i] targets Views[i].
	Framebufs []driver.Framebuf
}

// stage is a step in building Targets.
// Stages are built in order and destroyed in reverse
// order, so each may depend on the ones before it.
type stage struct {
	name    string
	build   func(*Targets, *targetParams) error
	destroy func(*Targets)
}

var stages = [...]stage{
	{"image views", buildViews, destroyViews},
	{"depth target", buildDepth, destroyDepth},
	{"framebuffers", buildFramebufs, destroyFramebufs},
}

// targetParams are the inputs of the stages.
type targetParams struct {
	gpu      driver.GPU
	images   []driver.Image
	depthFmt driver.PixelFmt
}

// buildTargets builds Targets for the swapchain's
// current pool.
// On failure, the stages that were built are destroyed.
func buildTargets(gpu driver.GPU, sc driver.Swapchain, pass driver.RenderPass, depthFmt driver.PixelFmt, gen int) (*Targets, error) {
	t := &Targets{
		Gen:    gen,
		Extent: sc.Extent(),
		Format: sc.Format(),
		Pass:   pass,
	}
	p := &targetParams{
		gpu:      gpu,
		images:   sc.Images(),
		depthFmt: depthFmt,
	}
	for i := range stages {
		if err := stages[i].build(t, p); err != nil {
			for j := i; j >= 0; j-- {
				stages[j].destroy(t)
			}
			return nil, errors.Wrapf(err, "renderer: build %s", stages[i].name)
		}
	}
	return t, nil
}

// destroyTargets destroys t.
// The GPU must be idle.
func destroyTargets(t *Targets) {
	if t == nil {
		return
	}
	for i := len(stages) - 1; i >= 0; i-- {
		stages[i].destroy(t)
	}
}

func buildViews(t *Targets, p *targetParams) error {
	t.Views = make([]driver.ImageView, 0, len(p.images))
	for _, img := range p.images {
		iv, err := img.NewView()
		if err != nil {
			return err
		}
		t.Views = append(t.Views, iv)
	}
	return nil
}

func destroyViews(t *Targets) {
	for _, iv := range t.Views {
		iv.Destroy()
	}
	t.Views = nil
}

func buildDepth(t *Targets, p *targetParams) (err error) {
	if p.depthFmt == driver.FInvalid {
		return nil
	}
	if t.Depth, err = p.gpu.NewImage(p.depthFmt, t.Extent, driver.URenderTarget); err != nil {
		return err
	}
	t.DepthView, err = t.Depth.NewView()
	return err
}

func destroyDepth(t *Targets) {
	if t.DepthView != nil {
		t.DepthView.Destroy()
		t.DepthView = nil
	}
	if t.Depth != nil {
		t.Depth.Destroy()
		t.Depth = nil
	}
}

func buildFramebufs(t *Targets, _ *targetParams) error {
	t.Framebufs = make([]driver.Framebuf, 0, len(t.Views))
	for _, iv := range t.Views {
		att := []driver.ImageView{iv}
		if t.DepthView != nil {
			att = append(att, t.DepthView)
		}
		fb, err := t.Pass.NewFB(att, t.Extent.Width, t.Extent.Height)
		if err != nil {
			return err
		}
		t.Framebufs = append(t.Framebufs, fb)
	}
	return nil
}

func destroyFramebufs(t *Targets) {
	for _, fb := range t.Framebufs {
		fb.Destroy()
	}
	t.Framebufs = nil
}

// newPass creates the render pass used by Targets.
func newPass(gpu driver.GPU, color, depth driver.PixelFmt) (driver.RenderPass, error) {
	att := []driver.Attachment{{
		Format:  color,
		Load:    driver.LClear,
		Store:   driver.SStore,
		Present: true,
	}}
	if depth != driver.FInvalid {
		att = append(att, driver.Attachment{
			Format: depth,
			Load:   driver.LClear,
			Store:  driver.SDontCare,
		})
	}
	pass, err := gpu.NewRenderPass(att)
	return pass, errors.Wrap(err, "renderer: render pass")
}
