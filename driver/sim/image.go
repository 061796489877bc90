// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

// image implements driver.Image.
// Its state is guarded by g.mu.
type image struct {
	g         *GPU
	pf        driver.PixelFmt
	size      driver.Dim3D
	usg       driver.Usage
	views     int
	destroyed bool

	// Set for swapchain images.
	sc    *swapchain
	gen   int
	index int
}

// NewImage creates a new 2D image.
func (g *GPU) NewImage(pf driver.PixelFmt, size driver.Dim3D, usg driver.Usage) (driver.Image, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(OpNewImage); err != nil {
		return nil, err
	}
	switch {
	case pf == driver.FInvalid:
		return nil, errors.New("sim: invalid pixel format")
	case size.IsZero():
		return nil, errors.Newf("sim: invalid image size %dx%d", size.Width, size.Height)
	case usg == 0:
		return nil, errors.New("sim: image has no usage")
	}
	return &image{g: g, pf: pf, size: size, usg: usg}, nil
}

// NewView creates a new image view.
func (img *image) NewView() (driver.ImageView, error) {
	img.g.mu.Lock()
	defer img.g.mu.Unlock()
	if err := img.g.fault(OpNewView); err != nil {
		return nil, err
	}
	if img.destroyed {
		return nil, errors.New("sim: NewView of destroyed image")
	}
	img.views++
	return &imageView{img: img}, nil
}

func (img *image) Format() driver.PixelFmt { return img.pf }

func (img *image) Size() driver.Dim3D { return img.size }

// Destroy destroys img.
// Swapchain images are not affected.
func (img *image) Destroy() {
	if img.sc != nil {
		return
	}
	img.g.mu.Lock()
	defer img.g.mu.Unlock()
	if img.views > 0 {
		img.g.violate("image destroyed with %d live view(s)", img.views)
	}
	img.g.checkIdle("image")
	img.destroyed = true
}

// imageView implements driver.ImageView.
type imageView struct {
	img       *image
	destroyed bool
}

func (v *imageView) Image() driver.Image { return v.img }

// Destroy destroys v.
func (v *imageView) Destroy() {
	v.img.g.mu.Lock()
	defer v.img.g.mu.Unlock()
	if v.destroyed {
		return
	}
	v.img.g.checkIdle("image view")
	v.destroyed = true
	v.img.views--
}

// renderPass implements driver.RenderPass.
type renderPass struct {
	g         *GPU
	att       []driver.Attachment
	fbs       int
	destroyed bool
}

// NewRenderPass creates a new render pass.
func (g *GPU) NewRenderPass(att []driver.Attachment) (driver.RenderPass, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.fault(OpNewRenderPass); err != nil {
		return nil, err
	}
	if len(att) == 0 {
		return nil, errors.New("sim: render pass has no attachments")
	}
	if att[0].Format.IsDepth() {
		return nil, errors.New("sim: first attachment must be a color target")
	}
	return &renderPass{g: g, att: append([]driver.Attachment(nil), att...)}, nil
}

// NewFB creates a new framebuffer.
func (p *renderPass) NewFB(iv []driver.ImageView, width, height int) (driver.Framebuf, error) {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	if err := p.g.fault(OpNewFB); err != nil {
		return nil, err
	}
	if p.destroyed {
		return nil, errors.New("sim: NewFB of destroyed render pass")
	}
	if len(iv) != len(p.att) {
		return nil, errors.Newf("sim: NewFB needs %d views, got %d", len(p.att), len(iv))
	}
	views := make([]*imageView, len(iv))
	for i := range iv {
		v := iv[i].(*imageView)
		switch {
		case v.destroyed:
			return nil, errors.New("sim: NewFB with destroyed view")
		case v.img.pf != p.att[i].Format:
			return nil, errors.Newf("sim: NewFB view %d format mismatch (%v != %v)", i, v.img.pf, p.att[i].Format)
		case v.img.size.Width < width || v.img.size.Height < height:
			return nil, errors.Newf("sim: NewFB view %d smaller than %dx%d", i, width, height)
		}
		views[i] = v
	}
	p.fbs++
	return &framebuf{pass: p, views: views, width: width, height: height}, nil
}

// Destroy destroys p.
func (p *renderPass) Destroy() {
	p.g.mu.Lock()
	defer p.g.mu.Unlock()
	if p.fbs > 0 {
		p.g.violate("render pass destroyed with %d live framebuffer(s)", p.fbs)
	}
	p.g.checkIdle("render pass")
	p.destroyed = true
}

// framebuf implements driver.Framebuf.
type framebuf struct {
	pass          *renderPass
	views         []*imageView
	width, height int
	destroyed     bool
}

// Destroy destroys f.
func (f *framebuf) Destroy() {
	f.pass.g.mu.Lock()
	defer f.pass.g.mu.Unlock()
	if f.destroyed {
		return
	}
	f.pass.g.checkIdle("framebuffer")
	f.destroyed = true
	f.pass.fbs--
}
