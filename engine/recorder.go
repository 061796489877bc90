// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"github.com/gviegas/framepace/driver"
)

// Frame describes the frame being recorded.
type Frame struct {
	// Slot is the frame slot in use.
	Slot int
	// Image is the index of the acquired swapchain image.
	Image int
	// Targets are the current render targets.
	// Targets.Framebufs[Image] renders into the acquired
	// image.
	Targets *Targets
}

// Framebuf returns the framebuffer that targets the
// acquired image.
func (f *Frame) Framebuf() driver.Framebuf { return f.Targets.Framebufs[f.Image] }

// Recorder is the interface that records the commands of
// a frame.
// Record is called between cb.Begin and cb.End. It must
// not retain cb, f or f.Targets after returning.
// An error returned by Record is fatal to the renderer.
type Recorder interface {
	Record(cb driver.CmdBuffer, f *Frame) error
}

// RecorderFunc is an adapter that allows the use of an
// ordinary function as a Recorder.
type RecorderFunc func(cb driver.CmdBuffer, f *Frame) error

// Record calls fn(cb, f).
func (fn RecorderFunc) Record(cb driver.CmdBuffer, f *Frame) error { return fn(cb, f) }

// ClearRecorder is a Recorder that clears the acquired
// image to Color and the depth target to Depth.
type ClearRecorder struct {
	Color [4]float32
	Depth float32
}

// Record implements Recorder.
func (r *ClearRecorder) Record(cb driver.CmdBuffer, f *Frame) error {
	clear := []driver.ClearValue{{Color: r.Color}}
	if f.Targets.DepthView != nil {
		clear = append(clear, driver.ClearValue{Depth: r.Depth})
	}
	cb.BeginPass(f.Targets.Pass, f.Framebuf(), clear)
	cb.EndPass()
	return nil
}
