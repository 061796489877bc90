// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package sim

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/driver"
)

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
	cbPending
)

// cmdBuffer implements driver.CmdBuffer.
// Its state is guarded by g.mu.
type cmdBuffer struct {
	g      *GPU
	state  cbState
	inPass bool
	err    error
	fbs    []*framebuf
	execs  int
}

// NewCmdBuffer creates a new command buffer.
func (g *GPU) NewCmdBuffer() (driver.CmdBuffer, error) {
	if err := g.faultLocked(OpNewCmdBuffer); err != nil {
		return nil, err
	}
	return &cmdBuffer{g: g}, nil
}

// Begin prepares cb for recording.
func (cb *cmdBuffer) Begin() error {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	switch cb.state {
	case cbPending:
		cb.g.violate("command buffer recorded while pending")
		return errors.New("sim: command buffer in use")
	case cbRecording:
		return errors.New("sim: command buffer already recording")
	}
	cb.state = cbRecording
	cb.inPass = false
	cb.err = nil
	cb.fbs = cb.fbs[:0]
	return nil
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.err != nil {
		return
	}
	p := pass.(*renderPass)
	f := fb.(*framebuf)
	switch {
	case cb.state != cbRecording:
		cb.err = errors.New("sim: BeginPass outside of recording")
	case cb.inPass:
		cb.err = errors.New("sim: nested BeginPass")
	case f.pass != p:
		cb.err = errors.New("sim: framebuffer not created from render pass")
	case p.destroyed || f.destroyed:
		cb.err = errors.New("sim: BeginPass with destroyed render target")
	case len(clear) < len(p.att):
		cb.err = errors.Newf("sim: BeginPass needs %d clear values, got %d", len(p.att), len(clear))
	default:
		cb.inPass = true
		cb.fbs = append(cb.fbs, f)
	}
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.err == nil && !cb.inPass {
		cb.err = errors.New("sim: EndPass without BeginPass")
	}
	cb.inPass = false
}

// End ends recording.
func (cb *cmdBuffer) End() error {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.state != cbRecording {
		return errors.New("sim: End without Begin")
	}
	if cb.err == nil && cb.inPass {
		cb.err = errors.New("sim: End within a render pass")
	}
	if cb.err != nil {
		cb.state = cbInitial
		return cb.err
	}
	cb.state = cbExecutable
	return nil
}

// Reset discards recorded commands.
func (cb *cmdBuffer) Reset() error {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.state == cbPending {
		cb.g.violate("command buffer reset while pending")
		return errors.New("sim: command buffer in use")
	}
	cb.state = cbInitial
	cb.inPass = false
	cb.err = nil
	cb.fbs = cb.fbs[:0]
	return nil
}

// IsRecording returns whether cb is recording.
func (cb *cmdBuffer) IsRecording() bool {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	return cb.state == cbRecording
}

// Destroy destroys cb.
func (cb *cmdBuffer) Destroy() {
	cb.g.mu.Lock()
	defer cb.g.mu.Unlock()
	if cb.state == cbPending {
		cb.g.violate("command buffer destroyed while pending")
	}
	cb.g.checkIdle("command buffer")
}

// submit marks cb as pending.
// It must be called with g.mu held.
func (cb *cmdBuffer) submit() error {
	switch cb.state {
	case cbPending:
		cb.g.violate("command buffer submitted while pending")
		return errors.New("sim: command buffer in use")
	case cbExecutable:
		cb.state = cbPending
		return nil
	}
	return errors.New("sim: command buffer not ended")
}

// unsubmit undoes submit.
// It must be called with g.mu held.
func (cb *cmdBuffer) unsubmit() { cb.state = cbExecutable }

// execute executes cb's commands.
// It must be called with g.mu held.
func (cb *cmdBuffer) execute() {
	for _, f := range cb.fbs {
		if f.destroyed {
			cb.g.violate("framebuffer destroyed before execution")
			continue
		}
		for _, v := range f.views {
			if v.destroyed {
				cb.g.violate("image view destroyed before execution")
			} else if img := v.img; img.sc != nil && img.gen != img.sc.gen {
				cb.g.violate("rendering to retired swapchain image")
			}
		}
	}
	cb.execs++
	cb.state = cbExecutable
}
