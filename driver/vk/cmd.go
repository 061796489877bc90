// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"

	"github.com/gviegas/framepace/driver"
)

// cmdBuffer implements driver.CmdBuffer.
// Command buffers share the driver's command pool, which
// Begin, End, Reset and Destroy lock.
type cmdBuffer struct {
	d         *Driver
	cb        vulkan.CommandBuffer
	recording bool
	inPass    bool
}

// NewCmdBuffer creates a new command buffer.
func (d *Driver) NewCmdBuffer() (driver.CmdBuffer, error) {
	info := vulkan.CommandBufferAllocateInfo{
		SType:              vulkan.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.pool,
		Level:              vulkan.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cbs := make([]vulkan.CommandBuffer, 1)
	d.pmu.Lock()
	res := vulkan.AllocateCommandBuffers(d.dev, &info, cbs)
	d.pmu.Unlock()
	if err := checkResult(res); err != nil {
		return nil, errors.Wrap(err, "vk: allocate command buffer")
	}
	return &cmdBuffer{d: d, cb: cbs[0]}, nil
}

// Begin prepares the command buffer for recording.
func (cb *cmdBuffer) Begin() error {
	if cb.recording {
		return errors.New("vk: command buffer already recording")
	}
	info := vulkan.CommandBufferBeginInfo{
		SType: vulkan.StructureTypeCommandBufferBeginInfo,
		Flags: vulkan.CommandBufferUsageFlags(vulkan.CommandBufferUsageOneTimeSubmitBit),
	}
	cb.d.pmu.Lock()
	defer cb.d.pmu.Unlock()
	if err := checkResult(vulkan.BeginCommandBuffer(cb.cb, &info)); err != nil {
		return errors.Wrap(err, "vk: begin command buffer")
	}
	cb.recording = true
	return nil
}

// BeginPass begins a render pass.
func (cb *cmdBuffer) BeginPass(pass driver.RenderPass, fb driver.Framebuf, clear []driver.ClearValue) {
	if cb.inPass {
		panic("vk: nested render pass")
	}
	p := pass.(*renderPass)
	f := fb.(*framebuf)
	cv := make([]vulkan.ClearValue, len(p.att))
	for i := range cv {
		if i >= len(clear) {
			break
		}
		if p.att[i].Format.IsDepth() {
			cv[i].SetDepthStencil(clear[i].Depth, clear[i].Stencil)
		} else {
			cv[i].SetColor(clear[i].Color[:])
		}
	}
	info := vulkan.RenderPassBeginInfo{
		SType:       vulkan.StructureTypeRenderPassBeginInfo,
		RenderPass:  p.pass,
		Framebuffer: f.fb,
		RenderArea: vulkan.Rect2D{
			Extent: vulkan.Extent2D{Width: uint32(f.width), Height: uint32(f.height)},
		},
		ClearValueCount: uint32(len(cv)),
		PClearValues:    cv,
	}
	vulkan.CmdBeginRenderPass(cb.cb, &info, vulkan.SubpassContentsInline)
	cb.inPass = true
}

// EndPass ends the current render pass.
func (cb *cmdBuffer) EndPass() {
	if !cb.inPass {
		panic("vk: EndPass without BeginPass")
	}
	vulkan.CmdEndRenderPass(cb.cb)
	cb.inPass = false
}

// End ends command recording.
func (cb *cmdBuffer) End() error {
	if !cb.recording {
		return errors.New("vk: command buffer not recording")
	}
	if cb.inPass {
		return errors.New("vk: render pass not ended")
	}
	cb.d.pmu.Lock()
	defer cb.d.pmu.Unlock()
	cb.recording = false
	return errors.Wrap(checkResult(vulkan.EndCommandBuffer(cb.cb)), "vk: end command buffer")
}

// Reset discards all recorded commands.
func (cb *cmdBuffer) Reset() error {
	cb.d.pmu.Lock()
	defer cb.d.pmu.Unlock()
	cb.recording = false
	cb.inPass = false
	return errors.Wrap(checkResult(vulkan.ResetCommandBuffer(cb.cb, 0)), "vk: reset command buffer")
}

// IsRecording returns whether the command buffer is
// recording.
func (cb *cmdBuffer) IsRecording() bool { return cb.recording }

// Destroy destroys the command buffer.
func (cb *cmdBuffer) Destroy() {
	if cb == nil || cb.d == nil {
		return
	}
	cb.d.pmu.Lock()
	vulkan.FreeCommandBuffers(cb.d.dev, cb.d.pool, 1, []vulkan.CommandBuffer{cb.cb})
	cb.d.pmu.Unlock()
	*cb = cmdBuffer{}
}

// Commit commits a work item to the GPU for execution.
func (d *Driver) Commit(wk *driver.WorkItem) error {
	if len(wk.Wait) != len(wk.WaitAt) {
		return errors.AssertionFailedf("vk: %d wait semaphore(s) for %d scope(s)", len(wk.Wait), len(wk.WaitAt))
	}
	cbs := make([]vulkan.CommandBuffer, len(wk.Work))
	for i, x := range wk.Work {
		cb := x.(*cmdBuffer)
		if cb.recording {
			return errors.Newf("vk: command buffer %d still recording", i)
		}
		cbs[i] = cb.cb
	}
	wait := make([]vulkan.Semaphore, len(wk.Wait))
	stage := make([]vulkan.PipelineStageFlags, len(wk.Wait))
	for i, x := range wk.Wait {
		wait[i] = x.(*semaphore).sem
		stage[i] = convSync(wk.WaitAt[i])
	}
	sig := make([]vulkan.Semaphore, len(wk.Signal))
	for i, x := range wk.Signal {
		sig[i] = x.(*semaphore).sem
	}
	fen := vulkan.NullFence
	if wk.Fence != nil {
		fen = wk.Fence.(*fence).fen
	}
	info := vulkan.SubmitInfo{
		SType:                vulkan.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(wait)),
		PWaitSemaphores:      wait,
		PWaitDstStageMask:    stage,
		CommandBufferCount:   uint32(len(cbs)),
		PCommandBuffers:      cbs,
		SignalSemaphoreCount: uint32(len(sig)),
		PSignalSemaphores:    sig,
	}
	d.qmu.Lock()
	res := vulkan.QueueSubmit(d.que, 1, []vulkan.SubmitInfo{info}, fen)
	d.qmu.Unlock()
	return errors.Wrap(checkResult(res), "vk: queue submit")
}

// convSync converts a driver.Sync into pipeline stages.
func convSync(s driver.Sync) vulkan.PipelineStageFlags {
	if s&driver.SAll != 0 {
		return vulkan.PipelineStageFlags(vulkan.PipelineStageAllCommandsBit)
	}
	var flg vulkan.PipelineStageFlagBits
	if s&driver.SColorOutput != 0 {
		flg |= vulkan.PipelineStageColorAttachmentOutputBit
	}
	if s&driver.SDSOutput != 0 {
		flg |= vulkan.PipelineStageEarlyFragmentTestsBit | vulkan.PipelineStageLateFragmentTestsBit
	}
	if flg == 0 {
		flg = vulkan.PipelineStageTopOfPipeBit
	}
	return vulkan.PipelineStageFlags(flg)
}
