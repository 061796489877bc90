// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"time"
)

// GPU is the main interface to an underlying driver
// implementation.
// It is used to create other types and to execute commands.
// A GPU is obtained from a call to Driver.Open.
type GPU interface {
	// Driver returns the Driver that owns the GPU.
	Driver() Driver

	// Commit commits a WorkItem to the GPU for execution.
	// It does not wait for the work to complete. Command
	// buffers in wk.Work cannot be used for recording
	// until wk.Fence (if any) is signaled.
	// The GPU executes committed work in submission order.
	Commit(wk *WorkItem) error

	// WaitIdle blocks until all committed work and all
	// queued presentations have completed.
	// A negative timeout means no bound. If the bound
	// elapses, it returns an error matching ErrTimeout.
	WaitIdle(timeout time.Duration) error

	// NewCmdBuffer creates a new command buffer.
	NewCmdBuffer() (CmdBuffer, error)

	// NewSemaphore creates a new binary semaphore.
	NewSemaphore() (Semaphore, error)

	// NewFence creates a new fence.
	// If signaled is true, the fence starts in the
	// signaled state.
	NewFence(signaled bool) (Fence, error)

	// NewRenderPass creates a new render pass.
	NewRenderPass(att []Attachment) (RenderPass, error)

	// NewImage creates a new 2D image.
	NewImage(pf PixelFmt, size Dim3D, usg Usage) (Image, error)
}

// Destroyer is the interface that wraps the Destroy method.
// Types that implement this interface may allocate external
// memory that is not managed by GC, so Destroy must be
// called explicitly to ensure such memory is deallocated.
type Destroyer interface {
	Destroy()
}

// WorkItem is a unit of GPU work.
// Execution of Work starts only after every semaphore
// in Wait is signaled, at the synchronization scope of
// the same index in WaitAt. When execution completes,
// every semaphore in Signal is signaled and then Fence
// (if not nil) is signaled.
type WorkItem struct {
	Work   []CmdBuffer
	Wait   []Semaphore
	WaitAt []Sync
	Signal []Semaphore
	Fence  Fence
}

// Semaphore is the interface that defines a binary
// GPU-to-GPU signal.
// A semaphore is signaled by exactly one operation and
// consumed by exactly one wait. It cannot be observed
// from the CPU.
type Semaphore interface {
	Destroyer
}

// Fence is the interface that defines a GPU-to-CPU
// completion marker.
type Fence interface {
	Destroyer

	// Wait blocks until the fence is signaled.
	// A negative timeout means no bound. If the bound
	// elapses, it returns an error matching ErrTimeout.
	Wait(timeout time.Duration) error

	// Reset sets the fence to the unsignaled state.
	// It must not be called while the fence belongs
	// to work that has not completed.
	Reset() error

	// Signaled returns whether the fence is signaled.
	Signaled() bool
}

// CmdBuffer is the interface that defines a command buffer.
// Commands are recorded into command buffers and later
// committed to the GPU for execution. The usage is as
// follows:
//
//	1. call Reset (if the command buffer was executed)
//	2. call Begin
//	3. call BeginPass
//	4. record commands
//	5. call EndPass
//	6. call End and, if it succeeds, GPU.Commit
//
// BeginPass must not be nested.
type CmdBuffer interface {
	Destroyer

	// Begin prepares the command buffer for recording.
	// This method must be called before any command
	// is recorded in the command buffer. It needs to
	// be called again if the command buffer is
	// executed or reset.
	Begin() error

	// BeginPass begins a render pass.
	// clear provides one value for each attachment of
	// pass, in order.
	BeginPass(pass RenderPass, fb Framebuf, clear []ClearValue)

	// EndPass ends the current render pass.
	EndPass()

	// End ends command recording and prepares the
	// command buffer for execution.
	End() error

	// Reset discards all recorded commands.
	// It must not be called while the command buffer
	// belongs to work that has not completed.
	Reset() error

	// IsRecording returns whether the command buffer
	// has begun and not yet ended.
	IsRecording() bool
}

// Sync is the type of a synchronization scope.
type Sync int

// Synchronization scopes.
const (
	SColorOutput Sync = 1 << iota
	SDSOutput
	SAll
	SNone Sync = 0
)

// LoadOp is the type of an attachment's load operation.
type LoadOp int

// Load operations.
const (
	LDontCare LoadOp = iota
	LClear
	LLoad
)

// StoreOp is the type of an attachment's store operation.
type StoreOp int

// Store operations.
const (
	SDontCare StoreOp = iota
	SStore
)

// Attachment describes the configuration of a single
// render target for use in a render pass.
// The first attachment of a pass is the color target.
// Present indicates that the color target will be
// handed to a Swapchain after the pass.
type Attachment struct {
	Format  PixelFmt
	Load    LoadOp
	Store   StoreOp
	Present bool
}

// RenderPass is the interface that defines a render pass
// into which draw commands operate.
type RenderPass interface {
	Destroyer

	// NewFB creates a new framebuffer.
	// Each image view in iv correspond to the render pass'
	// attachment of same index. A view's pixel format must
	// match the attachment's.
	// All framebuffers created from a given render pass
	// must be destroyed before the render pass itself
	// is destroyed.
	NewFB(iv []ImageView, width, height int) (Framebuf, error)
}

// Framebuf is the interface that defines the render targets
// of a render pass.
type Framebuf interface {
	Destroyer
}

// ClearValue defines clear values for color or depth/stencil
// aspects of a render target.
type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

// Usage is a mask indicating valid uses for an image.
type Usage int

// Usage flags for Image.
const (
	// The image can be sampled in shaders.
	UShaderSample Usage = 1 << iota
	// The image can be used as render target.
	URenderTarget
	// The image can be the source of a copy.
	UCopySrc
	// The image can be the destination of a copy.
	UCopyDst
	// The image can be used for any purpose.
	UGeneric Usage = 1<<iota - 1
)

// PixelFmt describes the format of a pixel.
type PixelFmt int

// Pixel formats.
const (
	FInvalid PixelFmt = iota
	// Color, 8-bit channels.
	RGBA8un
	RGBA8sRGB
	BGRA8un
	BGRA8sRGB
	// Color, 16-bit channels.
	RGBA16f
	// Depth/Stencil.
	D16un
	D32f
	D24unS8ui
)

// IsDepth returns whether f is a depth/stencil format.
func (f PixelFmt) IsDepth() bool { return f >= D16un && f <= D24unS8ui }

// String implements fmt.Stringer.
func (f PixelFmt) String() string {
	switch f {
	case RGBA8un:
		return "RGBA8un"
	case RGBA8sRGB:
		return "RGBA8sRGB"
	case BGRA8un:
		return "BGRA8un"
	case BGRA8sRGB:
		return "BGRA8sRGB"
	case RGBA16f:
		return "RGBA16f"
	case D16un:
		return "D16un"
	case D32f:
		return "D32f"
	case D24unS8ui:
		return "D24unS8ui"
	}
	return "FInvalid"
}

// Dim3D is a three-dimensional size.
type Dim3D struct {
	Width, Height, Depth int
}

// IsZero returns whether d has no area.
func (d Dim3D) IsZero() bool { return d.Width <= 0 || d.Height <= 0 }

// Image is the interface that defines a GPU image.
type Image interface {
	Destroyer

	// NewView creates a new 2D image view.
	// All views created from a given image must be
	// destroyed before the image itself is destroyed.
	NewView() (ImageView, error)

	// Format returns the image's PixelFmt.
	Format() PixelFmt

	// Size returns the image's size.
	Size() Dim3D
}

// ImageView is the interface that defines a typed view of
// an Image resource.
type ImageView interface {
	Destroyer

	// Image returns the Image from which the view was
	// created.
	Image() Image
}
