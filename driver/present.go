// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package driver

import (
	"github.com/cockroachdb/errors"

	"github.com/gviegas/framepace/wsi"
)

// ErrCannotPresent means that the driver and/or device do not
// support presentation.
var ErrCannotPresent = errors.New("driver: presentation not supported")

// ErrWindow represents an error related to a specific window.
// This error usually indicates that a window misconfiguration
// is preventing correct operation. For instance, the driver
// cannot create a swapchain for a window that has no area.
var ErrWindow = errors.New("driver: window-related error")

// Status is the non-fatal outcome of acquiring or
// presenting a swapchain image.
type Status int

// Presentation statuses.
const (
	// Ready means that the swapchain matches the surface.
	Ready Status = iota
	// Suboptimal means that the operation succeeded but
	// the swapchain no longer matches the surface exactly.
	Suboptimal
	// Stale means that the swapchain is unusable and must
	// be recreated before further use.
	Stale
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case Ready:
		return "ready"
	case Suboptimal:
		return "suboptimal"
	case Stale:
		return "stale"
	}
	return "invalid"
}

// Presenter is the interface that a GPU may implement
// to enable presentation on a display.
type Presenter interface {
	// NewSwapchain creates a new swapchain.
	// Only one swapchain can be associated with a specific
	// wsi.Window at a time. imageCount is a hint; the
	// surface may impose a different count.
	NewSwapchain(win wsi.Window, imageCount int) (Swapchain, error)
}

// Swapchain is the interface that defines a n-buffered
// swapchain for presentation.
// To present, one calls Next to obtain the index of an
// image to target, records commands that render into a
// view of that image, commits these commands waiting on
// the semaphore given to Next and signaling another
// semaphore, and then calls Present with the latter.
//
// Errors returned by Next and Present are fatal; the
// recoverable outcomes are reported through Status.
type Swapchain interface {
	Destroyer

	// Images returns the list of images that comprises
	// the swapchain.
	// This value remains unchanged as long as the
	// swapchain's Destroy or Recreate methods are
	// not called. The images are owned by the
	// swapchain; calling Destroy on them has no effect.
	Images() []Image

	// Next acquires the next writable image and returns
	// its index.
	// When st is Ready or Suboptimal, sig will be signaled
	// once the image can be written. When st is Stale, no
	// image was acquired and sig is left untouched.
	Next(sig Semaphore) (index int, st Status, err error)

	// Present queues the image identified by index for
	// presentation once wait is signaled.
	// index must have been acquired by Next.
	Present(index int, wait Semaphore) (Status, error)

	// Recreate recreates the swapchain.
	// It re-queries the surface and replaces the image
	// pool. All views of the previous images must be
	// destroyed and all work using them must have
	// completed before calling this method.
	// It fails with ErrWindow if the window has no area.
	Recreate() error

	// Format returns the images' PixelFmt.
	Format() PixelFmt

	// Extent returns the images' size.
	Extent() Dim3D
}
