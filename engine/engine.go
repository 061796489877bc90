// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements frame pacing for real-time
// rendering onto a wsi.Window.
// An Onscreen renderer keeps a fixed number of frames in
// flight, acquiring presentation images, recording and
// submitting commands and presenting the results, and
// rebuilds the swapchain and everything derived from it
// whenever the presentation surface changes.
package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gviegas/framepace/driver"
)

const (
	// The maximum number of frames in flight.
	MaxFrame = 3

	dflFrames          = 2
	dflWaitTimeout     = 2 * time.Second
	dflSuboptimalGrace = 30
	dflDepthFmt        = driver.D16un
)

// SuboptimalPolicy determines how an Onscreen renderer
// reacts to a swapchain that still works but no longer
// matches the surface exactly.
type SuboptimalPolicy int

// Suboptimal policies.
const (
	// RebuildNow rebuilds right after the frame that
	// reported the suboptimal swapchain is presented.
	RebuildNow SuboptimalPolicy = iota
	// RebuildDeferred keeps presenting with the
	// suboptimal swapchain and rebuilds only after
	// Config.SuboptimalGrace consecutive frames
	// reported it.
	RebuildDeferred
)

// String implements fmt.Stringer.
func (p SuboptimalPolicy) String() string {
	switch p {
	case RebuildNow:
		return "now"
	case RebuildDeferred:
		return "deferred"
	}
	return "invalid"
}

// MarshalText implements encoding.TextMarshaler.
func (p SuboptimalPolicy) MarshalText() ([]byte, error) {
	if s := p.String(); s != "invalid" {
		return []byte(s), nil
	}
	return nil, errors.Newf("engine: invalid suboptimal policy %d", int(p))
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *SuboptimalPolicy) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "now":
		*p = RebuildNow
	case "deferred":
		*p = RebuildDeferred
	default:
		return errors.Newf("engine: unknown suboptimal policy %q", text)
	}
	return nil
}

// Config is used to configure an Onscreen renderer.
type Config struct {
	// The number of frames in flight.
	// It must be in the range [1, MaxFrame].
	//
	// Default is 2.
	Frames int

	// The number of presentation images to request.
	// The surface may impose a different count.
	//
	// Default is Frames+1.
	Images int

	// The bound on waits for frame completion and for
	// the device to become idle. A wait that exceeds it
	// fails with ErrDeviceUnresponsive. Zero means no
	// bound.
	//
	// Default is 2s.
	WaitTimeout time.Duration

	// How to react to suboptimal swapchains.
	//
	// Default is RebuildNow.
	Suboptimal SuboptimalPolicy

	// The number of consecutive suboptimal frames
	// tolerated under RebuildDeferred.
	//
	// Default is 30.
	SuboptimalGrace int

	// The format of the depth target.
	// driver.FInvalid disables the depth target.
	//
	// Default is driver.D16un.
	DepthFmt driver.PixelFmt

	// Default is slog.Default().
	Logger *slog.Logger

	// Default is otel.GetTracerProvider().
	TracerProvider trace.TracerProvider
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Frames:          dflFrames,
		Images:          dflFrames + 1,
		WaitTimeout:     dflWaitTimeout,
		Suboptimal:      RebuildNow,
		SuboptimalGrace: dflSuboptimalGrace,
		DepthFmt:        dflDepthFmt,
	}
}

// Validate checks that c is a valid configuration.
func (c *Config) Validate() error {
	switch {
	case c.Frames < 1 || c.Frames > MaxFrame:
		return errors.Newf("engine: Config.Frames must be in [1, %d] (have %d)", MaxFrame, c.Frames)
	case c.Images < 0:
		return errors.Newf("engine: Config.Images must not be negative (have %d)", c.Images)
	case c.WaitTimeout < 0:
		return errors.Newf("engine: Config.WaitTimeout must not be negative (have %v)", c.WaitTimeout)
	case c.Suboptimal != RebuildNow && c.Suboptimal != RebuildDeferred:
		return errors.Newf("engine: invalid Config.Suboptimal (%d)", int(c.Suboptimal))
	case c.Suboptimal == RebuildDeferred && c.SuboptimalGrace < 1:
		return errors.Newf("engine: Config.SuboptimalGrace must be positive (have %d)", c.SuboptimalGrace)
	case c.DepthFmt != driver.FInvalid && !c.DepthFmt.IsDepth():
		return errors.Newf("engine: Config.DepthFmt is not a depth format (%v)", c.DepthFmt)
	}
	return nil
}

// withDefaults fills in the fields that have no
// meaningful zero value.
func (c Config) withDefaults() Config {
	if c.Images == 0 {
		c.Images = c.Frames + 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.TracerProvider == nil {
		c.TracerProvider = otel.GetTracerProvider()
	}
	return c
}

// timeout converts WaitTimeout to a driver timeout.
func (c *Config) timeout() time.Duration {
	if c.WaitTimeout == 0 {
		return -1
	}
	return c.WaitTimeout
}
