// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	stderrors "errors"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gviegas/framepace/driver"
	_ "github.com/gviegas/framepace/driver/sim"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("DefaultConfig: Validate failed:\n%#v", err)
	}
	want := Config{
		Frames:          2,
		Images:          3,
		WaitTimeout:     2 * time.Second,
		Suboptimal:      RebuildNow,
		SuboptimalGrace: 30,
		DepthFmt:        driver.D16un,
	}
	if c != want {
		t.Fatalf("DefaultConfig:\nhave %+v\nwant %+v", c, want)
	}
}

func TestConfigValidate(t *testing.T) {
	for _, x := range [...]struct {
		name string
		fn   func(*Config)
	}{
		{"no frames", func(c *Config) { c.Frames = 0 }},
		{"too many frames", func(c *Config) { c.Frames = MaxFrame + 1 }},
		{"negative images", func(c *Config) { c.Images = -1 }},
		{"negative timeout", func(c *Config) { c.WaitTimeout = -time.Second }},
		{"bad policy", func(c *Config) { c.Suboptimal = 7 }},
		{"no grace", func(c *Config) { c.Suboptimal = RebuildDeferred; c.SuboptimalGrace = 0 }},
		{"color depth", func(c *Config) { c.DepthFmt = driver.RGBA8un }},
	} {
		t.Run(x.name, func(t *testing.T) {
			c := DefaultConfig()
			x.fn(&c)
			assert.Error(t, c.Validate())
		})
	}

	c := DefaultConfig()
	c.DepthFmt = driver.FInvalid
	c.WaitTimeout = 0
	c.SuboptimalGrace = 0
	assert.NoError(t, c.Validate(), "grace is irrelevant under RebuildNow")
}

func TestConfigWithDefaults(t *testing.T) {
	c := Config{Frames: 3}
	d := c.withDefaults()
	assert.Equal(t, 4, d.Images)
	assert.NotNil(t, d.Logger)
	assert.NotNil(t, d.TracerProvider)
	assert.Equal(t, time.Duration(-1), d.timeout(), "zero WaitTimeout is unbounded")

	c.WaitTimeout = time.Second
	c.Images = 2
	d = c.withDefaults()
	assert.Equal(t, 2, d.Images)
	assert.Equal(t, time.Second, d.timeout())
}

func TestSuboptimalPolicy(t *testing.T) {
	for _, p := range [...]SuboptimalPolicy{RebuildNow, RebuildDeferred} {
		b, err := p.MarshalText()
		require.NoError(t, err)
		var q SuboptimalPolicy
		require.NoError(t, q.UnmarshalText(b))
		if q != p {
			t.Fatalf("SuboptimalPolicy.UnmarshalText:\nhave %v\nwant %v", q, p)
		}
	}
	var p SuboptimalPolicy
	assert.NoError(t, p.UnmarshalText([]byte("DEFERRED")))
	assert.Equal(t, RebuildDeferred, p)
	assert.Error(t, p.UnmarshalText([]byte("later")))
	_, err := SuboptimalPolicy(-1).MarshalText()
	assert.Error(t, err)
	assert.Equal(t, "invalid", SuboptimalPolicy(9).String())
}

func TestOpenDriver(t *testing.T) {
	for _, name := range [...]string{"sim", "SIM", "Si", ""} {
		drv, gpu, err := OpenDriver(name)
		if err != nil {
			t.Fatalf("OpenDriver(%q) failed:\n%#v", name, err)
		}
		if drv == nil || gpu == nil {
			t.Fatalf("OpenDriver(%q): unexpected nil value", name)
		}
		if gpu.Driver() != drv {
			t.Fatalf("OpenDriver(%q): GPU.Driver mismatch", name)
		}
		if _, ok := gpu.(driver.Presenter); !ok {
			t.Fatalf("OpenDriver(%q): GPU is not a driver.Presenter", name)
		}
	}
	_, _, err := OpenDriver("no such driver")
	if !stderrors.Is(err, ErrNoDriver) {
		t.Fatalf("OpenDriver:\nhave %v\nwant %v", err, ErrNoDriver)
	}
}

type brokenDriver struct{}

var errBroken = errors.New("broken driver cannot open")

func (brokenDriver) Open() (driver.GPU, error) { return nil, errBroken }
func (brokenDriver) Name() string              { return "broken test driver" }
func (brokenDriver) Close()                    {}

func TestOpenDriverFailure(t *testing.T) {
	driver.Register(brokenDriver{})
	drv, gpu, err := OpenDriver("broken test")
	assert.Nil(t, drv)
	assert.Nil(t, gpu)
	if !stderrors.Is(err, ErrNoDriver) {
		t.Fatalf("OpenDriver:\nhave %v\nwant %v", err, ErrNoDriver)
	}
	assert.ErrorIs(t, err, errBroken)
	assert.Contains(t, err.Error(), "engine: open broken test driver")

	// Other drivers are unaffected.
	_, _, err = OpenDriver("sim")
	assert.NoError(t, err)
}
