// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/pelletier/go-toml/v2"

	"github.com/gviegas/framepace/driver"
)

// fileConfig is the on-disk form of Config.
type fileConfig struct {
	Frames          int              `toml:"frames"`
	Images          int              `toml:"images"`
	WaitTimeout     duration         `toml:"wait_timeout"`
	Suboptimal      SuboptimalPolicy `toml:"suboptimal"`
	SuboptimalGrace int              `toml:"suboptimal_grace"`
	DepthFormat     depthFmt         `toml:"depth_format"`
}

type duration time.Duration

func (d duration) MarshalText() ([]byte, error) { return []byte(time.Duration(d).String()), nil }

func (d *duration) UnmarshalText(text []byte) error {
	x, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(err, "engine: wait_timeout")
	}
	*d = duration(x)
	return nil
}

type depthFmt driver.PixelFmt

var depthFmts = [...]driver.PixelFmt{driver.D16un, driver.D32f, driver.D24unS8ui}

func (f depthFmt) MarshalText() ([]byte, error) {
	if driver.PixelFmt(f) == driver.FInvalid {
		return []byte("none"), nil
	}
	return []byte(driver.PixelFmt(f).String()), nil
}

func (f *depthFmt) UnmarshalText(text []byte) error {
	s := string(text)
	if strings.EqualFold(s, "none") {
		*f = depthFmt(driver.FInvalid)
		return nil
	}
	for _, pf := range depthFmts {
		if strings.EqualFold(s, pf.String()) {
			*f = depthFmt(pf)
			return nil
		}
	}
	return errors.Newf("engine: unknown depth_format %q", s)
}

func toFile(c *Config) fileConfig {
	return fileConfig{
		Frames:          c.Frames,
		Images:          c.Images,
		WaitTimeout:     duration(c.WaitTimeout),
		Suboptimal:      c.Suboptimal,
		SuboptimalGrace: c.SuboptimalGrace,
		DepthFormat:     depthFmt(c.DepthFmt),
	}
}

func (fc *fileConfig) apply(c *Config) {
	c.Frames = fc.Frames
	c.Images = fc.Images
	c.WaitTimeout = time.Duration(fc.WaitTimeout)
	c.Suboptimal = fc.Suboptimal
	c.SuboptimalGrace = fc.SuboptimalGrace
	c.DepthFmt = driver.PixelFmt(fc.DepthFormat)
}

// DecodeConfig reads a TOML configuration from r.
// Settings missing from r keep the values in base.
// Unknown settings are rejected.
func DecodeConfig(r io.Reader, base Config) (Config, error) {
	fc := toFile(&base)
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&fc); err != nil {
		return base, errors.Wrap(err, "engine: decode config")
	}
	cfg := base
	fc.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// LoadConfig reads a TOML configuration file.
// Settings missing from the file keep the values in base.
func LoadConfig(path string, base Config) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return base, errors.Wrap(err, "engine: load config")
	}
	cfg, err := DecodeConfig(bytes.NewReader(b), base)
	if err != nil {
		return base, errors.Wrapf(err, "%s", path)
	}
	return cfg, nil
}

// EncodeConfig writes c to w in TOML format.
func EncodeConfig(w io.Writer, c Config) error {
	fc := toFile(&c)
	return errors.Wrap(toml.NewEncoder(w).Encode(&fc), "engine: encode config")
}

// ConfigWatcher reloads a configuration file whenever it
// changes on disk.
type ConfigWatcher struct {
	w    *fsnotify.Watcher
	path string
	base Config
	fn   func(Config)
	log  *slog.Logger
	done chan struct{}
	wg   sync.WaitGroup
}

// WatchConfig starts watching the configuration file at
// path. Each time the file is written, it is reloaded
// over base and, if valid, passed to fn. Invalid files
// are logged and ignored.
// fn is called from a separate goroutine.
func WatchConfig(path string, base Config, fn func(Config)) (*ConfigWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "engine: watch config")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "engine: watch config")
	}
	// Editors often replace the file rather than
	// writing to it, so watch the directory.
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, errors.Wrap(err, "engine: watch config")
	}
	log := base.Logger
	if log == nil {
		log = slog.Default()
	}
	cw := &ConfigWatcher{
		w:    w,
		path: abs,
		base: base,
		fn:   fn,
		log:  log,
		done: make(chan struct{}),
	}
	cw.wg.Add(1)
	go cw.watch()
	return cw, nil
}

func (cw *ConfigWatcher) watch() {
	defer cw.wg.Done()
	for {
		select {
		case <-cw.done:
			return
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != cw.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			cfg, err := LoadConfig(cw.path, cw.base)
			if err != nil {
				cw.log.Warn("config reload failed", slog.String("path", cw.path), slog.Any("err", err))
				continue
			}
			cw.log.Info("config reloaded", slog.String("path", cw.path))
			cw.fn(cfg)
		case err, ok := <-cw.w.Errors:
			if !ok {
				return
			}
			cw.log.Warn("config watcher", slog.Any("err", err))
		}
	}
}

// Close stops watching.
func (cw *ConfigWatcher) Close() error {
	close(cw.done)
	err := cw.w.Close()
	cw.wg.Wait()
	return err
}
