// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

// Package desktop implements a wsi.Backend using GLFW.
// GLFW must be used from the main thread, so the
// package locks it on init. Windows must be created,
// modified and dispatched from the main goroutine.
package desktop

import (
	"log/slog"
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gviegas/framepace/wsi"
)

func init() {
	runtime.LockOSThread()
}

// Backend implements wsi.Backend.
type Backend struct {
	once    sync.Once
	initErr error
	appName string
}

// New returns a new Backend.
// It must be installed with wsi.Use.
func New() *Backend { return &Backend{} }

func (b *Backend) init() error {
	b.once.Do(func() {
		if err := glfw.Init(); err != nil {
			b.initErr = errors.Wrap(err, "desktop: glfw")
		}
	})
	return b.initErr
}

// NewWindow creates a new window that has no client API.
// It starts hidden.
func (b *Backend) NewWindow(width, height int, title string) (wsi.Window, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("desktop: invalid window size %dx%d", width, height)
	}
	if err := b.init(); err != nil {
		return nil, err
	}
	glfw.DefaultWindowHints()
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	if b.appName != "" {
		glfw.WindowHintString(glfw.X11ClassName, b.appName)
	}
	glw, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, errors.Wrap(err, "desktop: create window")
	}
	w := &window{glw: glw, title: title}
	w.width, w.height = glw.GetFramebufferSize()
	glw.SetFramebufferSizeCallback(w.fbResized)
	glw.SetIconifyCallback(w.iconify)
	glw.SetCloseCallback(w.closeReq)
	glw.SetKeyCallback(w.keyEvent)
	slog.Debug("desktop window created",
		slog.String("title", title),
		slog.Int("width", w.width),
		slog.Int("height", w.height))
	return w, nil
}

// Dispatch processes pending GLFW events.
func (b *Backend) Dispatch() {
	if b.init() == nil {
		glfw.PollEvents()
	}
}

// SetAppName sets the X11 class name of new windows.
func (b *Backend) SetAppName(s string) { b.appName = s }

// Platform returns wsi.Desktop.
func (*Backend) Platform() wsi.Platform { return wsi.Desktop }

// window implements wsi.Window.
// Its size is that of the framebuffer, which is zero
// while the window is iconified.
type window struct {
	glw    *glfw.Window
	mu     sync.Mutex
	width  int
	height int
	title  string
	closed bool
}

var errClosed = errors.New("desktop: window is closed")

func (w *window) Map() error {
	if w.isClosed() {
		return errClosed
	}
	w.glw.Show()
	return nil
}

func (w *window) Unmap() error {
	if w.isClosed() {
		return errClosed
	}
	w.glw.Hide()
	return nil
}

// Resize resizes the window.
// A size of zero in either dimension iconifies it.
func (w *window) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return errors.Newf("desktop: invalid window size %dx%d", width, height)
	}
	if w.isClosed() {
		return errClosed
	}
	if width == 0 || height == 0 {
		w.glw.Iconify()
		return nil
	}
	if w.glw.GetAttrib(glfw.Iconified) == glfw.True {
		w.glw.Restore()
	}
	w.glw.SetSize(width, height)
	return nil
}

func (w *window) SetTitle(title string) error {
	if w.isClosed() {
		return errClosed
	}
	w.glw.SetTitle(title)
	w.mu.Lock()
	w.title = title
	w.mu.Unlock()
	return nil
}

func (w *window) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()
	w.glw.Destroy()
	wsi.Forget(w)
	wsi.NotifyClose(w)
}

func (w *window) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *window) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *window) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}

// CreateWindowSurface creates a Vulkan surface for the
// window.
func (w *window) CreateWindowSurface(instance any, allocCallbacks unsafe.Pointer) (uintptr, error) {
	if w.isClosed() {
		return 0, errClosed
	}
	return w.glw.CreateWindowSurface(instance, allocCallbacks)
}

func (w *window) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *window) setSize(width, height int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.width == width && w.height == height {
		return false
	}
	w.width, w.height = width, height
	return true
}

func (w *window) fbResized(_ *glfw.Window, width, height int) {
	if w.setSize(width, height) {
		wsi.NotifyResize(w, width, height)
	}
}

func (w *window) iconify(glw *glfw.Window, iconified bool) {
	width, height := 0, 0
	if !iconified {
		width, height = glw.GetFramebufferSize()
	}
	w.fbResized(glw, width, height)
}

// closeReq reports the request but leaves the window
// open. The handler decides whether to call Close.
func (w *window) closeReq(glw *glfw.Window) {
	glw.SetShouldClose(false)
	wsi.NotifyClose(w)
}

func (w *window) keyEvent(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
	if action == glfw.Repeat {
		return
	}
	wsi.NotifyKey(keyFrom(key), action == glfw.Press)
}
