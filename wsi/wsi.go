// Copyright 2022 Gustavo C. Viegas. All rights reserved.

// Package wsi provides window system integration (WSI)
// for GPU drivers.
// Because a system need not have a window system, WSI
// is conditionally supported. A headless backend, whose
// windows have no on-screen representation, is always
// available and is used unless another Backend is
// installed with Use.
package wsi

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// Window is the interface that defines a drawable window.
// The purpose of a window is to provide a surface into
// which a GPU can draw.
// Width and Height may be called from any goroutine.
type Window interface {
	// Map makes the window visible.
	Map() error

	// Unmap hides the window.
	Unmap() error

	// Resize resizes the window.
	// A size of zero in either dimension minimizes
	// the window.
	Resize(width, height int) error

	// SetTitle sets the window's title.
	SetTitle(title string) error

	// Close closes the window.
	Close()

	// Width returns the window's width.
	Width() int

	// Height returns the window's height.
	Height() int

	// Title returns the window's title.
	Title() string
}

// Backend is the interface that a window system
// implements to provide windows.
type Backend interface {
	// NewWindow creates a new window.
	NewWindow(width, height int, title string) (Window, error)

	// Dispatch dispatches queued events.
	// It must call the Notify* functions for each
	// event that it dispatches.
	Dispatch()

	// SetAppName updates the string used to identify
	// the application.
	SetAppName(s string)

	// Platform identifies the backend.
	Platform() Platform
}

// Use replaces the Backend in use.
// It must be called before any window is created.
func Use(b Backend) error {
	mu.Lock()
	defer mu.Unlock()
	if windowCount > 0 {
		return errors.New("wsi: cannot replace backend while windows exist")
	}
	backend = b
	return nil
}

// ErrTooManyWindows means that MaxWindows windows exist.
var ErrTooManyWindows = errors.New("wsi: too many windows")

// NewWindow creates a new window.
func NewWindow(width, height int, title string) (Window, error) {
	mu.Lock()
	defer mu.Unlock()
	if windowCount >= MaxWindows {
		return nil, ErrTooManyWindows
	}
	win, err := backend.NewWindow(width, height, title)
	if err != nil {
		return nil, err
	}
	for i := range createdWindows {
		if createdWindows[i] == nil {
			createdWindows[i] = win
			windowCount++
			break
		}
	}
	return win, nil
}

// The maximum number of windows that can exist at any
// given time.
const MaxWindows = 16

// Windows returns all created windows.
// The returned value becomes out of date after calls to
// NewWindow and Window.Close.
func Windows() []Window {
	mu.Lock()
	defer mu.Unlock()
	if windowCount == 0 {
		return nil
	}
	wins := make([]Window, 0, windowCount)
	for i := range createdWindows {
		if createdWindows[i] != nil {
			wins = append(wins, createdWindows[i])
		}
	}
	return wins
}

// Forget removes win from the list of created windows.
// It must be called by Backend implementations on
// win.Close.
// Note that win must be comparable.
func Forget(win Window) {
	mu.Lock()
	defer mu.Unlock()
	for i := range createdWindows {
		if createdWindows[i] == win {
			createdWindows[i] = nil
			windowCount--
			return
		}
	}
}

var (
	mu             sync.Mutex
	backend        Backend = &headless{}
	windowCount    int
	createdWindows [MaxWindows]Window
)

// Key is the type of keyboard keys.
type Key int

// Keyboard keys.
const (
	KeyUnknown Key = iota
	KeyEsc
	KeySpace
	KeyReturn
	KeyQ
	KeyR
	KeyF1
	KeyF11
)

// WindowHandler is the interface that defines the methods
// for handling window events.
type WindowHandler interface {
	// WindowClose is called when a window is closed.
	WindowClose(win Window)

	// WindowResize is called when a window is resized.
	WindowResize(win Window, newWidth, newHeight int)
}

// SetWindowHandler sets the global WindowHandler.
func SetWindowHandler(wh WindowHandler) {
	hmu.Lock()
	windowHandler = wh
	hmu.Unlock()
}

// KeyboardHandler is the interface that defines the methods
// for handling keyboard events.
type KeyboardHandler interface {
	// KeyboardKey is called when a key is pressed/released.
	KeyboardKey(key Key, pressed bool)
}

// SetKeyboardHandler sets the global KeyboardHandler.
func SetKeyboardHandler(kh KeyboardHandler) {
	hmu.Lock()
	keyboardHandler = kh
	hmu.Unlock()
}

var (
	hmu             sync.Mutex
	windowHandler   WindowHandler
	keyboardHandler KeyboardHandler
)

// NotifyClose calls the WindowHandler's WindowClose
// method, if a handler is set.
func NotifyClose(win Window) {
	hmu.Lock()
	wh := windowHandler
	hmu.Unlock()
	if wh != nil {
		wh.WindowClose(win)
	}
}

// NotifyResize calls the WindowHandler's WindowResize
// method, if a handler is set.
func NotifyResize(win Window, newWidth, newHeight int) {
	hmu.Lock()
	wh := windowHandler
	hmu.Unlock()
	if wh != nil {
		wh.WindowResize(win, newWidth, newHeight)
	}
}

// NotifyKey calls the KeyboardHandler's KeyboardKey
// method, if a handler is set.
func NotifyKey(key Key, pressed bool) {
	hmu.Lock()
	kh := keyboardHandler
	hmu.Unlock()
	if kh != nil {
		kh.KeyboardKey(key, pressed)
	}
}

// Dispatch dispatches queued events.
func Dispatch() {
	mu.Lock()
	b := backend
	mu.Unlock()
	b.Dispatch()
}

// AppName returns the string used to identify the application.
// Its use is platform-specific.
func AppName() string {
	mu.Lock()
	defer mu.Unlock()
	return appName
}

// SetAppName updates the string used to identify the
// application.
func SetAppName(s string) {
	mu.Lock()
	defer mu.Unlock()
	backend.SetAppName(s)
	appName = s
}

var appName string

// Platform identifies an underlying platform used to
// implement wsi.
type Platform int

// Platforms.
const (
	// None means that no window system is available.
	None Platform = iota
	// Headless windows exist only in memory.
	Headless
	// Desktop windows are provided by GLFW.
	Desktop
)

// PlatformInUse identifies the underlying platform which
// wsi is using.
func PlatformInUse() Platform {
	mu.Lock()
	defer mu.Unlock()
	return backend.Platform()
}
