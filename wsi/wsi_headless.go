// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"sync"

	"github.com/cockroachdb/errors"
)

// headless is the default Backend.
// Its windows keep only their state; events caused by
// calls to their methods are queued and delivered by
// the next Dispatch.
type headless struct {
	mu     sync.Mutex
	events []func()
}

func (h *headless) NewWindow(width, height int, title string) (Window, error) {
	if width < 0 || height < 0 {
		return nil, errors.Newf("wsi: invalid window size %dx%d", width, height)
	}
	return &headlessWindow{h: h, width: width, height: height, title: title}, nil
}

func (h *headless) Dispatch() {
	h.mu.Lock()
	evs := h.events
	h.events = nil
	h.mu.Unlock()
	for _, ev := range evs {
		ev()
	}
}

func (*headless) SetAppName(string) {}

func (*headless) Platform() Platform { return Headless }

func (h *headless) queue(ev func()) {
	h.mu.Lock()
	h.events = append(h.events, ev)
	h.mu.Unlock()
}

// headlessWindow implements Window.
type headlessWindow struct {
	h      *headless
	mu     sync.Mutex
	width  int
	height int
	title  string
	mapped bool
	closed bool
}

var errClosed = errors.New("wsi: window is closed")

func (w *headlessWindow) Map() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	w.mapped = true
	return nil
}

func (w *headlessWindow) Unmap() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	w.mapped = false
	return nil
}

func (w *headlessWindow) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return errors.Newf("wsi: invalid window size %dx%d", width, height)
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return errClosed
	}
	if w.width == width && w.height == height {
		w.mu.Unlock()
		return nil
	}
	w.width = width
	w.height = height
	w.mu.Unlock()
	w.h.queue(func() { NotifyResize(w, width, height) })
	return nil
}

func (w *headlessWindow) SetTitle(title string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	w.title = title
	return nil
}

func (w *headlessWindow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mapped = false
	w.mu.Unlock()
	Forget(w)
	w.h.queue(func() { NotifyClose(w) })
}

func (w *headlessWindow) Width() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.width
}

func (w *headlessWindow) Height() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.height
}

func (w *headlessWindow) Title() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.title
}
