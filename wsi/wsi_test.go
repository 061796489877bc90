// Copyright 2022 Gustavo C. Viegas. All rights reserved.

package wsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type E struct {
	closed  []Window
	resized [][2]int
	keys    []Key
}

func (e *E) WindowClose(win Window) { e.closed = append(e.closed, win) }

func (e *E) WindowResize(win Window, newWidth, newHeight int) {
	e.resized = append(e.resized, [2]int{newWidth, newHeight})
}

func (e *E) KeyboardKey(key Key, pressed bool) {
	if pressed {
		e.keys = append(e.keys, key)
	}
}

func TestHeadless(t *testing.T) {
	if p := PlatformInUse(); p != Headless {
		t.Fatalf("PlatformInUse:\nhave %v\nwant %v", p, Headless)
	}
	var e E
	SetWindowHandler(&e)
	defer SetWindowHandler(nil)

	win, err := NewWindow(480, 360, "My window")
	require.NoError(t, err)
	if n := len(Windows()); n != 1 {
		t.Fatalf("len(Windows())\nhave %v\nwant 1", n)
	}
	require.NoError(t, win.Map())
	require.NoError(t, win.SetTitle("Renamed"))
	assert.Equal(t, "Renamed", win.Title())

	require.NoError(t, win.Resize(600, 300))
	require.NoError(t, win.Resize(600, 300))
	require.NoError(t, win.Resize(0, 0))
	assert.Equal(t, 0, win.Width())
	assert.Equal(t, 0, win.Height())
	assert.Empty(t, e.resized, "events must wait for Dispatch")
	Dispatch()
	assert.Equal(t, [][2]int{{600, 300}, {0, 0}}, e.resized)

	assert.Error(t, win.Resize(-1, 10))

	win.Close()
	win.Close()
	if n := len(Windows()); n != 0 {
		t.Fatalf("len(Windows())\nhave %v\nwant 0", n)
	}
	Dispatch()
	require.Len(t, e.closed, 1)
	assert.Same(t, win.(*headlessWindow), e.closed[0].(*headlessWindow))
	assert.ErrorIs(t, win.Map(), errClosed)
}

func TestMaxWindows(t *testing.T) {
	var wins []Window
	defer func() {
		for _, w := range wins {
			w.Close()
		}
		Dispatch()
	}()
	for k := 0; k < MaxWindows; k++ {
		w, err := NewWindow(1, 1, "")
		require.NoError(t, err)
		wins = append(wins, w)
	}
	_, err := NewWindow(1, 1, "")
	assert.ErrorIs(t, err, ErrTooManyWindows)
	assert.Error(t, Use(&headless{}), "Use must fail while windows exist")
}

func TestNotifyKey(t *testing.T) {
	var e E
	SetKeyboardHandler(&e)
	defer SetKeyboardHandler(nil)
	NotifyKey(KeyEsc, true)
	NotifyKey(KeyEsc, false)
	NotifyKey(KeyR, true)
	assert.Equal(t, []Key{KeyEsc, KeyR}, e.keys)
}

func TestAppName(t *testing.T) {
	SetAppName("My app")
	if s := AppName(); s != "My app" {
		t.Fatalf("AppName\nhave %s\nwant My app", s)
	}
}
