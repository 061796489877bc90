// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package desktop

import (
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gviegas/framepace/wsi"
)

// keyFrom returns the wsi.Key value that represents a
// GLFW key.
func keyFrom(key glfw.Key) wsi.Key {
	if key < 0 || int(key) >= len(keymap) {
		return wsi.KeyUnknown
	}
	return keymap[key]
}

var keymap = [glfw.KeyLast + 1]wsi.Key{
	glfw.KeyEscape: wsi.KeyEsc,
	glfw.KeySpace:  wsi.KeySpace,
	glfw.KeyEnter:  wsi.KeyReturn,
	glfw.KeyQ:      wsi.KeyQ,
	glfw.KeyR:      wsi.KeyR,
	glfw.KeyF1:     wsi.KeyF1,
	glfw.KeyF11:    wsi.KeyF11,
}
