// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"github.com/goki/vulkan"
)

const (
	// Instance extensions.
	extSurface, extSurfaceS               = iota, "VK_KHR_surface"
	extWaylandSurface, extWaylandSurfaceS = iota, "VK_KHR_wayland_surface"
	extXlibSurface, extXlibSurfaceS       = iota, "VK_KHR_xlib_surface"
	extXCBSurface, extXCBSurfaceS         = iota, "VK_KHR_xcb_surface"
	extWin32Surface, extWin32SurfaceS     = iota, "VK_KHR_win32_surface"
	extMetalSurface, extMetalSurfaceS     = iota, "VK_EXT_metal_surface"
	extDebugReport, extDebugReportS       = iota, "VK_EXT_debug_report"

	// Device extensions.
	extSwapchain, extSwapchainS = iota, "VK_KHR_swapchain"

	extN = iota
)

// Platform surface extensions, any of which GLFW may use.
var platformExts = [...]struct {
	ext  int
	name string
}{
	{extWaylandSurface, extWaylandSurfaceS},
	{extXlibSurface, extXlibSurfaceS},
	{extXCBSurface, extXCBSurfaceS},
	{extWin32Surface, extWin32SurfaceS},
	{extMetalSurface, extMetalSurfaceS},
}

// instanceExts returns the names of all instance
// extensions advertised by the Vulkan implementation.
func instanceExts() ([]string, error) {
	var n uint32
	if err := checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err := checkResult(vulkan.EnumerateInstanceExtensionProperties("", &n, props)); err != nil {
		return nil, err
	}
	return extNames(props[:n]), nil
}

// deviceExts returns the names of all device extensions
// advertised by pdev.
func deviceExts(pdev vulkan.PhysicalDevice) ([]string, error) {
	if pdev == nil {
		panic("vk.deviceExts called with nil physical device")
	}
	var n uint32
	if err := checkResult(vulkan.EnumerateDeviceExtensionProperties(pdev, "", &n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	props := make([]vulkan.ExtensionProperties, n)
	if err := checkResult(vulkan.EnumerateDeviceExtensionProperties(pdev, "", &n, props)); err != nil {
		return nil, err
	}
	return extNames(props[:n]), nil
}

func extNames(props []vulkan.ExtensionProperties) []string {
	exts := make([]string, len(props))
	for i := range props {
		props[i].Deref()
		exts[i] = vulkan.ToString(props[i].ExtensionName[:])
	}
	return exts
}

func hasExt(exts []string, name string) bool {
	for _, e := range exts {
		if e == name {
			return true
		}
	}
	return false
}

// selectInstanceExts returns the NUL-terminated names of
// the instance extensions to enable and sets d.exts
// accordingly.
// Presentation requires the surface extension and at
// least one platform surface extension. If these are
// not available, no extension is selected.
func (d *Driver) selectInstanceExts(from []string) (names []string) {
	if !hasExt(from, extSurfaceS) {
		return nil
	}
	for _, p := range platformExts {
		if hasExt(from, p.name) {
			names = append(names, cstr(p.name))
			d.exts[p.ext] = true
		}
	}
	if len(names) == 0 {
		return nil
	}
	d.exts[extSurface] = true
	return append(names, cstr(extSurfaceS))
}
