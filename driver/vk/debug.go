// Copyright 2022 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package vk

import (
	"context"
	"log/slog"
	"os"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/goki/vulkan"
)

// ValidationEnv is the environment variable that enables
// the Khronos validation layer when set to a non-empty
// value. Validation messages are logged through slog.
const ValidationEnv = "FRAMEPACE_VK_VALIDATION"

const validationLayer = "VK_LAYER_KHRONOS_validation"

// instanceLayers returns the names of all instance layers
// advertised by the Vulkan implementation.
func instanceLayers() ([]string, error) {
	var n uint32
	if err := checkResult(vulkan.EnumerateInstanceLayerProperties(&n, nil)); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	props := make([]vulkan.LayerProperties, n)
	if err := checkResult(vulkan.EnumerateInstanceLayerProperties(&n, props)); err != nil {
		return nil, err
	}
	layers := make([]string, n)
	for i := range props[:n] {
		props[i].Deref()
		layers[i] = vulkan.ToString(props[i].LayerName[:])
	}
	return layers, nil
}

// selectValidation returns the NUL-terminated names of the
// layers and instance extensions to enable for validation.
// Nothing is selected unless ValidationEnv is set.
func (d *Driver) selectValidation(from []string) (layers, names []string) {
	if os.Getenv(ValidationEnv) == "" {
		return nil, nil
	}
	avail, err := instanceLayers()
	if err != nil || !hasExt(avail, validationLayer) {
		slog.Warn("vulkan validation layer not available", slog.String("layer", validationLayer))
		return nil, nil
	}
	layers = []string{cstr(validationLayer)}
	if hasExt(from, extDebugReportS) {
		names = []string{cstr(extDebugReportS)}
		d.exts[extDebugReport] = true
	}
	return layers, names
}

// initDebugReport registers debugReport with the instance
// if the debug report extension is enabled.
func (d *Driver) initDebugReport() error {
	if !d.exts[extDebugReport] {
		return nil
	}
	info := vulkan.DebugReportCallbackCreateInfo{
		SType: vulkan.StructureTypeDebugReportCallbackCreateInfo,
		Flags: vulkan.DebugReportFlags(vulkan.DebugReportErrorBit |
			vulkan.DebugReportWarningBit |
			vulkan.DebugReportPerformanceWarningBit |
			vulkan.DebugReportInformationBit),
		PfnCallback: debugReport,
	}
	var cb vulkan.DebugReportCallback
	if err := checkResult(vulkan.CreateDebugReportCallback(d.inst, &info, nil, &cb)); err != nil {
		return errors.Wrap(err, "vk: create debug report callback")
	}
	d.dbg = cb
	return nil
}

// debugLevel maps report flags to a log level.
func debugLevel(flags vulkan.DebugReportFlags) slog.Level {
	switch {
	case flags&vulkan.DebugReportFlags(vulkan.DebugReportErrorBit) != 0:
		return slog.LevelError
	case flags&vulkan.DebugReportFlags(vulkan.DebugReportWarningBit|vulkan.DebugReportPerformanceWarningBit) != 0:
		return slog.LevelWarn
	}
	return slog.LevelDebug
}

func debugReport(flags vulkan.DebugReportFlags, _ vulkan.DebugReportObjectType, obj uint64, _ uint64,
	code int32, prefix string, msg string, _ unsafe.Pointer) vulkan.Bool32 {
	slog.Log(context.Background(), debugLevel(flags), "vulkan validation",
		slog.String("layer", prefix),
		slog.Int("code", int(code)),
		slog.Uint64("object", obj),
		slog.String("msg", msg))
	return vulkan.False
}
