// Copyright 2024 Gustavo C. Viegas. All rights reserved.

//go:build vulkan

package main

import (
	"log/slog"

	_ "github.com/gviegas/framepace/driver/vk"
	"github.com/gviegas/framepace/wsi"
	"github.com/gviegas/framepace/wsi/desktop"
)

func init() {
	if err := wsi.Use(desktop.New()); err != nil {
		slog.Warn("desktop windows unavailable", slog.Any("err", err))
	}
}
