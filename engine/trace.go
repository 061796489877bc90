// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gviegas/framepace/driver"
)

const tracerName = "github.com/gviegas/framepace/engine"

// Span names.
const (
	spanFrame   = "engine.RenderFrame"
	spanRebuild = "engine.Rebuild"
)

// Span attribute keys.
const (
	attrSlot    = attribute.Key("frame.slot")
	attrImage   = attribute.Key("frame.image")
	attrGen     = attribute.Key("swapchain.generation")
	attrAcquire = attribute.Key("swapchain.acquire")
	attrPresent = attribute.Key("swapchain.present")
	attrReason  = attribute.Key("rebuild.reason")
	attrExtent  = attribute.Key("swapchain.extent")
)

func statusAttr(k attribute.Key, st driver.Status) attribute.KeyValue {
	return k.String(st.String())
}

// endSpan records err, if any, and ends span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
