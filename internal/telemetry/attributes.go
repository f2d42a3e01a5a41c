// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the daemon.
const (
	// HTTP attributes
	HTTPMethodKey     = "http.method"
	HTTPStatusCodeKey = "http.status_code"
	HTTPRouteKey      = "http.route"
	HTTPURLKey        = "http.url"

	// Room attributes
	RoomNameKey   = "room.name"
	RoomRoleKey   = "room.role"
	RoomOriginKey = "room.origin"

	// Media attributes
	MediaSourceTypeKey = "media.source_type"
	MediaStrategyKey   = "media.strategy"
	MediaTokenAgeKey   = "media.token_age_ms"

	// Upstream attributes
	UpstreamEndpointKey = "upstream.endpoint"
	UpstreamAttemptKey  = "upstream.attempt"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// HTTPAttributes creates common HTTP span attributes.
func HTTPAttributes(method, route, url string, statusCode int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(HTTPMethodKey, method),
		attribute.String(HTTPRouteKey, route),
		attribute.String(HTTPURLKey, url),
		attribute.Int(HTTPStatusCodeKey, statusCode),
	}
}

// RoomAttributes creates room-related span attributes.
func RoomAttributes(name, role string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, 2)
	if name != "" {
		attrs = append(attrs, attribute.String(RoomNameKey, name))
	}
	if role != "" {
		attrs = append(attrs, attribute.String(RoomRoleKey, role))
	}
	return attrs
}

// MediaAttributes creates media-resolution span attributes.
func MediaAttributes(sourceType, strategy string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(MediaSourceTypeKey, sourceType),
		attribute.String(MediaStrategyKey, strategy),
	}
}

// UpstreamAttributes creates upstream-call span attributes.
func UpstreamAttributes(endpoint string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(UpstreamEndpointKey, endpoint),
		attribute.Int(UpstreamAttemptKey, attempt),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
