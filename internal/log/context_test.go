// SPDX-License-Identifier: MIT

package log

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

func TestContextWithRequestID(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		requestID string
		want      string
	}{
		{
			name:      "nil context",
			ctx:       nil,
			requestID: "test-id-123",
			want:      "test-id-123",
		},
		{
			name:      "background context",
			ctx:       context.Background(),
			requestID: "req-456",
			want:      "req-456",
		},
		{
			name:      "empty request ID",
			ctx:       context.Background(),
			requestID: "",
			want:      "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRequestID(tt.ctx, tt.requestID)
			got := RequestIDFromContext(ctx)
			if got != tt.want {
				t.Errorf("RequestIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContextWithRoom(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		room string
		want string
	}{
		{
			name: "nil context",
			ctx:  nil,
			room: "movie-night",
			want: "movie-night",
		},
		{
			name: "background context",
			ctx:  context.Background(),
			room: "r2",
			want: "r2",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ContextWithRoom(tt.ctx, tt.room)
			got := RoomFromContext(ctx)
			if got != tt.want {
				t.Errorf("RoomFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRequestIDFromContextEmpty(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{
			name: "nil context",
			ctx:  nil,
			want: "",
		},
		{
			name: "context without request ID",
			ctx:  context.Background(),
			want: "",
		},
		{
			name: "context with wrong type",
			ctx:  context.WithValue(context.Background(), requestIDKey, 123),
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RequestIDFromContext(tt.ctx)
			if got != tt.want {
				t.Errorf("RequestIDFromContext() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWithContextEnrichment(t *testing.T) {
	testBuf.Reset()

	ctx := ContextWithRequestID(context.Background(), "req-123")
	ctx = ContextWithRoom(ctx, "movie-night")
	ctx = ContextWithClientID(ctx, "client-9")

	enriched := WithContext(ctx, Base())
	enriched.Info().Msg("enriched")
	fields := lastLogLine(t)
	if fields["request_id"] != "req-123" {
		t.Errorf("expected request_id req-123, got %v", fields["request_id"])
	}
	if fields["room"] != "movie-night" {
		t.Errorf("expected room movie-night, got %v", fields["room"])
	}
	if fields["client_id"] != "client-9" {
		t.Errorf("expected client_id client-9, got %v", fields["client_id"])
	}
}

func TestWithContextEmpty(t *testing.T) {
	base := WithComponent("test")
	enriched := WithContext(context.Background(), base)
	if enriched.GetLevel() != base.GetLevel() {
		t.Error("logger level should be preserved")
	}
}

func TestWithComponentFromContext(t *testing.T) {
	testBuf.Reset()

	ctx := ContextWithRequestID(context.Background(), "req-789")
	combo := WithComponentFromContext(ctx, "session")
	combo.Info().Msg("combo")
	fields := lastLogLine(t)
	if fields["component"] != "session" {
		t.Errorf("expected component session, got %v", fields["component"])
	}
	if fields["request_id"] != "req-789" {
		t.Errorf("expected request_id req-789, got %v", fields["request_id"])
	}
}

func TestWithTraceContext(t *testing.T) {
	// Without a span the base logger comes back untouched.
	logger := WithTraceContext(context.Background())
	if logger.GetLevel() > zerolog.PanicLevel {
		t.Error("expected valid logger without trace")
	}

	t.Run("WithValidSpan", func(t *testing.T) {
		testBuf.Reset()

		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		spanCtx := trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     spanID,
			TraceFlags: trace.FlagsSampled,
		})
		ctx := trace.ContextWithSpanContext(context.Background(), spanCtx)

		traceLogger := WithTraceContext(ctx)
		traceLogger.Info().Msg("test with trace")
		fields := lastLogLine(t)
		if fields["trace_id"] != traceID.String() {
			t.Errorf("expected trace_id %s, got %v", traceID, fields["trace_id"])
		}
		if fields["span_id"] != spanID.String() {
			t.Errorf("expected span_id %s, got %v", spanID, fields["span_id"])
		}
	})
}
