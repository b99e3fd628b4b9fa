package audit

import (
	"context"
	"testing"
)

func TestLogEventRequiresName(t *testing.T) {
	if err := LogEvent(context.Background(), "  ", nil); err == nil {
		t.Fatalf("expected error for empty event name")
	}
	if err := LogEvent(context.Background(), "module.install", map[string]any{"client_id": "c1"}); err != nil {
		t.Fatalf("LogEvent: %v", err)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("unexpected request id: %s", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %s", got)
	}
}
