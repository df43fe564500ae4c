package logging

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRejectsUnknownEnvironment(t *testing.T) {
	if _, err := New("api", "staging-eu", "info"); err == nil {
		t.Fatalf("expected error for unknown environment")
	}
	if _, err := New("api", "prod", "loud"); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestFromContextFallsBackToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatalf("expected non-nil logger")
	}
}

func TestFromContextReturnsStoredLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))

	FromContext(ctx).Info("audit_started", zap.String("query_id", "q-1"))

	entries := logs.FilterMessage("audit_started").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["query_id"] != "q-1" {
		t.Fatalf("unexpected fields: %v", entries[0].ContextMap())
	}
}
