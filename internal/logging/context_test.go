package logging

import (
	"context"
	"testing"
)

func TestCorrelationIDHelpers(t *testing.T) {
	ctx := context.Background()
	if GetCorrelationID(ctx) != "" {
		t.Fatalf("expected empty correlation id")
	}

	ctx = WithCorrelationID(ctx, "cid")
	if GetCorrelationID(ctx) != "cid" {
		t.Fatalf("expected correlation id to be set")
	}

	same, id := EnsureCorrelationID(ctx)
	if id != "cid" || GetCorrelationID(same) != "cid" {
		t.Fatalf("expected existing correlation id to be kept")
	}

	fresh, newID := EnsureCorrelationID(context.Background())
	if newID == "" {
		t.Fatalf("expected generated correlation id")
	}
	if GetCorrelationID(fresh) != newID {
		t.Fatalf("expected generated id to be stored in context")
	}
}

func TestGenerateCorrelationID(t *testing.T) {
	a := GenerateCorrelationID()
	b := GenerateCorrelationID()
	if a == "" || a == b {
		t.Fatalf("expected unique non-empty ids, got %q and %q", a, b)
	}
}
