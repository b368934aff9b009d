package trace

import (
	"context"
	"testing"
)

func TestEnsureKeepsExistingID(t *testing.T) {
	ctx := WithContext(context.Background(), "abc")
	ctx, id := Ensure(ctx)
	if id != "abc" || FromContext(ctx) != "abc" {
		t.Errorf("Ensure replaced existing id, got %q", id)
	}
}

func TestEnsureGeneratesID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if id == "" {
		t.Fatal("expected generated id")
	}
	if FromContext(ctx) != id {
		t.Errorf("context id = %q, want %q", FromContext(ctx), id)
	}
}
