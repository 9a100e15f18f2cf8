package agentloop

import (
	"context"
	"testing"
)

func TestWithRunScopeAndFromContext(t *testing.T) {
	scoped := WithRunScope(context.Background(), RunScope{
		RunID:          " run_1 ",
		Source:         "ws",
		ResponsesStore: true,
	})
	got, ok := RunScopeFromContext(scoped)
	if !ok {
		t.Fatal("expected run scope exists in context")
	}
	if got.RunID != "run_1" {
		t.Fatalf("expected run_id=run_1, got %q", got.RunID)
	}
	if got.Source != "ws" {
		t.Fatalf("expected source=ws, got %q", got.Source)
	}
	if !got.ResponsesStore {
		t.Fatal("expected responses_store=true, got false")
	}
}

func TestRunScopeFromContext_Missing(t *testing.T) {
	if _, ok := RunScopeFromContext(context.Background()); ok {
		t.Fatal("expected missing run scope")
	}
}
