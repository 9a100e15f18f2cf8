package agentloop

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestWithAllowedToolNames(t *testing.T) {
	ctx := WithAllowedToolNames(context.Background(), []string{" read_file ", "", "read_file", "git_clone"})
	got, ok := AllowedToolNamesFromContext(ctx)
	if !ok {
		t.Fatal("expected allowlist in context")
	}
	if diff := cmp.Diff([]string{"read_file", "git_clone"}, got); diff != "" {
		t.Fatalf("unexpected allowlist (-want +got):\n%s", diff)
	}
}

func TestAllowedToolNamesFromContext_UsesResolver(t *testing.T) {
	calls := 0
	ctx := WithAllowedToolNames(context.Background(), []string{"read_file"})
	ctx = WithAllowedToolNamesResolver(ctx, func() []string {
		calls++
		return []string{" calculator ", "calculator", "", "read_file"}
	})
	got, ok := AllowedToolNamesFromContext(ctx)
	if !ok {
		t.Fatal("expected allowlist from resolver")
	}
	if diff := cmp.Diff([]string{"calculator", "read_file"}, got); diff != "" {
		t.Fatalf("unexpected allowlist from resolver (-want +got):\n%s", diff)
	}
	if calls != 1 {
		t.Fatalf("resolver should be called once, got %d", calls)
	}
}

func TestAllowedToolNamesFromContext_Missing(t *testing.T) {
	if _, ok := AllowedToolNamesFromContext(context.Background()); ok {
		t.Fatal("expected no allowlist on a bare context")
	}
}
