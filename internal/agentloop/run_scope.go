package agentloop

import (
	"context"
	"strings"
)

// RunScope labels a run for events, logs and the OpenAI store flag.
type RunScope struct {
	RunID          string
	Source         string
	ResponsesStore bool
}

type runScopeContextKey struct{}

func WithRunScope(ctx context.Context, scope RunScope) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	scope.RunID = strings.TrimSpace(scope.RunID)
	scope.Source = strings.TrimSpace(scope.Source)
	return context.WithValue(ctx, runScopeContextKey{}, scope)
}

func RunScopeFromContext(ctx context.Context) (RunScope, bool) {
	if ctx == nil {
		return RunScope{}, false
	}
	scope, ok := ctx.Value(runScopeContextKey{}).(RunScope)
	if !ok {
		return RunScope{}, false
	}
	return scope, true
}
