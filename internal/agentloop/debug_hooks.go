package agentloop

import "context"

// CompletionDebugHooks receive the raw provider payloads of one completion
// request. Clients call them when present in the request context.
type CompletionDebugHooks struct {
	OnRequestRaw  func(raw string)
	OnResponseRaw func(raw string)
}

type completionDebugHooksContextKey struct{}

func WithCompletionDebugHooks(ctx context.Context, hooks CompletionDebugHooks) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, completionDebugHooksContextKey{}, hooks)
}

func completionDebugHooksFromContext(ctx context.Context) (CompletionDebugHooks, bool) {
	if ctx == nil {
		return CompletionDebugHooks{}, false
	}
	hooks, ok := ctx.Value(completionDebugHooksContextKey{}).(CompletionDebugHooks)
	if !ok {
		return CompletionDebugHooks{}, false
	}
	return hooks, true
}

func emitCompletionRequestRaw(ctx context.Context, raw string) {
	hooks, ok := completionDebugHooksFromContext(ctx)
	if !ok || hooks.OnRequestRaw == nil {
		return
	}
	hooks.OnRequestRaw(raw)
}

func emitCompletionResponseRaw(ctx context.Context, raw string) {
	hooks, ok := completionDebugHooksFromContext(ctx)
	if !ok || hooks.OnResponseRaw == nil {
		return
	}
	hooks.OnResponseRaw(raw)
}
