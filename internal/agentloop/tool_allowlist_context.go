package agentloop

import (
	"context"
	"strings"
)

type allowedToolNamesContextKey struct{}
type allowedToolNamesResolverContextKey struct{}

// AllowedToolNamesResolver is consulted on every iteration, so the set of
// enabled tools may change while a run is in progress.
type AllowedToolNamesResolver func() []string

// WithAllowedToolNames limits the tools offered to the model and accepted
// from it. A configured but empty list disables every tool.
func WithAllowedToolNames(ctx context.Context, toolNames []string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, allowedToolNamesContextKey{}, cleanToolNames(toolNames))
}

func WithAllowedToolNamesResolver(ctx context.Context, resolver AllowedToolNamesResolver) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if resolver == nil {
		return ctx
	}
	return context.WithValue(ctx, allowedToolNamesResolverContextKey{}, resolver)
}

func AllowedToolNamesFromContext(ctx context.Context) ([]string, bool) {
	if ctx == nil {
		return nil, false
	}
	if resolver, ok := ctx.Value(allowedToolNamesResolverContextKey{}).(AllowedToolNamesResolver); ok && resolver != nil {
		return cleanToolNames(resolver()), true
	}
	names, ok := ctx.Value(allowedToolNamesContextKey{}).([]string)
	if !ok {
		return nil, false
	}
	return cleanToolNames(names), true
}

func allowedToolNameSetFromContext(ctx context.Context) (map[string]struct{}, bool) {
	names, ok := AllowedToolNamesFromContext(ctx)
	if !ok {
		return nil, false
	}
	out := make(map[string]struct{}, len(names))
	for _, name := range names {
		out[name] = struct{}{}
	}
	return out, true
}

func cleanToolNames(names []string) []string {
	clean := make([]string, 0, len(names))
	seen := map[string]struct{}{}
	for _, item := range names {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		if _, exists := seen[name]; exists {
			continue
		}
		seen[name] = struct{}{}
		clean = append(clean, name)
	}
	return clean
}
