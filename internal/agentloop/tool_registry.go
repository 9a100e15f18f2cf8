package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"sync"
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ToolRegistry maps tool names to handlers. Registration is expected to
// finish before the first Invoke; after that it is safe to share read-only
// between agents.
type ToolRegistry struct {
	mu     sync.RWMutex
	byName map[string]Tool
}

func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{byName: map[string]Tool{}}
}

// Register adds a tool. A name that is already taken is rejected with
// ErrDuplicateTool; existing tools are never overwritten.
func (r *ToolRegistry) Register(tool Tool) error {
	if r == nil {
		return errors.New("registry is nil")
	}
	name := strings.TrimSpace(tool.Name)
	if name == "" {
		return errors.New("tool name is required")
	}
	if !toolNamePattern.MatchString(name) {
		return fmt.Errorf("tool name %q must match %s", name, toolNamePattern.String())
	}
	if tool.Handler == nil {
		return fmt.Errorf("tool %q has no handler", name)
	}
	for _, required := range tool.Schema.Required {
		if _, ok := tool.Schema.Properties[required]; !ok {
			return fmt.Errorf("tool %q requires undeclared parameter %q", name, required)
		}
	}
	tool.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("tool %q already registered: %w", name, ErrDuplicateTool)
	}
	r.byName[name] = tool
	return nil
}

func (r *ToolRegistry) Get(name string) (Tool, bool) {
	if r == nil {
		return Tool{}, false
	}
	name = strings.TrimSpace(name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.byName[name]
	return tool, ok
}

func (r *ToolRegistry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// Describe returns the metadata of every tool sorted by name.
func (r *ToolRegistry) Describe() []ToolSpec {
	if r == nil {
		return []ToolSpec{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]ToolSpec, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].Spec())
	}
	return out
}

// DescribeNames is Describe restricted to the given names; unknown names are
// skipped.
func (r *ToolRegistry) DescribeNames(names []string) []ToolSpec {
	if r == nil {
		return []ToolSpec{}
	}
	allow := map[string]struct{}{}
	for _, item := range names {
		name := strings.TrimSpace(item)
		if name == "" {
			continue
		}
		allow[name] = struct{}{}
	}
	if len(allow) == 0 {
		return []ToolSpec{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(allow))
	for name := range allow {
		if _, ok := r.byName[name]; ok {
			keys = append(keys, name)
		}
	}
	slices.Sort(keys)
	out := make([]ToolSpec, 0, len(keys))
	for _, name := range keys {
		out = append(out, r.byName[name].Spec())
	}
	return out
}

// Invoke runs the named tool with already decoded arguments. Every failure is
// a *ToolError whose kind is ErrUnknownTool, ErrInvalidArguments or
// ErrToolExecution.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args Arguments) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", unknownToolError(strings.TrimSpace(name))
	}
	return invokeTool(ctx, tool, args)
}

// InvokeRaw decodes the JSON arguments a model supplied and invokes the tool.
func (r *ToolRegistry) InvokeRaw(ctx context.Context, name string, raw json.RawMessage) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", unknownToolError(strings.TrimSpace(name))
	}
	args, err := ParseArguments(raw)
	if err != nil {
		return "", invalidArgumentsError(tool.Name, err)
	}
	return invokeTool(ctx, tool, args)
}

func invokeTool(ctx context.Context, tool Tool, args Arguments) (out string, err error) {
	if args == nil {
		args = Arguments{}
	}
	if verr := tool.Schema.Validate(args); verr != nil {
		return "", invalidArgumentsError(tool.Name, verr)
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = ""
			err = toolExecutionError(tool.Name, fmt.Errorf("panic: %v", rec))
		}
	}()
	out, err = tool.Handler.Invoke(ctx, args)
	if err != nil {
		return "", toolExecutionError(tool.Name, err)
	}
	return out, nil
}
