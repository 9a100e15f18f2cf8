package mcptools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"gitagent/cli/internal/agentloop"
)

const protocolVersion = "2025-06-18"

// ServerConfig describes a stdio MCP server to spawn.
type ServerConfig struct {
	Name    string
	Command string
	Args    []string
	Env     map[string]string
}

// Caller is the subset of the MCP client used after initialization.
type Caller interface {
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

type Server struct {
	name   string
	caller Caller
	tools  []string
}

func (s *Server) Name() string { return s.name }

// ToolNames returns the registry names of the tools this server exposed.
func (s *Server) ToolNames() []string { return append([]string(nil), s.tools...) }

func (s *Server) Close() error {
	if s == nil || s.caller == nil {
		return nil
	}
	return s.caller.Close()
}

// Attach spawns the server, performs the initialize handshake and registers
// every tool it lists as <server>_<tool>.
func Attach(ctx context.Context, reg *agentloop.ToolRegistry, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return nil, errors.New("mcp server name is required")
	}
	if strings.TrimSpace(cfg.Command) == "" {
		return nil, fmt.Errorf("mcp server %s: command is required", name)
	}
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
	if err != nil {
		return nil, fmt.Errorf("start mcp server %s: %w", name, err)
	}
	_, err = c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: protocolVersion,
			Capabilities:    mcp.ClientCapabilities{},
			ClientInfo: mcp.Implementation{
				Name:    "gitagent",
				Version: "1.0.0",
			},
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("initialize mcp server %s: %w", name, err)
	}
	srv, err := AttachClient(ctx, reg, name, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if logger != nil {
		logger.Info("mcp server attached", "server", name, "tools", srv.tools)
	}
	return srv, nil
}

// AttachClient registers the tools of an already initialized client.
func AttachClient(ctx context.Context, reg *agentloop.ToolRegistry, name string, caller Caller) (*Server, error) {
	listed, err := caller.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools of mcp server %s: %w", name, err)
	}
	srv := &Server{name: name, caller: caller}
	for _, tool := range listed.Tools {
		regName := ToolName(name, tool.Name)
		err := reg.Register(agentloop.Tool{
			Name:        regName,
			Description: tool.Description,
			Schema:      convertInputSchema(tool.InputSchema),
			Handler:     callHandler(caller, tool.Name),
		})
		if err != nil {
			return nil, fmt.Errorf("register mcp tool %s: %w", regName, err)
		}
		srv.tools = append(srv.tools, regName)
	}
	return srv, nil
}

// ToolName namespaces an MCP tool under its server and maps characters the
// completion services reject to underscores.
func ToolName(server, tool string) string {
	raw := strings.TrimSpace(server) + "_" + strings.TrimSpace(tool)
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 64 {
		out = out[:64]
	}
	return out
}

func convertInputSchema(in mcp.ToolInputSchema) agentloop.Schema {
	out := agentloop.Schema{Properties: map[string]agentloop.Property{}}
	for name, raw := range in.Properties {
		prop := agentloop.Property{}
		if fields, ok := raw.(map[string]any); ok {
			if kind, ok := fields["type"].(string); ok {
				prop.Type = agentloop.Kind(kind)
			}
			if desc, ok := fields["description"].(string); ok {
				prop.Description = desc
			}
			if enum, ok := fields["enum"].([]any); ok {
				for _, item := range enum {
					prop.Enum = append(prop.Enum, fmt.Sprint(item))
				}
			}
		}
		out.Properties[name] = prop
	}
	for _, name := range in.Required {
		if _, ok := out.Properties[name]; !ok {
			out.Properties[name] = agentloop.Property{}
		}
		out.Required = append(out.Required, name)
	}
	return out
}

func callHandler(caller Caller, toolName string) agentloop.HandlerFunc {
	return func(ctx context.Context, args agentloop.Arguments) (string, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return "", err
		}
		var params map[string]any
		if err := json.Unmarshal(raw, &params); err != nil {
			return "", err
		}
		res, err := caller.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{
				Name:      toolName,
				Arguments: params,
			},
		})
		if err != nil {
			return "", fmt.Errorf("mcp call %s: %w", toolName, err)
		}
		if res == nil {
			return "", fmt.Errorf("mcp call %s: empty result", toolName)
		}
		text := joinText(res.Content)
		if res.IsError {
			if text == "" {
				text = "tool reported an error"
			}
			return "", errors.New(text)
		}
		return text, nil
	}
}

func joinText(contents []mcp.Content) string {
	parts := make([]string, 0, len(contents))
	for _, content := range contents {
		switch c := content.(type) {
		case mcp.TextContent:
			parts = append(parts, c.Text)
		case *mcp.TextContent:
			parts = append(parts, c.Text)
		default:
			raw, err := json.Marshal(content)
			if err == nil {
				parts = append(parts, string(raw))
			}
		}
	}
	return strings.Join(parts, "\n")
}
