// Package mcpserver publishes a harness as a Model Context Protocol server.
//
// Every published descriptor becomes an MCP tool in registration order. The
// argument schema is rendered as a JSON Schema object and the icon reference
// travels in the tool's _meta under "iconRef". Calls are routed through the
// harness, so validation, timeouts and error classification are identical
// to the HTTP boundary. Failed calls answer with IsError set and the JSON
// error envelope as text.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/toolharness/pkg/harness"
	"github.com/MrWong99/toolharness/pkg/tool"
)

// Path is where the streamable HTTP handler is mounted.
const Path = "/mcp"

// Harness is the part of [harness.Harness] the MCP boundary needs.
type Harness interface {
	Describe() harness.Description
	Call(ctx context.Context, req tool.Request) tool.Result
}

// Server adapts a harness to the MCP server SDK.
type Server struct {
	h   Harness
	srv *mcpsdk.Server
	log *slog.Logger
}

// New builds an MCP server announcing the harness application as
// name/version and registers every published tool. A nil logger means
// [slog.Default].
func New(h Harness, version string, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	desc := h.Describe()
	s := &Server{
		h:   h,
		log: log,
		srv: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: desc.App.Name, Version: version},
			&mcpsdk.ServerOptions{Instructions: desc.App.Description},
		),
	}
	for _, p := range desc.Tools {
		t, err := toolFor(p)
		if err != nil {
			return nil, fmt.Errorf("mcpserver: tool %q: %w", p.Name, err)
		}
		s.srv.AddTool(t, s.handlerFor(p.Name))
	}
	log.Debug("mcpserver: tools published", "count", len(desc.Tools))
	return s, nil
}

// MCP returns the underlying SDK server.
func (s *Server) MCP() *mcpsdk.Server {
	return s.srv
}

// ServeStdio serves one session over the process's stdin and stdout until
// ctx is done or the client disconnects.
func (s *Server) ServeStdio(ctx context.Context) error {
	s.log.Info("mcpserver: serving over stdio")
	if err := s.srv.Run(ctx, &mcpsdk.StdioTransport{}); err != nil && ctx.Err() == nil {
		return fmt.Errorf("mcpserver: stdio: %w", err)
	}
	return nil
}

// Handler returns the streamable HTTP handler.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.srv
	}, nil)
}

// Register mounts [Server.Handler] at [Path].
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle(Path, s.Handler())
}

func (s *Server) handlerFor(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args map[string]any
		if raw := req.Params.Arguments; len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return failure(tool.Failure(tool.ErrInvalidArguments,
					fmt.Sprintf("invalid arguments for tool %q", name),
					"arguments must be a JSON object: "+err.Error())), nil
			}
		}

		res := s.h.Call(ctx, tool.Request{ToolName: name, Arguments: args})
		if !res.OK {
			return failure(res), nil
		}
		text, err := valueText(res.Value)
		if err != nil {
			return failure(tool.Failure(tool.ErrHandlerFailure,
				fmt.Sprintf("tool %q returned a value that cannot be encoded: %v", name, err))), nil
		}
		return &mcpsdk.CallToolResult{
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, nil
	}
}

// failure renders a failed result as an MCP tool error.
func failure(res tool.Result) *mcpsdk.CallToolResult {
	b, err := json.Marshal(res)
	if err != nil {
		b = []byte(`{"ok":false,"errorKind":"HandlerFailure","message":"unencodable error"}`)
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(b)}},
	}
}

// valueText renders strings verbatim and everything else as JSON.
func valueText(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// toolFor converts a published descriptor into an MCP tool.
func toolFor(p tool.Public) (*mcpsdk.Tool, error) {
	schema, err := InputSchema(p.ArgumentSchema)
	if err != nil {
		return nil, err
	}
	return &mcpsdk.Tool{
		Name:        p.Name,
		Description: p.Description,
		InputSchema: schema,
		Meta:        mcpsdk.Meta{"iconRef": p.IconRef},
	}, nil
}

// InputSchema renders an argument schema as a closed JSON Schema object.
// Properties keep their descriptions and kinds; untyped arguments accept
// any JSON value.
func InputSchema(args []tool.ArgumentDescriptor) (*jsonschema.Schema, error) {
	s := &jsonschema.Schema{
		Type:                 "object",
		Properties:           make(map[string]*jsonschema.Schema, len(args)),
		AdditionalProperties: &jsonschema.Schema{Not: &jsonschema.Schema{}},
	}
	for _, a := range args {
		prop := &jsonschema.Schema{
			Type:        string(a.Kind),
			Description: a.Description,
		}
		if a.Default != nil {
			b, err := json.Marshal(a.Default)
			if err != nil {
				return nil, fmt.Errorf("default of %q: %w", a.Name, err)
			}
			prop.Default = b
		}
		s.Properties[a.Name] = prop
		if a.Required {
			s.Required = append(s.Required, a.Name)
		}
	}
	return s, nil
}
