package mcp

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/genai"
)

// ErrUnknownTool is returned by Execute for a name no connected server offers
var ErrUnknownTool = goerr.New("unknown mcp tool")

// Remote connects to external MCP servers and offers their tools to the chat
// model. It implements tool.Tool.
type Remote struct {
	client   *mcp.Client
	sessions map[string]*mcp.ClientSession
	tools    []*remoteTool
	byName   map[string]*remoteTool
}

type remoteTool struct {
	server string
	decl   *genai.FunctionDeclaration
}

func NewRemote() *Remote {
	return &Remote{
		client: mcp.NewClient(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
		sessions: make(map[string]*mcp.ClientSession),
		byName:   make(map[string]*remoteTool),
	}
}

// ConnectAll connects every configured server. A server that fails is logged
// and skipped so one broken entry does not take chat down.
func ConnectAll(ctx context.Context, servers []config.MCPServer) *Remote {
	logger := logging.From(ctx)
	x := NewRemote()

	for _, srv := range servers {
		if err := x.Connect(ctx, srv); err != nil {
			logger.Warn("failed to connect mcp server", "name", srv.Name, "error", err)
			continue
		}
		logger.Info("connected mcp server", "name", srv.Name)
	}
	return x
}

// Connect opens a session to one server and registers its tools
func (x *Remote) Connect(ctx context.Context, cfg config.MCPServer) error {
	if _, ok := x.sessions[cfg.Name]; ok {
		return goerr.New("server already connected", goerr.V("name", cfg.Name))
	}

	var transport mcp.Transport
	switch cfg.Transport {
	case "stdio":
		if len(cfg.Command) == 0 {
			return goerr.New("command is required for stdio transport", goerr.V("name", cfg.Name))
		}
		cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
		if len(cfg.Env) > 0 {
			cmd.Env = os.Environ()
			for k, v := range cfg.Env {
				cmd.Env = append(cmd.Env, k+"="+v)
			}
		}
		transport = &mcp.CommandTransport{Command: cmd}

	case "http":
		if cfg.URL == "" {
			return goerr.New("url is required for http transport", goerr.V("name", cfg.Name))
		}
		transport = &mcp.StreamableClientTransport{Endpoint: cfg.URL}

	default:
		return goerr.New("unsupported transport",
			goerr.V("transport", cfg.Transport),
			goerr.V("supported", []string{"stdio", "http"}))
	}

	session, err := x.client.Connect(ctx, transport, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to connect to mcp server", goerr.V("name", cfg.Name))
	}

	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		_ = session.Close()
		return goerr.Wrap(err, "failed to list tools", goerr.V("name", cfg.Name))
	}

	x.sessions[cfg.Name] = session
	for _, t := range listed.Tools {
		if _, dup := x.byName[t.Name]; dup {
			logging.From(ctx).Warn("duplicated mcp tool name, skipped", "server", cfg.Name, "tool", t.Name)
			continue
		}

		decl, err := declaration(t)
		if err != nil {
			logging.From(ctx).Warn("unusable mcp tool schema, skipped", "server", cfg.Name, "tool", t.Name, "error", err)
			continue
		}

		rt := &remoteTool{server: cfg.Name, decl: decl}
		x.tools = append(x.tools, rt)
		x.byName[t.Name] = rt
	}

	return nil
}

func declaration(t *mcp.Tool) (*genai.FunctionDeclaration, error) {
	decl := &genai.FunctionDeclaration{
		Name:        t.Name,
		Description: t.Description,
	}
	if t.InputSchema == nil {
		return decl, nil
	}

	// InputSchema arrives as decoded JSON, round trip it into a typed schema
	raw, err := json.Marshal(t.InputSchema)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal input schema")
	}
	var js jsonschema.Schema
	if err := json.Unmarshal(raw, &js); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal input schema")
	}

	params, err := toGenaiSchema(&js)
	if err != nil {
		return nil, err
	}
	// Gemini rejects an object schema without properties
	if params != nil && !(params.Type == genai.TypeObject && len(params.Properties) == 0) {
		decl.Parameters = params
	}
	return decl, nil
}

func (x *Remote) Spec() *genai.Tool {
	if len(x.tools) == 0 {
		return nil
	}

	decls := make([]*genai.FunctionDeclaration, len(x.tools))
	for i, t := range x.tools {
		decls[i] = t.decl
	}
	return &genai.Tool{FunctionDeclarations: decls}
}

func (x *Remote) Prompt(ctx context.Context) string {
	if len(x.tools) == 0 {
		return ""
	}
	return "Some tools come from external MCP servers. Use them when the user asks for something they provide."
}

// Execute calls the tool on the server that offered it. A result flagged as
// an error by the server is returned as an error.
func (x *Remote) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	rt, ok := x.byName[fc.Name]
	if !ok {
		return nil, goerr.Wrap(ErrUnknownTool, "no server offers the tool", goerr.V("name", fc.Name))
	}

	result, err := x.sessions[rt.server].CallTool(ctx, &mcp.CallToolParams{
		Name:      fc.Name,
		Arguments: fc.Args,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call mcp tool", goerr.V("server", rt.server), goerr.V("tool", fc.Name))
	}

	text := contentText(result.Content)
	if result.IsError {
		return nil, goerr.New("mcp tool reported an error",
			goerr.V("server", rt.server),
			goerr.V("tool", fc.Name),
			goerr.V("message", text))
	}

	response := map[string]any{"content": text}
	if result.StructuredContent != nil {
		response["structured"] = result.StructuredContent
	}

	return &genai.FunctionResponse{
		ID:       fc.ID,
		Name:     fc.Name,
		Response: response,
	}, nil
}

func contentText(content []mcp.Content) string {
	var texts []string
	for _, c := range content {
		if tc, ok := c.(*mcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// Servers returns names of connected servers
func (x *Remote) Servers() []string {
	names := make([]string, 0, len(x.sessions))
	for name := range x.sessions {
		names = append(names, name)
	}
	return names
}

func (x *Remote) Close() error {
	var errs []error
	for name, s := range x.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, goerr.Wrap(err, "failed to close session", goerr.V("name", name)))
		}
	}
	x.sessions = make(map[string]*mcp.ClientSession)
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}
