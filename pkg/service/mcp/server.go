package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/m-mizutani/ghost/pkg/model"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "ghost"
	serverVersion = "0.1.0"
)

// Memory is the part of the memory use case exposed to other agents
type Memory interface {
	Ingest(ctx context.Context, candidate string) (model.Outcome, error)
	Retrieve(ctx context.Context, query string, opts memoryuc.RetrieveOptions) []string
	ListAll(ctx context.Context) ([]string, error)
}

type RememberInput struct {
	Text string `json:"text" jsonschema:"A short self-contained fact about the user, e.g. 'The user's name is Dana'"`
}

type RememberOutput struct {
	Outcome string `json:"outcome"`
}

type RecallInput struct {
	Query     string  `json:"query" jsonschema:"What to look for in long-term memory"`
	Limit     *int    `json:"limit,omitempty" jsonschema:"Max facts to return. Omit to use the configured limit"`
	Threshold float64 `json:"threshold,omitempty" jsonschema:"Minimum cosine similarity. Zero uses the configured threshold"`
}

type ListInput struct{}

type FactsOutput struct {
	Facts []string `json:"facts"`
}

// Server exposes long-term memory as MCP tools
type Server struct {
	memory  Memory
	server  *mcp.Server
	handler *mcp.StreamableHTTPHandler
}

func NewServer(memory Memory) *Server {
	x := &Server{memory: memory}

	x.server = mcp.NewServer(&mcp.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	mcp.AddTool(x.server, &mcp.Tool{
		Name:        "memory_remember",
		Description: "Store a fact about the user in long-term memory. Duplicates and near duplicates are merged.",
	}, x.handleRemember)
	mcp.AddTool(x.server, &mcp.Tool{
		Name:        "memory_recall",
		Description: "Find facts about the user that are relevant to a query, best match first",
	}, x.handleRecall)
	mcp.AddTool(x.server, &mcp.Tool{
		Name:        "memory_list",
		Description: "List every fact in long-term memory in insertion order",
	}, x.handleList)

	x.handler = mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return x.server
	}, &mcp.StreamableHTTPOptions{Stateless: true})

	return x
}

// RunStdio serves a single client over stdin/stdout until ctx is done or the
// client disconnects
func (x *Server) RunStdio(ctx context.Context) error {
	if err := x.server.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return goerr.Wrap(err, "mcp stdio server stopped")
	}
	return nil
}

// Handler returns the streamable HTTP handler
func (x *Server) Handler() http.Handler {
	return x.handler
}

// MCP returns the underlying server, for in-process transports
func (x *Server) MCP() *mcp.Server {
	return x.server
}

func (x *Server) handleRemember(ctx context.Context, _ *mcp.CallToolRequest, input RememberInput) (*mcp.CallToolResult, RememberOutput, error) {
	outcome, err := x.memory.Ingest(ctx, input.Text)
	switch {
	case errors.Is(err, model.ErrEmptyFact):
		return toolError("text is required"), RememberOutput{}, nil
	case errors.Is(err, model.ErrFactRejected):
		return toolError("fact rejected by policy: %v", err), RememberOutput{}, nil
	case err != nil:
		logging.From(ctx).Warn("remember failed", "error", err)
		return toolError("remember failed: %v", err), RememberOutput{}, nil
	}

	return jsonResult(RememberOutput{Outcome: outcome.String()})
}

func (x *Server) handleRecall(ctx context.Context, _ *mcp.CallToolRequest, input RecallInput) (*mcp.CallToolResult, FactsOutput, error) {
	if input.Query == "" {
		return toolError("query is required"), FactsOutput{Facts: []string{}}, nil
	}
	if input.Limit != nil && *input.Limit < 0 {
		return toolError("limit must not be negative"), FactsOutput{Facts: []string{}}, nil
	}

	facts := x.memory.Retrieve(ctx, input.Query, memoryuc.RetrieveOptions{
		Limit:     input.Limit,
		Threshold: input.Threshold,
	})
	return jsonResult(factsOutput(facts))
}

func (x *Server) handleList(ctx context.Context, _ *mcp.CallToolRequest, _ ListInput) (*mcp.CallToolResult, FactsOutput, error) {
	facts, err := x.memory.ListAll(ctx)
	if err != nil {
		logging.From(ctx).Warn("list failed", "error", err)
		return toolError("list failed: %v", err), FactsOutput{Facts: []string{}}, nil
	}
	return jsonResult(factsOutput(facts))
}

func factsOutput(facts []string) FactsOutput {
	if facts == nil {
		facts = []string{}
	}
	return FactsOutput{Facts: facts}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf(format, args...)},
		},
	}
}

// jsonResult puts out into the text content as well, for clients that ignore
// structured content
func jsonResult[T any](out T) (*mcp.CallToolResult, T, error) {
	raw, err := json.Marshal(out)
	if err != nil {
		var zero T
		return toolError("failed to serialize result: %v", err), zero, nil
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(raw)},
		},
	}, out, nil
}
