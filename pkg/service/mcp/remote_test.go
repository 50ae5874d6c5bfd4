package mcp_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/service/mcp"
	"github.com/m-mizutani/ghost/pkg/tool"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

func TestRemoteOverHTTP(t *testing.T) {
	ctx := logging.With(context.Background(), logging.Discard())

	mem := &fakeMemory{facts: []string{"The user likes jazz"}}
	ts := httptest.NewServer(mcp.NewServer(mem).Handler())
	defer ts.Close()

	remote := mcp.NewRemote()
	gt.NoError(t, remote.Connect(ctx, config.MCPServer{Name: "ghost", Transport: "http", URL: ts.URL}))
	defer remote.Close()
	gt.Equal(t, remote.Servers(), []string{"ghost"})

	// same name twice
	gt.Error(t, remote.Connect(ctx, config.MCPServer{Name: "ghost", Transport: "http", URL: ts.URL}))

	spec := remote.Spec()
	gt.V(t, spec).NotNil()
	gt.A(t, spec.FunctionDeclarations).Length(3)

	decls := map[string]*genai.FunctionDeclaration{}
	for _, d := range spec.FunctionDeclarations {
		decls[d.Name] = d
	}
	recall := decls["memory_recall"]
	gt.V(t, recall).NotNil()
	gt.Equal(t, recall.Parameters.Type, genai.TypeObject)
	gt.Equal(t, recall.Parameters.Properties["query"].Type, genai.TypeString)
	gt.Equal(t, recall.Parameters.Properties["limit"].Type, genai.TypeInteger)
	gt.Equal(t, recall.Parameters.Properties["threshold"].Type, genai.TypeNumber)
	gt.V(t, decls["memory_list"].Parameters).Nil()

	// through the chat registry
	registry := tool.New(remote)
	resp, err := registry.Execute(ctx, genai.FunctionCall{
		ID:   "call-1",
		Name: "memory_remember",
		Args: map[string]any{"text": "The user lives in Haifa"},
	})
	gt.NoError(t, err)
	gt.Equal(t, resp.ID, "call-1")
	gt.S(t, resp.Response["content"].(string)).Contains("inserted")
	gt.A(t, mem.facts).Length(2)

	resp, err = registry.Execute(ctx, genai.FunctionCall{Name: "memory_list", Args: map[string]any{}})
	gt.NoError(t, err)
	gt.S(t, resp.Response["content"].(string)).Contains("The user lives in Haifa")

	_, err = registry.Execute(ctx, genai.FunctionCall{Name: "memory_recall", Args: map[string]any{"query": ""}})
	gt.Error(t, err)

	_, err = remote.Execute(ctx, genai.FunctionCall{Name: "nope"})
	gt.True(t, errors.Is(err, mcp.ErrUnknownTool))
}

func TestRemoteConnectErrors(t *testing.T) {
	ctx := logging.With(context.Background(), logging.Discard())
	remote := mcp.NewRemote()

	gt.Error(t, remote.Connect(ctx, config.MCPServer{Name: "a", Transport: "stdio"}))
	gt.Error(t, remote.Connect(ctx, config.MCPServer{Name: "b", Transport: "http"}))
	gt.Error(t, remote.Connect(ctx, config.MCPServer{Name: "c", Transport: "grpc"}))
	gt.V(t, remote.Spec()).Nil()
	gt.Equal(t, remote.Prompt(ctx), "")
}

func TestConnectAllSkipsBroken(t *testing.T) {
	ctx := logging.With(context.Background(), logging.Discard())

	ts := httptest.NewServer(mcp.NewServer(&fakeMemory{}).Handler())
	defer ts.Close()

	remote := mcp.ConnectAll(ctx, []config.MCPServer{
		{Name: "broken", Transport: "http"},
		{Name: "ghost", Transport: "http", URL: ts.URL},
	})
	defer remote.Close()

	gt.Equal(t, remote.Servers(), []string{"ghost"})
	gt.A(t, remote.Spec().FunctionDeclarations).Length(3)
}

func TestToGenaiSchema(t *testing.T) {
	schema := &jsonschema.Schema{
		Type:     "object",
		Required: []string{"severity"},
		Properties: map[string]*jsonschema.Schema{
			"severity": {Type: "string", Enum: []any{"low", "high"}},
			"tags":     {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"note":     {Types: []string{"null", "string"}, Description: "optional note"},
		},
	}

	out, err := mcp.ToGenaiSchema(schema)
	gt.NoError(t, err)
	gt.Equal(t, out.Type, genai.TypeObject)
	gt.Equal(t, out.Required, []string{"severity"})
	gt.Equal(t, out.Properties["severity"].Enum, []string{"low", "high"})
	gt.Equal(t, out.Properties["tags"].Items.Type, genai.TypeString)
	gt.Equal(t, out.Properties["note"].Type, genai.TypeString)
	gt.True(t, *out.Properties["note"].Nullable)
	gt.Equal(t, out.Properties["note"].Description, "optional note")

	_, err = mcp.ToGenaiSchema(&jsonschema.Schema{Type: "tuple"})
	gt.Error(t, err)

	out, err = mcp.ToGenaiSchema(nil)
	gt.NoError(t, err)
	gt.V(t, out).Nil()
}
