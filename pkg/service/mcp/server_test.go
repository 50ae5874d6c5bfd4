package mcp_test

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/service/mcp"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type fakeMemory struct {
	mu      sync.Mutex
	facts   []string
	opts    []memoryuc.RetrieveOptions
	listErr error
}

func (m *fakeMemory) Ingest(ctx context.Context, candidate string) (model.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case strings.TrimSpace(candidate) == "":
		return 0, goerr.Wrap(model.ErrEmptyFact, "nothing to store")
	case strings.Contains(candidate, "password"):
		return 0, goerr.Wrap(model.ErrFactRejected, "denied", goerr.V("reasons", []string{"secret"}))
	case slices.Contains(m.facts, candidate):
		return model.OutcomeSkippedDuplicate, nil
	}
	m.facts = append(m.facts, candidate)
	return model.OutcomeInserted, nil
}

func (m *fakeMemory) Retrieve(ctx context.Context, query string, opts memoryuc.RetrieveOptions) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opts = append(m.opts, opts)

	var out []string
	for _, f := range m.facts {
		if strings.Contains(strings.ToLower(f), strings.ToLower(query)) {
			out = append(out, f)
		}
	}
	return out
}

func (m *fakeMemory) ListAll(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return slices.Clone(m.facts), nil
}

func connect(t *testing.T, mem mcp.Memory) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	ct, st := mcpsdk.NewInMemoryTransports()
	ss, err := mcp.NewServer(mem).MCP().Connect(ctx, st, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = ss.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = cs.Close() })

	return cs
}

func call(t *testing.T, cs *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcpsdk.CallToolParams{Name: name, Arguments: args})
	gt.NoError(t, err)
	gt.A(t, result.Content).Length(1)
	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()
	tc, ok := result.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	return tc.Text
}

func TestServerTools(t *testing.T) {
	cs := connect(t, &fakeMemory{})

	listed, err := cs.ListTools(context.Background(), nil)
	gt.NoError(t, err)

	var names []string
	for _, tool := range listed.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	gt.Equal(t, names, []string{"memory_list", "memory_recall", "memory_remember"})
}

func TestServerRememberRecallList(t *testing.T) {
	mem := &fakeMemory{}
	cs := connect(t, mem)

	var remembered mcp.RememberOutput
	result := call(t, cs, "memory_remember", map[string]any{"text": "The user's name is Dana"})
	gt.False(t, result.IsError)
	gt.NoError(t, json.Unmarshal([]byte(text(t, result)), &remembered))
	gt.Equal(t, remembered.Outcome, "inserted")

	result = call(t, cs, "memory_remember", map[string]any{"text": "The user's name is Dana"})
	gt.NoError(t, json.Unmarshal([]byte(text(t, result)), &remembered))
	gt.Equal(t, remembered.Outcome, "skipped_duplicate")

	call(t, cs, "memory_remember", map[string]any{"text": "The user lives in Haifa"})

	var recalled mcp.FactsOutput
	result = call(t, cs, "memory_recall", map[string]any{"query": "haifa", "limit": 2, "threshold": 0.5})
	gt.False(t, result.IsError)
	gt.NoError(t, json.Unmarshal([]byte(text(t, result)), &recalled))
	gt.Equal(t, recalled.Facts, []string{"The user lives in Haifa"})
	gt.Equal(t, *mem.opts[0].Limit, 2)
	gt.Equal(t, mem.opts[0].Threshold, 0.5)

	result = call(t, cs, "memory_recall", map[string]any{"query": "tokyo"})
	gt.NoError(t, json.Unmarshal([]byte(text(t, result)), &recalled))
	gt.A(t, recalled.Facts).Length(0)
	gt.Equal(t, mem.opts[1], memoryuc.RetrieveOptions{})

	result = call(t, cs, "memory_recall", map[string]any{"query": "haifa", "limit": 0})
	gt.False(t, result.IsError)
	gt.Equal(t, *mem.opts[2].Limit, 0)

	var listed mcp.FactsOutput
	result = call(t, cs, "memory_list", map[string]any{})
	gt.NoError(t, json.Unmarshal([]byte(text(t, result)), &listed))
	gt.Equal(t, listed.Facts, []string{"The user's name is Dana", "The user lives in Haifa"})
}

func TestServerToolErrors(t *testing.T) {
	mem := &fakeMemory{listErr: goerr.Wrap(model.ErrStoreUnavailable, "disk gone")}
	cs := connect(t, mem)

	testCases := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{name: "empty fact", tool: "memory_remember", args: map[string]any{"text": "  "}, want: "text is required"},
		{name: "rejected fact", tool: "memory_remember", args: map[string]any{"text": "my password is hunter2"}, want: "rejected by policy"},
		{name: "empty query", tool: "memory_recall", args: map[string]any{"query": ""}, want: "query is required"},
		{name: "negative limit", tool: "memory_recall", args: map[string]any{"query": "haifa", "limit": -1}, want: "must not be negative"},
		{name: "store down", tool: "memory_list", args: map[string]any{}, want: "list failed"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := call(t, cs, tc.tool, tc.args)
			gt.True(t, result.IsError)
			gt.S(t, text(t, result)).Contains(tc.want)
		})
	}
	gt.A(t, mem.facts).Length(0)
}
