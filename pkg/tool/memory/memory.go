package memory

import (
	"context"
	"encoding/json"
	"fmt"

	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const maxSearchLimit = 20

// Store is the part of the memory use case the tools need
type Store interface {
	Retrieve(ctx context.Context, query string, opts memoryuc.RetrieveOptions) []string
	ListAll(ctx context.Context) ([]string, error)
}

type searchInput struct {
	Query string `json:"query"`
	Limit *int   `json:"limit"`
}

// Tool lets the chat model look into long-term memory beyond the facts
// already injected into its context
type Tool struct {
	store Store
}

func New(store Store) *Tool {
	return &Tool{store: store}
}

func (x *Tool) Prompt(ctx context.Context) string {
	return "Facts about the user that look relevant are given as [memory] lines. " +
		"If you need something else about the user, call memory_search with a short query, " +
		"or memory_list to see everything you remember. Never invent facts about the user."
}

// Spec returns the tool specification for Gemini function calling
func (x *Tool) Spec() *genai.Tool {
	return &genai.Tool{
		FunctionDeclarations: []*genai.FunctionDeclaration{
			{
				Name:        "memory_search",
				Description: "Search long-term memory for facts about the user related to a query",
				Parameters: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"query": {
							Type:        genai.TypeString,
							Description: "What to look for, e.g. \"where does the user live\"",
						},
						"limit": {
							Type:        genai.TypeInteger,
							Description: fmt.Sprintf("Max facts to return (default: configured limit, max: %d)", maxSearchLimit),
						},
					},
					Required: []string{"query"},
				},
			},
			{
				Name:        "memory_list",
				Description: "List every fact remembered about the user, oldest first",
				Parameters: &genai.Schema{
					Type:       genai.TypeObject,
					Properties: map[string]*genai.Schema{},
				},
			},
		},
	}
}

func (x *Tool) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	switch fc.Name {
	case "memory_search":
		paramsJSON, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to marshal function arguments")
		}

		var input searchInput
		if err := json.Unmarshal(paramsJSON, &input); err != nil {
			return nil, goerr.Wrap(err, "failed to parse input parameters")
		}
		if input.Query == "" {
			return nil, goerr.New("query is required")
		}
		if input.Limit != nil {
			if *input.Limit < 0 {
				return nil, goerr.New("limit must not be negative", goerr.V("limit", *input.Limit))
			}
			input.Limit = memoryuc.Limit(min(*input.Limit, maxSearchLimit))
		}

		facts := x.store.Retrieve(ctx, input.Query, memoryuc.RetrieveOptions{Limit: input.Limit})
		return response(fc, facts), nil

	case "memory_list":
		facts, err := x.store.ListAll(ctx)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list memory")
		}
		return response(fc, facts), nil

	default:
		return nil, goerr.New("unknown function", goerr.V("name", fc.Name))
	}
}

func response(fc genai.FunctionCall, facts []string) *genai.FunctionResponse {
	if facts == nil {
		facts = []string{}
	}
	return &genai.FunctionResponse{
		ID:   fc.ID,
		Name: fc.Name,
		Response: map[string]any{
			"facts": facts,
			"count": len(facts),
		},
	}
}
