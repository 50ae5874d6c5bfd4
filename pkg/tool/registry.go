package tool

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// ErrToolNotFound is returned by Execute for an unknown function name
var ErrToolNotFound = goerr.New("tool not found")

// Registry manages available tools for the LLM
type Registry struct {
	byName map[string]Tool
	tools  []Tool
	specs  []*genai.Tool
}

// New creates a new tool registry with the given tools. Specs keep the order
// tools are given in.
func New(tools ...Tool) *Registry {
	r := &Registry{
		byName: make(map[string]Tool),
		tools:  tools,
	}

	for _, t := range tools {
		spec := t.Spec()
		if spec == nil || len(spec.FunctionDeclarations) == 0 {
			continue
		}
		r.specs = append(r.specs, spec)
		for _, fd := range spec.FunctionDeclarations {
			r.byName[fd.Name] = t
		}
	}

	return r
}

// Specs returns all tool specifications for Gemini function calling
func (r *Registry) Specs() []*genai.Tool {
	return r.specs
}

// Empty reports whether no callable function is registered
func (r *Registry) Empty() bool {
	return len(r.byName) == 0
}

// Prompts returns all tool prompts concatenated
func (r *Registry) Prompts(ctx context.Context) string {
	var prompts []string
	for _, t := range r.tools {
		if prompt := t.Prompt(ctx); prompt != "" {
			prompts = append(prompts, prompt)
		}
	}
	return strings.Join(prompts, "\n\n")
}

// Execute runs the tool with the given function call
func (r *Registry) Execute(ctx context.Context, fc genai.FunctionCall) (*genai.FunctionResponse, error) {
	t, ok := r.byName[fc.Name]
	if !ok {
		return nil, goerr.Wrap(ErrToolNotFound, "unknown function", goerr.V("name", fc.Name))
	}

	return t.Execute(ctx, fc)
}
