package fact

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// generateJSON runs a single structured call and decodes the reply into out
func generateJSON(ctx context.Context, gemini adapter.Gemini, prompt string, schema *genai.Schema, timeout time.Duration, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	thinkingBudget := int32(0)
	genCfg := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr[float32](0),
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  &thinkingBudget,
		},
	}

	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}
	resp, err := gemini.GenerateContent(ctx, contents, genCfg)
	if err != nil {
		return goerr.Wrap(err, "failed to generate content")
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return goerr.New("invalid response structure from gemini")
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		raw.WriteString(part.Text)
	}

	if err := json.Unmarshal([]byte(raw.String()), out); err != nil {
		return goerr.Wrap(err, "failed to unmarshal response JSON", goerr.V("json", raw.String()))
	}
	return nil
}
