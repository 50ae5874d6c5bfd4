package chat

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"strings"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

//go:embed prompt/summarize.md
var summarizePromptRaw string

const (
	summarySystem   = "You summarise conversations between a user and a personal assistant."
	summaryFallback = "An earlier conversation with the user took place but could not be summarised."

	// Vertex AI phrasing, e.g. "The input token count (2500030) exceeds the
	// maximum number of tokens allowed (1048576)."
	tokenCountPrefix = "The input token count ("
	tokenCountLimit  = ") exceeds the maximum number of tokens allowed ("
)

// quietConfig is a short deterministic-ish generation with thinking disabled.
func quietConfig(system string, temperature float32, maxTokens int32) *genai.GenerateContentConfig {
	var budget int32
	return &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, ""),
		Temperature:       genai.Ptr(temperature),
		MaxOutputTokens:   maxTokens,
		ThinkingConfig:    &genai.ThinkingConfig{ThinkingBudget: &budget},
	}
}

// candidateText joins the non-thought text parts of the first candidate.
func candidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

func isTokenLimitError(err error) bool {
	var apiErr genai.APIError
	if err == nil || !errors.As(err, &apiErr) {
		return false
	}
	if apiErr.Code != http.StatusBadRequest || apiErr.Status != "INVALID_ARGUMENT" {
		return false
	}
	return strings.HasPrefix(apiErr.Message, tokenCountPrefix) &&
		strings.Contains(apiErr.Message, tokenCountLimit)
}

// summarizeContents asks the model for a compact digest of contents. The
// caller swaps the digest in for the dropped turns.
func summarizeContents(ctx context.Context, gemini adapter.Gemini, contents []*genai.Content) (string, error) {
	if len(contents) == 0 {
		return "", goerr.New("history is empty")
	}

	req := append(contents[:len(contents):len(contents)],
		genai.NewContentFromText(summarizePromptRaw, genai.RoleUser))

	resp, err := gemini.GenerateContent(ctx, req, quietConfig(summarySystem, 0.3, 512))
	if err != nil {
		return "", goerr.Wrap(err, "failed to generate summary", goerr.V("turns", len(contents)))
	}

	summary := candidateText(resp)
	if summary == "" {
		return "", goerr.New("empty summary generated", goerr.V("turns", len(contents)))
	}
	return summary, nil
}
