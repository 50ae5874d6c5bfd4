package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

// stubGemini answers GenerateContent only
type stubGemini struct {
	adapter.Gemini
	resp     *genai.GenerateContentResponse
	err      error
	contents []*genai.Content
}

func (x *stubGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	x.contents = contents
	return x.resp, x.err
}

func modelText(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func TestIsTokenLimitError(t *testing.T) {
	tokenLimit := genai.APIError{
		Code:    400,
		Status:  "INVALID_ARGUMENT",
		Message: "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576).",
	}

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "token limit", err: tokenLimit, expected: true},
		{name: "wrapped token limit", err: goerr.Wrap(tokenLimit, "failed to stream reply"), expected: true},
		{
			name: "other invalid argument",
			err: genai.APIError{
				Code:    400,
				Status:  "INVALID_ARGUMENT",
				Message: "Invalid request format",
			},
			expected: false,
		},
		{
			name: "server error",
			err: genai.APIError{
				Code:    500,
				Status:  "INTERNAL",
				Message: "The input token count (2500030) exceeds the maximum number of tokens allowed (1048576).",
			},
			expected: false,
		},
		{name: "plain error", err: errors.New("token count exceeds"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gt.Equal(t, isTokenLimitError(tt.err), tt.expected)
		})
	}
}

func TestSummarizeContents(t *testing.T) {
	ctx := context.Background()
	contents := []*genai.Content{
		genai.NewContentFromText("I'm planning a trip to Lisbon", genai.RoleUser),
		genai.NewContentFromText("Lisbon is lovely in spring.", genai.RoleModel),
	}

	t.Run("appends the summarize instruction", func(t *testing.T) {
		stub := &stubGemini{resp: modelText("  The user plans a Lisbon trip.  ")}
		summary, err := summarizeContents(ctx, stub, contents)
		gt.NoError(t, err)
		gt.Equal(t, summary, "The user plans a Lisbon trip.")
		gt.A(t, stub.contents).Length(3)
		gt.Equal(t, stub.contents[2].Parts[0].Text, summarizePromptRaw)
	})

	t.Run("empty history", func(t *testing.T) {
		_, err := summarizeContents(ctx, &stubGemini{}, nil)
		gt.Error(t, err)
	})

	t.Run("api error", func(t *testing.T) {
		_, err := summarizeContents(ctx, &stubGemini{err: errors.New("unavailable")}, contents)
		gt.Error(t, err)
	})

	t.Run("blank summary", func(t *testing.T) {
		_, err := summarizeContents(ctx, &stubGemini{resp: modelText("   ")}, contents)
		gt.Error(t, err)
	})

	t.Run("no candidates", func(t *testing.T) {
		_, err := summarizeContents(ctx, &stubGemini{resp: &genai.GenerateContentResponse{}}, contents)
		gt.Error(t, err)
	})
}
