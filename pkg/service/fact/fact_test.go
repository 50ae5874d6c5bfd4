package fact_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/service/fact"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockGemini struct {
	adapter.Gemini
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return m.generateFunc(ctx, contents, config)
}

func replyJSON(text string) func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	return func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
		return &genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{
				{Content: genai.NewContentFromText(text, genai.RoleModel)},
			},
		}, nil
	}
}

func testContext() context.Context {
	return logging.With(context.Background(), logging.Discard())
}

func TestClassifySlot(t *testing.T) {
	var gotPrompt string
	var gotConfig *genai.GenerateContentConfig
	gemini := &mockGemini{
		generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			gotPrompt = contents[0].Parts[0].Text
			gotConfig = config
			return replyJSON(`{"slot": "location"}`)(ctx, contents, config)
		},
	}

	label := fact.NewSlotClassifier(gemini, nil).ClassifySlot(testContext(), "I live in Haifa")
	gt.False(t, label.Fallback)
	gt.Equal(t, label.Slot, model.SlotLocation)

	gt.S(t, gotPrompt).Contains("I live in Haifa")
	gt.S(t, gotPrompt).Contains("SHORT slot label")
	gt.Equal(t, gotConfig.ResponseMIMEType, "application/json")
	gt.Equal(t, *gotConfig.Temperature, float32(0))
}

func TestClassifySlotFallback(t *testing.T) {
	testCases := []struct {
		name     string
		generate func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	}{
		{
			name: "api error",
			generate: func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return nil, errors.New("unavailable")
			},
		},
		{name: "empty label", generate: replyJSON(`{"slot": "  "}`)},
		{name: "malformed json", generate: replyJSON(`slot: NAME`)},
		{
			name: "no candidates",
			generate: func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
				return &genai.GenerateContentResponse{}, nil
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			label := fact.NewSlotClassifier(&mockGemini{generateFunc: tc.generate}, nil).ClassifySlot(testContext(), "I like tea")
			gt.True(t, label.Fallback)
			gt.Equal(t, label.Slot, model.SlotGeneric)
			gt.Error(t, label.Reason)
		})
	}
}

func TestExtractFact(t *testing.T) {
	testCases := []struct {
		name  string
		reply string
		fact  string
		found bool
	}{
		{name: "fact", reply: `{"fact": "The user's name is Dana."}`, fact: "The user's name is Dana.", found: true},
		{name: "null literal", reply: `{"fact": "NULL"}`},
		{name: "null value", reply: `{"fact": null}`},
		{name: "empty", reply: `{"fact": ""}`},
		{name: "malformed", reply: `not json`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var gotPrompt string
			gemini := &mockGemini{
				generateFunc: func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
					gotPrompt = contents[0].Parts[0].Text
					return replyJSON(tc.reply)(ctx, contents, config)
				},
			}

			got, found := fact.NewExtractor(gemini, nil).ExtractFact(testContext(), "Hi, I'm Dana", "Nice to meet you!")
			gt.Equal(t, found, tc.found)
			gt.Equal(t, got, tc.fact)
			gt.S(t, gotPrompt).Contains("Hi, I'm Dana")
			gt.S(t, gotPrompt).Contains("memory engine")
		})
	}
}

func TestExtractFactAPIError(t *testing.T) {
	gemini := &mockGemini{
		generateFunc: func(context.Context, []*genai.Content, *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
			return nil, context.DeadlineExceeded
		},
	}

	_, found := fact.NewExtractor(gemini, nil).ExtractFact(testContext(), "I moved to Berlin", "Exciting!")
	gt.False(t, found)
}

func TestExtractFactWithGemini(t *testing.T) {
	projectID := os.Getenv("TEST_GEMINI_PROJECT")
	if projectID == "" {
		t.Skip("TEST_GEMINI_PROJECT is not set")
	}

	ctx := context.Background()
	gemini, err := adapter.NewGemini(ctx, projectID, "us-central1")
	gt.NoError(t, err)

	got, found := fact.NewExtractor(gemini, nil).ExtractFact(ctx, "By the way, I'm allergic to peanuts.", "Thanks, I'll keep that in mind.")
	gt.True(t, found)
	gt.S(t, got).Contains("peanut")

	label := fact.NewSlotClassifier(gemini, nil).ClassifySlot(ctx, "I live in Haifa")
	gt.False(t, label.Fallback)
	gt.Equal(t, label.Slot, model.SlotLocation)
}
