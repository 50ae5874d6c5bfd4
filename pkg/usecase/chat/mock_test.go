package chat_test

import (
	"context"
	"errors"
	"iter"
	"sync"

	"github.com/m-mizutani/ghost/pkg/interfaces"
	"github.com/m-mizutani/ghost/pkg/model"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"google.golang.org/genai"
)

type streamCall struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
}

// mockGemini is a mock implementation of adapter.Gemini for testing
type mockGemini struct {
	generateFunc func(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	streamFunc   func(n int, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]

	mu          sync.Mutex
	streamCalls []streamCall
}

func (m *mockGemini) GenerateContent(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	if m.generateFunc != nil {
		return m.generateFunc(ctx, contents, config)
	}
	return nil, errors.New("not implemented")
}

func (m *mockGemini) GenerateContentStream(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	m.mu.Lock()
	n := len(m.streamCalls)
	m.streamCalls = append(m.streamCalls, streamCall{contents: contents, config: config})
	m.mu.Unlock()

	if m.streamFunc != nil {
		return m.streamFunc(n, contents, config)
	}
	return streamError(errors.New("not implemented"))
}

func (m *mockGemini) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (m *mockGemini) calls() []streamCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

// streamText yields one response per chunk
func streamText(chunks ...string) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(textResponse(c), nil) {
				return
			}
		}
	}
}

func streamCallTool(name string, args map[string]any) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(&genai.GenerateContentResponse{
			Candidates: []*genai.Candidate{{
				Content: &genai.Content{
					Role:  genai.RoleModel,
					Parts: []*genai.Part{{FunctionCall: &genai.FunctionCall{ID: "call-1", Name: name, Args: args}}},
				},
			}},
		}, nil)
	}
}

func streamError(err error) iter.Seq2[*genai.GenerateContentResponse, error] {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		yield(nil, err)
	}
}

type learnCall struct {
	user, assistant string
}

type mockMemory struct {
	facts      []string
	retrieved  []string
	listErr    error
	learnFact  string
	learnErr   error
	learnCalls []learnCall
	queries    []string
}

func (m *mockMemory) Retrieve(ctx context.Context, query string, opts memoryuc.RetrieveOptions) []string {
	m.queries = append(m.queries, query)
	return m.retrieved
}

func (m *mockMemory) ListAll(ctx context.Context) ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.facts, nil
}

func (m *mockMemory) Learn(ctx context.Context, extractor interfaces.FactExtractor, userTurn, assistantTurn string) (string, model.Outcome, bool, error) {
	m.learnCalls = append(m.learnCalls, learnCall{user: userTurn, assistant: assistantTurn})
	if m.learnErr != nil {
		return m.learnFact, 0, true, m.learnErr
	}
	if m.learnFact == "" {
		return "", 0, false, nil
	}
	return m.learnFact, model.OutcomeInserted, true, nil
}

type nopExtractor struct{}

func (nopExtractor) ExtractFact(ctx context.Context, userTurn, assistantTurn string) (string, bool) {
	return "", false
}

func systemText(cfg *genai.GenerateContentConfig) string {
	if cfg == nil || cfg.SystemInstruction == nil || len(cfg.SystemInstruction.Parts) == 0 {
		return ""
	}
	return cfg.SystemInstruction.Parts[0].Text
}
