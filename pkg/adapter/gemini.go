package adapter

import (
	"context"
	"iter"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

type Gemini interface {
	GenerateContent(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	GenerateContentStream(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
	Embedding(ctx context.Context, text string, dimensions int) ([]float32, error)
}

type GeminiClient struct {
	client          *genai.Client
	generativeModel string
	embeddingModel  string
}

type GeminiOption func(*GeminiClient)

func WithGenerativeModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.generativeModel = model
		}
	}
}

func WithEmbeddingModel(model string) GeminiOption {
	return func(g *GeminiClient) {
		if model != "" {
			g.embeddingModel = model
		}
	}
}

func NewGemini(ctx context.Context, projectID, location string, opts ...GeminiOption) (*GeminiClient, error) {
	if projectID == "" {
		return nil, goerr.New("gemini project is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client", goerr.V("project", projectID), goerr.V("location", location))
	}

	g := &GeminiClient{
		client:          client,
		generativeModel: "gemini-2.5-flash",
		embeddingModel:  "gemini-embedding-001",
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

func (g *GeminiClient) GenerateContent(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.generativeModel, contents, genCfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to generate content", goerr.V("model", g.generativeModel))
	}
	return resp, nil
}

// GenerateContentStream yields partial responses as they arrive
func (g *GeminiClient) GenerateContentStream(ctx context.Context, contents []*genai.Content, genCfg *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	stream := g.client.Models.GenerateContentStream(ctx, g.generativeModel, contents, genCfg)
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for resp, err := range stream {
			if err != nil {
				yield(nil, goerr.Wrap(err, "failed to stream content", goerr.V("model", g.generativeModel)))
				return
			}
			if !yield(resp, nil) {
				return
			}
		}
	}
}

// Embedding returns the vector of text. dimensions <= 0 leaves the model default.
func (g *GeminiClient) Embedding(ctx context.Context, text string, dimensions int) ([]float32, error) {
	cfg := &genai.EmbedContentConfig{}
	if dimensions > 0 {
		cfg.OutputDimensionality = genai.Ptr(int32(dimensions))
	}

	resp, err := g.client.Models.EmbedContent(ctx, g.embeddingModel, genai.Text(text), cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", g.embeddingModel))
	}
	if resp == nil || len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("empty embedding response", goerr.V("model", g.embeddingModel))
	}

	return resp.Embeddings[0].Values, nil
}
