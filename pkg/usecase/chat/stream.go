package chat

import (
	"context"
	"io"
	"math"
	"strings"
	"time"

	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

const maxAttempts = 3

func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(1.2, float64(attempt)) * float64(time.Second))
}

// answer streams the model reply for text into w. Failed attempts are retried
// while nothing has been written yet; a token limit error switches the
// history to its summary before the next attempt.
func (s *Session) answer(ctx context.Context, text string, w io.Writer) (string, error) {
	logger := logging.From(ctx)
	forceSummary := false

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		system, contents := s.buildContext(ctx, text, forceSummary)

		reply, err := s.generate(ctx, system, contents, w)
		if err == nil {
			return reply, nil
		}
		if reply != "" {
			return reply, err
		}

		lastErr = err
		logger.Warn("model call failed", "attempt", attempt, "error", err)

		if isTokenLimitError(err) {
			forceSummary = true
		}
		if attempt == maxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return "", goerr.Wrap(ctx.Err(), "interrupted while waiting to retry")
		case <-time.After(s.backoff(attempt)):
		}
	}

	return "", lastErr
}

// generate runs one streamed completion, executing function calls until the
// model answers in text
func (s *Session) generate(ctx context.Context, system *genai.Content, contents []*genai.Content, w io.Writer) (string, error) {
	maxIterations := s.cfg.Get().Chat.MaxToolIterations

	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: system,
	}
	if !s.tools.Empty() {
		genCfg.Tools = s.tools.Specs()
	}

	var full strings.Builder
	for i := 0; ; i++ {
		if i >= maxIterations {
			// out of tool budget, the model has to answer with what it has
			genCfg.Tools = nil
		}

		var calls []*genai.FunctionCall
		var modelParts []*genai.Part

		for resp, err := range s.gemini.GenerateContentStream(ctx, contents, genCfg) {
			if err != nil {
				return full.String(), goerr.Wrap(err, "failed to stream reply", goerr.V("iteration", i))
			}
			if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
				continue
			}

			for _, part := range resp.Candidates[0].Content.Parts {
				switch {
				case part.FunctionCall != nil:
					calls = append(calls, part.FunctionCall)
					modelParts = append(modelParts, part)
				case part.Text != "" && !part.Thought:
					if _, err := io.WriteString(w, part.Text); err != nil {
						return full.String(), goerr.Wrap(err, "failed to write reply")
					}
					full.WriteString(part.Text)
					modelParts = append(modelParts, part)
				}
			}
		}

		if len(calls) == 0 {
			return full.String(), nil
		}
		if genCfg.Tools == nil {
			return full.String(), goerr.New("model kept calling tools", goerr.V("iterations", i))
		}

		contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: modelParts})
		contents = append(contents, s.callTools(ctx, calls))
	}
}

func (s *Session) callTools(ctx context.Context, calls []*genai.FunctionCall) *genai.Content {
	logger := logging.From(ctx)
	parts := make([]*genai.Part, 0, len(calls))

	for _, fc := range calls {
		logger.Debug("calling tool", "name", fc.Name, "args", fc.Args)

		resp, err := s.tools.Execute(ctx, *fc)
		if err != nil {
			logger.Warn("tool call failed", "name", fc.Name, "error", err)
			resp = &genai.FunctionResponse{
				ID:       fc.ID,
				Name:     fc.Name,
				Response: map[string]any{"error": err.Error()},
			}
		}
		parts = append(parts, &genai.Part{FunctionResponse: resp})
	}

	return &genai.Content{Role: genai.RoleUser, Parts: parts}
}
