package chat

import (
	"context"
	"strings"

	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"google.golang.org/genai"
)

// buildContext assembles the system instruction and the contents for one
// turn: persona and tool hints, relevant long-term facts, then either the
// short-term history or a summary of it, and finally the user message.
func (s *Session) buildContext(ctx context.Context, text string, forceSummary bool) (*genai.Content, []*genai.Content) {
	cfg := s.cfg.Get().Chat

	lines := []string{cfg.SystemPrompt}
	if prompt := s.tools.Prompts(ctx); prompt != "" {
		lines = append(lines, prompt)
	}

	memories := s.memory.Retrieve(ctx, text, memoryuc.RetrieveOptions{})
	if len(memories) > 0 {
		lines = append(lines, "")
		for _, m := range memories {
			lines = append(lines, "[memory] "+m)
		}
	}

	var contents []*genai.Content
	if len(s.history.turns) > 0 {
		if forceSummary || s.history.chars() > cfg.MaxShortTermChars {
			lines = append(lines, "", "[short-term summary] "+s.shortTermSummary(ctx))
		} else {
			contents = s.history.contents()
		}
	}

	contents = append(contents, genai.NewContentFromText(text, genai.RoleUser))
	return genai.NewContentFromText(strings.Join(lines, "\n"), ""), contents
}

func (s *Session) shortTermSummary(ctx context.Context) string {
	h := &s.history
	if h.summary != "" && h.summarized == len(h.turns) {
		return h.summary
	}

	summary, err := summarizeContents(ctx, s.gemini, h.contents())
	if err != nil {
		logging.From(ctx).Warn("short-term summarization failed", "error", err)
		return summaryFallback
	}

	h.summary = summary
	h.summarized = len(h.turns)
	return summary
}
