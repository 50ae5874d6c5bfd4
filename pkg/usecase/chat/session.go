package chat

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/interfaces"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/tool"
	memoryuc "github.com/m-mizutani/ghost/pkg/usecase/memory"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Memory is the long-term memory the session reads and teaches
type Memory interface {
	Retrieve(ctx context.Context, query string, opts memoryuc.RetrieveOptions) []string
	ListAll(ctx context.Context) ([]string, error)
	Learn(ctx context.Context, extractor interfaces.FactExtractor, userTurn, assistantTurn string) (string, model.Outcome, bool, error)
}

type ReplyKind int

const (
	ReplyAnswer ReplyKind = iota + 1
	ReplyMemoryDump
	ReplyUnclear
	ReplyFarewell
)

// Reply describes how a user turn was handled. Text is what was written out.
type Reply struct {
	Kind ReplyKind
	Text string
	// Done is set when the user ended the conversation
	Done bool
	// Learned is the fact extracted from this exchange, if any
	Learned string
	Outcome model.Outcome
}

// Session is one text conversation with the assistant
type Session struct {
	gemini    adapter.Gemini
	memory    Memory
	extractor interfaces.FactExtractor
	cfg       config.Provider
	tools     *tool.Registry
	noise     *noiseFilter
	backoff   func(attempt int) time.Duration

	mu      sync.Mutex
	history history
}

// NewInput contains parameters for creating a new chat session
type NewInput struct {
	Gemini    adapter.Gemini
	Memory    Memory
	Extractor interfaces.FactExtractor // Optional: nil disables learning
	Config    config.Provider          // Optional: defaults
	Tools     *tool.Registry           // Optional: nil disables function calling
}

type Option func(*Session)

// WithBackoff sets the wait before retry attempt n (1-based)
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(s *Session) {
		s.backoff = fn
	}
}

func New(input NewInput, opts ...Option) *Session {
	s := &Session{
		gemini:    input.Gemini,
		memory:    input.Memory,
		extractor: input.Extractor,
		cfg:       input.Config,
		tools:     input.Tools,
		noise:     &noiseFilter{gemini: input.Gemini},
		backoff:   exponentialBackoff,
	}
	if s.cfg == nil {
		s.cfg = config.Static(config.Default())
	}
	if s.tools == nil {
		s.tools = tool.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// History returns the short-term conversation so far
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.snapshot()
}

// Send handles one user turn and writes the reply to w as it is produced.
// Model failures are answered with the unclear prompt, they are not errors.
func (s *Session) Send(ctx context.Context, text string, w io.Writer) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg.Get().Chat
	logger := logging.From(ctx)

	if isStopPhrase(text, cfg.StopPhrases) {
		return s.respond(w, Reply{Kind: ReplyFarewell, Text: cfg.Farewell, Done: true})
	}

	if isMemoryQuery(text) {
		facts, err := s.memory.ListAll(ctx)
		if err != nil {
			return Reply{}, goerr.Wrap(err, "failed to list memory")
		}
		return s.respond(w, Reply{Kind: ReplyMemoryDump, Text: formatMemoryDump(cfg, facts)})
	}

	if cfg.NoiseFilter && s.noise.isNoise(ctx, text) {
		logger.Debug("input looks like noise", "text", text)
		return s.respond(w, Reply{Kind: ReplyUnclear, Text: cfg.UnclearPrompt})
	}

	answer, err := s.answer(ctx, text, w)
	if err != nil {
		logger.Warn("failed to generate reply", "error", err)
		fallback := fmt.Sprintf("%s (api-error: %s)", cfg.UnclearPrompt, err.Error())
		if answer != "" {
			// part of the answer is already out
			fallback = "\n" + fallback
		}
		if _, err := io.WriteString(w, fallback); err != nil {
			return Reply{}, goerr.Wrap(err, "failed to write reply")
		}
		return Reply{Kind: ReplyUnclear, Text: answer + fallback}, nil
	}

	s.history.add(strings.TrimSpace(text), answer)
	reply := Reply{Kind: ReplyAnswer, Text: answer}

	if s.extractor != nil {
		fact, outcome, found, err := s.memory.Learn(ctx, s.extractor, text, answer)
		switch {
		case err != nil:
			logger.Warn("failed to learn from exchange", "fact", fact, "error", err)
		case found:
			reply.Learned = fact
			reply.Outcome = outcome
		}
	}

	return reply, nil
}

func (s *Session) respond(w io.Writer, reply Reply) (Reply, error) {
	if _, err := io.WriteString(w, reply.Text); err != nil {
		return reply, goerr.Wrap(err, "failed to write reply")
	}
	return reply, nil
}

func formatMemoryDump(cfg config.ChatConfig, facts []string) string {
	if len(facts) == 0 {
		return cfg.EmptyMemory
	}

	var b strings.Builder
	b.WriteString(cfg.MemoryHeader)
	for _, f := range facts {
		b.WriteString("\n- ")
		b.WriteString(f)
	}
	return b.String()
}
