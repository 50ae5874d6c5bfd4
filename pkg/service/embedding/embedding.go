package embedding

import (
	"context"
	"slices"
	"strconv"

	"github.com/dgraph-io/ristretto"
	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/fingerprint"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Service embeds text with Gemini. Results are cached by fingerprint, so
// texts that differ only in case, accents or punctuation share one call.
type Service struct {
	gemini adapter.Gemini
	cfg    config.Provider
	cache  *ristretto.Cache
}

type Option func(*Service)

func WithConfig(p config.Provider) Option {
	return func(s *Service) {
		s.cfg = p
	}
}

// New creates the service. The cache size is read once from the configuration,
// zero disables caching.
func New(gemini adapter.Gemini, opts ...Option) (*Service, error) {
	s := &Service{
		gemini: gemini,
		cfg:    config.Static(config.Default()),
	}
	for _, opt := range opts {
		opt(s)
	}

	size := s.cfg.Get().Memory.EmbeddingCacheSize
	if size > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters:        size * 10,
			MaxCost:            size,
			BufferItems:        64,
			IgnoreInternalCost: true,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create embedding cache", goerr.V("size", size))
		}
		s.cache = cache
	}

	return s, nil
}

// Embed returns the embedding of text
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	gcfg := s.cfg.Get().Gemini
	fp := fingerprint.Normalize(text)
	if fp == "" {
		return nil, goerr.New("nothing to embed", goerr.V("text", text))
	}

	// model and size are part of the key so a config reload never mixes vector spaces
	key := gcfg.EmbeddingModel + "|" + strconv.Itoa(gcfg.EmbeddingDimensions) + "|" + fp
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if vec, ok := v.([]float32); ok {
				logging.From(ctx).Debug("embedding cache hit", "fingerprint", fp)
				return slices.Clone(vec), nil
			}
		}
	}

	if gcfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, gcfg.Timeout)
		defer cancel()
	}

	vec, err := s.gemini.Embedding(ctx, text, gcfg.EmbeddingDimensions)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed text", goerr.V("fingerprint", fp))
	}
	if len(vec) == 0 {
		return nil, goerr.New("embedding is empty", goerr.V("fingerprint", fp))
	}

	if s.cache != nil {
		s.cache.Set(key, slices.Clone(vec), 1)
		s.cache.Wait()
	}

	return vec, nil
}

// Close releases the cache
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}
