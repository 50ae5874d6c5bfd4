package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/ghost/pkg/config"
	"github.com/m-mizutani/ghost/pkg/interfaces"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/similarity"
	"github.com/m-mizutani/goerr/v2"
)

// UseCase owns the long-term fact store: ingestion with deduplication,
// retrieval for context building and listing.
type UseCase struct {
	repo       interfaces.FactRepository
	embedder   interfaces.Embedder
	classifier interfaces.SlotClassifier
	policy     interfaces.AdmissionPolicy
	cfg        config.Provider
	now        func() time.Time

	// mu serialises the load-modify-save cycle of writers
	mu sync.Mutex
}

type Option func(*UseCase)

// WithConfig sets the configuration source. It is consulted on every call.
func WithConfig(p config.Provider) Option {
	return func(u *UseCase) {
		u.cfg = p
	}
}

// WithPolicy sets an admission policy evaluated before ingestion
func WithPolicy(p interfaces.AdmissionPolicy) Option {
	return func(u *UseCase) {
		u.policy = p
	}
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(u *UseCase) {
		u.now = now
	}
}

func New(repo interfaces.FactRepository, embedder interfaces.Embedder, classifier interfaces.SlotClassifier, opts ...Option) *UseCase {
	u := &UseCase{
		repo:       repo,
		embedder:   embedder,
		classifier: classifier,
		cfg:        config.Static(config.Default()),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

func (u *UseCase) memoryConfig() config.MemoryConfig {
	return u.cfg.Get().Memory
}

func (u *UseCase) judge() *similarity.Judge {
	return similarity.NewJudge(u.memoryConfig().Thresholds())
}

func (u *UseCase) load(ctx context.Context) ([]*model.Fact, error) {
	facts, err := u.repo.LoadFacts(ctx)
	if err != nil {
		if errors.Is(err, model.ErrStoreUnavailable) {
			return nil, err
		}
		return nil, goerr.Wrap(model.ErrStoreUnavailable, "failed to load facts", goerr.V("error", err.Error()))
	}
	return facts, nil
}

func (u *UseCase) save(ctx context.Context, facts []*model.Fact) error {
	if err := u.repo.SaveFacts(ctx, facts); err != nil {
		if errors.Is(err, model.ErrStoreUnavailable) {
			return err
		}
		return goerr.Wrap(model.ErrStoreUnavailable, "failed to save facts", goerr.V("error", err.Error()))
	}
	return nil
}

// ListAll returns every fact text in insertion order
func (u *UseCase) ListAll(ctx context.Context) ([]string, error) {
	facts, err := u.load(ctx)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(facts))
	for i, f := range facts {
		texts[i] = f.Text
	}
	return texts, nil
}

// Facts returns copies of the stored facts in insertion order
func (u *UseCase) Facts(ctx context.Context) ([]*model.Fact, error) {
	facts, err := u.load(ctx)
	if err != nil {
		return nil, err
	}

	copies := make([]*model.Fact, len(facts))
	for i, f := range facts {
		copies[i] = f.Clone()
	}
	return copies, nil
}
