package memory_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"sync"

	"github.com/m-mizutani/ghost/pkg/adapter"
	"github.com/m-mizutani/ghost/pkg/model"
)

type memRepo struct {
	mu      sync.Mutex
	facts   []*model.Fact
	saves   int
	loadErr error
	saveErr error
}

func (r *memRepo) LoadFacts(ctx context.Context) ([]*model.Fact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loadErr != nil {
		return nil, r.loadErr
	}
	out := make([]*model.Fact, len(r.facts))
	for i, f := range r.facts {
		out[i] = f.Clone()
	}
	return out, nil
}

func (r *memRepo) SaveFacts(ctx context.Context, facts []*model.Fact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.facts = make([]*model.Fact, len(facts))
	for i, f := range facts {
		r.facts[i] = f.Clone()
	}
	r.saves++
	return nil
}

func (r *memRepo) snapshot() []*model.Fact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.facts
}

type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	err     error
	calls   int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	v, ok := e.vectors[text]
	if !ok {
		return nil, errors.New("no vector for text: " + text)
	}
	return v, nil
}

func (e *fakeEmbedder) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fakeClassifier struct {
	slots map[string]model.Slot
}

func (c *fakeClassifier) ClassifySlot(ctx context.Context, fact string) model.SlotLabel {
	if s, ok := c.slots[fact]; ok {
		return model.SlotLabel{Slot: s}
	}
	return model.FallbackSlot(errors.New("classifier unavailable"))
}

type fakeExtractor struct {
	fact string
}

func (x *fakeExtractor) ExtractFact(ctx context.Context, userTurn, assistantTurn string) (string, bool) {
	return x.fact, x.fact != ""
}

type denyPolicy struct {
	calls int
}

func (p *denyPolicy) Admit(ctx context.Context, fact string) (bool, []string, error) {
	p.calls++
	return false, []string{"no secrets"}, nil
}

// memStorage keeps snapshot objects in memory
type memStorage struct {
	adapter.Storage
	objects map[string][]byte
}

type memObject struct {
	bytes.Buffer
	commit func([]byte)
}

func (o *memObject) Close() error {
	o.commit(o.Bytes())
	return nil
}

func (s *memStorage) Put(ctx context.Context, key string) (io.WriteCloser, error) {
	return &memObject{commit: func(b []byte) { s.objects[key] = bytes.Clone(b) }}, nil
}

func (s *memStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := s.objects[key]
	if !ok {
		return nil, errors.New("object not found")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// unitAt returns a unit vector whose cosine with (1, 0) is c
func unitAt(c float64) []float32 {
	return []float32{float32(c), float32(math.Sqrt(1 - c*c))}
}

var queryVec = []float32{1, 0}
