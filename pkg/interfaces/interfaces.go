package interfaces

import (
	"context"

	"github.com/m-mizutani/ghost/pkg/model"
)

// FactRepository persists the full ordered list of facts
type FactRepository interface {
	// LoadFacts returns every stored fact in insertion order
	LoadFacts(ctx context.Context) ([]*model.Fact, error)

	// SaveFacts replaces the stored list. Readers must never observe a
	// partially written store.
	SaveFacts(ctx context.Context, facts []*model.Fact) error
}

// Embedder converts text into a semantic vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SlotClassifier labels a fact with a short category token. It never fails:
// on error it returns the GENERIC fallback label.
type SlotClassifier interface {
	ClassifySlot(ctx context.Context, fact string) model.SlotLabel
}

// FactExtractor proposes a single fact from a conversational exchange.
// Failures are reported as "no fact".
type FactExtractor interface {
	ExtractFact(ctx context.Context, userTurn, assistantTurn string) (string, bool)
}

// AdmissionPolicy decides whether a candidate fact may be stored. It returns
// the deny reasons when the candidate is refused.
type AdmissionPolicy interface {
	Admit(ctx context.Context, fact string) (bool, []string, error)
}
