package memory

import (
	"context"
	"strings"

	"github.com/m-mizutani/ghost/pkg/fingerprint"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Ingest decides whether candidate is new, a rewording of a stored fact, or
// already known, and updates the store accordingly. Comparators run cheapest
// first: exact fingerprint, fuzzy fingerprint, then embedding similarity
// within the same slot. Nothing is written when an error is returned.
func (u *UseCase) Ingest(ctx context.Context, candidate string) (model.Outcome, error) {
	text := strings.TrimSpace(candidate)
	fp := fingerprint.Normalize(text)
	if fp == "" {
		return 0, goerr.Wrap(model.ErrEmptyFact, "candidate has no comparable content", goerr.V("candidate", candidate))
	}

	logger := logging.From(ctx).With("fingerprint", fp)

	if u.policy != nil {
		ok, reasons, err := u.policy.Admit(ctx, text)
		if err != nil {
			return 0, goerr.Wrap(err, "failed to check admission policy", goerr.V("fact", text))
		}
		if !ok {
			logger.Info("fact rejected by policy", "reasons", reasons)
			return 0, goerr.Wrap(model.ErrFactRejected, "fact denied", goerr.V("fact", text), goerr.V("reasons", reasons))
		}
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	facts, err := u.load(ctx)
	if err != nil {
		return 0, err
	}
	judge := u.judge()

	for _, f := range facts {
		if f.Fingerprint == fp {
			logger.Info("fact already known", "outcome", model.OutcomeSkippedDuplicate.String(), "stage", "exact", "slot", f.Slot)
			return model.OutcomeSkippedDuplicate, nil
		}
	}

	// the embedding of a fuzzy match is kept as is, it still describes a near
	// identical sentence
	for _, f := range facts {
		if judge.NearDuplicate(f.Fingerprint, fp) {
			previous := f.Text
			f.SetText(text)
			if err := u.save(ctx, facts); err != nil {
				return 0, err
			}
			logger.Info("fact reworded", "outcome", model.OutcomeOverwritten.String(), "stage", "fuzzy", "slot", f.Slot, "previous", previous)
			return model.OutcomeOverwritten, nil
		}
	}

	label := u.classifier.ClassifySlot(ctx, text)
	if label.Fallback {
		logger.Warn("slot classification fell back", "slot", label.Slot, "reason", label.Reason)
	}
	slot := model.NormalizeSlot(string(label.Slot))

	vec, err := u.embedder.Embed(ctx, text)
	if err != nil {
		return 0, goerr.Wrap(model.ErrEmbeddingUnavailable, "failed to embed candidate",
			goerr.V("fact", text), goerr.V("error", err.Error()))
	}
	if len(vec) == 0 {
		return 0, goerr.Wrap(model.ErrEmbeddingUnavailable, "embedder returned empty vector", goerr.V("fact", text))
	}

	for _, f := range facts {
		if f.Slot != slot {
			continue
		}
		if judge.SameFact(f.Embedding, vec) {
			previous := f.Text
			f.SetText(text)
			f.Embedding = vec
			if err := u.save(ctx, facts); err != nil {
				return 0, err
			}
			logger.Info("fact updated", "outcome", model.OutcomeOverwritten.String(), "stage", "semantic", "slot", slot, "previous", previous)
			return model.OutcomeOverwritten, nil
		}
	}

	fact := model.NewFact(text, slot, vec, u.now())
	facts = append(facts, fact)
	if err := u.save(ctx, facts); err != nil {
		return 0, err
	}

	logger.Info("fact stored", "outcome", model.OutcomeInserted.String(), "stage", "new", "slot", slot, "id", fact.ID)
	return model.OutcomeInserted, nil
}
