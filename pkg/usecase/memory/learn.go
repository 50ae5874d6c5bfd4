package memory

import (
	"context"

	"github.com/m-mizutani/ghost/pkg/interfaces"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
)

// Learn asks extractor for a fact in one exchange and ingests it. found is
// false when the exchange holds nothing worth remembering.
func (u *UseCase) Learn(ctx context.Context, extractor interfaces.FactExtractor, userTurn, assistantTurn string) (fact string, outcome model.Outcome, found bool, err error) {
	fact, found = extractor.ExtractFact(ctx, userTurn, assistantTurn)
	if !found {
		return "", 0, false, nil
	}

	logging.From(ctx).Debug("fact extracted", "fact", fact)
	outcome, err = u.Ingest(ctx, fact)
	if err != nil {
		return fact, 0, true, err
	}
	return fact, outcome, true, nil
}
