package memory

import (
	"context"
	"math"
	"slices"
	"strings"

	"github.com/m-mizutani/ghost/pkg/fingerprint"
	"github.com/m-mizutani/ghost/pkg/model"
	"github.com/m-mizutani/ghost/pkg/similarity"
	"github.com/m-mizutani/ghost/pkg/utils/logging"
)

// RetrieveOptions tunes a single retrieval. A nil Limit and a zero Threshold
// use the configured defaults. An explicit Limit of zero or less matches
// nothing.
type RetrieveOptions struct {
	Limit     *int
	Threshold float64
}

// Limit is a helper for RetrieveOptions.Limit
func Limit(n int) *int {
	return &n
}

// Match is one retrieved fact with the values that ranked it
type Match struct {
	Fact       *model.Fact
	Similarity float64
	Score      float64
}

// Retrieve returns up to Limit fact texts relevant to query, best first. It
// never fails: when the store or the embedder is unavailable the result is
// empty and the problem is logged.
func (u *UseCase) Retrieve(ctx context.Context, query string, opts RetrieveOptions) []string {
	matches := u.Recall(ctx, query, opts)
	texts := make([]string, len(matches))
	for i, m := range matches {
		texts[i] = m.Fact.Text
	}
	return texts
}

// Recall is Retrieve with similarity and score of each match
func (u *UseCase) Recall(ctx context.Context, query string, opts RetrieveOptions) []Match {
	logger := logging.From(ctx)
	cfg := u.memoryConfig()

	limit := cfg.RetrieveLimit
	if opts.Limit != nil {
		limit = *opts.Limit
	}
	if limit <= 0 {
		return []Match{}
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = cfg.RetrieveThreshold
	}
	if threshold <= 0 {
		threshold = similarity.DefaultRetrieveThreshold
	}

	if fingerprint.Normalize(query) == "" {
		return []Match{}
	}

	facts, err := u.load(ctx)
	if err != nil {
		logger.Warn("memory retrieval skipped, store unavailable", "error", err)
		return []Match{}
	}
	if len(facts) == 0 {
		return []Match{}
	}

	qvec, err := u.embedder.Embed(ctx, strings.TrimSpace(query))
	if err != nil || len(qvec) == 0 {
		logger.Warn("memory retrieval skipped, query embedding unavailable", "error", err)
		return []Match{}
	}

	now := u.now()
	candidates := make([]Match, 0, len(facts))
	for _, f := range facts {
		sim := similarity.Cosine(qvec, f.Embedding)
		if sim < threshold {
			continue
		}
		candidates = append(candidates, Match{
			Fact:       f,
			Similarity: sim,
			Score:      sim * recencyFactor(f.Age(now).Seconds(), cfg.RecencyWindow.Seconds(), cfg.RecencyWeight),
		})
	}

	// stable so equal scores keep store order
	slices.SortStableFunc(candidates, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	seen := make(map[string]struct{}, limit)
	results := make([]Match, 0, limit)
	for _, c := range candidates {
		if len(results) >= limit {
			break
		}
		if _, ok := seen[c.Fact.Fingerprint]; ok {
			continue
		}
		seen[c.Fact.Fingerprint] = struct{}{}
		results = append(results, c)
	}

	logger.Debug("memory retrieved", "candidates", len(candidates), "returned", len(results), "threshold", threshold)
	return results
}

// recencyFactor discounts older facts by at most weight, reached at window
func recencyFactor(ageSec, windowSec, weight float64) float64 {
	if windowSec <= 0 {
		return 1
	}
	return 1 - math.Min(ageSec/windowSec, 1)*weight
}
