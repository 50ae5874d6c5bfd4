// Package similarity holds the comparators used to decide whether two facts
// are the same, and the thresholds that go with them.
package similarity

import (
	"math"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	// DefaultFuzzyThreshold is the minimum FuzzyRatio for two fingerprints to
	// be considered rewordings of the same fact.
	DefaultFuzzyThreshold = 0.85

	// DefaultSemanticThreshold is the minimum Cosine for two embeddings in the
	// same slot to be considered the same fact.
	DefaultSemanticThreshold = 0.82

	// DefaultRetrieveThreshold is the minimum Cosine between a query and a
	// fact for retrieval. Lower than the dedup threshold: a false positive
	// here only adds a context line.
	DefaultRetrieveThreshold = 0.75
)

// FuzzyRatio returns a normalized edit similarity in [0,1] between two
// fingerprints. 1.0 means identical.
func FuzzyRatio(a, b string) float64 {
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	longest := max(la, lb)
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}

// Cosine returns the cosine similarity of two vectors in [-1,1]. An all-zero
// vector, an empty vector or a length mismatch yields 0.0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// clamp rounding drift
	return math.Max(-1, math.Min(1, sim))
}
