package similarity

// Thresholds configures the Judge
type Thresholds struct {
	Fuzzy    float64
	Semantic float64
	Retrieve float64
}

// DefaultThresholds returns the standard thresholds
func DefaultThresholds() Thresholds {
	return Thresholds{
		Fuzzy:    DefaultFuzzyThreshold,
		Semantic: DefaultSemanticThreshold,
		Retrieve: DefaultRetrieveThreshold,
	}
}

// Judge applies the comparators against their thresholds. Callers run the
// cheap fingerprint checks before paying for an embedding.
type Judge struct {
	thresholds Thresholds
}

// NewJudge creates a Judge. Zero thresholds fall back to the defaults.
func NewJudge(th Thresholds) *Judge {
	def := DefaultThresholds()
	if th.Fuzzy <= 0 {
		th.Fuzzy = def.Fuzzy
	}
	if th.Semantic <= 0 {
		th.Semantic = def.Semantic
	}
	if th.Retrieve <= 0 {
		th.Retrieve = def.Retrieve
	}
	return &Judge{thresholds: th}
}

// Thresholds returns the effective thresholds
func (j *Judge) Thresholds() Thresholds {
	return j.thresholds
}

// NearDuplicate reports whether two fingerprints are rewordings of each other
func (j *Judge) NearDuplicate(fpA, fpB string) bool {
	return FuzzyRatio(fpA, fpB) >= j.thresholds.Fuzzy
}

// SameFact reports whether two embeddings describe the same fact
func (j *Judge) SameFact(a, b []float32) bool {
	return Cosine(a, b) >= j.thresholds.Semantic
}

// Relevant reports whether a query similarity clears the retrieval threshold
func (j *Judge) Relevant(sim float64) bool {
	return sim >= j.thresholds.Retrieve
}
