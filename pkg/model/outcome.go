package model

import "github.com/m-mizutani/goerr/v2"

// Outcome is the decision taken by the ingestion pipeline for a candidate fact
type Outcome int

const (
	OutcomeInserted Outcome = iota + 1
	OutcomeOverwritten
	OutcomeSkippedDuplicate
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInserted:
		return "inserted"
	case OutcomeOverwritten:
		return "overwritten"
	case OutcomeSkippedDuplicate:
		return "skipped_duplicate"
	default:
		return "unknown"
	}
}

// Changed reports whether the outcome modified the store
func (o Outcome) Changed() bool {
	return o == OutcomeInserted || o == OutcomeOverwritten
}

var (
	// ErrEmbeddingUnavailable means the candidate could not be embedded and was dropped
	ErrEmbeddingUnavailable = goerr.New("embedding unavailable")

	// ErrStoreUnavailable means the fact store could not be read or written.
	// The previously persisted store is left untouched.
	ErrStoreUnavailable = goerr.New("fact store unavailable")

	// ErrFactRejected means the admission policy refused the candidate
	ErrFactRejected = goerr.New("fact rejected by policy")

	// ErrEmptyFact means the candidate has no comparable content
	ErrEmptyFact = goerr.New("fact is empty")
)
