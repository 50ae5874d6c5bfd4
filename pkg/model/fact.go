package model

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/ghost/pkg/fingerprint"
)

type FactID string

// NewFactID generates a new unique FactID
func NewFactID() FactID {
	return FactID(uuid.New().String())
}

// Fact is one long-term memory item about the user.
//
// Text and Fingerprint must never diverge, so Text is only changed through
// SetText. CreatedAt is kept when an existing fact is overwritten.
type Fact struct {
	ID          FactID
	Text        string
	Fingerprint string
	Embedding   []float32
	Slot        Slot
	CreatedAt   time.Time
}

// NewFact creates a fact with a fresh ID and a fingerprint derived from text
func NewFact(text string, slot Slot, embedding []float32, createdAt time.Time) *Fact {
	f := &Fact{
		ID:        NewFactID(),
		Slot:      NormalizeSlot(string(slot)),
		Embedding: embedding,
		CreatedAt: createdAt,
	}
	f.SetText(text)
	return f
}

// SetText replaces the fact wording and recomputes its fingerprint
func (f *Fact) SetText(text string) {
	f.Text = text
	f.Fingerprint = fingerprint.Normalize(text)
}

// Clone returns a deep copy so callers can not mutate stored state
func (f *Fact) Clone() *Fact {
	c := *f
	c.Embedding = slices.Clone(f.Embedding)
	return &c
}

// Age returns how long ago the fact was first stored, never negative
func (f *Fact) Age(now time.Time) time.Duration {
	age := now.Sub(f.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}
