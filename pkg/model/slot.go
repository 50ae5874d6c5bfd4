package model

import "strings"

// Slot is a short category label. Facts in the same slot are candidates for
// overwriting each other (e.g. only one current home location).
type Slot string

const (
	SlotGeneric  Slot = "GENERIC"
	SlotName     Slot = "NAME"
	SlotLocation Slot = "LOCATION"
	SlotPref     Slot = "PREF"
	SlotHabit    Slot = "HABIT"
	SlotOther    Slot = "OTHER"
)

// NormalizeSlot upper-cases a raw label and keeps only its first token.
// Empty input maps to SlotGeneric.
func NormalizeSlot(raw string) Slot {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return SlotGeneric
	}
	label := strings.Trim(strings.ToUpper(fields[0]), ".,:;\"'`*")
	if label == "" {
		return SlotGeneric
	}
	return Slot(label)
}

// SlotLabel is the result of slot classification. Fallback is set when the
// classifier could not produce a label and SlotGeneric was used instead;
// Reason carries the cause in that case.
type SlotLabel struct {
	Slot     Slot
	Fallback bool
	Reason   error
}

// FallbackSlot builds the GENERIC label used when classification fails
func FallbackSlot(reason error) SlotLabel {
	return SlotLabel{
		Slot:     SlotGeneric,
		Fallback: true,
		Reason:   reason,
	}
}
