// Package risk computes the diabetes-risk consensus: feature alignment, the
// weighted five-model blend, tree attributions and the clinical lab override.
//
// Everything here is a pure function of a loaded *ml.Bank and the request, so
// one Scorer and one Explainer can serve any number of concurrent requests.
package risk

import (
	"fmt"

	"sifra/internal/ml"
)

// InputError reports caller input that cannot be scored: a non-numeric or
// non-finite feature or lab value.
type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid input: %s: %s", e.Field, e.Reason)
}

// ScoringError reports a classifier or attribution failure. No partial
// consensus is ever returned alongside it.
type ScoringError struct {
	Slot ml.Slot
	Err  error
}

func (e *ScoringError) Error() string {
	if e.Slot == "" {
		return fmt.Sprintf("could not compute risk score: %v", e.Err)
	}
	return fmt.Sprintf("could not compute risk score: %s classifier: %v", e.Slot, e.Err)
}

func (e *ScoringError) Unwrap() error { return e.Err }
