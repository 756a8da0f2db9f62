package recommend

import (
	"errors"
	"fmt"
)

// ErrIndexNotLoaded is returned when no dataset has been published yet.
var ErrIndexNotLoaded = errors.New("dataset index is not loaded")

// NoMatchError means the dataset has no record for the animal/disease pair,
// or none for Antibiotic when one was required.
type NoMatchError struct {
	AnimalType string
	Disease    string
	Antibiotic string
}

func (e *NoMatchError) Error() string {
	if e.Antibiotic != "" {
		return fmt.Sprintf("no %s treatment data for animal type %q and disease %q", e.Antibiotic, e.AnimalType, e.Disease)
	}
	return fmt.Sprintf("no treatment data for animal type %q and disease %q", e.AnimalType, e.Disease)
}

// InvalidQueryError reports a query field outside its allowed domain.
type InvalidQueryError struct {
	Field  string
	Reason string
}

func (e *InvalidQueryError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
