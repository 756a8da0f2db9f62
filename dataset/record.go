// Package dataset loads the treatment reference CSV into an immutable,
// in-memory index grouped by animal type and disease.
package dataset

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
)

// DosageUnit tells how DosageValue turns into milligrams.
type DosageUnit string

const (
	// PerKg doses are mg per kg of body weight.
	PerKg DosageUnit = "per_kg"
	// FixedMg doses are an absolute amount of mg.
	FixedMg DosageUnit = "fixed_mg"
)

// ParseDosageUnit accepts the canonical names plus the spellings seen in
// exported spreadsheets ("mg/kg", "mg").
func ParseDosageUnit(s string) (DosageUnit, error) {
	switch strings.ReplaceAll(NormalizeKey(s), " ", "_") {
	case "per_kg", "perkg", "mg/kg", "mg_per_kg":
		return PerKg, nil
	case "fixed_mg", "fixed", "mg":
		return FixedMg, nil
	}
	return "", fmt.Errorf("unknown dosage unit %q", s)
}

// TreatmentRecord is one row of the reference dataset.
type TreatmentRecord struct {
	AnimalType           string     `json:"animal_type"`
	Disease              string     `json:"disease"`
	WeightMinKg          float64    `json:"weight_min_kg"`
	WeightMaxKg          float64    `json:"weight_max_kg"`
	AgeMinDays           int        `json:"age_min_days"`
	AgeMaxDays           int        `json:"age_max_days"`
	Antibiotic           string     `json:"antibiotic"`
	DosageValue          float64    `json:"dosage_value"`
	DosageUnit           DosageUnit `json:"dosage_unit"`
	ConcentrationMgPerML float64    `json:"concentration_mg_per_ml"`
	TreatmentDays        int        `json:"treatment_days,omitempty"`
}

// ConcentrationSource resolves the formulation strength of an antibiotic.
type ConcentrationSource interface {
	ConcentrationFor(antibiotic string) float64
}

// NormalizeKey trims, collapses inner whitespace and case folds s so that
// "  Newcastle   Disease" and "newcastle disease" compare equal.
func NormalizeKey(s string) string {
	// Casers keep state; one per call.
	return cases.Fold().String(strings.Join(strings.Fields(s), " "))
}

// DataLoadError reports a dataset that cannot be used at all.
type DataLoadError struct {
	Source string
	Reason string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to load dataset %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("failed to load dataset %s: %s", e.Source, e.Reason)
}

func (e *DataLoadError) Unwrap() error {
	return e.Err
}
