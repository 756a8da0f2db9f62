// Package schedule expands a single dose into a full treatment course.
package schedule

import (
	"fmt"
	"math"
	"time"

	"github.com/giygas/agrisafe-api/recommend"
)

// DateLayout is the wire format of schedule dates.
const DateLayout = "2006-01-02"

// InvalidScheduleInputError reports a schedule parameter outside its domain.
type InvalidScheduleInputError struct {
	Field  string
	Reason string
}

func (e *InvalidScheduleInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Schedule is a treatment course derived from one recommendation.
type Schedule struct {
	SingleDoseML           float64   `json:"single_dose_ml"`
	DailyFrequency         int       `json:"daily_frequency"`
	TreatmentDays          int       `json:"treatment_days"`
	StartDate              time.Time `json:"-"`
	EndDate                time.Time `json:"-"`
	TotalDailyDosageML     float64   `json:"total_daily_dosage_ml"`
	TotalTreatmentDosageML float64   `json:"total_treatment_dosage_ml"`
	FrequencyDescription   string    `json:"frequency_description"`
	Summary                string    `json:"summary"`
}

// Build computes the schedule. It has no side effects and the same inputs
// always give the same output.
func Build(result recommend.Result, dailyFrequency, treatmentDays int, startDate time.Time) (Schedule, error) {
	if dailyFrequency < 1 {
		return Schedule{}, &InvalidScheduleInputError{Field: "daily_frequency", Reason: "must be at least 1"}
	}
	if treatmentDays < 1 {
		return Schedule{}, &InvalidScheduleInputError{Field: "treatment_days", Reason: "must be at least 1"}
	}
	if startDate.IsZero() {
		return Schedule{}, &InvalidScheduleInputError{Field: "start_date", Reason: "is required"}
	}
	if result.SingleDoseML < 0 || math.IsNaN(result.SingleDoseML) {
		return Schedule{}, &InvalidScheduleInputError{Field: "single_dose_ml", Reason: "must not be negative"}
	}

	start := midnight(startDate)
	end := start.AddDate(0, 0, treatmentDays-1)

	daily := result.SingleDoseML * float64(dailyFrequency)
	total := daily * float64(treatmentDays)
	freq := FrequencyDescription(dailyFrequency)

	return Schedule{
		SingleDoseML:           result.SingleDoseML,
		DailyFrequency:         dailyFrequency,
		TreatmentDays:          treatmentDays,
		StartDate:              start,
		EndDate:                end,
		TotalDailyDosageML:     recommend.Round2(daily),
		TotalTreatmentDosageML: recommend.Round2(total),
		FrequencyDescription:   freq,
		Summary:                fmt.Sprintf("%s for %s", freq, pluralDays(treatmentDays)),
	}, nil
}

// FrequencyDescription phrases a daily frequency for farmers.
func FrequencyDescription(dailyFrequency int) string {
	switch dailyFrequency {
	case 1:
		return "once daily"
	case 2:
		return "twice daily"
	default:
		return fmt.Sprintf("%d times daily", dailyFrequency)
	}
}

// midnight keeps the calendar day of t in its own location
func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func pluralDays(n int) string {
	if n == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", n)
}
