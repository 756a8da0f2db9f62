// Package validation checks user supplied request fields before they reach
// the recommendation engine or the history store.
package validation

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/schedule"
)

const (
	MaxNameLength  = 100
	MaxIDLength    = 64
	MaxNotesLength = 500
	// MaxDailyFrequency and MaxTreatmentDays bound schedule requests
	MaxDailyFrequency = 24
	MaxTreatmentDays  = 90
	MaxWeightKg       = 2000
	MaxAgeDays        = 36500
	// MaxPlanItems bounds the antibiotics of one treatment plan
	MaxPlanItems   = 10
	MaxDoseML      = 1000
	MaxSuggestions = 10
)

var (
	// letters of any script, digits and the punctuation that appears in
	// dataset disease and antibiotic names ("E. coli & Salmonella", "IB: QX")
	textRegex   = regexp.MustCompile(`^[\p{L}\p{N}\s\-\.\+'(),/&:]+$`)
	mobileRegex = regexp.MustCompile(`^\d{10}$`)

	// substring checks, cheaper than a regex per pattern
	dangerousPatterns = []string{
		"<script", "</script>", "javascript:", "vbscript:", "onload=", "onerror=",
		"eval(", "expression(", "@import",
		"' or ", "\" or ", "union select", "drop table", "delete from", "insert into",
		"--", "/*", "*/", "exec(", "execute(",
		"`", "$(", "${",
		"../", "..\\", "%2e%2e", "file://",
	}
)

// FieldError reports a request field that failed validation.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

// Text validates a free text field such as an animal type, disease or shop id.
func Text(field, value string, required bool, maxLen int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		if required {
			return &FieldError{Field: field, Reason: "is required"}
		}
		return nil
	}

	if utf8.RuneCountInString(trimmed) > maxLen {
		return &FieldError{Field: field, Reason: fmt.Sprintf("is too long: maximum %d characters", maxLen)}
	}

	lower := strings.ToLower(trimmed)
	for _, pattern := range dangerousPatterns {
		if strings.Contains(lower, pattern) {
			return &FieldError{Field: field, Reason: "contains potentially dangerous content"}
		}
	}

	if !textRegex.MatchString(trimmed) {
		return &FieldError{Field: field, Reason: "contains invalid characters"}
	}

	if hasExcessiveRepetition(trimmed) {
		return &FieldError{Field: field, Reason: "contains excessive character repetition"}
	}

	return nil
}

// Notes allows any printable text up to MaxNotesLength.
func Notes(value string) error {
	if utf8.RuneCountInString(value) > MaxNotesLength {
		return &FieldError{Field: "notes", Reason: fmt.Sprintf("is too long: maximum %d characters", MaxNotesLength)}
	}
	lower := strings.ToLower(value)
	for _, pattern := range []string{"<script", "</script>", "javascript:"} {
		if strings.Contains(lower, pattern) {
			return &FieldError{Field: "notes", Reason: "contains potentially dangerous content"}
		}
	}
	return nil
}

// Mobile checks an optional farmer mobile number: exactly 10 digits.
func Mobile(value string) error {
	if value == "" {
		return nil
	}
	if !mobileRegex.MatchString(value) {
		return &FieldError{Field: "farmer_mobile", Reason: "must be exactly 10 digits"}
	}
	return nil
}

func Weight(kg float64) error {
	switch {
	case math.IsNaN(kg) || math.IsInf(kg, 0):
		return &FieldError{Field: "weight_kg", Reason: "must be a finite number"}
	case kg <= 0:
		return &FieldError{Field: "weight_kg", Reason: "must be greater than 0"}
	case kg > MaxWeightKg:
		return &FieldError{Field: "weight_kg", Reason: fmt.Sprintf("must not exceed %d", MaxWeightKg)}
	}
	return nil
}

// Age requires a value; nil means the field was absent from the request.
func Age(days *int) error {
	switch {
	case days == nil:
		return &FieldError{Field: "age_days", Reason: "is required"}
	case *days < 0:
		return &FieldError{Field: "age_days", Reason: "must not be negative"}
	case *days > MaxAgeDays:
		return &FieldError{Field: "age_days", Reason: fmt.Sprintf("must not exceed %d", MaxAgeDays)}
	}
	return nil
}

// PositiveInt checks an optional count field against 1..maxValue.
func PositiveInt(field string, value *int, maxValue int) error {
	if value == nil {
		return nil
	}
	if *value < 1 || *value > maxValue {
		return &FieldError{Field: field, Reason: fmt.Sprintf("must be between 1 and %d", maxValue)}
	}
	return nil
}

// DoseML checks an optional dose in ml: finite, positive and at most MaxDoseML.
func DoseML(field string, ml *float64) error {
	if ml == nil {
		return nil
	}
	switch v := *ml; {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return &FieldError{Field: field, Reason: "must be a finite number"}
	case v <= 0:
		return &FieldError{Field: field, Reason: "must be greater than 0"}
	case v > MaxDoseML:
		return &FieldError{Field: field, Reason: fmt.Sprintf("must not exceed %d", MaxDoseML)}
	}
	return nil
}

// StartDate parses a YYYY-MM-DD date. An empty value means today.
func StartDate(value string, now time.Time) (time.Time, error) {
	if value == "" {
		y, m, d := now.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
	}
	start, err := time.Parse(schedule.DateLayout, value)
	if err != nil {
		return time.Time{}, &FieldError{Field: "start_date", Reason: "must be a YYYY-MM-DD date"}
	}
	return start, nil
}

// RecordID validates a path id before it reaches the store.
func RecordID(id string) error {
	if !history.ValidID(id) {
		return &FieldError{Field: "id", Reason: "is not a valid recommendation id"}
	}
	return nil
}

// hasExcessiveRepetition reports the same byte repeated more than 10 times in a row
func hasExcessiveRepetition(input string) bool {
	run := 1
	for i := 1; i < len(input); i++ {
		if input[i] == input[i-1] {
			run++
			if run > 10 {
				return true
			}
			continue
		}
		run = 1
	}
	return false
}
