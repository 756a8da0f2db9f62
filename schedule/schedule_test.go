package schedule

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/giygas/agrisafe-api/recommend"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestBuild(t *testing.T) {
	result := recommend.Result{Antibiotic: "Tylosin", SingleDoseML: 0.25}

	s, err := Build(result, 2, 5, date(2024, 1, 1))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if !s.EndDate.Equal(date(2024, 1, 5)) {
		t.Errorf("Expected end date 2024-01-05, got %s", s.EndDate.Format(DateLayout))
	}
	if s.TotalDailyDosageML != 0.5 {
		t.Errorf("Expected 0.5 ml daily, got %v", s.TotalDailyDosageML)
	}
	if s.TotalTreatmentDosageML != 2.5 {
		t.Errorf("Expected 2.5 ml total, got %v", s.TotalTreatmentDosageML)
	}
	if s.FrequencyDescription != "twice daily" {
		t.Errorf("Expected 'twice daily', got %q", s.FrequencyDescription)
	}
	if s.Summary != "twice daily for 5 days" {
		t.Errorf("Unexpected summary %q", s.Summary)
	}
}

func TestBuildSingleDay(t *testing.T) {
	start := time.Date(2024, 3, 10, 17, 45, 0, 0, time.UTC)

	s, err := Build(recommend.Result{SingleDoseML: 1.2}, 1, 1, start)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !s.EndDate.Equal(s.StartDate) {
		t.Errorf("Expected end date to equal start date, got %v and %v", s.StartDate, s.EndDate)
	}
	if !s.StartDate.Equal(date(2024, 3, 10)) {
		t.Errorf("Expected start date normalized to midnight, got %v", s.StartDate)
	}
	if s.Summary != "once daily for 1 day" {
		t.Errorf("Unexpected summary %q", s.Summary)
	}
}

func TestBuildCrossesMonthAndLeapDay(t *testing.T) {
	s, err := Build(recommend.Result{SingleDoseML: 1}, 3, 3, date(2024, 2, 28))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !s.EndDate.Equal(date(2024, 3, 1)) {
		t.Errorf("Expected 2024-03-01, got %s", s.EndDate.Format(DateLayout))
	}
}

func TestBuildKeepsLocation(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	start := time.Date(2024, 6, 1, 23, 30, 0, 0, loc)

	s, err := Build(recommend.Result{SingleDoseML: 1}, 1, 2, start)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.StartDate.Location() != loc || s.StartDate.Day() != 1 {
		t.Errorf("Expected local midnight of June 1, got %v", s.StartDate)
	}
	if s.EndDate.Format(DateLayout) != "2024-06-02" {
		t.Errorf("Expected 2024-06-02, got %s", s.EndDate.Format(DateLayout))
	}
}

func TestBuildTotalsMatchProduct(t *testing.T) {
	for _, dose := range []float64{0.01, 0.04, 0.33, 1.2, 2.75, 12.49} {
		for freq := 1; freq <= 4; freq++ {
			for days := 1; days <= 10; days++ {
				s, err := Build(recommend.Result{SingleDoseML: dose}, freq, days, date(2024, 1, 1))
				if err != nil {
					t.Fatalf("Build failed: %v", err)
				}
				want := dose * float64(freq) * float64(days)
				if math.Abs(s.TotalTreatmentDosageML-want) > 0.01 {
					t.Errorf("dose=%v freq=%d days=%d: total %v, want %v", dose, freq, days, s.TotalTreatmentDosageML, want)
				}
				if s.TotalTreatmentDosageML < 0 || s.EndDate.Before(s.StartDate) {
					t.Errorf("Invariant broken for dose=%v freq=%d days=%d: %+v", dose, freq, days, s)
				}
			}
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	result := recommend.Result{SingleDoseML: 0.37}
	start := date(2024, 5, 20)

	first, err1 := Build(result, 3, 7, start)
	second, err2 := Build(result, 3, 7, start)
	if err1 != nil || err2 != nil {
		t.Fatalf("Build failed: %v %v", err1, err2)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("Expected identical schedules, got %+v and %+v", first, second)
	}
}

func TestBuildInvalidInput(t *testing.T) {
	tests := []struct {
		name   string
		result recommend.Result
		freq   int
		days   int
		start  time.Time
		field  string
	}{
		{"zero frequency", recommend.Result{SingleDoseML: 1}, 0, 5, date(2024, 1, 1), "daily_frequency"},
		{"negative days", recommend.Result{SingleDoseML: 1}, 2, -1, date(2024, 1, 1), "treatment_days"},
		{"zero days", recommend.Result{SingleDoseML: 1}, 2, 0, date(2024, 1, 1), "treatment_days"},
		{"missing start", recommend.Result{SingleDoseML: 1}, 2, 5, time.Time{}, "start_date"},
		{"negative dose", recommend.Result{SingleDoseML: -1}, 2, 5, date(2024, 1, 1), "single_dose_ml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.result, tt.freq, tt.days, tt.start)
			var invalid *InvalidScheduleInputError
			if !errors.As(err, &invalid) {
				t.Fatalf("Expected InvalidScheduleInputError, got %v", err)
			}
			if invalid.Field != tt.field {
				t.Errorf("Expected field %s, got %s", tt.field, invalid.Field)
			}
		})
	}
}

func TestFrequencyDescription(t *testing.T) {
	tests := map[int]string{
		1: "once daily",
		2: "twice daily",
		3: "3 times daily",
		6: "6 times daily",
	}
	for n, want := range tests {
		if got := FrequencyDescription(n); got != want {
			t.Errorf("FrequencyDescription(%d) = %q, want %q", n, got, want)
		}
	}
}
