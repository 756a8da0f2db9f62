// Package recommend picks the best matching dataset record for an animal
// and turns its dosage into a single administrable volume.
package recommend

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/reference"
)

const (
	// ConfidenceFloor is the lowest confidence a matched record can get.
	ConfidenceFloor = 0.3
	// confidenceSlope is the confidence lost per unit of combined distance.
	confidenceSlope = 1 - ConfidenceFloor
	// minMidpoint keeps the relative distance finite for zero-width ranges at 0.
	minMidpoint = 1e-3
	// MaxFallbackConfidence caps records matched outside their ranges so
	// only contained matches report 1.
	MaxFallbackConfidence = 0.99
	// MinDoseML is the smallest volume reported for a matched record.
	MinDoseML = 0.01
	// DefaultSuggestions is the number of ranked records Suggest returns
	// when no limit is given.
	DefaultSuggestions = 3
)

// IndexSource returns the current dataset snapshot.
type IndexSource interface {
	GetIndex() *dataset.Index
}

// Query describes the animal being treated.
type Query struct {
	AnimalType          string  `json:"animal_type"`
	Disease             string  `json:"disease"`
	WeightKg            float64 `json:"weight_kg"`
	AgeDays             int     `json:"age_days"`
	PreferredAntibiotic string  `json:"preferred_antibiotic,omitempty"`
	// RequirePreferred turns an unknown preferred antibiotic into a
	// NoMatchError instead of ignoring it.
	RequirePreferred bool `json:"-"`
}

// Result is the recommendation for one query.
type Result struct {
	Antibiotic             string                  `json:"antibiotic"`
	SingleDoseML           float64                 `json:"single_dose_ml"`
	DosageMg               float64                 `json:"dosage_mg"`
	DosagePerKg            float64                 `json:"dosage_per_kg"`
	AgeCategory            string                  `json:"age_category"`
	Confidence             float64                 `json:"confidence"`
	CalculationNote        string                  `json:"calculation_note"`
	SuggestedTreatmentDays int                     `json:"suggested_treatment_days,omitempty"`
	Matched                dataset.TreatmentRecord `json:"matched_record"`
}

// Engine is safe for concurrent use. Each call reads one index snapshot.
type Engine struct {
	source  IndexSource
	buckets reference.AgeBuckets
}

// NewEngine returns an engine reading from source. An empty bucket table
// falls back to the built-in one.
func NewEngine(source IndexSource, buckets reference.AgeBuckets) *Engine {
	if len(buckets) == 0 {
		buckets = reference.Default().AgeBuckets
	}
	return &Engine{source: source, buckets: buckets}
}

// Recommend selects the candidate closest to the query's weight and age and
// computes its dose.
func (e *Engine) Recommend(q Query) (Result, error) {
	if err := validateQuery(q); err != nil {
		return Result{}, err
	}

	idx := e.source.GetIndex()
	if idx == nil {
		return Result{}, ErrIndexNotLoaded
	}

	candidates := idx.Lookup(q.AnimalType, q.Disease)
	if len(candidates) == 0 {
		return Result{}, &NoMatchError{AnimalType: q.AnimalType, Disease: q.Disease}
	}

	var notes []string
	if pref := strings.TrimSpace(q.PreferredAntibiotic); pref != "" {
		preferred := filterByAntibiotic(candidates, pref)
		switch {
		case len(preferred) > 0:
			candidates = preferred
			notes = append(notes, fmt.Sprintf("Preferred antibiotic %s applied.", preferred[0].Antibiotic))
		case q.RequirePreferred:
			return Result{}, &NoMatchError{AnimalType: q.AnimalType, Disease: q.Disease, Antibiotic: pref}
		default:
			notes = append(notes, fmt.Sprintf("Preferred antibiotic %s has no data for this disease and was ignored.", pref))
		}
	}

	ranked := rankCandidates(candidates, q.WeightKg, q.AgeDays)
	return e.resultFor(ranked[0], q, notes), nil
}

// Suggestion is one ranked candidate record with its computed dose.
type Suggestion struct {
	Rank            int     `json:"rank"`
	SimilarityScore float64 `json:"similarity_score"`
	Distance        float64 `json:"distance"`
	Result
}

// Suggest ranks every candidate for the animal and disease by distance and
// returns the closest limit of them, each with its own dose. A limit below 1
// uses DefaultSuggestions. The preferred antibiotic is ignored.
func (e *Engine) Suggest(q Query, limit int) ([]Suggestion, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = DefaultSuggestions
	}

	idx := e.source.GetIndex()
	if idx == nil {
		return nil, ErrIndexNotLoaded
	}

	candidates := idx.Lookup(q.AnimalType, q.Disease)
	if len(candidates) == 0 {
		return nil, &NoMatchError{AnimalType: q.AnimalType, Disease: q.Disease}
	}

	ranked := rankCandidates(candidates, q.WeightKg, q.AgeDays)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	out := make([]Suggestion, len(ranked))
	for i, c := range ranked {
		out[i] = Suggestion{
			Rank:            i + 1,
			SimilarityScore: similarityFor(c.score),
			Distance:        math.Round(c.score.combined*1e4) / 1e4,
			Result:          e.resultFor(c, q, nil),
		}
	}
	return out, nil
}

// resultFor computes the dose of one scored record. notes are appended after
// the match note.
func (e *Engine) resultFor(c candidate, q Query, notes []string) Result {
	best := c.record

	doseMg := best.DosageValue
	dosagePerKg := best.DosageValue
	switch best.DosageUnit {
	case dataset.PerKg:
		doseMg = best.DosageValue * q.WeightKg
		notes = append(notes, fmt.Sprintf("%s mg/kg x %s kg = %s mg at %s mg/ml.",
			formatNumber(best.DosageValue), formatNumber(q.WeightKg), formatNumber(Round2(doseMg)), formatNumber(best.ConcentrationMgPerML)))
	case dataset.FixedMg:
		dosagePerKg = Round2(best.DosageValue / q.WeightKg)
		notes = append(notes, fmt.Sprintf("Fixed dose of %s mg at %s mg/ml.",
			formatNumber(best.DosageValue), formatNumber(best.ConcentrationMgPerML)))
	}

	singleDose := Round2(doseMg / best.ConcentrationMgPerML)
	if singleDose < MinDoseML {
		singleDose = MinDoseML
		notes = append(notes, fmt.Sprintf("Volume raised to the %s ml minimum.", formatNumber(MinDoseML)))
	}

	notes = append([]string{matchNote(best, c.score)}, notes...)

	return Result{
		Antibiotic:             best.Antibiotic,
		SingleDoseML:           singleDose,
		DosageMg:               Round2(doseMg),
		DosagePerKg:            dosagePerKg,
		AgeCategory:            e.buckets.Category(q.AgeDays),
		Confidence:             confidenceFor(c.score),
		CalculationNote:        strings.Join(notes, " "),
		SuggestedTreatmentDays: best.TreatmentDays,
		Matched:                best,
	}
}

func validateQuery(q Query) error {
	if strings.TrimSpace(q.AnimalType) == "" {
		return &InvalidQueryError{Field: "animal_type", Reason: "is required"}
	}
	if strings.TrimSpace(q.Disease) == "" {
		return &InvalidQueryError{Field: "disease", Reason: "is required"}
	}
	if math.IsNaN(q.WeightKg) || math.IsInf(q.WeightKg, 0) || q.WeightKg <= 0 {
		return &InvalidQueryError{Field: "weight_kg", Reason: "must be greater than 0"}
	}
	if q.AgeDays < 0 {
		return &InvalidQueryError{Field: "age_days", Reason: "must not be negative"}
	}
	return nil
}

func filterByAntibiotic(records []dataset.TreatmentRecord, antibiotic string) []dataset.TreatmentRecord {
	key := dataset.NormalizeKey(antibiotic)
	var out []dataset.TreatmentRecord
	for _, rec := range records {
		if dataset.NormalizeKey(rec.Antibiotic) == key {
			out = append(out, rec)
		}
	}
	return out
}

type score struct {
	weight   float64
	age      float64
	combined float64
}

func (s score) exact() bool {
	return s.weight == 0 && s.age == 0
}

type candidate struct {
	record dataset.TreatmentRecord
	score  score
}

// rankCandidates orders records by combined distance. Ties keep dataset order.
func rankCandidates(records []dataset.TreatmentRecord, weightKg float64, ageDays int) []candidate {
	out := make([]candidate, len(records))
	for i, rec := range records {
		out[i] = candidate{record: rec, score: scoreRecord(rec, weightKg, ageDays)}
	}
	slices.SortStableFunc(out, func(a, b candidate) int {
		return cmp.Compare(a.score.combined, b.score.combined)
	})
	return out
}

func scoreRecord(rec dataset.TreatmentRecord, weightKg float64, ageDays int) score {
	w := axisDistance(weightKg, rec.WeightMinKg, rec.WeightMaxKg)
	a := axisDistance(float64(ageDays), float64(rec.AgeMinDays), float64(rec.AgeMaxDays))
	return score{weight: w, age: a, combined: (w + a) / 2}
}

// axisDistance is 0 inside [lo, hi], otherwise the distance to the range
// midpoint relative to the midpoint.
func axisDistance(value, lo, hi float64) float64 {
	if value >= lo && value <= hi {
		return 0
	}
	mid := (lo + hi) / 2
	return math.Abs(value-mid) / math.Max(mid, minMidpoint)
}

func confidenceFor(s score) float64 {
	if s.exact() {
		return 1
	}
	c := Round2(math.Max(ConfidenceFloor, 1-confidenceSlope*s.combined))
	return math.Min(MaxFallbackConfidence, c)
}

// similarityFor maps a distance to (0, 1]; only contained matches score 1.
func similarityFor(s score) float64 {
	if s.exact() {
		return 1
	}
	return math.Min(0.9999, math.Round(1e4/(1+s.combined))/1e4)
}

func matchNote(rec dataset.TreatmentRecord, s score) string {
	ranges := fmt.Sprintf("weight %s-%s kg, age %d-%d days",
		formatNumber(rec.WeightMinKg), formatNumber(rec.WeightMaxKg), rec.AgeMinDays, rec.AgeMaxDays)
	if s.exact() {
		return fmt.Sprintf("Exact match on %s record (%s).", rec.Antibiotic, ranges)
	}

	var outside []string
	if s.weight > 0 {
		outside = append(outside, "weight")
	}
	if s.age > 0 {
		outside = append(outside, "age")
	}
	return fmt.Sprintf("Nearest %s record (%s); %s outside the recorded range.",
		rec.Antibiotic, ranges, strings.Join(outside, " and "))
}

// Round2 rounds half away from zero to 2 decimals. v is first snapped to
// 8 decimals so inputs like 1.005 round as written.
func Round2(v float64) float64 {
	scaled := math.Round(v*1e8) / 1e6
	return math.Round(scaled) / 100
}

func formatNumber(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}
