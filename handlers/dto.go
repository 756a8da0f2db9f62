package handlers

import (
	"github.com/giygas/agrisafe-api/dataset"
	"github.com/giygas/agrisafe-api/history"
	"github.com/giygas/agrisafe-api/schedule"
)

// PredictRequest is the body of POST /v1/medicine/predict.
// Pointer fields distinguish an absent value from zero.
//
// Without Antibiotics the request describes a single treatment steered by
// PreferredAntibiotic. With Antibiotics each item becomes one treatment of
// the plan, and the top level frequency and days act as item defaults.
type PredictRequest struct {
	AnimalType          string            `json:"animal_type"`
	Disease             string            `json:"disease"`
	WeightKg            float64           `json:"weight_kg"`
	AgeDays             *int              `json:"age_days"`
	PreferredAntibiotic string            `json:"preferred_antibiotic,omitempty"`
	DailyFrequency      *int              `json:"daily_frequency,omitempty"`
	TreatmentDays       *int              `json:"treatment_days,omitempty"`
	StartDate           string            `json:"start_date,omitempty"`
	Antibiotics         []PlanItemRequest `json:"antibiotics,omitempty"`
}

// PlanItemRequest is one antibiotic of a multi-antibiotic plan. When both
// SingleDoseML and TreatmentDays are set (values shown by an earlier
// preview) they are kept instead of recomputed.
type PlanItemRequest struct {
	Antibiotic     string   `json:"antibiotic"`
	DailyFrequency *int     `json:"daily_frequency,omitempty"`
	TreatmentDays  *int     `json:"treatment_days,omitempty"`
	SingleDoseML   *float64 `json:"single_dose_ml,omitempty"`
	Notes          string   `json:"notes,omitempty"`
}

// RecommendRequest is the body of POST /v1/medicine/recommend.
type RecommendRequest struct {
	PredictRequest
	FarmerID     string `json:"farmer_id"`
	ShopID       string `json:"shop_id,omitempty"`
	FarmerMobile string `json:"farmer_mobile,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// SuggestRequest is the body of POST /v1/medicine/suggest.
type SuggestRequest struct {
	AnimalType string  `json:"animal_type"`
	Disease    string  `json:"disease"`
	WeightKg   float64 `json:"weight_kg"`
	AgeDays    *int    `json:"age_days"`
	Limit      *int    `json:"limit,omitempty"`
}

// ClaimRequest is the body of POST /v1/recommendations/{id}/claim.
type ClaimRequest struct {
	ClaimedBy string `json:"claimed_by"`
}

// TreatmentResponse is one antibiotic with its schedule.
type TreatmentResponse struct {
	Antibiotic             string                  `json:"antibiotic"`
	SingleDoseML           float64                 `json:"single_dose_ml"`
	DosageMg               float64                 `json:"dosage_mg"`
	DosagePerKg            float64                 `json:"dosage_per_kg"`
	AgeCategory            string                  `json:"age_category"`
	Confidence             float64                 `json:"confidence"`
	CalculationNote        string                  `json:"calculation_note"`
	DoseSource             string                  `json:"dose_source"`
	Notes                  string                  `json:"notes,omitempty"`
	DailyFrequency         int                     `json:"daily_frequency"`
	TreatmentDays          int                     `json:"treatment_days"`
	StartDate              string                  `json:"start_date"`
	EndDate                string                  `json:"end_date"`
	TotalDailyDosageML     float64                 `json:"total_daily_dosage_ml"`
	TotalTreatmentDosageML float64                 `json:"total_treatment_dosage_ml"`
	FrequencyDescription   string                  `json:"frequency_description"`
	Summary                string                  `json:"summary"`
	Matched                dataset.TreatmentRecord `json:"matched_record"`
}

// PredictionResponse carries the first treatment at the top level and
// every treatment of the plan under items.
type PredictionResponse struct {
	TreatmentResponse
	Items            []TreatmentResponse `json:"items"`
	TotalAntibiotics int                 `json:"total_antibiotics"`
}

// RecommendResponse adds the stored record id and notification outcome.
type RecommendResponse struct {
	ID string `json:"id"`
	PredictionResponse
	NotificationSent bool `json:"notification_sent"`
}

// RecordResponse renders a stored record with item dates as YYYY-MM-DD.
type RecordResponse struct {
	*history.Record
	Items []ItemResponse `json:"items"`
}

// ItemResponse renders one stored item.
type ItemResponse struct {
	history.Item
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func newTreatmentResponse(item planItem) TreatmentResponse {
	res, s := item.result, item.schedule
	return TreatmentResponse{
		Antibiotic:             res.Antibiotic,
		SingleDoseML:           s.SingleDoseML,
		DosageMg:               res.DosageMg,
		DosagePerKg:            res.DosagePerKg,
		AgeCategory:            res.AgeCategory,
		Confidence:             res.Confidence,
		CalculationNote:        res.CalculationNote,
		DoseSource:             item.doseSource,
		Notes:                  item.notes,
		DailyFrequency:         s.DailyFrequency,
		TreatmentDays:          s.TreatmentDays,
		StartDate:              s.StartDate.Format(schedule.DateLayout),
		EndDate:                s.EndDate.Format(schedule.DateLayout),
		TotalDailyDosageML:     s.TotalDailyDosageML,
		TotalTreatmentDosageML: s.TotalTreatmentDosageML,
		FrequencyDescription:   s.FrequencyDescription,
		Summary:                s.Summary,
		Matched:                res.Matched,
	}
}

func newPredictionResponse(p plan) PredictionResponse {
	items := make([]TreatmentResponse, len(p.items))
	for i, item := range p.items {
		items[i] = newTreatmentResponse(item)
	}
	return PredictionResponse{
		TreatmentResponse: items[0],
		Items:             items,
		TotalAntibiotics:  len(items),
	}
}

func newRecordResponse(rec *history.Record) RecordResponse {
	items := make([]ItemResponse, len(rec.Items))
	for i, item := range rec.Items {
		items[i] = ItemResponse{
			Item:      item,
			StartDate: item.StartDate.Format(schedule.DateLayout),
			EndDate:   item.EndDate.Format(schedule.DateLayout),
		}
	}
	return RecordResponse{Record: rec, Items: items}
}

func newRecordResponses(recs []history.Record) []RecordResponse {
	out := make([]RecordResponse, len(recs))
	for i := range recs {
		out[i] = newRecordResponse(&recs[i])
	}
	return out
}
