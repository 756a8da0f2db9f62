// Package history stores issued recommendations so farmers and shops can
// look them up and shops can claim them. MySQLStore is used when a database
// is configured; MemoryStore otherwise.
package history

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/schedule"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no record has the requested id
	ErrNotFound = errors.New("recommendation not found")
	// ErrAlreadyClaimed is returned when another shop holds the claim
	ErrAlreadyClaimed = errors.New("recommendation already claimed")
)

// Dose sources recorded on items
const (
	DoseFromDataset  = "dataset"
	DoseFromProvided = "provided"
)

// Store persists recommendation records.
type Store interface {
	Save(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]Record, error)
	ListUnclaimed(ctx context.Context) ([]Record, error)
	ListClaimedBy(ctx context.Context, claimedBy string) ([]Record, error)
	Claim(ctx context.Context, id, claimedBy string) (*Record, error)
	Unclaim(ctx context.Context, id string) (*Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// Record is one stored treatment plan: who it was issued for, the animal,
// and one Item per antibiotic. Claims apply to the whole plan.
type Record struct {
	ID           string `db:"id" json:"id"`
	FarmerID     string `db:"farmer_id" json:"farmer_id"`
	ShopID       string `db:"shop_id" json:"shop_id,omitempty"`
	FarmerMobile string `db:"farmer_mobile" json:"farmer_mobile,omitempty"`
	Notes        string `db:"notes" json:"notes,omitempty"`

	AnimalType  string  `db:"animal_type" json:"animal_type"`
	Disease     string  `db:"disease" json:"disease"`
	WeightKg    float64 `db:"weight_kg" json:"weight_kg"`
	AgeDays     int     `db:"age_days" json:"age_days"`
	AgeCategory string  `db:"age_category" json:"age_category"`

	IsClaimed bool      `db:"is_claimed" json:"is_claimed"`
	ClaimedBy *string   `db:"claimed_by" json:"claimed_by,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	Items []Item `db:"-" json:"items"`
}

// Item is the dose and course of one antibiotic within a plan.
type Item struct {
	RecommendationID    string `db:"recommendation_id" json:"-"`
	Position            int    `db:"position" json:"position"`
	RequestedAntibiotic string `db:"requested_antibiotic" json:"requested_antibiotic,omitempty"`

	Antibiotic      string  `db:"antibiotic" json:"antibiotic"`
	SingleDoseML    float64 `db:"single_dose_ml" json:"single_dose_ml"`
	DosagePerKg     float64 `db:"dosage_per_kg" json:"dosage_per_kg"`
	Confidence      float64 `db:"confidence" json:"confidence"`
	CalculationNote string  `db:"calculation_note" json:"calculation_note"`
	DoseSource      string  `db:"dose_source" json:"dose_source"`
	Notes           string  `db:"notes" json:"notes,omitempty"`

	DailyFrequency         int       `db:"daily_frequency" json:"daily_frequency"`
	TreatmentDays          int       `db:"treatment_days" json:"treatment_days"`
	StartDate              time.Time `db:"start_date" json:"-"`
	EndDate                time.Time `db:"end_date" json:"-"`
	TotalDailyDosageML     float64   `db:"total_daily_dosage_ml" json:"total_daily_dosage_ml"`
	TotalTreatmentDosageML float64   `db:"total_treatment_dosage_ml" json:"total_treatment_dosage_ml"`
	FrequencyDescription   string    `db:"frequency_description" json:"frequency_description"`
}

// Owner identifies who a recommendation was issued for.
type Owner struct {
	FarmerID     string
	ShopID       string
	FarmerMobile string
	Notes        string
}

// NewItem copies one computed dose and schedule into an item.
// requested is the antibiotic the caller asked for, if any.
func NewItem(requested, doseSource, notes string, res recommend.Result, s schedule.Schedule) Item {
	return Item{
		RequestedAntibiotic:    requested,
		Antibiotic:             res.Antibiotic,
		SingleDoseML:           s.SingleDoseML,
		DosagePerKg:            res.DosagePerKg,
		Confidence:             res.Confidence,
		CalculationNote:        res.CalculationNote,
		DoseSource:             doseSource,
		Notes:                  notes,
		DailyFrequency:         s.DailyFrequency,
		TreatmentDays:          s.TreatmentDays,
		StartDate:              s.StartDate,
		EndDate:                s.EndDate,
		TotalDailyDosageML:     s.TotalDailyDosageML,
		TotalTreatmentDosageML: s.TotalTreatmentDosageML,
		FrequencyDescription:   s.FrequencyDescription,
	}
}

// NewRecord assembles an unsaved record with a fresh id and numbers its
// items from 1.
func NewRecord(owner Owner, q recommend.Query, ageCategory string, items []Item) *Record {
	rec := &Record{
		ID:           uuid.NewString(),
		FarmerID:     owner.FarmerID,
		ShopID:       owner.ShopID,
		FarmerMobile: owner.FarmerMobile,
		Notes:        owner.Notes,
		AnimalType:   q.AnimalType,
		Disease:      q.Disease,
		WeightKg:     q.WeightKg,
		AgeDays:      q.AgeDays,
		AgeCategory:  ageCategory,
		Items:        make([]Item, len(items)),
	}
	for i, item := range items {
		item.RecommendationID = rec.ID
		item.Position = i + 1
		rec.Items[i] = item
	}
	return rec
}

// clone copies rec including its items
func (r *Record) clone() *Record {
	out := *r
	out.Items = slices.Clone(r.Items)
	if r.ClaimedBy != nil {
		claimedBy := *r.ClaimedBy
		out.ClaimedBy = &claimedBy
	}
	return &out
}

// ValidID reports whether id looks like a record id
func ValidID(id string) bool {
	return uuid.Validate(id) == nil
}
