package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/giygas/agrisafe-api/recommend"
	"github.com/giygas/agrisafe-api/schedule"
)

func sampleItem(antibiotic string, days int) Item {
	res := recommend.Result{Antibiotic: antibiotic, SingleDoseML: 0.3, DosagePerKg: 25, AgeCategory: "grower", Confidence: 1}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := schedule.Schedule{
		SingleDoseML: 0.3, DailyFrequency: 2, TreatmentDays: days,
		StartDate: start, EndDate: start.AddDate(0, 0, days-1),
		TotalDailyDosageML: 0.6, TotalTreatmentDosageML: 0.6 * float64(days), FrequencyDescription: "twice daily",
	}
	return NewItem("", DoseFromDataset, "", res, s)
}

func sampleRecord(farmerID string) *Record {
	q := recommend.Query{AnimalType: "Poultry", Disease: "CRD", WeightKg: 1.2, AgeDays: 21}
	owner := Owner{FarmerID: farmerID, ShopID: "shop-1", FarmerMobile: "9876543210"}
	return NewRecord(owner, q, "grower", []Item{sampleItem("Tylosin", 5), sampleItem("Doxycycline", 4)})
}

func TestNewRecord(t *testing.T) {
	rec := sampleRecord("F1")

	if !ValidID(rec.ID) {
		t.Errorf("Expected a uuid id, got %q", rec.ID)
	}
	if rec.FarmerID != "F1" || rec.AgeCategory != "grower" || rec.WeightKg != 1.2 {
		t.Errorf("Record fields not copied: %+v", rec)
	}
	if len(rec.Items) != 2 {
		t.Fatalf("Expected 2 items, got %d", len(rec.Items))
	}
	for i, item := range rec.Items {
		if item.RecommendationID != rec.ID || item.Position != i+1 {
			t.Errorf("Item %d not linked to its record: %+v", i, item)
		}
	}
	if rec.Items[0].Antibiotic != "Tylosin" || rec.Items[1].TreatmentDays != 4 || rec.Items[0].DoseSource != DoseFromDataset {
		t.Errorf("Item fields not copied: %+v", rec.Items)
	}
	if rec.IsClaimed || rec.ClaimedBy != nil {
		t.Error("New records must be unclaimed")
	}
	if sampleRecord("F1").ID == rec.ID {
		t.Error("Expected distinct ids")
	}
}

func TestValidID(t *testing.T) {
	if ValidID("not-a-uuid") || ValidID("") {
		t.Error("Expected invalid ids to be rejected")
	}
	if !ValidID("7d444840-9dc0-11d1-b245-5ffdce74fad2") {
		t.Error("Expected a canonical uuid to be accepted")
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	clock := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	store.now = func() time.Time {
		clock = clock.Add(time.Minute)
		return clock
	}

	first := sampleRecord("F1")
	second := sampleRecord("F1")
	other := sampleRecord("F2")
	for _, rec := range []*Record{first, second, other} {
		if err := store.Save(ctx, rec); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	if err := store.Save(ctx, first); err == nil {
		t.Error("Expected duplicate save to fail")
	}

	got, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	list, err := store.ListByFarmer(ctx, "F1")
	if err != nil {
		t.Fatalf("ListByFarmer failed: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("Expected newest first for F1, got %+v", list)
	}

	empty, _ := store.ListByFarmer(ctx, "nobody")
	if empty == nil || len(empty) != 0 {
		t.Errorf("Expected empty non-nil list, got %v", empty)
	}

	claimed, err := store.Claim(ctx, first.ID, "Shop A")
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	if !claimed.IsClaimed || claimed.ClaimedBy == nil || *claimed.ClaimedBy != "Shop A" {
		t.Errorf("Expected record claimed by Shop A, got %+v", claimed)
	}
	if !claimed.UpdatedAt.After(claimed.CreatedAt) {
		t.Error("Expected UpdatedAt to move forward")
	}

	if _, err := store.Claim(ctx, first.ID, "Shop A"); err != nil {
		t.Errorf("Re-claiming by the same shop should succeed: %v", err)
	}
	if _, err := store.Claim(ctx, first.ID, "Shop B"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}

	unclaimed, _ := store.ListUnclaimed(ctx)
	if len(unclaimed) != 2 {
		t.Errorf("Expected 2 unclaimed records, got %d", len(unclaimed))
	}

	held, _ := store.ListClaimedBy(ctx, "Shop A")
	if len(held) != 1 || held[0].ID != first.ID || len(held[0].Items) != 2 {
		t.Errorf("Expected Shop A to hold the first record with its items, got %+v", held)
	}
	if none, _ := store.ListClaimedBy(ctx, "Shop B"); len(none) != 0 {
		t.Errorf("Expected nothing claimed by Shop B, got %d", len(none))
	}

	released, err := store.Unclaim(ctx, first.ID)
	if err != nil {
		t.Fatalf("Unclaim failed: %v", err)
	}
	if released.IsClaimed || released.ClaimedBy != nil {
		t.Errorf("Expected record released, got %+v", released)
	}

	for name, call := range map[string]func() error{
		"get":     func() error { _, err := store.Get(ctx, "missing"); return err },
		"claim":   func() error { _, err := store.Claim(ctx, "missing", "Shop A"); return err },
		"unclaim": func() error { _, err := store.Unclaim(ctx, "missing"); return err },
	} {
		if err := call(); !errors.Is(err, ErrNotFound) {
			t.Errorf("%s: expected ErrNotFound, got %v", name, err)
		}
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	rec := sampleRecord("F1")
	if err := store.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	rec.Items[0].Antibiotic = "changed after save"
	got, _ := store.Get(ctx, rec.ID)
	got.FarmerID = "changed after get"
	got.Items[1].Antibiotic = "changed after get"

	again, _ := store.Get(ctx, rec.ID)
	if again.FarmerID != "F1" || again.Items[0].Antibiotic != "Tylosin" || again.Items[1].Antibiotic != "Doxycycline" {
		t.Errorf("Store shares memory with callers: %+v", again)
	}
}
