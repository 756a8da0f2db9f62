package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

type stubConcentrations map[string]float64

func (s stubConcentrations) ConcentrationFor(antibiotic string) float64 {
	if c, ok := s[NormalizeKey(antibiotic)]; ok {
		return c
	}
	return 10
}

var testConcentrations = stubConcentrations{"doxycycline": 50, "amprolium": 100}

const header = "animal_type,disease,weight_min_kg,weight_max_kg,age_min_days,age_max_days,antibiotic,dosage_value,dosage_unit,treatment_days\n"

const sampleCSV = header +
	"Poultry,CRD,0.5,2.0,15,42,Tylosin,25,per_kg,5\n" +
	"Poultry,CRD,1.5,4.0,43,540,Doxycycline,20,per_kg,5\n" +
	"Poultry,Coccidiosis,0.04,0.5,0,14,Amprolium,120,fixed_mg,\n" +
	"Duck,CRD,1.0,3.0,21,365,Tylosin,25,per_kg,4\n" +
	"Poultry,CRD,0.5,2.0,15,42,Tylosin,30,per_kg,5\n"

func mustParse(t *testing.T, content string) *Index {
	t.Helper()
	idx, err := Parse(strings.NewReader(content), testConcentrations)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return idx
}

func TestParseValidDataset(t *testing.T) {
	idx := mustParse(t, sampleCSV)

	if idx.Len() != 5 {
		t.Fatalf("Expected 5 records, got %d", idx.Len())
	}

	recs := idx.Lookup("Poultry", "CRD")
	if len(recs) != 3 {
		t.Fatalf("Expected 3 poultry CRD records, got %d", len(recs))
	}
	if recs[0].Antibiotic != "Tylosin" || recs[1].Antibiotic != "Doxycycline" || recs[2].DosageValue != 30 {
		t.Errorf("Records not in dataset order: %+v", recs)
	}
	if recs[1].ConcentrationMgPerML != 50 {
		t.Errorf("Expected doxycycline concentration 50, got %v", recs[1].ConcentrationMgPerML)
	}
	if recs[0].ConcentrationMgPerML != 10 {
		t.Errorf("Expected default concentration 10, got %v", recs[0].ConcentrationMgPerML)
	}
	if recs[0].TreatmentDays != 5 {
		t.Errorf("Expected 5 treatment days, got %d", recs[0].TreatmentDays)
	}

	cocci := idx.Lookup("poultry", "coccidiosis")
	if len(cocci) != 1 {
		t.Fatalf("Expected 1 coccidiosis record, got %d", len(cocci))
	}
	if cocci[0].DosageUnit != FixedMg {
		t.Errorf("Expected fixed_mg, got %s", cocci[0].DosageUnit)
	}
	if cocci[0].TreatmentDays != 0 {
		t.Errorf("Expected empty treatment_days to be 0, got %d", cocci[0].TreatmentDays)
	}
}

func TestLookupNormalizesKeys(t *testing.T) {
	idx := mustParse(t, sampleCSV)

	tests := []struct {
		animal, disease string
		want            int
	}{
		{"Poultry", "CRD", 3},
		{"  poultry ", "crd", 3},
		{"POULTRY", "Crd", 3},
		{"duck", "CRD", 1},
		{"Goat", "CRD", 0},
		{"Poultry", "Unknown", 0},
	}

	for _, tt := range tests {
		t.Run(tt.animal+"/"+tt.disease, func(t *testing.T) {
			if got := len(idx.Lookup(tt.animal, tt.disease)); got != tt.want {
				t.Errorf("Lookup(%q, %q) returned %d records, want %d", tt.animal, tt.disease, got, tt.want)
			}
		})
	}
}

func TestLookupReturnsCopy(t *testing.T) {
	idx := mustParse(t, sampleCSV)

	recs := idx.Lookup("Poultry", "CRD")
	recs[0].Antibiotic = "Changed"

	if idx.Lookup("Poultry", "CRD")[0].Antibiotic != "Tylosin" {
		t.Error("Mutating a lookup result changed the index")
	}
}

func TestListings(t *testing.T) {
	idx := mustParse(t, sampleCSV)

	if got, want := idx.AllDiseases(), []string{"CRD", "Coccidiosis"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AllDiseases() = %v, want %v", got, want)
	}
	if got, want := idx.AntibioticsFor("crd"), []string{"Tylosin", "Doxycycline"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AntibioticsFor() = %v, want %v", got, want)
	}
	if got := idx.AntibioticsFor("rabies"); len(got) != 0 {
		t.Errorf("Expected no antibiotics for unknown disease, got %v", got)
	}
	if got, want := idx.AnimalTypes(), []string{"Duck", "Poultry"}; !reflect.DeepEqual(got, want) {
		t.Errorf("AnimalTypes() = %v, want %v", got, want)
	}
	if !idx.HasDisease(" coccidiosis") || idx.HasDisease("rabies") {
		t.Error("HasDisease returned wrong result")
	}
}

func TestParseSkipsBadRows(t *testing.T) {
	content := header +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,abc,2.0,15,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,x,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,zero,per_kg,5\n" +
		"Poultry,CRD,3.0,2.0,15,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,50,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,0,per_kg,5\n" +
		"Poultry,CRD,-1,2.0,15,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,25,per_litre,5\n" +
		"Poultry,CRD,0.5,2.0\n" +
		",CRD,0.5,2.0,15,42,Tylosin,25,per_kg,5\n" +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,25,per_kg,-2\n" +
		"Poultry,CRD,0.5,2.0,15,42,Tylosin,NaN,per_kg,5\n" +
		"Poultry,CRD,1.0,3.0,20,30,Tylosin,10,mg/kg,5\n"

	idx := mustParse(t, content)
	if idx.Len() != 2 {
		t.Fatalf("Expected 2 valid records, got %d", idx.Len())
	}
	if idx.Lookup("Poultry", "CRD")[1].DosageUnit != PerKg {
		t.Error("Expected mg/kg to parse as per_kg")
	}
}

func TestParseFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
		reason  string
	}{
		{"empty", "", "file is empty"},
		{"missing columns", "animal_type,disease,antibiotic\nPoultry,CRD,Tylosin\n", "invalid header"},
		{"duplicate column", "disease," + header, "invalid header"},
		{"no valid rows", header + "Poultry,CRD,abc,2.0,15,42,Tylosin,25,per_kg,5\n", "no valid rows"},
		{"header only", header, "no valid rows"},
		{"bad quoting", header + "Poultry,\"CRD,0.5\n", "malformed CSV"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.content), testConcentrations)
			var loadErr *DataLoadError
			if !errors.As(err, &loadErr) {
				t.Fatalf("Expected DataLoadError, got %v", err)
			}
			if loadErr.Reason != tt.reason {
				t.Errorf("Expected reason %q, got %q", tt.reason, loadErr.Reason)
			}
		})
	}
}

func TestParseWithoutConcentrations(t *testing.T) {
	_, err := Parse(strings.NewReader(sampleCSV), nil)
	var loadErr *DataLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected DataLoadError, got %v", err)
	}
}

func TestParseHeaderVariants(t *testing.T) {
	content := "\xef\xbb\xbfAnimal Type,Disease,Weight Min KG,WEIGHT_MAX_KG,age_min_days,Age Max Days,Antibiotic,Dosage Value,Dosage Unit\n" +
		"# comment lines are ignored\n" +
		"Poultry, CRD ,0.5,2.0,15,42,Tylosin,25,per_kg\n"

	idx := mustParse(t, content)
	if len(idx.Lookup("poultry", "crd")) != 1 {
		t.Error("Expected header names to match case-insensitively")
	}
}

func TestParseLatin1(t *testing.T) {
	// 0xE9 is e-acute in ISO-8859-1
	content := header + "Poultry,Maladie d\xe9g\xe9n\xe9rative,0.5,2.0,15,42,Tylosin,25,per_kg,5\n"

	idx := mustParse(t, content)
	diseases := idx.AllDiseases()
	if len(diseases) != 1 || diseases[0] != "Maladie dégénérative" {
		t.Errorf("Expected Latin-1 disease to be decoded, got %q", diseases)
	}
	if len(idx.Lookup("POULTRY", "MALADIE DÉGÉNÉRATIVE")) != 1 {
		t.Error("Expected case-folded lookup on decoded name")
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("Failed to write dataset: %v", err)
	}

	idx, err := Load(path, testConcentrations)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if idx.Source() != path {
		t.Errorf("Expected source %s, got %s", path, idx.Source())
	}

	_, err = Load(filepath.Join(dir, "missing.csv"), testConcentrations)
	var loadErr *DataLoadError
	if !errors.As(err, &loadErr) {
		t.Fatalf("Expected DataLoadError for missing file, got %v", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("Expected DataLoadError to unwrap to os.ErrNotExist")
	}
}

func TestNilIndex(t *testing.T) {
	var idx *Index
	if idx.Len() != 0 || idx.Lookup("a", "b") != nil || idx.AllDiseases() != nil || idx.HasDisease("x") {
		t.Error("Expected nil index to behave as empty")
	}
}

func TestNormalizeKey(t *testing.T) {
	tests := map[string]string{
		"  Newcastle   Disease ": "newcastle disease",
		"CRD":                    "crd",
		"ÉCOLE":                  "école",
		"":                       "",
	}
	for in, want := range tests {
		if got := NormalizeKey(in); got != want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", in, got, want)
		}
	}
}
