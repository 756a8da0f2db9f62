// Package reference holds the static tables the dosage calculation relies
// on: formulation concentrations per antibiotic and the age category buckets.
// Both ship with built-in defaults and can be overridden from a YAML file.
package reference

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/giygas/agrisafe-api/dataset"
	"gopkg.in/yaml.v3"
)

// DefaultConcentrationMgPerML is used for antibiotics missing from the table.
// 10 mg/ml is the conversion the shop applied before per-product data existed.
const DefaultConcentrationMgPerML = 10.0

// AgeBucket names the ages up to and including MaxDays.
type AgeBucket struct {
	Name    string `yaml:"name"`
	MaxDays int    `yaml:"max_days"`
}

// AgeBuckets is ordered by MaxDays. The last bucket is open ended and its
// MaxDays is ignored.
type AgeBuckets []AgeBucket

// Category returns the bucket name for ageDays.
func (b AgeBuckets) Category(ageDays int) string {
	if len(b) == 0 {
		return ""
	}
	for _, bucket := range b[:len(b)-1] {
		if ageDays <= bucket.MaxDays {
			return bucket.Name
		}
	}
	return b[len(b)-1].Name
}

func (b AgeBuckets) validate() error {
	if len(b) == 0 {
		return errors.New("age_buckets cannot be empty")
	}
	prev := -1
	for i, bucket := range b {
		if bucket.Name == "" {
			return fmt.Errorf("age bucket %d has no name", i)
		}
		if i == len(b)-1 {
			break
		}
		if bucket.MaxDays <= prev {
			return fmt.Errorf("age bucket %q: max_days %d must be greater than %d", bucket.Name, bucket.MaxDays, prev)
		}
		prev = bucket.MaxDays
	}
	return nil
}

// Tables is the full reference data set.
type Tables struct {
	DefaultConcentration float64            `yaml:"default_concentration_mg_per_ml"`
	Concentrations       map[string]float64 `yaml:"concentrations_mg_per_ml"`
	AgeBuckets           AgeBuckets         `yaml:"age_buckets"`
}

var _ dataset.ConcentrationSource = (*Tables)(nil)

// Default returns the built-in tables.
func Default() *Tables {
	t := &Tables{
		DefaultConcentration: DefaultConcentrationMgPerML,
		Concentrations: map[string]float64{
			"Amoxicillin":     100,
			"Amprolium":       200,
			"Colistin":        50,
			"Doxycycline":     50,
			"Enrofloxacin":    100,
			"Erythromycin":    100,
			"Florfenicol":     100,
			"Neomycin":        70,
			"Oxytetracycline": 100,
			"Sulfadimidine":   330,
			"Tiamulin":        125,
			"Tylosin":         100,
		},
		AgeBuckets: AgeBuckets{
			{Name: "chick", MaxDays: 14},
			{Name: "grower", MaxDays: 42},
			{Name: "adult"},
		},
	}
	t.normalize()
	return t
}

// Load reads tables from a YAML file. An empty path returns Default().
func Load(path string) (*Tables, error) {
	if path == "" {
		return Default(), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference file: %w", err)
	}
	defer file.Close()

	return Parse(file)
}

// Parse decodes YAML tables. Sections left out of the document keep their
// defaults; concentrations listed in the document are merged over the
// built-in ones.
func Parse(r io.Reader) (*Tables, error) {
	var doc Tables
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to decode reference file: %w", err)
	}

	t := Default()
	if doc.DefaultConcentration != 0 {
		t.DefaultConcentration = doc.DefaultConcentration
	}
	for name, value := range doc.Concentrations {
		t.Concentrations[dataset.NormalizeKey(name)] = value
	}
	if len(doc.AgeBuckets) > 0 {
		t.AgeBuckets = doc.AgeBuckets
	}

	if err := t.validate(); err != nil {
		return nil, fmt.Errorf("invalid reference tables: %w", err)
	}
	return t, nil
}

func (t *Tables) normalize() {
	normalized := make(map[string]float64, len(t.Concentrations))
	for name, value := range t.Concentrations {
		normalized[dataset.NormalizeKey(name)] = value
	}
	t.Concentrations = normalized
}

func (t *Tables) validate() error {
	if t.DefaultConcentration <= 0 {
		return fmt.Errorf("default_concentration_mg_per_ml must be positive, got %v", t.DefaultConcentration)
	}
	for name, value := range t.Concentrations {
		if value <= 0 {
			return fmt.Errorf("concentration for %q must be positive, got %v", name, value)
		}
	}
	return t.AgeBuckets.validate()
}

// ConcentrationFor returns mg/ml for antibiotic, falling back to the default.
func (t *Tables) ConcentrationFor(antibiotic string) float64 {
	if c, ok := t.Concentrations[dataset.NormalizeKey(antibiotic)]; ok {
		return c
	}
	return t.DefaultConcentration
}
