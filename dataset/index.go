package dataset

import (
	"slices"
	"sort"
)

type groupKey struct {
	animalType string
	disease    string
}

// Index is built once by Load or Parse and never mutated afterwards, so it
// can be shared between goroutines without locking.
type Index struct {
	source  string
	records []TreatmentRecord
	groups  map[groupKey][]int

	diseases      []string // display names, sorted
	animalTypes   []string // display names, sorted
	antibiotics   map[string][]string
	knownDiseases map[string]struct{}
}

func newIndex(source string, records []TreatmentRecord) *Index {
	idx := &Index{
		source:        source,
		records:       records,
		groups:        make(map[groupKey][]int),
		antibiotics:   make(map[string][]string),
		knownDiseases: make(map[string]struct{}),
	}

	seenAnimals := make(map[string]struct{})
	seenPairs := make(map[string]map[string]struct{})

	for i, rec := range records {
		animal := NormalizeKey(rec.AnimalType)
		disease := NormalizeKey(rec.Disease)
		key := groupKey{animalType: animal, disease: disease}
		idx.groups[key] = append(idx.groups[key], i)

		if _, ok := idx.knownDiseases[disease]; !ok {
			idx.knownDiseases[disease] = struct{}{}
			idx.diseases = append(idx.diseases, rec.Disease)
			seenPairs[disease] = make(map[string]struct{})
		}
		if _, ok := seenAnimals[animal]; !ok {
			seenAnimals[animal] = struct{}{}
			idx.animalTypes = append(idx.animalTypes, rec.AnimalType)
		}

		antibiotic := NormalizeKey(rec.Antibiotic)
		if _, ok := seenPairs[disease][antibiotic]; !ok {
			seenPairs[disease][antibiotic] = struct{}{}
			idx.antibiotics[disease] = append(idx.antibiotics[disease], rec.Antibiotic)
		}
	}

	sort.Strings(idx.diseases)
	sort.Strings(idx.animalTypes)
	return idx
}

// Source returns the path or name the index was loaded from.
func (idx *Index) Source() string {
	return idx.source
}

// Len returns the number of valid records.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.records)
}

// Lookup returns the records for an animal type and disease in dataset order.
func (idx *Index) Lookup(animalType, disease string) []TreatmentRecord {
	if idx == nil {
		return nil
	}
	positions := idx.groups[groupKey{animalType: NormalizeKey(animalType), disease: NormalizeKey(disease)}]
	if len(positions) == 0 {
		return nil
	}
	out := make([]TreatmentRecord, len(positions))
	for i, pos := range positions {
		out[i] = idx.records[pos]
	}
	return out
}

// AllDiseases returns every distinct disease, sorted.
func (idx *Index) AllDiseases() []string {
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.diseases)
}

// HasDisease reports whether any record names disease.
func (idx *Index) HasDisease(disease string) bool {
	if idx == nil {
		return false
	}
	_, ok := idx.knownDiseases[NormalizeKey(disease)]
	return ok
}

// AntibioticsFor returns the antibiotics used for disease across all animal
// types, de-duplicated, in first-seen order.
func (idx *Index) AntibioticsFor(disease string) []string {
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.antibiotics[NormalizeKey(disease)])
}

// AnimalTypes returns every distinct animal type, sorted.
func (idx *Index) AnimalTypes() []string {
	if idx == nil {
		return nil
	}
	return slices.Clone(idx.animalTypes)
}
