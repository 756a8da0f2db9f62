package dataset

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/giygas/agrisafe-api/logging"
	"golang.org/x/text/encoding/charmap"
)

const (
	colAnimalType    = "animal_type"
	colDisease       = "disease"
	colWeightMin     = "weight_min_kg"
	colWeightMax     = "weight_max_kg"
	colAgeMin        = "age_min_days"
	colAgeMax        = "age_max_days"
	colAntibiotic    = "antibiotic"
	colDosageValue   = "dosage_value"
	colDosageUnit    = "dosage_unit"
	colTreatmentDays = "treatment_days"
)

var requiredColumns = []string{
	colAnimalType, colDisease, colWeightMin, colWeightMax, colAgeMin,
	colAgeMax, colAntibiotic, colDosageValue, colDosageUnit,
}

// Load reads the CSV file at path and builds an Index from it.
func Load(path string, concentrations ConcentrationSource) (*Index, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &DataLoadError{Source: path, Reason: "cannot open file", Err: err}
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("Failed to close dataset file", "path", path, "error", err)
		}
	}()

	return parse(path, file, concentrations)
}

// Parse builds an Index from CSV content.
func Parse(r io.Reader, concentrations ConcentrationSource) (*Index, error) {
	return parse("input", r, concentrations)
}

// ParseSource is Parse with the source name used in errors and logs.
func ParseSource(source string, r io.Reader, concentrations ConcentrationSource) (*Index, error) {
	return parse(source, r, concentrations)
}

type rowError struct {
	reason string
}

func (e *rowError) Error() string { return e.reason }

func parse(source string, r io.Reader, concentrations ConcentrationSource) (*Index, error) {
	if concentrations == nil {
		return nil, &DataLoadError{Source: source, Reason: "no concentration table"}
	}

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, &DataLoadError{Source: source, Reason: "cannot read content", Err: err}
	}

	// Spreadsheet exports are either UTF-8 or Latin-1
	var reader io.Reader
	if utf8.Valid(raw) {
		reader = bytes.NewReader(bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf")))
	} else {
		reader = charmap.ISO8859_1.NewDecoder().Reader(bytes.NewReader(raw))
	}

	cr := csv.NewReader(reader)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &DataLoadError{Source: source, Reason: "file is empty"}
	}
	if err != nil {
		return nil, &DataLoadError{Source: source, Reason: "malformed header", Err: err}
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, &DataLoadError{Source: source, Reason: "invalid header", Err: err}
	}

	var records []TreatmentRecord
	rowCount := 0
	skippedMissingColumns := 0
	skippedFormatErrors := 0

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &DataLoadError{Source: source, Reason: "malformed CSV", Err: err}
		}
		rowCount++
		line, _ := cr.FieldPos(0)

		rec, err := columns.record(fields, concentrations)
		if err != nil {
			var re *rowError
			if errors.As(err, &re) && re.reason == "missing columns" {
				skippedMissingColumns++
			} else {
				skippedFormatErrors++
			}
			logging.Warn("Skipping dataset row", "source", source, "line", line, "reason", err.Error())
			continue
		}
		records = append(records, rec)
	}

	if skippedMissingColumns > 0 || skippedFormatErrors > 0 {
		logging.Info("Dataset skip statistics",
			"source", source,
			"missing_columns", skippedMissingColumns,
			"format_errors", skippedFormatErrors,
			"total_rows", rowCount,
			"records_parsed", len(records))
	}

	if len(records) == 0 {
		return nil, &DataLoadError{Source: source, Reason: "no valid rows"}
	}

	logging.Info("Dataset loaded", "source", source, "records_count", len(records))
	return newIndex(source, records), nil
}

type columnMap map[string]int

func mapColumns(header []string) (columnMap, error) {
	columns := make(columnMap, len(header))
	for i, name := range header {
		key := strings.ReplaceAll(NormalizeKey(name), " ", "_")
		if _, dup := columns[key]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		columns[key] = i
	}

	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return columns, nil
}

func (c columnMap) field(fields []string, name string) (string, bool) {
	i, ok := c[name]
	if !ok || i >= len(fields) {
		return "", false
	}
	return strings.TrimSpace(fields[i]), true
}

func (c columnMap) record(fields []string, concentrations ConcentrationSource) (TreatmentRecord, error) {
	values := make(map[string]string, len(requiredColumns))
	for _, name := range requiredColumns {
		v, ok := c.field(fields, name)
		if !ok {
			return TreatmentRecord{}, &rowError{reason: "missing columns"}
		}
		values[name] = v
	}

	for _, name := range []string{colAnimalType, colDisease, colAntibiotic} {
		if values[name] == "" {
			return TreatmentRecord{}, &rowError{reason: name + " is empty"}
		}
	}

	weightMin, err := parseNonNegativeFloat(values[colWeightMin], colWeightMin)
	if err != nil {
		return TreatmentRecord{}, err
	}
	weightMax, err := parseNonNegativeFloat(values[colWeightMax], colWeightMax)
	if err != nil {
		return TreatmentRecord{}, err
	}
	if weightMin > weightMax {
		return TreatmentRecord{}, &rowError{reason: "weight_min_kg is greater than weight_max_kg"}
	}

	ageMin, err := parseNonNegativeInt(values[colAgeMin], colAgeMin)
	if err != nil {
		return TreatmentRecord{}, err
	}
	ageMax, err := parseNonNegativeInt(values[colAgeMax], colAgeMax)
	if err != nil {
		return TreatmentRecord{}, err
	}
	if ageMin > ageMax {
		return TreatmentRecord{}, &rowError{reason: "age_min_days is greater than age_max_days"}
	}

	dosage, err := parseNonNegativeFloat(values[colDosageValue], colDosageValue)
	if err != nil {
		return TreatmentRecord{}, err
	}
	if dosage == 0 {
		return TreatmentRecord{}, &rowError{reason: "dosage_value must be positive"}
	}

	unit, err := ParseDosageUnit(values[colDosageUnit])
	if err != nil {
		return TreatmentRecord{}, &rowError{reason: err.Error()}
	}

	treatmentDays := 0
	if v, ok := c.field(fields, colTreatmentDays); ok && v != "" {
		if treatmentDays, err = parseNonNegativeInt(v, colTreatmentDays); err != nil {
			return TreatmentRecord{}, err
		}
	}

	concentration := concentrations.ConcentrationFor(values[colAntibiotic])
	if concentration <= 0 {
		return TreatmentRecord{}, &rowError{reason: "no usable concentration for " + values[colAntibiotic]}
	}

	return TreatmentRecord{
		AnimalType:           values[colAnimalType],
		Disease:              values[colDisease],
		WeightMinKg:          weightMin,
		WeightMaxKg:          weightMax,
		AgeMinDays:           ageMin,
		AgeMaxDays:           ageMax,
		Antibiotic:           values[colAntibiotic],
		DosageValue:          dosage,
		DosageUnit:           unit,
		ConcentrationMgPerML: concentration,
		TreatmentDays:        treatmentDays,
	}, nil
}

func parseNonNegativeFloat(s, column string) (float64, error) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &rowError{reason: fmt.Sprintf("%s %q is not a number", column, s)}
	}
	if v < 0 {
		return 0, &rowError{reason: fmt.Sprintf("%s %q is negative", column, s)}
	}
	return v, nil
}

func parseNonNegativeInt(s, column string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &rowError{reason: fmt.Sprintf("%s %q is not an integer", column, s)}
	}
	if v < 0 {
		return 0, &rowError{reason: fmt.Sprintf("%s %q is negative", column, s)}
	}
	return v, nil
}
