package registry

import (
	"encoding/json"
	"fmt"
	"sort"
)

const legacyKey = "columnas_esperadas"

type legacyReport struct {
	Columnas []string            `json:"columnas"`
	Formulas map[string]string   `json:"formulas"`
	Tipos    map[string]TypeSpec `json:"tipos"`
}

// MigrateLegacy converts a DMS document in the legacy shape into the
// canonical one.
//
// Two legacy report shapes are accepted under "columnas_esperadas":
//
//	{"columnas_esperadas": {"MACC": ["Code", "Description"]}}
//	{"columnas_esperadas": {"MACC": {"columnas": [...], "formulas": {...}}}}
//
// A document already in canonical shape is returned unchanged.
//
// Errors:
//   - ErrConfigInvalid on malformed JSON or a report entry of another shape.
func MigrateLegacy(raw []byte) (DmsSchema, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(raw, &top); err != nil {
		return DmsSchema{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
	}

	legacy, ok := top[legacyKey]
	if !ok {
		var s DmsSchema
		if err := json.Unmarshal(raw, &s); err != nil {
			return DmsSchema{}, fmt.Errorf("%w: %v", ErrConfigInvalid, err)
		}
		return s, nil
	}

	var reports map[string]json.RawMessage
	if err := json.Unmarshal(legacy, &reports); err != nil {
		return DmsSchema{}, fmt.Errorf("%w: %s: %v", ErrConfigInvalid, legacyKey, err)
	}

	names := make([]string, 0, len(reports))
	for n := range reports {
		names = append(names, n)
	}
	sort.Strings(names)

	out := DmsSchema{Reports: make(map[string]ReportSpec, len(reports))}
	for _, name := range names {
		entry := reports[name]

		var cols []string
		if err := json.Unmarshal(entry, &cols); err == nil {
			out.Reports[name] = ReportSpec{Columns: cols}
			continue
		}

		var lr legacyReport
		if err := json.Unmarshal(entry, &lr); err != nil {
			return DmsSchema{}, fmt.Errorf("%w: %s.%s: %v", ErrConfigInvalid, legacyKey, name, err)
		}
		out.Reports[name] = ReportSpec{Columns: lr.Columnas, Formulas: lr.Formulas, Types: lr.Tipos}
	}
	return out, nil
}
