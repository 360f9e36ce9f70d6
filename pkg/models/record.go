package models

import "sort"

// Record is a customer record: field name to string value.
type Record map[string]string

// Get returns the value for field and whether it is present.
func (r Record) Get(field string) (string, bool) {
	if r == nil {
		return "", false
	}
	v, ok := r[field]
	return v, ok
}

// Keys returns field names in sorted order, for deterministic rendering.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AnalysisRequest is the input to a duplicate analysis of two records.
type AnalysisRequest struct {
	Record1    Record  `json:"record1"`
	Record2    Record  `json:"record2"`
	FuzzyScore float64 `json:"fuzzyScore"`
}
