package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// OptionalString distinguishes an unset filter from an empty value.
type OptionalString struct {
	Value string
	Set   bool
}

func SomeString(v string) OptionalString { return OptionalString{Value: v, Set: true} }

// Active reports whether the filter constrains the search.
func (o OptionalString) Active() bool {
	return o.Set && strings.TrimSpace(o.Value) != ""
}

func (o OptionalString) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptionalString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptionalString{}
		return nil
	}
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = SomeString(v)
	return nil
}

// OptionalInt distinguishes an unset filter from a zero value.
type OptionalInt struct {
	Value int
	Set   bool
}

func SomeInt(v int) OptionalInt { return OptionalInt{Value: v, Set: true} }

// Active reports whether the filter constrains the search. Zero is treated
// as "no constraint".
func (o OptionalInt) Active() bool {
	return o.Set && o.Value != 0
}

func (o OptionalInt) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*o = OptionalInt{}
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*o = SomeInt(v)
	return nil
}

// ScopeFilters narrows retrieval to a subset of the corpus.
type ScopeFilters struct {
	Ticker       OptionalString `json:"ticker"`
	Industry     OptionalString `json:"industry"`
	Year         OptionalInt    `json:"year"`
	FilingType   OptionalString `json:"filing_type"`
	Jurisdiction OptionalString `json:"jurisdiction"`
	RiskOnly     bool           `json:"risk_only"`
}

// Active returns the filters in their canonical string form, keyed by
// column. Only active filters are included.
func (f ScopeFilters) Active() map[string]string {
	out := make(map[string]string, 6)
	if f.Ticker.Active() {
		out[ColumnTicker] = f.Ticker.Value
	}
	if f.Industry.Active() {
		out[ColumnIndustry] = f.Industry.Value
	}
	if f.Year.Active() {
		out[ColumnYear] = strconv.Itoa(f.Year.Value)
	}
	if f.FilingType.Active() {
		out[ColumnFilingType] = f.FilingType.Value
	}
	if f.Jurisdiction.Active() {
		out[ColumnJurisdiction] = f.Jurisdiction.Value
	}
	if f.RiskOnly {
		out[ColumnRiskFlag] = "true"
	}
	return out
}

type Query struct {
	Question string       `json:"question"`
	Filters  ScopeFilters `json:"filters"`
}
