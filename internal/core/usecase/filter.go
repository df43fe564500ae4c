package usecase

import (
	"sort"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// BuildPredicate turns the active scope filters into a conjunction of
// equality clauses, skipping any filter whose column the store lacks.
// String values are bound trimmed.
func BuildPredicate(filters domain.ScopeFilters, schema domain.Schema) domain.Predicate {
	var p domain.Predicate

	addString := func(column string, v domain.OptionalString) {
		if v.Active() && schema.Has(column) {
			p.Clauses = append(p.Clauses, domain.Clause{Column: column, Kind: domain.KindString, Str: strings.TrimSpace(v.Value)})
		}
	}

	addString(domain.ColumnTicker, filters.Ticker)
	addString(domain.ColumnIndustry, filters.Industry)
	if filters.Year.Active() && schema.Has(domain.ColumnYear) {
		p.Clauses = append(p.Clauses, domain.Clause{Column: domain.ColumnYear, Kind: domain.KindInt, Int: filters.Year.Value})
	}
	addString(domain.ColumnFilingType, filters.FilingType)
	addString(domain.ColumnJurisdiction, filters.Jurisdiction)
	if filters.RiskOnly && schema.Has(domain.ColumnRiskFlag) {
		p.Clauses = append(p.Clauses, domain.Clause{Column: domain.ColumnRiskFlag, Kind: domain.KindBool, Bool: true})
	}

	return p
}

// droppedFilters lists active filter columns missing from the schema.
func droppedFilters(filters domain.ScopeFilters, schema domain.Schema) []string {
	var dropped []string
	for column := range filters.Active() {
		if !schema.Has(column) {
			dropped = append(dropped, column)
		}
	}
	sort.Strings(dropped)
	return dropped
}
