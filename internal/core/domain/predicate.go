package domain

import (
	"sort"
	"strconv"
	"strings"
)

// Evidence store column names.
const (
	ColumnID                 = "id"
	ColumnVector             = "vector"
	ColumnText               = "text"
	ColumnTicker             = "ticker"
	ColumnSection            = "section"
	ColumnPageNumber         = "page_number"
	ColumnElementType        = "element_type"
	ColumnTablePayload       = "table_payload"
	ColumnBBox               = "bbox"
	ColumnIndustry           = "industry"
	ColumnYear               = "year"
	ColumnFilingType         = "filing_type"
	ColumnFiscalPeriod       = "fiscal_period"
	ColumnJurisdiction       = "jurisdiction"
	ColumnRiskFlag           = "risk_flag"
	ColumnCIK                = "cik"
	ColumnSourceDocumentName = "source_document_name"
)

// FullSchema lists every column written by the current ingester.
var FullSchema = []string{
	ColumnID, ColumnVector, ColumnText, ColumnTicker, ColumnSection, ColumnPageNumber,
	ColumnElementType, ColumnTablePayload, ColumnBBox, ColumnIndustry, ColumnYear,
	ColumnFilingType, ColumnFiscalPeriod, ColumnJurisdiction, ColumnRiskFlag, ColumnCIK,
	ColumnSourceDocumentName,
}

// Schema is the set of column names currently present in the evidence store.
type Schema map[string]struct{}

func NewSchema(columns ...string) Schema {
	s := make(Schema, len(columns))
	for _, c := range columns {
		s[c] = struct{}{}
	}
	return s
}

func (s Schema) Has(column string) bool {
	_, ok := s[column]
	return ok
}

// Columns returns the column names in sorted order.
func (s Schema) Columns() []string {
	out := make([]string, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

type ValueKind int

const (
	KindString ValueKind = iota
	KindInt
	KindBool
)

// Clause is a single equality constraint on a scope column.
type Clause struct {
	Column string
	Kind   ValueKind
	Str    string
	Int    int
	Bool   bool
}

// Value returns the clause operand as a bindable value.
func (c Clause) Value() any {
	switch c.Kind {
	case KindInt:
		return c.Int
	case KindBool:
		return c.Bool
	default:
		return c.Str
	}
}

func (c Clause) String() string {
	switch c.Kind {
	case KindInt:
		return c.Column + " = " + strconv.Itoa(c.Int)
	case KindBool:
		return c.Column + " = " + strconv.FormatBool(c.Bool)
	default:
		return c.Column + " = " + strconv.Quote(c.Str)
	}
}

// Predicate is a conjunction of equality clauses. The zero value matches
// every record.
type Predicate struct {
	Clauses []Clause
}

func (p Predicate) MatchAll() bool { return len(p.Clauses) == 0 }

// Columns returns the referenced columns in clause order.
func (p Predicate) Columns() []string {
	out := make([]string, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		out = append(out, c.Column)
	}
	return out
}

// Matches evaluates the predicate against a chunk's scope attributes.
func (p Predicate) Matches(attrs ScopeAttributes) bool {
	for _, c := range p.Clauses {
		switch c.Column {
		case ColumnTicker:
			if attrs.Ticker != c.Str {
				return false
			}
		case ColumnIndustry:
			if attrs.Industry != c.Str {
				return false
			}
		case ColumnYear:
			if attrs.Year != c.Int {
				return false
			}
		case ColumnFilingType:
			if attrs.FilingType != c.Str {
				return false
			}
		case ColumnJurisdiction:
			if attrs.Jurisdiction != c.Str {
				return false
			}
		case ColumnRiskFlag:
			if attrs.RiskFlag != c.Bool {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (p Predicate) String() string {
	if p.MatchAll() {
		return "<all>"
	}
	parts := make([]string, 0, len(p.Clauses))
	for _, c := range p.Clauses {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, " AND ")
}
