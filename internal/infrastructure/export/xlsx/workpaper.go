// Package xlsx renders audit results as spreadsheet workpapers.
package xlsx

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

const (
	conclusionSheet = "Conclusion"
	evidenceSheet   = "Evidence"
)

var evidenceHeader = []any{"Ref", "Ticker", "Page", "Element Type", "BBox", "Text", "Has Table"}

type Writer struct {
	now func() time.Time
}

func NewWriter() *Writer {
	return &Writer{now: time.Now}
}

func (wr *Writer) Write(w io.Writer, query domain.Query, result *domain.AuditResult) error {
	if result == nil {
		return domain.WrapError(domain.ErrInvalidInput, "write workpaper", fmt.Errorf("nil audit result"))
	}

	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()

	if err := f.SetSheetName("Sheet1", conclusionSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := wr.writeConclusion(f, query, result); err != nil {
		return err
	}
	if _, err := f.NewSheet(evidenceSheet); err != nil {
		return fmt.Errorf("create evidence sheet: %w", err)
	}
	if err := writeEvidence(f, result); err != nil {
		return err
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}

func (wr *Writer) writeConclusion(f *excelize.File, query domain.Query, result *domain.AuditResult) error {
	rows := [][]any{
		{"Question", query.Question},
		{"Filters", formatFilters(query.Filters)},
		{"Generated", wr.now().UTC().Format(time.RFC3339)},
		{"Evidence Count", len(result.Citations)},
		{"Generation Skipped", result.GenerationSkipped},
		{"Conclusion", result.Answer},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(conclusionSheet, cell, &row); err != nil {
			return fmt.Errorf("write conclusion row: %w", err)
		}
	}
	if err := f.SetColWidth(conclusionSheet, "A", "A", 20); err != nil {
		return fmt.Errorf("size conclusion column: %w", err)
	}
	if err := f.SetColWidth(conclusionSheet, "B", "B", 100); err != nil {
		return fmt.Errorf("size conclusion column: %w", err)
	}
	return nil
}

func writeEvidence(f *excelize.File, result *domain.AuditResult) error {
	refs := make(map[string]string, len(result.Citations))
	for _, c := range result.Citations {
		refs[c.ChunkID] = c.Ref
	}

	if err := f.SetSheetRow(evidenceSheet, "A1", &evidenceHeader); err != nil {
		return fmt.Errorf("write evidence header: %w", err)
	}
	for i, chunk := range result.Evidence {
		row := []any{
			refs[chunk.ID],
			chunk.Ticker,
			chunk.PageNumber,
			chunk.ElementType,
			formatBox(chunk.BBox),
			chunk.Text,
			chunk.HasTable(),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(evidenceSheet, cell, &row); err != nil {
			return fmt.Errorf("write evidence row: %w", err)
		}
	}
	if err := f.SetColWidth(evidenceSheet, "F", "F", 80); err != nil {
		return fmt.Errorf("size evidence column: %w", err)
	}
	return nil
}

func formatBox(b *domain.BoundingBox) string {
	if b == nil {
		return ""
	}
	return fmt.Sprintf("[%g, %g, %g, %g]", b.X0, b.Y0, b.X1, b.Y1)
}

func formatFilters(filters domain.ScopeFilters) string {
	active := filters.Active()
	if len(active) == 0 {
		return "none"
	}
	columns := make([]string, 0, len(active))
	for column := range active {
		columns = append(columns, column)
	}
	sort.Strings(columns)
	parts := make([]string, 0, len(columns))
	for _, column := range columns {
		parts = append(parts, column+"="+active[column])
	}
	return strings.Join(parts, ", ")
}
