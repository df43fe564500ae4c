package usecase

import (
	"context"
	"fmt"
	"io"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
)

type ExportUseCase struct {
	auditor ports.Auditor
	writer  ports.WorkpaperWriter
}

func NewExportUseCase(auditor ports.Auditor, writer ports.WorkpaperWriter) *ExportUseCase {
	return &ExportUseCase{auditor: auditor, writer: writer}
}

// Export runs the audit and writes the result as a workpaper.
func (uc *ExportUseCase) Export(ctx context.Context, query domain.Query, w io.Writer) error {
	result, err := uc.auditor.Audit(ctx, query)
	if err != nil {
		return err
	}
	if err := uc.writer.Write(w, query, result); err != nil {
		return fmt.Errorf("write workpaper: %w", err)
	}
	return nil
}
