package ports

import (
	"context"
	"io"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// Auditor is the inbound contract for answering a question against the corpus.
type Auditor interface {
	Audit(ctx context.Context, query domain.Query) (*domain.AuditResult, error)
}

// FilingIngestor accepts partitioned filings for indexing.
type FilingIngestor interface {
	Submit(ctx context.Context, upload domain.FilingUpload) (*domain.Filing, error)
}

// FilingIndexer is the inbound contract for asynchronous indexing.
type FilingIndexer interface {
	IndexByID(ctx context.Context, filingID string) error
}

// FilingCatalog is the read model for ingested filings.
type FilingCatalog interface {
	List(ctx context.Context) ([]domain.Filing, error)
	GetByID(ctx context.Context, id string) (*domain.Filing, error)
}

// VaultPurger removes every indexed filing.
type VaultPurger interface {
	Purge(ctx context.Context) error
}

// CitationLocator maps evidence to overlay geometry on the rendered page.
type CitationLocator interface {
	Overlay(ctx context.Context, chunkID string, scale, pageHeight float64) (*domain.CitationOverlay, error)
}

// ReportDrafter turns an audit conclusion into a formatted report.
type ReportDrafter interface {
	Draft(ctx context.Context, conclusion, instructions string) (string, error)
}

// WorkpaperExporter runs an audit and writes it as a workpaper.
type WorkpaperExporter interface {
	Export(ctx context.Context, query domain.Query, w io.Writer) error
}
