package httpadapter

import (
	"context"
	"io"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

type fakeAuditor struct {
	lastQuery domain.Query
	result    *domain.AuditResult
	err       error
}

func (f *fakeAuditor) Audit(_ context.Context, q domain.Query) (*domain.AuditResult, error) {
	f.lastQuery = q
	return f.result, f.err
}

type fakeIngestor struct {
	lastUpload domain.FilingUpload
	err        error
}

func (f *fakeIngestor) Submit(_ context.Context, upload domain.FilingUpload) (*domain.Filing, error) {
	f.lastUpload = upload
	if f.err != nil {
		return nil, f.err
	}
	filing := upload.Filing
	filing.ID = "filing-1"
	filing.Status = domain.StatusUploaded
	return &filing, nil
}

type fakeCatalog struct {
	filings []domain.Filing
	err     error
}

func (f *fakeCatalog) List(context.Context) ([]domain.Filing, error) { return f.filings, f.err }

func (f *fakeCatalog) GetByID(_ context.Context, id string) (*domain.Filing, error) {
	for i := range f.filings {
		if f.filings[i].ID == id {
			return &f.filings[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrFilingNotFound, "get filing", io.EOF)
}

type fakeVault struct {
	purged int
	err    error
}

func (f *fakeVault) Purge(context.Context) error {
	f.purged++
	return f.err
}

type fakeCitations struct {
	overlay    *domain.CitationOverlay
	err        error
	scale      float64
	pageHeight float64
}

func (f *fakeCitations) Overlay(_ context.Context, _ string, scale, pageHeight float64) (*domain.CitationOverlay, error) {
	f.scale, f.pageHeight = scale, pageHeight
	return f.overlay, f.err
}

type fakeDrafter struct{ err error }

func (f *fakeDrafter) Draft(_ context.Context, conclusion, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "REPORT: " + conclusion, nil
}

type fakeExporter struct{ err error }

func (f *fakeExporter) Export(_ context.Context, _ domain.Query, w io.Writer) error {
	if f.err != nil {
		return f.err
	}
	_, err := w.Write([]byte("PK-xlsx"))
	return err
}

type testServices struct {
	auditor   *fakeAuditor
	ingestor  *fakeIngestor
	catalog   *fakeCatalog
	vault     *fakeVault
	citations *fakeCitations
	drafter   *fakeDrafter
	exporter  *fakeExporter
}

func newTestServices() *testServices {
	return &testServices{
		auditor:   &fakeAuditor{result: &domain.AuditResult{Answer: "ok"}},
		ingestor:  &fakeIngestor{},
		catalog:   &fakeCatalog{},
		vault:     &fakeVault{},
		citations: &fakeCitations{},
		drafter:   &fakeDrafter{},
		exporter:  &fakeExporter{},
	}
}

func (s *testServices) services() Services {
	return Services{
		Auditor:   s.auditor,
		Ingestor:  s.ingestor,
		Catalog:   s.catalog,
		Vault:     s.vault,
		Citations: s.citations,
		Drafter:   s.drafter,
		Exporter:  s.exporter,
	}
}
