package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
)

// DefaultOverlayScale matches the resolution used to render page images.
const DefaultOverlayScale = 1.5

// CitationUseCase places evidence on the rendered page of its filing.
type CitationUseCase struct {
	store    ports.EvidenceStore
	repo     ports.FilingRepository
	storage  ports.ObjectStorage
	geometry ports.PageGeometry
}

func NewCitationUseCase(
	store ports.EvidenceStore,
	repo ports.FilingRepository,
	storage ports.ObjectStorage,
	geometry ports.PageGeometry,
) *CitationUseCase {
	return &CitationUseCase{store: store, repo: repo, storage: storage, geometry: geometry}
}

// Overlay returns the overlay rectangle for a chunk. A scale of zero means
// DefaultOverlayScale. A pageHeight of zero is read from the source PDF.
func (uc *CitationUseCase) Overlay(ctx context.Context, chunkID string, scale, pageHeight float64) (*domain.CitationOverlay, error) {
	if chunkID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "citation overlay", errors.New("chunk id is required"))
	}
	if scale == 0 {
		scale = DefaultOverlayScale
	}

	chunk, err := uc.store.Get(ctx, chunkID)
	if err != nil {
		return nil, fmt.Errorf("load evidence: %w", err)
	}
	if chunk.BBox == nil {
		return nil, domain.WrapError(domain.ErrGeometryMissing, "citation overlay", fmt.Errorf("chunk %s", chunkID))
	}

	if pageHeight == 0 {
		pageHeight, err = uc.sourcePageHeight(ctx, chunk)
		if err != nil {
			return nil, err
		}
	}

	overlay, err := chunk.BBox.ToOverlay(pageHeight, scale)
	if err != nil {
		return nil, err
	}
	return &domain.CitationOverlay{
		ChunkID:            chunk.ID,
		SourceDocumentName: chunk.SourceDocumentName,
		PageNumber:         chunk.PageNumber,
		PageHeight:         pageHeight,
		Scale:              scale,
		BBox:               *chunk.BBox,
		Overlay:            overlay,
	}, nil
}

func (uc *CitationUseCase) sourcePageHeight(ctx context.Context, chunk *domain.EvidenceChunk) (float64, error) {
	filing, err := uc.findFiling(ctx, chunk)
	if err != nil {
		return 0, err
	}
	if filing.SourcePath == "" {
		return 0, domain.WrapError(domain.ErrFilingNotFound, "citation overlay", fmt.Errorf("no source document stored for %s", filing.Filename))
	}

	rc, err := uc.storage.Open(ctx, filing.SourcePath)
	if err != nil {
		return 0, fmt.Errorf("open source document: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return 0, fmt.Errorf("read source document: %w", err)
	}

	height, err := uc.geometry.PageHeight(data, chunk.PageNumber)
	if err != nil {
		return 0, fmt.Errorf("read page height: %w", err)
	}
	return height, nil
}

func (uc *CitationUseCase) findFiling(ctx context.Context, chunk *domain.EvidenceChunk) (*domain.Filing, error) {
	filings, err := uc.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	for i := range filings {
		if filings[i].Ticker == chunk.Ticker && filings[i].Filename == chunk.SourceDocumentName {
			return &filings[i], nil
		}
	}
	return nil, domain.WrapError(domain.ErrFilingNotFound, "citation overlay", fmt.Errorf("%s/%s", chunk.Ticker, chunk.SourceDocumentName))
}
