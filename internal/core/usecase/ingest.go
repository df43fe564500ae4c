package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

type IngestFilingUseCase struct {
	repo    ports.FilingRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
	decoder ports.ElementDecoder
}

func NewIngestFilingUseCase(
	repo ports.FilingRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
	decoder ports.ElementDecoder,
) *IngestFilingUseCase {
	return &IngestFilingUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
		decoder: decoder,
	}
}

// Submit stores the partitioned filing, records it in the catalog and
// queues it for indexing. Resubmitting the same ticker and filename
// replaces the earlier artifacts and keeps the catalog ID.
func (uc *IngestFilingUseCase) Submit(ctx context.Context, upload domain.FilingUpload) (*domain.Filing, error) {
	filing := upload.Filing
	filing.Ticker = strings.ToUpper(strings.TrimSpace(filing.Ticker))
	filing.Filename = strings.TrimSpace(filing.Filename)
	if filing.Ticker == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit filing", errors.New("ticker is required"))
	}
	if filing.Filename == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit filing", errors.New("filename is required"))
	}

	elements, err := uc.decoder.Decode(upload.Elements)
	if err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	if len(elements) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "submit filing", errors.New("filing has no elements"))
	}

	prefix := path.Join("filings", sanitizeFilename(filing.Ticker), sanitizeFilename(filing.Filename))
	filing.ElementsPath = prefix + ".elements.json"
	if err := uc.storage.Save(ctx, filing.ElementsPath, bytes.NewReader(upload.Elements)); err != nil {
		return nil, fmt.Errorf("save elements to object storage: %w", err)
	}
	if len(upload.Source) > 0 {
		filing.SourcePath = prefix
		if err := uc.storage.Save(ctx, filing.SourcePath, bytes.NewReader(upload.Source)); err != nil {
			return nil, fmt.Errorf("save source to object storage: %w", err)
		}
	}

	now := time.Now().UTC()
	if filing.ID == "" {
		filing.ID = uuid.NewString()
	}
	filing.Status = domain.StatusUploaded
	filing.ChunkCount = 0
	filing.Error = ""
	filing.CreatedAt = now
	filing.UpdatedAt = now

	if err := uc.repo.Upsert(ctx, &filing); err != nil {
		return nil, fmt.Errorf("upsert filing catalog: %w", err)
	}

	if err := uc.queue.PublishFilingSubmitted(ctx, filing.ID); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	logging.FromContext(ctx).Info("filing_submitted",
		zap.String("filing_id", filing.ID),
		zap.String("ticker", filing.Ticker),
		zap.Int("elements", len(elements)),
	)
	return &filing, nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "filing.pdf"
	}
	return base
}
