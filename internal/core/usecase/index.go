package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

const defaultEmbedBatchSize = 32

// chunkNamespace seeds deterministic chunk IDs so reindexing a filing
// overwrites its chunks instead of duplicating them.
var chunkNamespace = uuid.MustParse("6f1c1f0e-8a52-4c51-9b0e-5b2f3f7f4a10")

// IndexFilingUseCase turns a submitted filing into evidence chunks. Only
// one filing is indexed at a time per process.
type IndexFilingUseCase struct {
	repo      ports.FilingRepository
	storage   ports.ObjectStorage
	decoder   ports.ElementDecoder
	chunker   ports.Chunker
	embedder  ports.Embedder
	store     ports.EvidenceStore
	dimension int
	batchSize int

	mu sync.Mutex
}

func NewIndexFilingUseCase(
	repo ports.FilingRepository,
	storage ports.ObjectStorage,
	decoder ports.ElementDecoder,
	chunker ports.Chunker,
	embedder ports.Embedder,
	store ports.EvidenceStore,
	dimension int,
) *IndexFilingUseCase {
	return &IndexFilingUseCase{
		repo:      repo,
		storage:   storage,
		decoder:   decoder,
		chunker:   chunker,
		embedder:  embedder,
		store:     store,
		dimension: dimension,
		batchSize: defaultEmbedBatchSize,
	}
}

func (uc *IndexFilingUseCase) IndexByID(ctx context.Context, filingID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	if err := uc.markStatus(ctx, filingID, domain.StatusProcessing, 0, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	count, err := uc.indexPipeline(ctx, filingID)
	if err != nil {
		if failErr := uc.markFailed(ctx, filingID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, filingID, domain.StatusIndexed, count, ""); err != nil {
		return fmt.Errorf("set status=indexed: %w", err)
	}

	logging.FromContext(ctx).Info("filing_indexed", zap.String("filing_id", filingID), zap.Int("chunks", count))
	return nil
}

func (uc *IndexFilingUseCase) indexPipeline(ctx context.Context, filingID string) (int, error) {
	filing, err := uc.repo.GetByID(ctx, filingID)
	if err != nil {
		return 0, fmt.Errorf("fetch filing by id: %w", err)
	}

	elements, err := uc.loadElements(ctx, filing)
	if err != nil {
		return 0, err
	}

	chunks := uc.chunker.Group(elements)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "chunk filing", errors.New("grouping produced zero chunks"))
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return 0, err
	}

	scope := filing.Scope()
	for i := range chunks {
		chunks[i].ID = chunkID(filing.ID, i)
		chunks[i].ScopeAttributes = scope
	}

	if err := uc.store.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("upsert evidence: %w", err)
	}
	return len(chunks), nil
}

func (uc *IndexFilingUseCase) loadElements(ctx context.Context, filing *domain.Filing) ([]domain.Element, error) {
	rc, err := uc.storage.Open(ctx, filing.ElementsPath)
	if err != nil {
		return nil, fmt.Errorf("open elements: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read elements: %w", err)
	}
	elements, err := uc.decoder.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode elements: %w", err)
	}
	return elements, nil
}

func (uc *IndexFilingUseCase) embed(ctx context.Context, chunks []domain.EvidenceChunk) error {
	for start := 0; start < len(chunks); start += uc.batchSize {
		end := min(start+uc.batchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, c := range chunks[start:end] {
			texts = append(texts, embeddingText(c))
		}

		vectors, err := uc.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(texts) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"embed chunks",
				fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(texts)),
			)
		}
		for i, v := range vectors {
			if uc.dimension > 0 && len(v) != uc.dimension {
				return domain.WrapError(
					domain.ErrInvalidInput,
					"embed chunks",
					fmt.Errorf("vector dimension %d, store expects %d", len(v), uc.dimension),
				)
			}
			chunks[start+i].Vector = v
		}
	}
	return nil
}

func (uc *IndexFilingUseCase) markStatus(ctx context.Context, filingID string, status domain.FilingStatus, chunks int, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, filingID, status, chunks, errMessage)
}

func (uc *IndexFilingUseCase) markFailed(ctx context.Context, filingID string, indexErr error) error {
	if indexErr == nil {
		return nil
	}
	logging.FromContext(ctx).Error("filing_index_failed", zap.String("filing_id", filingID), zap.Error(indexErr))
	return uc.markStatus(ctx, filingID, domain.StatusFailed, 0, indexErr.Error())
}

func chunkID(filingID string, ordinal int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(filingID+"#"+strconv.Itoa(ordinal))).String()
}

func embeddingText(c domain.EvidenceChunk) string {
	if c.Text != "" {
		return c.Text
	}
	return c.TablePayload
}
