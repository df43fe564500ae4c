package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

type CatalogUseCase struct {
	repo ports.FilingRepository
}

func NewCatalogUseCase(repo ports.FilingRepository) *CatalogUseCase {
	return &CatalogUseCase{repo: repo}
}

func (uc *CatalogUseCase) List(ctx context.Context) ([]domain.Filing, error) {
	filings, err := uc.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list filings: %w", err)
	}
	return filings, nil
}

func (uc *CatalogUseCase) GetByID(ctx context.Context, id string) (*domain.Filing, error) {
	filing, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get filing: %w", err)
	}
	return filing, nil
}

// VaultUseCase clears every indexed filing. Afterwards queries behave as if
// nothing was ever ingested.
type VaultUseCase struct {
	repo  ports.FilingRepository
	store ports.EvidenceStore
}

func NewVaultUseCase(repo ports.FilingRepository, store ports.EvidenceStore) *VaultUseCase {
	return &VaultUseCase{repo: repo, store: store}
}

func (uc *VaultUseCase) Purge(ctx context.Context) error {
	if err := uc.store.Drop(ctx); err != nil {
		return fmt.Errorf("drop evidence store: %w", err)
	}
	if err := uc.repo.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear filing catalog: %w", err)
	}
	logging.FromContext(ctx).Warn("vault_purged", zap.String("scope", "all"))
	return nil
}
