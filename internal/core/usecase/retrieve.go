package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

// RetrievalLimit is the number of nearest chunks fetched per query.
const RetrievalLimit = 8

// EvidenceRetriever runs filtered similarity search against the evidence
// store. Until the store exists every call returns an empty result; once it
// appears the retriever attaches to it on the next call.
type EvidenceRetriever struct {
	embedder ports.Embedder
	store    ports.EvidenceStore
	limit    int

	mu    sync.Mutex
	ready bool
}

func NewEvidenceRetriever(embedder ports.Embedder, store ports.EvidenceStore) *EvidenceRetriever {
	return &EvidenceRetriever{
		embedder: embedder,
		store:    store,
		limit:    RetrievalLimit,
	}
}

// Schema returns the columns of the evidence store. ok is false while the
// store has not been created.
func (r *EvidenceRetriever) Schema(ctx context.Context) (domain.Schema, bool, error) {
	ok, err := r.attach(ctx)
	if err != nil || !ok {
		return nil, false, err
	}
	schema, err := r.store.Schema(ctx)
	if err != nil {
		if domain.IsKind(err, domain.ErrStoreNotInitialized) {
			r.detach(ctx)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read evidence schema: %w", err)
	}
	return schema, true, nil
}

// Retrieve returns up to RetrievalLimit chunks matching predicate, closest
// first.
func (r *EvidenceRetriever) Retrieve(ctx context.Context, question string, predicate domain.Predicate) ([]domain.ScoredEvidence, error) {
	logger := logging.FromContext(ctx)

	ok, err := r.attach(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		logger.Warn("evidence_store_not_initialized")
		return []domain.ScoredEvidence{}, nil
	}

	vector, err := r.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	results, err := r.store.Search(ctx, vector, r.limit, predicate)
	if err != nil {
		if domain.IsKind(err, domain.ErrStoreNotInitialized) {
			r.detach(ctx)
			return []domain.ScoredEvidence{}, nil
		}
		return nil, fmt.Errorf("search evidence store: %w", err)
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })
	if len(results) > r.limit {
		results = results[:r.limit]
	}

	logger.Debug("evidence_retrieved",
		zap.String("predicate", predicate.String()),
		zap.Int("count", len(results)),
	)
	return results, nil
}

func (r *EvidenceRetriever) attach(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ready {
		return true, nil
	}
	exists, err := r.store.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check evidence store: %w", err)
	}
	if exists {
		r.ready = true
		logging.FromContext(ctx).Info("evidence_store_attached")
	}
	return exists, nil
}

func (r *EvidenceRetriever) detach(ctx context.Context) {
	r.mu.Lock()
	r.ready = false
	r.mu.Unlock()
	logging.FromContext(ctx).Warn("evidence_store_detached")
}
