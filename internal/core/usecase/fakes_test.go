package usecase

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

type embedderFake struct {
	mu      sync.Mutex
	query   string
	queries int
	vectors [][]float32
	batches [][]string
	err     error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, texts)
	if f.err != nil {
		return nil, f.err
	}
	if f.vectors != nil {
		return f.vectors, nil
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1, 0}
	}
	return out, nil
}

func (f *embedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = text
	f.queries++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

// storeFake is an in-memory evidence store that filters by predicate.
type storeFake struct {
	mu          sync.Mutex
	exists      bool
	schema      domain.Schema
	results     []domain.ScoredEvidence
	upserted    []domain.EvidenceChunk
	existsCalls int
	searches    int
	predicate   domain.Predicate
	limit       int
	existsErr   error
	searchErr   error
	upsertErr   error
	dropped     bool
}

func (f *storeFake) Exists(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.existsCalls++
	return f.exists, f.existsErr
}

func (f *storeFake) Schema(context.Context) (domain.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.exists {
		return nil, domain.ErrStoreNotInitialized
	}
	if f.schema == nil {
		return domain.NewSchema(domain.FullSchema...), nil
	}
	return f.schema, nil
}

func (f *storeFake) Search(_ context.Context, _ []float32, limit int, predicate domain.Predicate) ([]domain.ScoredEvidence, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches++
	f.predicate = predicate
	f.limit = limit
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	out := make([]domain.ScoredEvidence, 0, len(f.results))
	for _, r := range f.results {
		if predicate.Matches(r.Chunk.ScopeAttributes) {
			out = append(out, r)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *storeFake) Upsert(_ context.Context, chunks []domain.EvidenceChunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.exists = true
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *storeFake) Get(_ context.Context, id string) (*domain.EvidenceChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.results {
		if r.Chunk.ID == id {
			c := r.Chunk
			return &c, nil
		}
	}
	return nil, domain.ErrEvidenceNotFound
}

func (f *storeFake) Drop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exists = false
	f.dropped = true
	return nil
}

type classifierFake struct {
	mu       sync.Mutex
	relevant map[string]bool
	requests []domain.RelevanceRequest
	err      error
}

func (f *classifierFake) Classify(_ context.Context, req domain.RelevanceRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return false, f.err
	}
	return f.relevant[req.EvidenceText], nil
}

func (f *classifierFake) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type generatorFake struct {
	mu       sync.Mutex
	calls    int
	requests []domain.GenerationRequest
	answer   string
	err      error
}

func (f *generatorFake) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type statusCall struct {
	status domain.FilingStatus
	chunks int
	errMsg string
}

type filingRepoFake struct {
	filings     map[string]domain.Filing
	upserted    []domain.Filing
	statusCalls []statusCall
	getErr      error
	upsertErr   error
	deleted     bool
}

func newFilingRepoFake(filings ...domain.Filing) *filingRepoFake {
	f := &filingRepoFake{filings: map[string]domain.Filing{}}
	for _, filing := range filings {
		f.filings[filing.ID] = filing
	}
	return f
}

func (f *filingRepoFake) Upsert(_ context.Context, filing *domain.Filing) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	for id, existing := range f.filings {
		if existing.Ticker == filing.Ticker && existing.Filename == filing.Filename {
			filing.ID = id
		}
	}
	f.filings[filing.ID] = *filing
	f.upserted = append(f.upserted, *filing)
	return nil
}

func (f *filingRepoFake) GetByID(_ context.Context, id string) (*domain.Filing, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	filing, ok := f.filings[id]
	if !ok {
		return nil, domain.ErrFilingNotFound
	}
	return &filing, nil
}

func (f *filingRepoFake) List(context.Context) ([]domain.Filing, error) {
	out := make([]domain.Filing, 0, len(f.filings))
	for _, filing := range f.filings {
		out = append(out, filing)
	}
	return out, nil
}

func (f *filingRepoFake) UpdateStatus(_ context.Context, _ string, status domain.FilingStatus, chunks int, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, chunks: chunks, errMsg: errMessage})
	return nil
}

func (f *filingRepoFake) DeleteAll(context.Context) error {
	f.filings = map[string]domain.Filing{}
	f.deleted = true
	return nil
}

type storageFake struct {
	objects map[string][]byte
	err     error
}

func newStorageFake() *storageFake { return &storageFake{objects: map[string][]byte{}} }

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.err != nil {
		return f.err
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.objects[key] = b
	return nil
}

func (f *storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.objects[key]
	if !ok {
		return nil, domain.ErrFilingNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishFilingSubmitted(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, id)
	return nil
}

type decoderFake struct {
	elements []domain.Element
	err      error
}

func (f *decoderFake) Decode([]byte) ([]domain.Element, error) {
	return f.elements, f.err
}

type chunkerFake struct {
	chunks []domain.EvidenceChunk
}

func (f *chunkerFake) Group([]domain.Element) []domain.EvidenceChunk {
	out := make([]domain.EvidenceChunk, len(f.chunks))
	copy(out, f.chunks)
	return out
}

type geometryFake struct {
	height float64
	page   int
	err    error
}

func (f *geometryFake) PageHeight(_ []byte, page int) (float64, error) {
	f.page = page
	return f.height, f.err
}

func scored(id, text string, page int, distance float64, attrs domain.ScopeAttributes) domain.ScoredEvidence {
	return domain.ScoredEvidence{
		Chunk: domain.EvidenceChunk{
			ID:              id,
			Text:            text,
			PageNumber:      page,
			ElementType:     "NarrativeText",
			ScopeAttributes: attrs,
		},
		Distance: distance,
	}
}
