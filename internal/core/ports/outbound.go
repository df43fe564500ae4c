package ports

import (
	"context"
	"io"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// FilingRepository persists the filing catalog.
type FilingRepository interface {
	// Upsert creates the filing or refreshes the entry with the same ticker
	// and filename. The stored ID is written back into filing.
	Upsert(ctx context.Context, filing *domain.Filing) error
	GetByID(ctx context.Context, id string) (*domain.Filing, error)
	List(ctx context.Context) ([]domain.Filing, error)
	UpdateStatus(ctx context.Context, id string, status domain.FilingStatus, chunkCount int, errMessage string) error
	DeleteAll(ctx context.Context) error
}

// ObjectStorage stores filing artifacts.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue announces filings that await indexing.
type MessageQueue interface {
	PublishFilingSubmitted(ctx context.Context, filingID string) error
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RelevanceClassifier decides whether one piece of evidence bears on the question.
type RelevanceClassifier interface {
	Classify(ctx context.Context, req domain.RelevanceRequest) (bool, error)
}

// AnswerGenerator produces text from a structured generation request.
type AnswerGenerator interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (string, error)
}

// EvidenceStore holds indexed chunks and answers filtered similarity search.
// The store may not exist until the first ingestion.
type EvidenceStore interface {
	Exists(ctx context.Context) (bool, error)
	Schema(ctx context.Context) (domain.Schema, error)
	Search(ctx context.Context, vector []float32, limit int, predicate domain.Predicate) ([]domain.ScoredEvidence, error)
	// Upsert creates the store on first use, sized to the vectors given.
	Upsert(ctx context.Context, chunks []domain.EvidenceChunk) error
	Get(ctx context.Context, id string) (*domain.EvidenceChunk, error)
	Drop(ctx context.Context) error
}

// ElementDecoder parses partitioner output.
type ElementDecoder interface {
	Decode(data []byte) ([]domain.Element, error)
}

// Chunker groups elements into chunks. Returned chunks carry text, section,
// page, element type, table payload and merged geometry.
type Chunker interface {
	Group(elements []domain.Element) []domain.EvidenceChunk
}

// PageGeometry reads page dimensions from a source document.
type PageGeometry interface {
	PageHeight(data []byte, page int) (float64, error)
}

// WorkpaperWriter renders an audit result into a spreadsheet.
type WorkpaperWriter interface {
	Write(w io.Writer, query domain.Query, result *domain.AuditResult) error
}
