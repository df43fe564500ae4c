package domain

import "strings"

// ScopeAttributes identify the filing a chunk came from.
type ScopeAttributes struct {
	Ticker             string `json:"ticker"`
	Industry           string `json:"industry,omitempty"`
	Year               int    `json:"year,omitempty"`
	FilingType         string `json:"filing_type,omitempty"`
	FiscalPeriod       string `json:"fiscal_period,omitempty"`
	Jurisdiction       string `json:"jurisdiction,omitempty"`
	RiskFlag           bool   `json:"risk_flag"`
	CIK                string `json:"cik,omitempty"`
	SourceDocumentName string `json:"source_document_name,omitempty"`
}

// EvidenceChunk is one indexed unit of filing content.
type EvidenceChunk struct {
	ID           string       `json:"id"`
	Vector       []float32    `json:"-"`
	Text         string       `json:"text"`
	Section      string       `json:"section,omitempty"`
	PageNumber   int          `json:"page_number"`
	ElementType  string       `json:"element_type"`
	TablePayload string       `json:"table_payload,omitempty"`
	BBox         *BoundingBox `json:"bbox,omitempty"`
	ScopeAttributes
}

func (c EvidenceChunk) HasTable() bool {
	return strings.TrimSpace(c.TablePayload) != ""
}

// ScoredEvidence pairs a chunk with its vector distance from the query.
// Smaller is closer.
type ScoredEvidence struct {
	Chunk    EvidenceChunk `json:"chunk"`
	Distance float64       `json:"distance"`
}

// RelevanceRequest is what the classifier sees for one chunk.
type RelevanceRequest struct {
	Question     string
	EvidenceText string
	TableExcerpt string
	PageNumber   int
}

type GenerationRequest struct {
	Role     string
	Rules    []string
	Question string
	Context  string
}

type Citation struct {
	Ref                string          `json:"ref"`
	ChunkID            string          `json:"chunk_id"`
	PageNumber         int             `json:"page_number"`
	BBox               *BoundingBox    `json:"bbox,omitempty"`
	SourceDocumentName string          `json:"source_document_name,omitempty"`
	Scope              ScopeAttributes `json:"scope"`
}

type AuditResult struct {
	Answer            string          `json:"answer"`
	Evidence          []EvidenceChunk `json:"evidence"`
	Citations         []Citation      `json:"citations"`
	Iterations        int             `json:"iterations"`
	GenerationSkipped bool            `json:"generation_skipped"`
}

// PipelineContext is the per-query working state. It is never shared
// between queries.
type PipelineContext struct {
	Question   string
	Filters    ScopeFilters
	Iterations int
	Documents  []EvidenceChunk
	Generation string
}

// CitationOverlay locates a chunk on its rendered source page.
type CitationOverlay struct {
	ChunkID            string      `json:"chunk_id"`
	SourceDocumentName string      `json:"source_document_name,omitempty"`
	PageNumber         int         `json:"page_number"`
	PageHeight         float64     `json:"page_height"`
	Scale              float64     `json:"scale"`
	BBox               BoundingBox `json:"bbox"`
	Overlay            Overlay     `json:"overlay"`
}
