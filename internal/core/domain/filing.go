package domain

import "time"

type FilingStatus string

const (
	StatusUploaded   FilingStatus = "uploaded"
	StatusProcessing FilingStatus = "processing"
	StatusIndexed    FilingStatus = "indexed"
	StatusFailed     FilingStatus = "failed"
)

// Filing is a catalog entry for one ingested filing.
type Filing struct {
	ID           string       `json:"id"`
	Ticker       string       `json:"ticker"`
	Filename     string       `json:"filename"`
	Industry     string       `json:"industry,omitempty"`
	Year         int          `json:"year,omitempty"`
	FilingType   string       `json:"filing_type,omitempty"`
	FiscalPeriod string       `json:"fiscal_period,omitempty"`
	Jurisdiction string       `json:"jurisdiction,omitempty"`
	RiskFlag     bool         `json:"risk_flag"`
	CIK          string       `json:"cik,omitempty"`
	ElementsPath string       `json:"elements_path"`
	SourcePath   string       `json:"source_path,omitempty"`
	Status       FilingStatus `json:"status"`
	ChunkCount   int          `json:"chunk_count"`
	Error        string       `json:"error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Scope returns the attributes stamped on every chunk of the filing.
func (f Filing) Scope() ScopeAttributes {
	return ScopeAttributes{
		Ticker:             f.Ticker,
		Industry:           f.Industry,
		Year:               f.Year,
		FilingType:         f.FilingType,
		FiscalPeriod:       f.FiscalPeriod,
		Jurisdiction:       f.Jurisdiction,
		RiskFlag:           f.RiskFlag,
		CIK:                f.CIK,
		SourceDocumentName: f.Filename,
	}
}

// FilingUpload is the ingestion request.
type FilingUpload struct {
	Filing   Filing
	Elements []byte
	Source   []byte
}

// Element is one partitioner output element.
type Element struct {
	Type       string
	Text       string
	PageNumber int
	Points     []Point
	TableHTML  string
}

func (e Element) IsTable() bool { return e.Type == "Table" }
func (e Element) IsTitle() bool { return e.Type == "Title" }
