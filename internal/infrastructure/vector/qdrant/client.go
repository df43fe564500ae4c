package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/infrastructure/resilience"
)

// indexedFields get a payload index on collection creation. Only indexed
// payload keys are reported as filterable schema columns.
var indexedFields = map[string]string{
	domain.ColumnTicker:       "keyword",
	domain.ColumnIndustry:     "keyword",
	domain.ColumnYear:         "integer",
	domain.ColumnFilingType:   "keyword",
	domain.ColumnJurisdiction: "keyword",
	domain.ColumnRiskFlag:     "bool",
}

// Client is an EvidenceStore backed by a Qdrant collection.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

// New returns a Client. A nil executor falls back to the default retry
// and breaker settings.
func New(baseURL, collection string, executor *resilience.Executor) *Client {
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) collectionURL(suffix string) string {
	return c.baseURL + "/collections/" + url.PathEscape(c.collection) + suffix
}

// do runs send through the executor. Transient failures come back as
// domain.ErrTemporary once retries are exhausted.
func (c *Client) do(ctx context.Context, op, method, endpoint string, in any, out any) error {
	return c.executor.Execute(ctx, "qdrant."+strings.ReplaceAll(op, " ", "_"), func(ctx context.Context) error {
		return resilience.WrapTemporary("qdrant "+op, c.send(ctx, op, method, endpoint, in, out), resilience.HTTPClassifier)
	}, resilience.HTTPClassifier)
}

// send issues one JSON request and decodes the "result" field into out
// when out is non-nil.
func (c *Client) send(ctx context.Context, op, method, endpoint string, in any, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal %s body: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("create %s request: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "qdrant "+op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError("qdrant", op, resp)
	}
	if out == nil {
		return nil
	}
	envelope := struct {
		Result any `json:"result"`
	}{Result: out}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

func isNotFound(err error) bool {
	return resilience.HasStatus(err, http.StatusNotFound)
}

type collectionInfo struct {
	PayloadSchema map[string]json.RawMessage `json:"payload_schema"`
}

func (c *Client) info(ctx context.Context) (*collectionInfo, error) {
	var info collectionInfo
	if err := c.do(ctx, "get collection", http.MethodGet, c.collectionURL(""), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Exists(ctx context.Context) (bool, error) {
	if _, err := c.info(ctx); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) Schema(ctx context.Context) (domain.Schema, error) {
	info, err := c.info(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrStoreNotInitialized, "qdrant schema", err)
		}
		return nil, err
	}
	columns := []string{domain.ColumnID, domain.ColumnVector, domain.ColumnText}
	for key := range info.PayloadSchema {
		columns = append(columns, key)
	}
	return domain.NewSchema(columns...), nil
}

type payload struct {
	Text               string              `json:"text"`
	Section            string              `json:"section,omitempty"`
	PageNumber         int                 `json:"page_number"`
	ElementType        string              `json:"element_type,omitempty"`
	TablePayload       string              `json:"table_payload,omitempty"`
	BBox               *domain.BoundingBox `json:"bbox,omitempty"`
	Ticker             string              `json:"ticker"`
	Industry           string              `json:"industry,omitempty"`
	Year               int                 `json:"year,omitempty"`
	FilingType         string              `json:"filing_type,omitempty"`
	FiscalPeriod       string              `json:"fiscal_period,omitempty"`
	Jurisdiction       string              `json:"jurisdiction,omitempty"`
	RiskFlag           bool                `json:"risk_flag"`
	CIK                string              `json:"cik,omitempty"`
	SourceDocumentName string              `json:"source_document_name,omitempty"`
}

func toPayload(c domain.EvidenceChunk) payload {
	return payload{
		Text:               c.Text,
		Section:            c.Section,
		PageNumber:         c.PageNumber,
		ElementType:        c.ElementType,
		TablePayload:       c.TablePayload,
		BBox:               c.BBox,
		Ticker:             c.Ticker,
		Industry:           c.Industry,
		Year:               c.Year,
		FilingType:         c.FilingType,
		FiscalPeriod:       c.FiscalPeriod,
		Jurisdiction:       c.Jurisdiction,
		RiskFlag:           c.RiskFlag,
		CIK:                c.CIK,
		SourceDocumentName: c.SourceDocumentName,
	}
}

func (p payload) chunk(id string) domain.EvidenceChunk {
	return domain.EvidenceChunk{
		ID:           id,
		Text:         p.Text,
		Section:      p.Section,
		PageNumber:   p.PageNumber,
		ElementType:  p.ElementType,
		TablePayload: p.TablePayload,
		BBox:         p.BBox,
		ScopeAttributes: domain.ScopeAttributes{
			Ticker:             p.Ticker,
			Industry:           p.Industry,
			Year:               p.Year,
			FilingType:         p.FilingType,
			FiscalPeriod:       p.FiscalPeriod,
			Jurisdiction:       p.Jurisdiction,
			RiskFlag:           p.RiskFlag,
			CIK:                p.CIK,
			SourceDocumentName: p.SourceDocumentName,
		},
	}
}

func buildFilter(predicate domain.Predicate) map[string]any {
	if predicate.MatchAll() {
		return nil
	}
	must := make([]map[string]any, 0, len(predicate.Clauses))
	for _, clause := range predicate.Clauses {
		must = append(must, map[string]any{
			"key":   clause.Column,
			"match": map[string]any{"value": clause.Value()},
		})
	}
	return map[string]any{"must": must}
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload payload         `json:"payload"`
}

func pointID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// Search returns cosine distance (1 - similarity), smallest first.
func (c *Client) Search(ctx context.Context, vector []float32, limit int, predicate domain.Predicate) ([]domain.ScoredEvidence, error) {
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if filter := buildFilter(predicate); filter != nil {
		reqBody["filter"] = filter
	}

	var points []scoredPoint
	if err := c.do(ctx, "search", http.MethodPost, c.collectionURL("/points/search"), reqBody, &points); err != nil {
		if isNotFound(err) {
			c.forgetCollection()
			return nil, domain.WrapError(domain.ErrStoreNotInitialized, "qdrant search", err)
		}
		return nil, err
	}

	out := make([]domain.ScoredEvidence, 0, len(points))
	for _, p := range points {
		out = append(out, domain.ScoredEvidence{
			Chunk:    p.Payload.chunk(pointID(p.ID)),
			Distance: 1 - p.Score,
		})
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, id string) (*domain.EvidenceChunk, error) {
	var point scoredPoint
	if err := c.do(ctx, "get point", http.MethodGet, c.collectionURL("/points/"+url.PathEscape(id)), nil, &point); err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrEvidenceNotFound, "qdrant get point", err)
		}
		return nil, err
	}
	chunk := point.Payload.chunk(id)
	return &chunk, nil
}

func (c *Client) Upsert(ctx context.Context, chunks []domain.EvidenceChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	size := len(chunks[0].Vector)
	if size == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", errors.New("chunk without vector"))
	}
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	type point struct {
		ID      string    `json:"id"`
		Vector  []float32 `json:"vector"`
		Payload payload   `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Vector) != size {
			return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("chunk %s has %d dims, want %d", ch.ID, len(ch.Vector), size))
		}
		points = append(points, point{ID: ch.ID, Vector: ch.Vector, Payload: toPayload(ch)})
	}

	return c.do(ctx, "upsert", http.MethodPut, c.collectionURL("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (c *Client) Drop(ctx context.Context) error {
	err := c.do(ctx, "delete collection", http.MethodDelete, c.collectionURL(""), nil, nil)
	c.forgetCollection()
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.do(ctx, "ensure collection", http.MethodPut, c.collectionURL(""), reqBody, nil)
	// 409 if the collection already exists.
	if err != nil && !resilience.HasStatus(err, http.StatusConflict) {
		return err
	}

	for field, schema := range indexedFields {
		body := map[string]any{"field_name": field, "field_schema": schema}
		if err := c.do(ctx, "create payload index", http.MethodPut, c.collectionURL("/index?wait=true"), body, nil); err != nil {
			return err
		}
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) forgetCollection() {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = false
	c.ensuredVectorSize = 0
}
