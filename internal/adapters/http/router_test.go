package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

func TestAuditQueryDecodesFilters(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	body := `{"question":"What was revenue?","filters":{"ticker":"AAPL","year":2024}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	q := svc.auditor.lastQuery
	if q.Question != "What was revenue?" || q.Filters.Ticker.Value != "AAPL" || q.Filters.Year.Value != 2024 {
		t.Fatalf("unexpected query: %+v", q)
	}
	var result domain.AuditResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil || result.Answer != "ok" {
		t.Fatalf("unexpected body %s (%v)", rec.Body.String(), err)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAuditQueryAcceptsFlatFilters(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	body := `{"question":"Any going concern doubt?","ticker":"MSFT","year":2023,"filing_type":"10-K","risk_only":true}`
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	f := svc.auditor.lastQuery.Filters
	if f.Ticker.Value != "MSFT" || f.Year.Value != 2023 || f.FilingType.Value != "10-K" || !f.RiskOnly {
		t.Fatalf("unexpected filters: %+v", f)
	}
	if f.Industry.Set {
		t.Fatalf("industry must stay unset: %+v", f.Industry)
	}
}

func TestAuditQueryNestedFiltersWin(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	body := `{"question":"Revenue?","ticker":"MSFT","filters":{"ticker":"AAPL"}}`
	req := httptest.NewRequest(http.MethodPost, "/v1/audit/query", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := svc.auditor.lastQuery.Filters.Ticker.Value; got != "AAPL" {
		t.Fatalf("expected nested ticker, got %q", got)
	}
}

func TestAuditQueryValidation(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	for _, body := range []string{`{`, `{"question":"   "}`} {
		req := httptest.NewRequest(http.MethodPost, "/v1/audit/query", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.WrapError(domain.ErrInvalidInput, "op", errors.New("x")), http.StatusBadRequest},
		{domain.WrapError(domain.ErrFilingNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrEvidenceNotFound, "op", errors.New("x")), http.StatusNotFound},
		{domain.WrapError(domain.ErrGeometryMissing, "op", errors.New("x")), http.StatusUnprocessableEntity},
		{domain.WrapError(domain.ErrTemporary, "op", errors.New("x")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := mapErrorToHTTPStatus(tc.err); got != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}

func TestAuditQueryTemporaryFailureReturns503WithRequestID(t *testing.T) {
	svc := newTestServices()
	svc.auditor.err = domain.WrapError(domain.ErrTemporary, "retrieve", errors.New("store down"))
	h := NewRouter(svc.services(), Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/audit/query", strings.NewReader(`{"question":"q"}`))
	req.Header.Set(requestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["request_id"] != "req-42" {
		t.Fatalf("expected request id to be echoed, got %v", payload)
	}
}

func TestExportWritesWorkbook(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/audit/export", strings.NewReader(`{"question":"q"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxContentType {
		t.Fatalf("unexpected response %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "PK-xlsx" {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	svc.exporter.err = errors.New("boom")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/audit/export", strings.NewReader(`{"question":"q"}`)))
	if rec.Code != http.StatusInternalServerError || !strings.Contains(rec.Header().Get("Content-Type"), "json") {
		t.Fatalf("expected json 500, got %d %q", rec.Code, rec.Header().Get("Content-Type"))
	}
}

func TestDraftReport(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	req := httptest.NewRequest(http.MethodPost, "/v1/audit/draft", strings.NewReader(`{"conclusion":"Revenue grew."}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "REPORT: Revenue grew.") {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestEvidenceOverlay(t *testing.T) {
	svc := newTestServices()
	svc.citations.overlay = &domain.CitationOverlay{ChunkID: "c1", Overlay: domain.Overlay{X: 1, Y: 2, Width: 3, Height: 4}}
	h := NewRouter(svc.services(), Options{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/evidence/c1/overlay?scale=1.5&page_height=792", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if svc.citations.scale != 1.5 || svc.citations.pageHeight != 792 {
		t.Fatalf("params not forwarded: %+v", svc.citations)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/evidence/c1/overlay?scale=big", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad scale, got %d", rec.Code)
	}

	svc.citations.err = domain.WrapError(domain.ErrGeometryMissing, "overlay", errors.New("no bbox"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/evidence/c1/overlay", nil))
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func multipartUpload(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for name, content := range files {
		filename := name + ".json"
		if name == "source" {
			filename = "aapl-10k.pdf"
		}
		fw, err := mw.CreateFormFile(name, filename)
		if err != nil {
			t.Fatalf("create file: %v", err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestSubmitFilingParsesMultipart(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	body, contentType := multipartUpload(t,
		map[string]string{"ticker": "aapl", "year": "2024", "risk_flag": "true", "filing_type": "10-K"},
		map[string]string{"elements": `[{"type":"Title","text":"Risk"}]`, "source": "%PDF-1.4"},
	)
	req := httptest.NewRequest(http.MethodPost, "/v1/filings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	up := svc.ingestor.lastUpload
	if up.Filing.Ticker != "aapl" || up.Filing.Year != 2024 || !up.Filing.RiskFlag || up.Filing.FilingType != "10-K" {
		t.Fatalf("unexpected filing: %+v", up.Filing)
	}
	if up.Filing.Filename != "aapl-10k.pdf" {
		t.Fatalf("expected filename from source upload, got %q", up.Filing.Filename)
	}
	if string(up.Source) != "%PDF-1.4" || !strings.Contains(string(up.Elements), "Title") {
		t.Fatalf("files not forwarded")
	}
}

func TestSubmitFilingRejectsBadInput(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	body, contentType := multipartUpload(t, map[string]string{"ticker": "A"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/filings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing elements: expected 400, got %d", rec.Code)
	}

	body, contentType = multipartUpload(t, map[string]string{"ticker": "A", "year": "twenty"}, map[string]string{"elements": "[]"})
	req = httptest.NewRequest(http.MethodPost, "/v1/filings", body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad year: expected 400, got %d", rec.Code)
	}
}

func TestSubmitFilingRejectsOversizedUpload(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{MaxUploadBytes: 64}).Handler()

	body, contentType := multipartUpload(t, map[string]string{"ticker": "A"}, map[string]string{"elements": strings.Repeat("x", 512)})
	req := httptest.NewRequest(http.MethodPost, "/v1/filings", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestFilingCatalogRoutes(t *testing.T) {
	svc := newTestServices()
	svc.catalog.filings = []domain.Filing{{ID: "f1", Ticker: "AAPL", Filename: "a.pdf"}}
	h := NewRouter(svc.services(), Options{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/filings", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"f1"`) {
		t.Fatalf("unexpected list response %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/filings/f1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/filings/missing", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPurgeVault(t *testing.T) {
	svc := newTestServices()
	h := NewRouter(svc.services(), Options{}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/vault", nil))
	if rec.Code != http.StatusNoContent || svc.vault.purged != 1 {
		t.Fatalf("unexpected purge response %d (purged=%d)", rec.Code, svc.vault.purged)
	}
}

func TestHealthzAndMetricsHandler(t *testing.T) {
	svc := newTestServices()
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("auditor_up 1"))
	})
	h := NewRouter(svc.services(), Options{MetricsHandler: metricsHandler}).Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Body.String() != "auditor_up 1" {
		t.Fatalf("unexpected metrics body %q", rec.Body.String())
	}
}
