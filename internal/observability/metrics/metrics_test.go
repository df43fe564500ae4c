package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/usecase"
)

func TestNormalizePath(t *testing.T) {
	cases := map[string]string{
		"/v1/filings/3f2c":         "/v1/filings/{filing_id}",
		"/v1/evidence/abc/overlay": "/v1/evidence/{chunk_id}/overlay",
		"/v1/audit/query":          "/v1/audit/query",
		"/v1/filings":              "/v1/filings",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestObserveAuditCountsOutcomes(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.ObserveAudit(usecase.AuditObservation{Retrieved: 8, Kept: 2, Lenient: 1, Duration: time.Second})
	m.ObserveAudit(usecase.AuditObservation{Retrieved: 3, GenerationSkipped: true})
	m.ObserveAudit(usecase.AuditObservation{Err: errors.New("classifier down")})

	if got := testutil.ToFloat64(m.auditTotal.WithLabelValues("api", "success")); got != 2 {
		t.Fatalf("expected 2 successful audits, got %v", got)
	}
	if got := testutil.ToFloat64(m.auditTotal.WithLabelValues("api", "error")); got != 1 {
		t.Fatalf("expected 1 failed audit, got %v", got)
	}
	if got := testutil.ToFloat64(m.lenientKeptTotal.WithLabelValues("api")); got != 1 {
		t.Fatalf("expected 1 lenient chunk, got %v", got)
	}
	if got := testutil.ToFloat64(m.generationSkipTotal.WithLabelValues("api")); got != 1 {
		t.Fatalf("expected 1 skipped generation, got %v", got)
	}
}

func TestMiddlewareRecordsNormalizedPath(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/filings/abc", nil))

	if got := testutil.ToFloat64(m.requestTotal.WithLabelValues("api", http.MethodGet, "/v1/filings/{filing_id}", "404")); got != 1 {
		t.Fatalf("expected 1 request, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "auditor_http_requests_total") {
		t.Fatalf("expected exported metric, got %s", rec.Body.String())
	}
}

func TestWorkerMetrics(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartFiling()
	m.FinishFiling("worker", time.Second, nil)
	m.AddChunks("worker", 12)
	m.AddChunks("worker", 0)

	if got := testutil.ToFloat64(m.processTotal.WithLabelValues("worker", "success")); got != 1 {
		t.Fatalf("expected 1 indexed filing, got %v", got)
	}
	if got := testutil.ToFloat64(m.chunksIndexed.WithLabelValues("worker")); got != 12 {
		t.Fatalf("expected 12 chunks, got %v", got)
	}
}
