package httpadapter

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// queryRequest accepts the scope filters either nested under "filters" or
// flat beside "question". The nested object wins when both are sent.
type queryRequest struct {
	Question string               `json:"question"`
	Filters  *domain.ScopeFilters `json:"filters"`
	domain.ScopeFilters
}

func decodeQuery(r *http.Request) (domain.Query, error) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("invalid json"))
	}
	q := domain.Query{Question: strings.TrimSpace(req.Question), Filters: req.ScopeFilters}
	if req.Filters != nil {
		q.Filters = *req.Filters
	}
	if q.Question == "" {
		return domain.Query{}, domain.WrapError(domain.ErrInvalidInput, "decode query", errors.New("question is required"))
	}
	return q, nil
}

func (rt *Router) auditQuery(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := rt.svc.Auditor.Audit(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) exportWorkpaper(w http.ResponseWriter, r *http.Request) {
	q, err := decodeQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	// Buffer so a failed audit still gets a JSON error response.
	var buf bytes.Buffer
	if err := rt.svc.Exporter.Export(r.Context(), q, &buf); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="audit-workpaper.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (rt *Router) draftReport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Conclusion   string `json:"conclusion"`
		Instructions string `json:"instructions"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode draft", errors.New("invalid json")))
		return
	}
	report, err := rt.svc.Drafter.Draft(r.Context(), req.Conclusion, req.Instructions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"report": report})
}

func (rt *Router) evidenceOverlay(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	scale, err := floatParam(r, "scale")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageHeight, err := floatParam(r, "page_height")
	if err != nil {
		writeError(w, r, err)
		return
	}
	overlay, err := rt.svc.Citations.Overlay(r.Context(), id, scale, pageHeight)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, overlay)
}

// floatParam reads an optional query parameter. Absent means zero.
func floatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "parse "+name, err)
	}
	return v, nil
}
