package httpadapter

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// submitFiling accepts multipart form data: catalog fields, the partitioned
// "elements" JSON file and an optional "source" PDF.
func (rt *Router) submitFiling(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, rt.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "parse upload", err))
		return
	}

	elements, header, err := readFormFile(r, "elements")
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read elements", err))
		return
	}
	source, sourceHeader, err := readFormFile(r, "source")
	if err != nil && !errors.Is(err, http.ErrMissingFile) {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read source", err))
		return
	}

	filing, err := filingFromForm(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if filing.Filename == "" {
		switch {
		case sourceHeader != nil:
			filing.Filename = sourceHeader.Filename
		default:
			filing.Filename = strings.TrimSuffix(header.Filename, ".json")
		}
	}

	created, err := rt.svc.Ingestor.Submit(r.Context(), domain.FilingUpload{
		Filing:   filing,
		Elements: elements,
		Source:   source,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, created)
}

func readFormFile(r *http.Request, field string) ([]byte, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, err
	}
	return data, header, nil
}

func filingFromForm(r *http.Request) (domain.Filing, error) {
	f := domain.Filing{
		Ticker:       r.FormValue("ticker"),
		Filename:     strings.TrimSpace(r.FormValue("filename")),
		Industry:     strings.TrimSpace(r.FormValue("industry")),
		FilingType:   strings.TrimSpace(r.FormValue("filing_type")),
		FiscalPeriod: strings.TrimSpace(r.FormValue("fiscal_period")),
		Jurisdiction: strings.TrimSpace(r.FormValue("jurisdiction")),
		CIK:          strings.TrimSpace(r.FormValue("cik")),
	}
	if raw := strings.TrimSpace(r.FormValue("year")); raw != "" {
		year, err := strconv.Atoi(raw)
		if err != nil || year < 0 {
			return domain.Filing{}, domain.WrapError(domain.ErrInvalidInput, "parse year", fmt.Errorf("%q", raw))
		}
		f.Year = year
	}
	if raw := strings.TrimSpace(r.FormValue("risk_flag")); raw != "" {
		flag, err := strconv.ParseBool(raw)
		if err != nil {
			return domain.Filing{}, domain.WrapError(domain.ErrInvalidInput, "parse risk_flag", err)
		}
		f.RiskFlag = flag
	}
	return f, nil
}

func (rt *Router) listFilings(w http.ResponseWriter, r *http.Request) {
	filings, err := rt.svc.Catalog.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"filings": filings})
}

func (rt *Router) getFiling(w http.ResponseWriter, r *http.Request) {
	filing, err := rt.svc.Catalog.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, filing)
}

func (rt *Router) purgeVault(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Vault.Purge(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
