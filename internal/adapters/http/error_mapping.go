package httpadapter

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrFilingNotFound), domain.IsKind(err, domain.ErrEvidenceNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrGeometryMissing):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error("request_failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": requestIDFromContext(r.Context()),
	})
}
