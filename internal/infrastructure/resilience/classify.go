package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// StatusError is a non-2xx answer from an HTTP dependency.
type StatusError struct {
	Service    string
	Operation  string
	StatusCode int
	Body       string
}

// NewStatusError reads at most 2KiB of the response body.
func NewStatusError(service, operation string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &StatusError{
		Service:    service,
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
	}
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s status: %d", e.Service, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("%s %s status: %d: %s", e.Service, e.Operation, e.StatusCode, e.Body)
}

// HasStatus reports whether err carries a StatusError with the given code.
func HasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func RetryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// preclassify handles the cases shared by every dependency. ok is false
// when the caller must decide.
func preclassify(err error) (ErrorClassification, bool) {
	switch {
	case err == nil:
		return ErrorClassification{}, true
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorClassification{}, true
	case IsCircuitOpen(err), domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}, true
	}
	return ErrorClassification{}, false
}

// HTTPClassifier retries network errors and transient status codes.
// Other status codes are the caller's fault and do not trip the breaker.
func HTTPClassifier(err error) ErrorClassification {
	if class, ok := preclassify(err); ok {
		return class
	}
	var se *StatusError
	if errors.As(err, &se) {
		retry := RetryableStatus(se.StatusCode)
		return ErrorClassification{Retryable: retry, RecordFailure: retry}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return ErrorClassification{RecordFailure: true}
}

// Matching returns a classifier that retries the listed sentinel errors.
func Matching(transient ...error) ErrorClassifier {
	return func(err error) ErrorClassification {
		if class, ok := preclassify(err); ok {
			return class
		}
		for _, target := range transient {
			if errors.Is(err, target) {
				return ErrorClassification{Retryable: true, RecordFailure: true}
			}
		}
		return ErrorClassification{RecordFailure: true}
	}
}

// WrapTemporary marks err as ErrTemporary when classify deems it retryable.
func WrapTemporary(operation string, err error, classify ErrorClassifier) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classify(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
