package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFilingNotFound      = errors.New("filing not found")
	ErrEvidenceNotFound    = errors.New("evidence not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrTemporary           = errors.New("temporary failure")
	ErrStoreNotInitialized = errors.New("evidence store not initialized")
	ErrGeometryMissing     = errors.New("evidence has no geometry")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
