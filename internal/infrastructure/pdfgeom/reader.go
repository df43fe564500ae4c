// Package pdfgeom reads page dimensions from PDF source documents.
package pdfgeom

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// maxParentDepth bounds the walk up the page tree.
const maxParentDepth = 32

type Reader struct{}

func NewReader() *Reader { return &Reader{} }

// PageHeight returns the MediaBox height of the 1-based page. MediaBox may
// be inherited from an ancestor Pages node.
func (r *Reader) PageHeight(data []byte, page int) (height float64, err error) {
	if page < 1 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", fmt.Errorf("page %d", page))
	}
	if len(data) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", errors.New("empty document"))
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if rec := recover(); rec != nil {
			height = 0
			err = domain.WrapError(domain.ErrInvalidInput, "pdf page height", fmt.Errorf("malformed pdf: %v", rec))
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", err)
	}
	if page > doc.NumPage() {
		return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", fmt.Errorf("page %d of %d", page, doc.NumPage()))
	}

	node := doc.Page(page).V
	for depth := 0; depth < maxParentDepth && !node.IsNull(); depth++ {
		box := node.Key("MediaBox")
		if box.Kind() == pdf.Array && box.Len() == 4 {
			h := box.Index(3).Float64() - box.Index(1).Float64()
			if h <= 0 {
				return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", fmt.Errorf("mediabox height %g", h))
			}
			return h, nil
		}
		node = node.Key("Parent")
	}
	return 0, domain.WrapError(domain.ErrInvalidInput, "pdf page height", fmt.Errorf("page %d has no mediabox", page))
}
