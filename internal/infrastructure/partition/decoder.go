// Package partition decodes the element list produced by the document
// partitioner (one JSON object per layout element).
package partition

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

type rawElement struct {
	Type     string      `json:"type"`
	Text     string      `json:"text"`
	Metadata rawMetadata `json:"metadata"`
}

type rawMetadata struct {
	PageNumber  int             `json:"page_number"`
	TextAsHTML  string          `json:"text_as_html"`
	Coordinates *rawCoordinates `json:"coordinates"`
}

type rawCoordinates struct {
	Points [][]float64 `json:"points"`
}

type Decoder struct{}

func NewDecoder() *Decoder { return &Decoder{} }

// Decode parses a JSON array of elements. Elements without text or table
// markup are skipped. A missing page number defaults to 1.
func (d *Decoder) Decode(data []byte) ([]domain.Element, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode elements", errors.New("empty payload"))
	}

	var raw []rawElement
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decode elements", err)
	}

	out := make([]domain.Element, 0, len(raw))
	for i, r := range raw {
		text := strings.TrimSpace(r.Text)
		html := strings.TrimSpace(r.Metadata.TextAsHTML)
		if text == "" && html == "" {
			continue
		}
		page := r.Metadata.PageNumber
		if page <= 0 {
			page = 1
		}
		points, err := decodePoints(r.Metadata.Coordinates)
		if err != nil {
			return nil, domain.WrapError(domain.ErrInvalidInput, "decode elements", fmt.Errorf("element %d: %w", i, err))
		}
		elementType := strings.TrimSpace(r.Type)
		if elementType == "" {
			elementType = "NarrativeText"
		}
		out = append(out, domain.Element{
			Type:       elementType,
			Text:       text,
			PageNumber: page,
			Points:     points,
			TableHTML:  html,
		})
	}
	return out, nil
}

func decodePoints(c *rawCoordinates) ([]domain.Point, error) {
	if c == nil || len(c.Points) == 0 {
		return nil, nil
	}
	out := make([]domain.Point, 0, len(c.Points))
	for _, p := range c.Points {
		if len(p) != 2 {
			return nil, fmt.Errorf("coordinate point has %d values", len(p))
		}
		out = append(out, domain.Point{X: p[0], Y: p[1]})
	}
	return out, nil
}
