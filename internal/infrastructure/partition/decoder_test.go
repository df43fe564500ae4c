package partition

import (
	"testing"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

func TestDecodeReadsTextPageAndGeometry(t *testing.T) {
	data := []byte(`[
		{"type":"Title","element_id":"a","text":"Risk Factors","metadata":{"page_number":12,"coordinates":{"points":[[10,20],[10,40],[200,40],[200,20]],"system":"PixelSpace"}}},
		{"type":"Table","text":"Revenue 100 200","metadata":{"page_number":13,"text_as_html":"<table><tr><td>100</td></tr></table>"}},
		{"type":"NarrativeText","text":"   ","metadata":{"page_number":13}},
		{"type":"NarrativeText","text":"No page"}
	]`)

	elements, err := NewDecoder().Decode(data)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(elements) != 3 {
		t.Fatalf("expected 3 elements, got %d", len(elements))
	}
	title := elements[0]
	if !title.IsTitle() || title.PageNumber != 12 || len(title.Points) != 4 {
		t.Fatalf("unexpected title: %+v", title)
	}
	if box := domain.BoxFromPoints(title.Points); box == nil || box.X1 != 200 || box.Y1 != 40 {
		t.Fatalf("unexpected title box: %+v", box)
	}
	if !elements[1].IsTable() || elements[1].TableHTML == "" {
		t.Fatalf("expected table markup: %+v", elements[1])
	}
	if elements[2].PageNumber != 1 || elements[2].Points != nil {
		t.Fatalf("expected defaults for bare element: %+v", elements[2])
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"empty":        ``,
		"not an array": `{"type":"Title"}`,
		"bad point":    `[{"type":"Title","text":"x","metadata":{"coordinates":{"points":[[1,2,3]]}}}]`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewDecoder().Decode([]byte(raw)); !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
