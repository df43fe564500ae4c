package pdfgeom

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

// buildPDF assembles a minimal PDF with a valid xref table. Objects are
// numbered from 1 in the order given.
func buildPDF(objects ...string) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objects)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestPageHeightFromOwnMediaBox(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R 4 0 R] /Count 2 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 792 612] >>",
	)

	h, err := NewReader().PageHeight(data, 1)
	if err != nil {
		t.Fatalf("PageHeight() error = %v", err)
	}
	if h != 792 {
		t.Fatalf("expected 792, got %v", h)
	}
	h, err = NewReader().PageHeight(data, 2)
	if err != nil || h != 612 {
		t.Fatalf("expected landscape page height 612, got %v %v", h, err)
	}
}

func TestPageHeightInheritedFromPagesNode(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 /MediaBox [0 0 595 842] >>",
		"<< /Type /Page /Parent 2 0 R >>",
	)

	h, err := NewReader().PageHeight(data, 1)
	if err != nil {
		t.Fatalf("PageHeight() error = %v", err)
	}
	if h != 842 {
		t.Fatalf("expected inherited A4 height 842, got %v", h)
	}
}

func TestPageHeightRejectsBadInput(t *testing.T) {
	data := buildPDF(
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	)
	cases := []struct {
		name string
		data []byte
		page int
	}{
		{name: "page zero", data: data, page: 0},
		{name: "page out of range", data: data, page: 5},
		{name: "empty document", data: nil, page: 1},
		{name: "not a pdf", data: []byte("hello"), page: 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewReader().PageHeight(tc.data, tc.page); !domain.IsKind(err, domain.ErrInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}
