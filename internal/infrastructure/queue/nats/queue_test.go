package nats

import (
	"errors"
	"testing"

	"github.com/nats-io/nats.go"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

func TestDecodeFilingEvent(t *testing.T) {
	cases := []struct {
		name    string
		data    string
		want    string
		wantErr bool
	}{
		{name: "json", data: `{"filing_id":"f-1","submitted_at":"2025-01-01T00:00:00Z"}`, want: "f-1"},
		{name: "bare id", data: " f-2 \n", want: "f-2"},
		{name: "empty", data: "  ", wantErr: true},
		{name: "missing id", data: `{"submitted_at":"2025-01-01T00:00:00Z"}`, wantErr: true},
		{name: "broken json", data: `{"filing_id":`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := decodeFilingEvent([]byte(tc.data))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil || got.FilingID != tc.want {
				t.Fatalf("decodeFilingEvent() = %+v, %v; want %q", got, err, tc.want)
			}
		})
	}
}

func TestDecodeFilingEventKeepsSubmissionTime(t *testing.T) {
	got, err := decodeFilingEvent([]byte(`{"filing_id":"f-1","submitted_at":"2025-01-01T00:00:00Z"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.SubmittedAt.IsZero() || got.SubmittedAt.Year() != 2025 {
		t.Fatalf("submission time lost: %+v", got)
	}
	bare, _ := decodeFilingEvent([]byte("f-2"))
	if !bare.SubmittedAt.IsZero() {
		t.Fatalf("bare id must not carry a submission time")
	}
}

func TestWrapTemporaryIfNeeded(t *testing.T) {
	if err := wrapTemporaryIfNeeded(nats.ErrNoServers); !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected no-servers to be temporary, got %v", err)
	}
	plain := errors.New("bad subject")
	if err := wrapTemporaryIfNeeded(plain); domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected permanent error to pass through, got %v", err)
	}
	if wrapTemporaryIfNeeded(nil) != nil {
		t.Fatalf("expected nil")
	}
}
