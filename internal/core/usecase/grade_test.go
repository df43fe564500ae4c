package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

func tableChunk(id, text, payload string, page int) domain.ScoredEvidence {
	s := scored(id, text, page, 0.1, domain.ScopeAttributes{})
	s.Chunk.ElementType = "Table"
	s.Chunk.TablePayload = payload
	return s
}

func TestGradeKeepsAffirmativeInOrder(t *testing.T) {
	classifier := &classifierFake{relevant: map[string]bool{"a": true, "c": true}}
	g := NewRelevanceGrader(classifier, 2)
	retrieved := []domain.ScoredEvidence{
		scored("1", "a", 1, 0.1, domain.ScopeAttributes{}),
		scored("2", "b", 1, 0.2, domain.ScopeAttributes{}),
		scored("3", "c", 2, 0.3, domain.ScopeAttributes{}),
	}

	out, err := g.Grade(context.Background(), "what risks exist?", retrieved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Kept) != 2 || out.Kept[0].ID != "1" || out.Kept[1].ID != "3" {
		t.Fatalf("unexpected kept chunks: %+v", out.Kept)
	}
	if out.Rejected != 1 || out.Lenient != 0 {
		t.Fatalf("unexpected counts: %+v", out)
	}
	if classifier.calls() != 3 {
		t.Fatalf("expected 3 classifier calls, got %d", classifier.calls())
	}
}

func TestGradeTabularLeniencyRetainsTables(t *testing.T) {
	classifier := &classifierFake{relevant: map[string]bool{}}
	g := NewRelevanceGrader(classifier, 0)
	retrieved := []domain.ScoredEvidence{
		tableChunk("t", "Deferred tax assets", "<table><tr><td>2025</td><td>20,777</td></tr></table>", 40),
		scored("n", "narrative", 41, 0.2, domain.ScopeAttributes{}),
	}

	out, err := g.Grade(context.Background(), "What is the Difference between 2024 and 2025 deferred tax assets?", retrieved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Kept) != 1 || out.Kept[0].ID != "t" {
		t.Fatalf("expected only table chunk kept, got %+v", out.Kept)
	}
	if out.Lenient != 1 {
		t.Fatalf("expected one lenient retention, got %d", out.Lenient)
	}
}

func TestGradeNoLeniencyWithoutKeyword(t *testing.T) {
	g := NewRelevanceGrader(&classifierFake{relevant: map[string]bool{}}, 1)
	retrieved := []domain.ScoredEvidence{tableChunk("t", "x", "<table/>", 1)}

	out, err := g.Grade(context.Background(), "Who is the auditor?", retrieved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Kept) != 0 {
		t.Fatalf("expected nothing kept, got %+v", out.Kept)
	}
}

func TestGradeNoLeniencyWithoutTablePayload(t *testing.T) {
	g := NewRelevanceGrader(&classifierFake{relevant: map[string]bool{}}, 1)
	retrieved := []domain.ScoredEvidence{tableChunk("t", "x", "   ", 1)}

	out, err := g.Grade(context.Background(), "total revenue?", retrieved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Kept) != 0 {
		t.Fatalf("blank payload must not trigger leniency")
	}
}

func TestGradeTruncatesTableExcerpt(t *testing.T) {
	classifier := &classifierFake{relevant: map[string]bool{}}
	g := NewRelevanceGrader(classifier, 1)
	payload := strings.Repeat("é", 900)

	if _, err := g.Grade(context.Background(), "q", []domain.ScoredEvidence{tableChunk("t", "x", payload, 3)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	req := classifier.requests[0]
	if utf8.RuneCountInString(req.TableExcerpt) != tableExcerptRunes {
		t.Fatalf("expected %d runes, got %d", tableExcerptRunes, utf8.RuneCountInString(req.TableExcerpt))
	}
	if req.PageNumber != 3 || req.Question != "q" || req.EvidenceText != "x" {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestGradeClassifierErrorFailsQuery(t *testing.T) {
	g := NewRelevanceGrader(&classifierFake{err: errors.New("model down")}, 2)
	retrieved := []domain.ScoredEvidence{scored("1", "a", 1, 0.1, domain.ScopeAttributes{})}

	if _, err := g.Grade(context.Background(), "q", retrieved); err == nil {
		t.Fatalf("expected classifier error")
	}
}

func TestIsTabularQuestion(t *testing.T) {
	cases := map[string]bool{
		"Calculate the change":         true,
		"What were TOTAL assets?":      true,
		"accrued warranty accruals":    true,
		"Describe cybersecurity risks": false,
		"":                             false,
	}
	for q, want := range cases {
		if got := IsTabularQuestion(q); got != want {
			t.Fatalf("IsTabularQuestion(%q) = %v, want %v", q, got, want)
		}
	}
}
