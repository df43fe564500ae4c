package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

const (
	tableExcerptRunes    = 500
	defaultGradeParallel = 4
)

// tabularKeywords mark questions that usually need numbers from tables.
var tabularKeywords = []string{
	"table", "tabular", "calculate", "difference", "sum", "total", "accrual", "revenue", "expense",
}

// GradeOutcome records how many chunks survived and how many only did so
// through the tabular override.
type GradeOutcome struct {
	Kept     []domain.EvidenceChunk
	Lenient  int
	Rejected int
}

// RelevanceGrader filters retrieved evidence through a relevance classifier.
// Table chunks are always kept for tabular questions, whatever the verdict.
type RelevanceGrader struct {
	classifier ports.RelevanceClassifier
	parallel   int
}

func NewRelevanceGrader(classifier ports.RelevanceClassifier, parallel int) *RelevanceGrader {
	if parallel <= 0 {
		parallel = defaultGradeParallel
	}
	return &RelevanceGrader{classifier: classifier, parallel: parallel}
}

func (g *RelevanceGrader) Grade(ctx context.Context, question string, retrieved []domain.ScoredEvidence) (GradeOutcome, error) {
	if len(retrieved) == 0 {
		return GradeOutcome{Kept: []domain.EvidenceChunk{}}, nil
	}

	tabular := IsTabularQuestion(question)
	verdicts := make([]bool, len(retrieved))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(g.parallel)
	for i := range retrieved {
		chunk := retrieved[i].Chunk
		group.Go(func() error {
			relevant, err := g.classifier.Classify(groupCtx, domain.RelevanceRequest{
				Question:     question,
				EvidenceText: chunk.Text,
				TableExcerpt: truncateRunes(chunk.TablePayload, tableExcerptRunes),
				PageNumber:   chunk.PageNumber,
			})
			if err != nil {
				return fmt.Errorf("classify chunk %s: %w", chunk.ID, err)
			}
			verdicts[i] = relevant
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return GradeOutcome{}, err
	}

	logger := logging.FromContext(ctx)
	outcome := GradeOutcome{Kept: make([]domain.EvidenceChunk, 0, len(retrieved))}
	for i, item := range retrieved {
		switch {
		case verdicts[i]:
			outcome.Kept = append(outcome.Kept, item.Chunk)
		case tabular && item.Chunk.HasTable():
			outcome.Kept = append(outcome.Kept, item.Chunk)
			outcome.Lenient++
			logger.Debug("evidence_kept_tabular", zap.String("chunk_id", item.Chunk.ID), zap.Int("page", item.Chunk.PageNumber))
		default:
			outcome.Rejected++
		}
	}
	return outcome, nil
}

// IsTabularQuestion reports whether the question mentions any tabular
// keyword. Matching is a case-insensitive substring test.
func IsTabularQuestion(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range tabularKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
