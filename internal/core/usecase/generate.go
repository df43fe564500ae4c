package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
)

// NonAnswer is returned verbatim when no evidence survives grading.
const NonAnswer = "I'm sorry, I couldn't find relevant information in the provided SEC filings to answer your question accurately."

const auditorRole = "You are a senior financial compliance auditor. Answer strictly from the supplied filing excerpts. If they do not contain the answer, say so."

var generationRules = []string{
	"Cite every statement as [Source i – Page p], using the source numbers given in the context.",
	"When a source lists Coordinates, repeat them in the citation so the passage can be highlighted.",
	"In risk-factor sections, separate hypothetical risks from realized events. Text introduced by \"for example\", \"we have previously\", \"such as the incident in\" or \"as disclosed in\", or tied to a specific past date, is a confirmed event. Describe unnamed actors by their description.",
	"Read figures from tables and inline rows such as \"2025 Deferred tax assets 20,777\"; amounts are usually in millions. For differences, sums or comparisons show the arithmetic explicitly, e.g. \"Value in 2025: $X million, Value in 2024: $Y million, Difference: $X - $Y = $Z million\", and state whether the value increased or decreased.",
	"If the requested data is not present, say what related data is available, suggest a narrower question, and name the pages that hold tables.",
}

// AnswerGenerator synthesizes a cited answer from graded evidence.
type AnswerGenerator struct {
	generator ports.AnswerGenerator
}

func NewAnswerGenerator(generator ports.AnswerGenerator) *AnswerGenerator {
	return &AnswerGenerator{generator: generator}
}

// Generate returns the answer text and whether generation was skipped. With
// no evidence the fixed non-answer is returned and the model is not called.
func (g *AnswerGenerator) Generate(ctx context.Context, question string, evidence []domain.EvidenceChunk) (string, bool, error) {
	if len(evidence) == 0 {
		return NonAnswer, true, nil
	}

	answer, err := g.generator.Generate(ctx, domain.GenerationRequest{
		Role:     auditorRole,
		Rules:    generationRules,
		Question: question,
		Context:  BuildEvidenceContext(evidence),
	})
	if err != nil {
		return "", false, fmt.Errorf("generate answer: %w", err)
	}
	return strings.TrimSpace(answer), false, nil
}

// BuildEvidenceContext renders evidence as numbered sources. Numbering
// starts at 1 and follows the given order.
func BuildEvidenceContext(evidence []domain.EvidenceChunk) string {
	var b strings.Builder
	var tablePages []string
	for i, chunk := range evidence {
		fmt.Fprintf(&b, "\n%s:\n%s\n", SourceRef(i+1, chunk.PageNumber), chunk.Text)
		if chunk.HasTable() {
			fmt.Fprintf(&b, "Table Data (HTML): %s\n", chunk.TablePayload)
			tablePages = append(tablePages, strconv.Itoa(chunk.PageNumber))
		}
		if chunk.BBox != nil {
			fmt.Fprintf(&b, "Coordinates: [%g, %g, %g, %g]\n", chunk.BBox.X0, chunk.BBox.Y0, chunk.BBox.X1, chunk.BBox.Y1)
		}
	}
	if len(tablePages) > 0 {
		fmt.Fprintf(&b, "\nTables available on pages: %s\n", strings.Join(tablePages, ", "))
	}
	return b.String()
}

// SourceRef formats a citation label.
func SourceRef(index, page int) string {
	return fmt.Sprintf("[Source %d – Page %d]", index, page)
}
