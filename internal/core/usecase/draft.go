package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/ports"
)

const draftRole = "You are a professional financial report writer. Rewrite the audit conclusion into the requested report format without adding facts."

const defaultDraftInstructions = "Write a concise executive summary with headings, keeping every [Source i – Page p] citation."

var draftRules = []string{
	"Keep every figure and citation exactly as written in the conclusion.",
	"Do not introduce facts that are not in the conclusion.",
	"Follow the user's formatting instructions.",
}

type DraftUseCase struct {
	generator ports.AnswerGenerator
}

func NewDraftUseCase(generator ports.AnswerGenerator) *DraftUseCase {
	return &DraftUseCase{generator: generator}
}

func (uc *DraftUseCase) Draft(ctx context.Context, conclusion, instructions string) (string, error) {
	conclusion = strings.TrimSpace(conclusion)
	if conclusion == "" || conclusion == NonAnswer {
		return "", domain.WrapError(domain.ErrInvalidInput, "draft report", errors.New("conclusion is required"))
	}
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		instructions = defaultDraftInstructions
	}

	report, err := uc.generator.Generate(ctx, domain.GenerationRequest{
		Role:     draftRole,
		Rules:    draftRules,
		Question: instructions,
		Context:  conclusion,
	})
	if err != nil {
		return "", fmt.Errorf("draft report: %w", err)
	}
	return strings.TrimSpace(report), nil
}
