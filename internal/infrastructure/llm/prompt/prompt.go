// Package prompt renders model requests shared by every LLM backend.
package prompt

import (
	"fmt"
	"strings"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
)

const relevanceSystem = `You are a grader assessing whether a passage from a financial filing is relevant to a user question.
Answer with a single word: YES or NO.
Answer YES if the passage, or its table data, contains figures, facts or context that help answer the question.`

// Relevance returns the system and user messages for a relevance check.
func Relevance(req domain.RelevanceRequest) (string, string) {
	var b strings.Builder
	fmt.Fprintf(&b, "Question: %s\n\nPassage (page %d):\n%s\n", req.Question, req.PageNumber, req.EvidenceText)
	if strings.TrimSpace(req.TableExcerpt) != "" {
		fmt.Fprintf(&b, "\nTable data (excerpt):\n%s\n", req.TableExcerpt)
	}
	b.WriteString("\nIs the passage relevant? Answer YES or NO.")
	return relevanceSystem, b.String()
}

// Generation returns the system and user messages for answer synthesis.
func Generation(req domain.GenerationRequest) (string, string) {
	var sys strings.Builder
	sys.WriteString(req.Role)
	if len(req.Rules) > 0 {
		sys.WriteString("\n\nRules:\n")
		for i, rule := range req.Rules {
			fmt.Fprintf(&sys, "%d. %s\n", i+1, rule)
		}
	}
	user := fmt.Sprintf("Question: %s\n\nContext:\n%s", req.Question, req.Context)
	return sys.String(), user
}

// IsAffirmative reports whether a model reply contains YES anywhere,
// ignoring case.
func IsAffirmative(reply string) bool {
	return strings.Contains(strings.ToUpper(reply), "YES")
}
