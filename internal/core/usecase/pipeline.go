package usecase

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MichaelWeed/financial-compliance-auditor/internal/core/domain"
	"github.com/MichaelWeed/financial-compliance-auditor/internal/observability/logging"
)

// Stage is a step of the audit workflow.
type Stage int

const (
	StageRetrieve Stage = iota
	StageGrade
	StageGenerate
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageRetrieve:
		return "retrieve"
	case StageGrade:
		return "grade"
	case StageGenerate:
		return "generate"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// AuditObservation summarizes one finished query.
type AuditObservation struct {
	Retrieved         int
	Kept              int
	Lenient           int
	GenerationSkipped bool
	Duration          time.Duration
	Err               error
}

// AuditRecorder receives pipeline telemetry.
type AuditRecorder interface {
	ObserveStage(stage string, duration time.Duration, err error)
	ObserveAudit(obs AuditObservation)
}

type nopAuditRecorder struct{}

func (nopAuditRecorder) ObserveStage(string, time.Duration, error) {}
func (nopAuditRecorder) ObserveAudit(AuditObservation)             {}

// AuditUseCase runs retrieve, grade and generate once per query.
type AuditUseCase struct {
	retriever *EvidenceRetriever
	grader    *RelevanceGrader
	generator *AnswerGenerator
	recorder  AuditRecorder
}

func NewAuditUseCase(
	retriever *EvidenceRetriever,
	grader *RelevanceGrader,
	generator *AnswerGenerator,
	recorder AuditRecorder,
) *AuditUseCase {
	if recorder == nil {
		recorder = nopAuditRecorder{}
	}
	return &AuditUseCase{
		retriever: retriever,
		grader:    grader,
		generator: generator,
		recorder:  recorder,
	}
}

// auditRun is the working state of one query.
type auditRun struct {
	state     domain.PipelineContext
	retrieved []domain.ScoredEvidence
	lenient   int
	skipped   bool
}

func (uc *AuditUseCase) Audit(ctx context.Context, query domain.Query) (*domain.AuditResult, error) {
	question := strings.TrimSpace(query.Question)
	if question == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "audit", errors.New("question is required"))
	}

	logger := logging.FromContext(ctx).With(zap.String("query_id", uuid.NewString()))
	defer func() { _ = logger.Sync() }()
	ctx = logging.WithLogger(ctx, logger)

	run := &auditRun{state: domain.PipelineContext{Question: question, Filters: query.Filters}}
	started := time.Now()
	logger.Info("audit_started", zap.Any("filters", query.Filters.Active()))

	for stage := StageRetrieve; stage != StageDone; stage = nextStage(stage, run.state) {
		stageStarted := time.Now()
		err := uc.runStage(ctx, stage, run)
		uc.recorder.ObserveStage(stage.String(), time.Since(stageStarted), err)
		if err != nil {
			uc.recorder.ObserveAudit(AuditObservation{Retrieved: len(run.retrieved), Duration: time.Since(started), Err: err})
			logger.Error("audit_failed", zap.String("stage", stage.String()), zap.Error(err))
			return nil, err
		}
	}

	uc.recorder.ObserveAudit(AuditObservation{
		Retrieved:         len(run.retrieved),
		Kept:              len(run.state.Documents),
		Lenient:           run.lenient,
		GenerationSkipped: run.skipped,
		Duration:          time.Since(started),
	})
	logger.Info("audit_finished",
		zap.Int("iterations", run.state.Iterations),
		zap.Int("retrieved", len(run.retrieved)),
		zap.Int("kept", len(run.state.Documents)),
		zap.Bool("generation_skipped", run.skipped),
		zap.Duration("duration", time.Since(started)),
	)

	return &domain.AuditResult{
		Answer:            run.state.Generation,
		Evidence:          DedupeEvidence(run.state.Documents),
		Citations:         buildCitations(run.state.Documents),
		Iterations:        run.state.Iterations,
		GenerationSkipped: run.skipped,
	}, nil
}

func (uc *AuditUseCase) runStage(ctx context.Context, stage Stage, run *auditRun) error {
	switch stage {
	case StageRetrieve:
		return uc.retrieve(ctx, run)
	case StageGrade:
		return uc.grade(ctx, run)
	case StageGenerate:
		return uc.generate(ctx, run)
	default:
		return nil
	}
}

func (uc *AuditUseCase) retrieve(ctx context.Context, run *auditRun) error {
	run.state.Iterations++

	schema, ok, err := uc.retriever.Schema(ctx)
	if err != nil {
		return err
	}
	if !ok {
		logging.FromContext(ctx).Warn("evidence_store_not_initialized")
		run.retrieved = []domain.ScoredEvidence{}
		run.state.Documents = []domain.EvidenceChunk{}
		return nil
	}

	if dropped := droppedFilters(run.state.Filters, schema); len(dropped) > 0 {
		logging.FromContext(ctx).Debug("filters_dropped_missing_columns", zap.Strings("columns", dropped))
	}

	retrieved, err := uc.retriever.Retrieve(ctx, run.state.Question, BuildPredicate(run.state.Filters, schema))
	if err != nil {
		return err
	}
	run.retrieved = retrieved
	run.state.Documents = chunksOf(retrieved)
	return nil
}

func (uc *AuditUseCase) grade(ctx context.Context, run *auditRun) error {
	outcome, err := uc.grader.Grade(ctx, run.state.Question, run.retrieved)
	if err != nil {
		return err
	}
	run.state.Documents = outcome.Kept
	run.lenient = outcome.Lenient
	return nil
}

func (uc *AuditUseCase) generate(ctx context.Context, run *auditRun) error {
	answer, skipped, err := uc.generator.Generate(ctx, run.state.Question, run.state.Documents)
	if err != nil {
		return err
	}
	run.state.Generation = answer
	run.skipped = skipped
	return nil
}

// nextStage is the workflow transition function. The workflow is linear.
func nextStage(stage Stage, state domain.PipelineContext) Stage {
	switch stage {
	case StageRetrieve:
		return StageGrade
	case StageGrade:
		return routeAfterGrade(state)
	case StageGenerate:
		return StageDone
	default:
		return StageDone
	}
}

// routeAfterGrade always proceeds to generation, even with no evidence.
// Generation then returns the fixed non-answer.
func routeAfterGrade(domain.PipelineContext) Stage {
	return StageGenerate
}

func chunksOf(scored []domain.ScoredEvidence) []domain.EvidenceChunk {
	out := make([]domain.EvidenceChunk, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.Chunk)
	}
	return out
}

func buildCitations(evidence []domain.EvidenceChunk) []domain.Citation {
	out := make([]domain.Citation, 0, len(evidence))
	for i, chunk := range evidence {
		out = append(out, domain.Citation{
			Ref:                SourceRef(i+1, chunk.PageNumber),
			ChunkID:            chunk.ID,
			PageNumber:         chunk.PageNumber,
			BBox:               chunk.BBox,
			SourceDocumentName: chunk.SourceDocumentName,
			Scope:              chunk.ScopeAttributes,
		})
	}
	return out
}

// DedupeEvidence drops chunks that repeat the ticker, page and opening text
// of an earlier one. First occurrences keep their order.
func DedupeEvidence(evidence []domain.EvidenceChunk) []domain.EvidenceChunk {
	seen := make(map[string]struct{}, len(evidence))
	out := make([]domain.EvidenceChunk, 0, len(evidence))
	for _, chunk := range evidence {
		key := chunk.Ticker + "\x00" + strconv.Itoa(chunk.PageNumber) + "\x00" + truncateRunes(chunk.Text, 100)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, chunk)
	}
	return out
}
