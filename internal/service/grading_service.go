package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/pdf"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/repository"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/analyzer"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/evaluator"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/placement"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/qc"
)

// ProgressFunc вызывается между этапами пайплайна.
type ProgressFunc func(stage string, fraction float64)

// GradingRequest — входные данные одного прогона.
type GradingRequest struct {
	GradingID   string
	StudentName string
	KeyPDF      []byte
	StudentPDF  []byte
	Progress    ProgressFunc
}

// GradingService проводит пару документов через весь пайплайн проверки.
type GradingService interface {
	Grade(ctx context.Context, req GradingRequest) (*models.GradingResult, error)
}

type gradingService struct {
	extractor pdf.Extractor
	analyzer  analyzer.Analyzer
	evaluator evaluator.Evaluator
	engine    placement.Engine
	qc        qc.Controller
	renderer  pdf.Renderer
	artifacts repository.ArtifactStore
	slaTarget time.Duration
	logger    zerolog.Logger
}

func NewGradingService(
	extractor pdf.Extractor,
	docAnalyzer analyzer.Analyzer,
	eval evaluator.Evaluator,
	engine placement.Engine,
	controller qc.Controller,
	renderer pdf.Renderer,
	artifacts repository.ArtifactStore,
	slaTarget time.Duration,
	logger zerolog.Logger,
) GradingService {
	if slaTarget <= 0 {
		slaTarget = 2 * time.Minute
	}
	return &gradingService{
		extractor: extractor,
		analyzer:  docAnalyzer,
		evaluator: eval,
		engine:    engine,
		qc:        controller,
		renderer:  renderer,
		artifacts: artifacts,
		slaTarget: slaTarget,
		logger:    logger,
	}
}

// Grade выполняет этапы последовательно: извлечение геометрии, анализ ключа,
// сопоставление ответов, оценка, размещение фидбека с контролем качества,
// рендеринг. Ошибки отдельных вопросов не прерывают прогон; фатальны только
// ошибки документов и доступа к модели.
func (s *gradingService) Grade(ctx context.Context, req GradingRequest) (*models.GradingResult, error) {
	start := time.Now()
	if req.GradingID == "" {
		req.GradingID = uuid.New().String()
	}
	progress := req.Progress
	if progress == nil {
		progress = func(string, float64) {}
	}

	log := s.logger.With().Str("grading_id", req.GradingID).Logger()
	log.Info().Str("student", req.StudentName).Msg("Grading started")

	progress("extracting", 0.05)
	keyLayout, err := s.extractor.Extract(ctx, req.KeyPDF, models.RoleKey)
	if err != nil {
		return nil, err
	}
	studentLayout, err := s.extractor.Extract(ctx, req.StudentPDF, models.RoleStudent)
	if err != nil {
		return nil, err
	}

	progress("analyzing", 0.25)
	qmap, err := s.analyzer.AnalyzeKey(ctx, keyLayout)
	if err != nil {
		return nil, err
	}

	progress("aligning", 0.4)
	answers, err := s.analyzer.AlignStudent(ctx, studentLayout, qmap)
	if err != nil {
		return nil, err
	}

	progress("evaluating", 0.5)
	evals, err := s.evaluator.EvaluateAll(ctx, qmap, answers)
	if err != nil {
		return nil, err
	}

	progress("placing", 0.8)
	arena := placement.NewArena(studentLayout)
	records := s.engine.Prepare(arena, qmap, answers, evals)
	warnings := s.qc.Run(arena, records)

	progress("rendering", 0.9)
	annotated, err := s.renderer.RenderAnnotated(arena.Finalize())
	if err != nil {
		return nil, err
	}
	report := models.BuildGradingReport(req.StudentName, evals, warnings)
	reportPDF, err := s.renderer.RenderReport(report)
	if err != nil {
		return nil, err
	}

	result := &models.GradingResult{
		GradingID:          req.GradingID,
		StudentName:        req.StudentName,
		Report:             report,
		QualityCheckPassed: len(warnings) == 0,
		AnnotatedPDF:       annotated,
		ReportPDF:          reportPDF,
		ProcessingTimeMs:   int(time.Since(start).Milliseconds()),
	}

	if s.artifacts != nil {
		result.AnnotatedKey = fmt.Sprintf("output/%s_marked.pdf", req.GradingID)
		result.ReportKey = fmt.Sprintf("output/%s_report.pdf", req.GradingID)
		if err := s.artifacts.Save(ctx, result.AnnotatedKey, annotated, "application/pdf"); err != nil {
			return nil, fmt.Errorf("failed to store annotated document: %w", err)
		}
		if err := s.artifacts.Save(ctx, result.ReportKey, reportPDF, "application/pdf"); err != nil {
			return nil, fmt.Errorf("failed to store report: %w", err)
		}
	}

	elapsed := time.Since(start)
	if elapsed > s.slaTarget {
		log.Warn().
			Dur("elapsed", elapsed).
			Dur("target", s.slaTarget).
			Msg("Grading exceeded target duration")
	}

	progress("done", 1.0)
	log.Info().
		Float64("total_score", report.TotalScore).
		Float64("max_total", report.MaxTotal).
		Int("questions", len(evals)).
		Int("placement_warnings", len(warnings)).
		Dur("elapsed", elapsed).
		Msg("Grading completed")

	return result, nil
}
