package pdf

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

func sampleLayout() *models.DocumentLayout {
	return &models.DocumentLayout{
		Role: models.RoleStudent,
		Pages: []models.PageDimensions{
			{Width: 612, Height: 792},
			{Width: 612, Height: 792},
		},
		Blocks: []models.PageBlock{
			{
				PageIndex: 0,
				BBox:      models.NewBBox(56, 80, 400, 110),
				Text:      "Question 1. What is 2+2?\nAnswer: 4",
				Kind:      models.BlockKindText,
				FontSize:  12,
			},
			{
				PageIndex: 0,
				BBox:      models.NewBBox(56, 130, 400, 150),
				Text:      "Correct. Full marks.",
				Kind:      models.BlockKindFeedback,
				FontSize:  10,
			},
			{
				PageIndex: 1,
				BBox:      models.NewBBox(56, 80, 400, 95),
				Text:      "Question 2. Name the capital of France.",
				Kind:      models.BlockKindText,
				FontSize:  12,
			},
		},
	}
}

func TestRenderAnnotatedProducesPDF(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	out, err := r.RenderAnnotated(sampleLayout())
	if err != nil {
		t.Fatalf("RenderAnnotated: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", out[:min(8, len(out))])
	}
	if pages := bytes.Count(out, []byte("/Type /Page ")); pages > 0 && pages != 2 {
		t.Errorf("expected 2 pages, counted %d", pages)
	}
}

func TestRenderAnnotatedEmptyLayout(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	layout := &models.DocumentLayout{
		Role:  models.RoleStudent,
		Pages: []models.PageDimensions{{Width: 612, Height: 792}},
	}
	out, err := r.RenderAnnotated(layout)
	if err != nil {
		t.Fatalf("RenderAnnotated: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatal("output is not a PDF")
	}
}

func TestRenderReportProducesPDF(t *testing.T) {
	r := NewRenderer(zerolog.Nop())

	report := &models.GradingReport{
		StudentName: "Ivan Petrov",
		PerQuestion: []models.EvaluationRecord{
			{QuestionID: 1, Score: 10, MaxScore: 10, CorrectnessLabel: models.LabelCorrect, FeedbackText: "Clean solution.", Confidence: 0.95},
			{QuestionID: 2, Score: 3, MaxScore: 10, CorrectnessLabel: models.LabelPartiallyCorrect, FeedbackText: "The second step loses a sign.", Confidence: 0.7},
			{QuestionID: 3, Score: 0, MaxScore: 5, CorrectnessLabel: models.LabelUnanswered, FeedbackText: "No answer was provided for this question.", Confidence: 1},
		},
		TotalScore:        13,
		MaxTotal:          25,
		OverallConfidence: 0.88,
		PlacementWarnings: []int{2},
		CompletedAt:       time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	out, err := r.RenderReport(report)
	if err != nil {
		t.Fatalf("RenderReport: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF")) {
		t.Fatal("output is not a PDF")
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
