package pdf

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

const (
	defaultFontSize  = 12
	lineSpacingRatio = 1.2

	reportMarginPt  = 56
	reportTitleSize = 18
	reportBodySize  = 11
)

// Renderer собирает выходные PDF из финальной геометрической модели.
type Renderer interface {
	RenderAnnotated(layout *models.DocumentLayout) ([]byte, error)
	RenderReport(report *models.GradingReport) ([]byte, error)
}

type documentRenderer struct {
	logger zerolog.Logger
}

func NewRenderer(logger zerolog.Logger) Renderer {
	return &documentRenderer{logger: logger}
}

// RenderAnnotated перерисовывает страницы документа с блоками фидбека.
// Размеры страниц берутся из модели, порядок блоков сохраняется.
func (r *documentRenderer) RenderAnnotated(layout *models.DocumentLayout) ([]byte, error) {
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetAutoPageBreak(false, 0)
	tr := doc.UnicodeTranslatorFromDescriptor("")

	for pageIndex, dims := range layout.Pages {
		doc.AddPageFormat("P", gofpdf.SizeType{Wd: dims.Width, Ht: dims.Height})

		for _, block := range layout.BlocksOnPage(pageIndex) {
			r.drawBlock(doc, tr, block)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render annotated document: %w", err)
	}

	r.logger.Debug().
		Int("pages", layout.PageCount()).
		Int("bytes", buf.Len()).
		Msg("Annotated document rendered")

	return buf.Bytes(), nil
}

func (r *documentRenderer) drawBlock(doc *gofpdf.Fpdf, tr func(string) string, block models.PageBlock) {
	size := block.FontSize
	if size <= 0 {
		size = defaultFontSize
	}

	if block.Kind == models.BlockKindFeedback {
		red, green, blue := feedbackColor(block.Label)
		doc.SetTextColor(red, green, blue)
		doc.SetDrawColor(red, green, blue)
		doc.SetLineWidth(0.6)
		doc.Rect(block.BBox.X0-2, block.BBox.Y0-2, block.BBox.Width()+4, block.BBox.Height()+4, "D")
	} else {
		doc.SetTextColor(0, 0, 0)
	}

	doc.SetFont("Helvetica", "", size)
	lineHeight := size * lineSpacingRatio
	for i, line := range strings.Split(block.Text, "\n") {
		baseline := block.BBox.Y0 + size + float64(i)*lineHeight
		doc.Text(block.BBox.X0, baseline, tr(line))
	}
}

// RenderReport строит сводный отчёт по прогону: итог, разбивка по вопросам,
// предупреждения о размещении.
func (r *documentRenderer) RenderReport(report *models.GradingReport) ([]byte, error) {
	doc := gofpdf.New("P", "pt", "A4", "")
	doc.SetAutoPageBreak(true, reportMarginPt)
	doc.SetMargins(reportMarginPt, reportMarginPt, reportMarginPt)
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.AddPage()

	doc.SetFont("Helvetica", "B", reportTitleSize)
	doc.SetTextColor(0, 0, 0)
	doc.CellFormat(0, reportTitleSize+6, tr("Grading Report"), "", 1, "C", false, 0, "")
	doc.Ln(8)

	doc.SetFont("Helvetica", "", reportBodySize)
	doc.CellFormat(0, reportBodySize+4, tr(fmt.Sprintf("Student: %s", report.StudentName)), "", 1, "L", false, 0, "")
	doc.CellFormat(0, reportBodySize+4, tr(fmt.Sprintf("Date: %s", report.CompletedAt.Format("2006-01-02 15:04"))), "", 1, "L", false, 0, "")
	doc.CellFormat(0, reportBodySize+4, tr(fmt.Sprintf("Total score: %.1f / %.1f", report.TotalScore, report.MaxTotal)), "", 1, "L", false, 0, "")
	doc.CellFormat(0, reportBodySize+4, tr(fmt.Sprintf("Overall confidence: %.2f", report.OverallConfidence)), "", 1, "L", false, 0, "")
	doc.Ln(10)

	for _, rec := range report.PerQuestion {
		doc.SetFont("Helvetica", "B", reportBodySize)
		header := fmt.Sprintf("Question %d: %.1f / %.1f (%s)", rec.QuestionID, rec.Score, rec.MaxScore, rec.CorrectnessLabel)
		doc.CellFormat(0, reportBodySize+4, tr(header), "", 1, "L", false, 0, "")

		if rec.FeedbackText != "" {
			doc.SetFont("Helvetica", "", reportBodySize)
			doc.MultiCell(0, reportBodySize+3, tr(rec.FeedbackText), "", "L", false)
		}
		doc.Ln(4)
	}

	if len(report.PlacementWarnings) > 0 {
		doc.Ln(6)
		doc.SetFont("Helvetica", "I", reportBodySize)
		doc.MultiCell(0, reportBodySize+3,
			tr(fmt.Sprintf("Placement warnings for questions: %s", joinIDs(report.PlacementWarnings))),
			"", "L", false)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return buf.Bytes(), nil
}

// Цвет фидбека по метке: зелёный за верный ответ, оранжевый за частичный,
// красный за остальное.
func feedbackColor(label models.CorrectnessLabel) (int, int, int) {
	switch label {
	case models.LabelCorrect:
		return 27, 122, 48
	case models.LabelPartiallyCorrect:
		return 214, 138, 0
	default:
		return 178, 24, 24
	}
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ", ")
}
