package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/gateway"
)

const (
	baseTemperature  = 0.2
	retryTemperature = 0.0

	defaultMaxScore = 10
)

const keySystemPrompt = `You are an exam structure analyzer. You receive numbered text blocks ` +
	`extracted from an answer key document. Identify every question, its prompt block, ` +
	`the blocks holding the reference answer, and the maximum score if stated. ` +
	`Respond with JSON only, no prose: ` +
	`{"questions":[{"question_id":1,"prompt_block":0,"answer_blocks":[1],"max_score":10}]}`

const alignSystemPrompt = `You are an exam answer matcher. You receive numbered text blocks from ` +
	`a student submission and the list of questions from the answer key. For each question pick ` +
	`the student blocks that answer it, or an empty list if the student left it blank. ` +
	`Respond with JSON only, no prose: ` +
	`{"answers":[{"question_id":1,"blocks":[2,3]}]}`

// Analyzer превращает геометрию документов в карту вопросов и области
// ответов студента.
type Analyzer interface {
	AnalyzeKey(ctx context.Context, layout *models.DocumentLayout) (*models.QuestionMap, error)
	AlignStudent(ctx context.Context, layout *models.DocumentLayout, qmap *models.QuestionMap) ([]models.AnswerRecord, error)
}

type documentAnalyzer struct {
	gateway gateway.Gateway
	logger  zerolog.Logger
}

func NewAnalyzer(gw gateway.Gateway, logger zerolog.Logger) Analyzer {
	return &documentAnalyzer{gateway: gw, logger: logger}
}

type keySegment struct {
	QuestionID   int     `json:"question_id"`
	PromptBlock  int     `json:"prompt_block"`
	AnswerBlocks []int   `json:"answer_blocks"`
	MaxScore     float64 `json:"max_score"`
}

type keySegmentation struct {
	Questions []keySegment `json:"questions"`
}

type answerMatch struct {
	QuestionID int   `json:"question_id"`
	Blocks     []int `json:"blocks"`
}

type answerAlignment struct {
	Answers []answerMatch `json:"answers"`
}

// AnalyzeKey сегментирует эталонный документ на вопросы. ID вопросов
// назначаются по порядку следования в документе и стабильны между запусками.
func (a *documentAnalyzer) AnalyzeKey(ctx context.Context, layout *models.DocumentLayout) (*models.QuestionMap, error) {
	var seg keySegmentation
	validate := func() error { return validateSegmentation(&seg, len(layout.Blocks)) }

	prompt := renderBlocks(layout.Blocks)
	if err := a.callForJSON(ctx, "key_segmentation", keySystemPrompt, prompt, &seg, validate); err != nil {
		return nil, err
	}

	// Порядок в документе, а не порядок в ответе модели.
	sort.SliceStable(seg.Questions, func(i, j int) bool {
		bi := layout.Blocks[seg.Questions[i].PromptBlock]
		bj := layout.Blocks[seg.Questions[j].PromptBlock]
		if bi.PageIndex != bj.PageIndex {
			return bi.PageIndex < bj.PageIndex
		}
		return bi.BBox.Y0 < bj.BBox.Y0
	})

	qmap := &models.QuestionMap{}
	for i, s := range seg.Questions {
		prompt := layout.Blocks[s.PromptBlock]

		answerTexts := make([]string, 0, len(s.AnswerBlocks))
		answerBox := prompt.BBox
		answerPage := prompt.PageIndex
		for j, idx := range s.AnswerBlocks {
			b := layout.Blocks[idx]
			answerTexts = append(answerTexts, b.Text)
			if j == 0 {
				answerBox = b.BBox
				answerPage = b.PageIndex
			} else if b.PageIndex == answerPage {
				answerBox = answerBox.Union(b.BBox)
			}
		}

		maxScore := s.MaxScore
		if maxScore <= 0 {
			maxScore = defaultMaxScore
		}

		qmap.Questions = append(qmap.Questions, models.Question{
			ID:            i + 1,
			PromptText:    prompt.Text,
			KeyAnswerText: strings.Join(answerTexts, "\n"),
			KeyBBox:       answerBox,
			KeyPageIndex:  answerPage,
			MaxScore:      maxScore,
		})
	}

	a.logger.Info().
		Int("questions", qmap.Len()).
		Int("blocks", len(layout.Blocks)).
		Msg("Answer key segmented")

	return qmap, nil
}

// AlignStudent сопоставляет блоки студента с вопросами ключа. Каждый вопрос
// получает ровно одну запись; для вопросов без совпадения подбирается
// ближайший по вертикали блок, иначе ответ помечается пустым.
func (a *documentAnalyzer) AlignStudent(ctx context.Context, layout *models.DocumentLayout, qmap *models.QuestionMap) ([]models.AnswerRecord, error) {
	var alignment answerAlignment
	validate := func() error { return validateAlignment(&alignment, qmap, len(layout.Blocks)) }

	prompt := renderBlocks(layout.Blocks) + "\n\nQuestions:\n" + renderQuestions(qmap)
	if err := a.callForJSON(ctx, "student_alignment", alignSystemPrompt, prompt, &alignment, validate); err != nil {
		return nil, err
	}

	matched := make(map[int][]int, len(alignment.Answers))
	claimed := make(map[int]bool)
	for _, m := range alignment.Answers {
		matched[m.QuestionID] = m.Blocks
		for _, idx := range m.Blocks {
			claimed[idx] = true
		}
	}

	records := make([]models.AnswerRecord, 0, qmap.Len())
	for _, q := range qmap.Questions {
		rec := buildAnswerRecord(q, matched[q.ID], layout)
		if rec.Unanswered {
			if idx, ok := closestBlockByVerticalPosition(q, layout, claimed); ok {
				claimed[idx] = true
				rec = buildAnswerRecord(q, []int{idx}, layout)
				a.logger.Debug().
					Int("question_id", q.ID).
					Int("block", idx).
					Msg("Answer matched by vertical proximity")
			}
		}
		records = append(records, rec)
	}

	return records, nil
}

// callForJSON вызывает шлюз и валидирует ответ по схеме. Невалидный ответ
// ретраится один раз с нулевой температурой, после чего ошибка фатальна.
func (a *documentAnalyzer) callForJSON(ctx context.Context, stage, system, prompt string, target interface{}, validate func() error) error {
	temps := []float64{baseTemperature, retryTemperature}

	var lastErr error
	for attempt, temp := range temps {
		resp, err := a.gateway.Generate(ctx, models.ModelRequest{
			System:      system,
			Prompt:      prompt,
			Temperature: temp,
		})
		if err != nil {
			var authErr *models.GatewayAuthError
			if errors.As(err, &authErr) {
				return err
			}
			lastErr = err
		} else {
			lastErr = json.Unmarshal([]byte(gateway.ExtractJSON(resp.Text)), target)
			if lastErr == nil {
				lastErr = validate()
			}
			if lastErr == nil {
				return nil
			}
		}

		if attempt == 0 {
			a.logger.Warn().
				Err(lastErr).
				Str("stage", stage).
				Msg("Analysis attempt failed, retrying at zero temperature")
		}
	}

	return &models.AnalysisError{Stage: stage, Err: lastErr}
}

func validateSegmentation(seg *keySegmentation, blockCount int) error {
	if len(seg.Questions) == 0 {
		return fmt.Errorf("no questions identified")
	}
	seen := make(map[int]bool, len(seg.Questions))
	for _, q := range seg.Questions {
		if q.PromptBlock < 0 || q.PromptBlock >= blockCount {
			return fmt.Errorf("prompt block %d out of range", q.PromptBlock)
		}
		for _, idx := range q.AnswerBlocks {
			if idx < 0 || idx >= blockCount {
				return fmt.Errorf("answer block %d out of range", idx)
			}
		}
		if seen[q.QuestionID] {
			return fmt.Errorf("duplicate question id %d", q.QuestionID)
		}
		seen[q.QuestionID] = true
	}
	return nil
}

func validateAlignment(alignment *answerAlignment, qmap *models.QuestionMap, blockCount int) error {
	for _, m := range alignment.Answers {
		if _, ok := qmap.ByID(m.QuestionID); !ok {
			return fmt.Errorf("unknown question id %d", m.QuestionID)
		}
		for _, idx := range m.Blocks {
			if idx < 0 || idx >= blockCount {
				return fmt.Errorf("block %d out of range", idx)
			}
		}
	}
	return nil
}

func buildAnswerRecord(q models.Question, blockIdx []int, layout *models.DocumentLayout) models.AnswerRecord {
	rec := models.AnswerRecord{QuestionID: q.ID, Unanswered: true}

	texts := make([]string, 0, len(blockIdx))
	for i, idx := range blockIdx {
		b := layout.Blocks[idx]
		texts = append(texts, b.Text)
		if i == 0 {
			rec.StudentBBox = b.BBox
			rec.PageIndex = b.PageIndex
		} else if b.PageIndex == rec.PageIndex {
			rec.StudentBBox = rec.StudentBBox.Union(b.BBox)
		}
	}

	rec.StudentAnswerText = strings.TrimSpace(strings.Join(texts, "\n"))
	rec.Unanswered = rec.StudentAnswerText == ""
	return rec
}

// closestBlockByVerticalPosition ищет незанятый блок студента, ближайший по
// вертикали к области эталонного ответа. Предпочитается та же страница;
// при равенстве выигрывает меньший зазор.
func closestBlockByVerticalPosition(q models.Question, layout *models.DocumentLayout, claimed map[int]bool) (int, bool) {
	best := -1
	bestDist := math.MaxFloat64
	for idx, b := range layout.Blocks {
		if claimed[idx] || strings.TrimSpace(b.Text) == "" {
			continue
		}
		pagePenalty := math.Abs(float64(b.PageIndex-q.KeyPageIndex)) * 10000
		dist := pagePenalty + math.Abs(b.BBox.Y0-q.KeyBBox.Y0)
		if dist < bestDist {
			bestDist = dist
			best = idx
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

func renderBlocks(blocks []models.PageBlock) string {
	var sb strings.Builder
	sb.WriteString("Blocks:\n")
	for i, b := range blocks {
		fmt.Fprintf(&sb, "[%d] (page %d, y %.0f) %s\n", i, b.PageIndex, b.BBox.Y0, b.Text)
	}
	return sb.String()
}

func renderQuestions(qmap *models.QuestionMap) string {
	var sb strings.Builder
	for _, q := range qmap.Questions {
		fmt.Fprintf(&sb, "Question %d: %s\n", q.ID, q.PromptText)
	}
	return sb.String()
}
