package placement

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

const (
	feedbackFontSize = 9.0
	// Метрики текста фидбека: моноширинная аппроксимация.
	charWidth  = feedbackFontSize * 0.5
	lineHeight = feedbackFontSize + 4

	pageMargin   = 36.0
	blockPadding = 4.0
	gapPadding   = 6.0

	minColumnWidth = 120.0
)

// Arena — изменяемое постраничное представление документа. Блоки страницы
// адресуются по индексу и мутируются на месте между итерациями ремонта.
type Arena struct {
	Role   models.DocumentRole
	Pages  []models.PageDimensions
	Blocks [][]models.PageBlock
}

func NewArena(layout *models.DocumentLayout) *Arena {
	arena := &Arena{
		Role:   layout.Role,
		Pages:  append([]models.PageDimensions(nil), layout.Pages...),
		Blocks: make([][]models.PageBlock, len(layout.Pages)),
	}
	for _, b := range layout.Blocks {
		if b.PageIndex >= 0 && b.PageIndex < len(arena.Blocks) {
			arena.Blocks[b.PageIndex] = append(arena.Blocks[b.PageIndex], b)
		}
	}
	return arena
}

func (a *Arena) PageCount() int {
	return len(a.Pages)
}

// AppendPage добавляет страницу с размерами последней существующей.
func (a *Arena) AppendPage() int {
	dims := models.PageDimensions{Width: 612, Height: 792}
	if len(a.Pages) > 0 {
		dims = a.Pages[len(a.Pages)-1]
	}
	a.Pages = append(a.Pages, dims)
	a.Blocks = append(a.Blocks, nil)
	return len(a.Pages) - 1
}

func (a *Arena) Insert(page int, block models.PageBlock) {
	block.PageIndex = page
	a.Blocks[page] = append(a.Blocks[page], block)
}

// RemoveFeedback убирает блок фидбека вопроса-владельца. Поиск по владельцу,
// а не по координатам: блок мог сдвинуться при размещении соседей.
func (a *Arena) RemoveFeedback(page int, questionID int) {
	if page < 0 || page >= len(a.Blocks) {
		return
	}
	blocks := a.Blocks[page]
	for i, b := range blocks {
		if b.Kind == models.BlockKindFeedback && b.QuestionID == questionID {
			a.Blocks[page] = append(blocks[:i], blocks[i+1:]...)
			return
		}
	}
}

// FindFeedback возвращает фактическое положение блока фидбека вопроса.
func (a *Arena) FindFeedback(page int, questionID int) (models.BBox, bool) {
	if page < 0 || page >= len(a.Blocks) {
		return models.BBox{}, false
	}
	for _, b := range a.Blocks[page] {
		if b.Kind == models.BlockKindFeedback && b.QuestionID == questionID {
			return b.BBox, true
		}
	}
	return models.BBox{}, false
}

// ShiftBelow сдвигает вниз все блоки страницы, начинающиеся не выше y.
func (a *Arena) ShiftBelow(page int, y, dy float64) {
	for i, b := range a.Blocks[page] {
		if b.BBox.Y0 >= y {
			a.Blocks[page][i].BBox = b.BBox.TranslateY(dy)
		}
	}
}

// ShiftFits сообщает, остаются ли сдвигаемые блоки в пределах страницы.
func (a *Arena) ShiftFits(page int, y, dy float64) bool {
	dims := a.Pages[page]
	for _, b := range a.Blocks[page] {
		if b.BBox.Y0 >= y && b.BBox.Y1+dy > dims.Height {
			return false
		}
	}
	return true
}

// Finalize собирает арену обратно в неизменяемую модель документа.
func (a *Arena) Finalize() *models.DocumentLayout {
	layout := &models.DocumentLayout{
		Role:  a.Role,
		Pages: append([]models.PageDimensions(nil), a.Pages...),
	}
	for page, blocks := range a.Blocks {
		for _, b := range blocks {
			b.PageIndex = page
			layout.Blocks = append(layout.Blocks, b)
		}
	}
	sort.SliceStable(layout.Blocks, func(i, j int) bool {
		if layout.Blocks[i].PageIndex != layout.Blocks[j].PageIndex {
			return layout.Blocks[i].PageIndex < layout.Blocks[j].PageIndex
		}
		return layout.Blocks[i].BBox.Y0 < layout.Blocks[j].BBox.Y0
	})
	return layout
}

// Engine размещает блоки фидбека на страницах работы студента.
type Engine interface {
	Prepare(arena *Arena, qmap *models.QuestionMap, answers []models.AnswerRecord, evals []models.EvaluationRecord) []*models.PlacementRecord
	Place(arena *Arena, rec *models.PlacementRecord)
	Repair(arena *Arena, rec *models.PlacementRecord)
}

type feedbackEngine struct {
	logger zerolog.Logger
}

func NewEngine(logger zerolog.Logger) Engine {
	return &feedbackEngine{logger: logger}
}

// Prepare строит записи размещения: заголовок с баллом, перенесённый по
// ширине колонки текст фидбека, якорь под областью ответа.
func (e *feedbackEngine) Prepare(arena *Arena, qmap *models.QuestionMap, answers []models.AnswerRecord, evals []models.EvaluationRecord) []*models.PlacementRecord {
	byQuestion := make(map[int]models.AnswerRecord, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	records := make([]*models.PlacementRecord, 0, len(evals))
	for _, ev := range evals {
		answer := byQuestion[ev.QuestionID]

		page := answer.PageIndex
		if page < 0 || page >= arena.PageCount() {
			page = arena.PageCount() - 1
		}
		anchor := answer.StudentBBox
		if anchor.IsEmpty() {
			// Вопрос без области ответа: якорь по позиции эталона.
			if q, ok := qmap.ByID(ev.QuestionID); ok {
				anchor = models.NewBBox(pageMargin, q.KeyBBox.Y0, pageMargin+minColumnWidth, q.KeyBBox.Y1)
				if q.KeyPageIndex < arena.PageCount() {
					page = q.KeyPageIndex
				}
			} else {
				anchor = models.NewBBox(pageMargin, pageMargin, pageMargin+minColumnWidth, pageMargin)
			}
		}

		dims := arena.Pages[page]
		colX0 := anchor.X0
		width := dims.Width - colX0 - pageMargin
		if width < minColumnWidth {
			colX0 = pageMargin
			width = dims.Width - 2*pageMargin
		}

		header := fmt.Sprintf("Q%d [%s] %.1f/%.1f", ev.QuestionID, ev.CorrectnessLabel, ev.Score, ev.MaxScore)
		lines := append([]string{header}, wrapText(ev.FeedbackText, width)...)

		records = append(records, &models.PlacementRecord{
			QuestionID: ev.QuestionID,
			TargetPage: page,
			State:      models.PlacementPending,
			Lines:      lines,
			Label:      ev.CorrectnessLabel,
			AnswerBBox: models.NewBBox(colX0, anchor.Y0, colX0+width, anchor.Y1),
			AnswerPage: page,
		})
	}
	return records
}

// Place кладёт фидбек в ближайший свободный зазор под ответом; если зазора
// нет, раздвигает нижележащие блоки. Сдвиг, выталкивающий содержимое за
// нижний край страницы, не выполняется: тогда блок идёт на нижнее поле, а
// возможное пересечение разрешает цикл контроля качества.
func (e *feedbackEngine) Place(arena *Arena, rec *models.PlacementRecord) {
	page := rec.AnswerPage
	height := boxHeight(rec.Lines)
	startY := rec.AnswerBBox.Y1 + gapPadding

	if box, ok := findGap(arena, page, rec.AnswerBBox.X0, rec.AnswerBBox.X1, startY, height); ok {
		e.commit(arena, rec, page, box)
		return
	}

	dy := height + gapPadding
	if arena.ShiftFits(page, startY, dy) {
		box := models.NewBBox(rec.AnswerBBox.X0, startY, rec.AnswerBBox.X1, startY+height)
		arena.ShiftBelow(page, startY, dy)
		e.commit(arena, rec, page, box)
		return
	}

	dims := arena.Pages[page]
	y := dims.Height - pageMargin - height
	box := models.NewBBox(rec.AnswerBBox.X0, y, rec.AnswerBBox.X1, y+height)
	e.commit(arena, rec, page, box)
}

// Repair перекладывает фидбек по лестнице стратегий: расширенный поиск
// зазора, нижнее поле, принудительная следующая страница.
func (e *feedbackEngine) Repair(arena *Arena, rec *models.PlacementRecord) {
	arena.RemoveFeedback(rec.TargetPage, rec.QuestionID)
	rec.RepairCount++
	rec.OverlapDetected = false
	height := boxHeight(rec.Lines)

	switch rec.RepairCount {
	case 1:
		// Расширенный поиск: вся страница, от верхнего поля.
		if box, ok := findGap(arena, rec.AnswerPage, rec.AnswerBBox.X0, rec.AnswerBBox.X1, pageMargin, height); ok {
			e.commit(arena, rec, rec.AnswerPage, box)
			return
		}
		fallthrough
	case 2:
		// Нижнее поле страницы ответа.
		dims := arena.Pages[rec.AnswerPage]
		y := dims.Height - pageMargin - height
		box := models.NewBBox(rec.AnswerBBox.X0, y, rec.AnswerBBox.X1, y+height)
		e.commit(arena, rec, rec.AnswerPage, box)
	default:
		// Принудительно на следующую страницу, при необходимости добавляя её.
		page := rec.AnswerPage + 1
		if page >= arena.PageCount() {
			page = arena.AppendPage()
		}
		startY := pageMargin
		if box, ok := findGap(arena, page, rec.AnswerBBox.X0, rec.AnswerBBox.X1, startY, height); ok {
			e.commit(arena, rec, page, box)
			return
		}
		box := models.NewBBox(rec.AnswerBBox.X0, startY, rec.AnswerBBox.X1, startY+height)
		e.commit(arena, rec, page, box)
	}
}

func (e *feedbackEngine) commit(arena *Arena, rec *models.PlacementRecord, page int, box models.BBox) {
	arena.Insert(page, models.PageBlock{
		BBox:       box,
		Text:       strings.Join(rec.Lines, "\n"),
		Kind:       models.BlockKindFeedback,
		FontSize:   feedbackFontSize,
		Label:      rec.Label,
		QuestionID: rec.QuestionID,
	})
	rec.TargetPage = page
	rec.TargetBBox = box
	rec.Rendered = true
	rec.State = models.PlacementPlaced

	e.logger.Debug().
		Int("question_id", rec.QuestionID).
		Int("page", page).
		Float64("y", box.Y0).
		Int("repairs", rec.RepairCount).
		Msg("Feedback placed")
}

// findGap ищет первый свободный прямоугольник нужной высоты, двигаясь вниз
// от startY и перепрыгивая занятые блоки.
func findGap(arena *Arena, page int, x0, x1, startY, height float64) (models.BBox, bool) {
	dims := arena.Pages[page]
	y := startY

	for y+height <= dims.Height-pageMargin {
		candidate := models.NewBBox(x0, y, x1, y+height)
		blocked := false
		for _, b := range arena.Blocks[page] {
			if candidate.Intersects(b.BBox) {
				if b.BBox.Y1+gapPadding > y {
					y = b.BBox.Y1 + gapPadding
				} else {
					y += lineHeight
				}
				blocked = true
				break
			}
		}
		if !blocked {
			return candidate, true
		}
	}
	return models.BBox{}, false
}

func boxHeight(lines []string) float64 {
	return float64(len(lines))*lineHeight + blockPadding
}

// wrapText переносит текст по словам под ширину колонки.
func wrapText(text string, width float64) []string {
	maxChars := int(width / charWidth)
	if maxChars < 8 {
		maxChars = 8
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	current := words[0]
	for _, word := range words[1:] {
		if len(current)+1+len(word) <= maxChars {
			current += " " + word
			continue
		}
		lines = append(lines, current)
		current = word
	}
	lines = append(lines, current)
	return lines
}
