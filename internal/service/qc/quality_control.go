package qc

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/placement"
)

// Максимум ремонтов на один вопрос.
const maxRepairs = 3

type violation string

const (
	violationNone    violation = ""
	violationOverlap violation = "overlap"
	violationBounds  violation = "out_of_bounds"
	violationMissing violation = "missing_feedback"
)

// Controller прогоняет размещённый фидбек через цикл проверки и ремонта.
type Controller interface {
	Run(arena *placement.Arena, records []*models.PlacementRecord) []int
}

type qualityController struct {
	engine placement.Engine
	logger zerolog.Logger
}

func NewController(engine placement.Engine, logger zerolog.Logger) Controller {
	return &qualityController{engine: engine, logger: logger}
}

// Run доводит каждую запись до verified или failed. Возвращает номера
// вопросов, чей фидбек так и не удалось разместить чисто; такие вопросы не
// валят прогон, а попадают в предупреждения отчёта.
func (c *qualityController) Run(arena *placement.Arena, records []*models.PlacementRecord) []int {
	for _, rec := range records {
		if rec.State == models.PlacementPending {
			c.engine.Place(arena, rec)
		}
	}

	for {
		acted := false
		for _, rec := range records {
			if rec.State != models.PlacementPlaced {
				continue
			}

			v := c.verify(arena, rec)
			if v == violationNone {
				rec.State = models.PlacementVerified
				continue
			}

			rec.OverlapDetected = v == violationOverlap
			if rec.RepairCount >= maxRepairs {
				rec.State = models.PlacementFailed
				c.logger.Warn().
					Int("question_id", rec.QuestionID).
					Str("violation", string(v)).
					Int("repairs", rec.RepairCount).
					Msg("Feedback placement failed after repair budget exhausted")
				continue
			}

			rec.State = models.PlacementNeedsRepair
			c.logger.Debug().
				Int("question_id", rec.QuestionID).
				Str("violation", string(v)).
				Int("repair", rec.RepairCount+1).
				Msg("Feedback placement needs repair")
			c.engine.Repair(arena, rec)
			acted = true
		}
		if !acted {
			break
		}
	}

	var warnings []int
	for _, rec := range records {
		if rec.State == models.PlacementFailed {
			warnings = append(warnings, rec.QuestionID)
		}
	}
	sort.Ints(warnings)
	return warnings
}

func (c *qualityController) verify(arena *placement.Arena, rec *models.PlacementRecord) violation {
	if !rec.Rendered {
		return violationMissing
	}
	if rec.TargetPage < 0 || rec.TargetPage >= arena.PageCount() {
		return violationBounds
	}

	// Проверяем фактическое положение блока на арене: размещение соседей
	// могло сдвинуть его после commit.
	box, ok := arena.FindFeedback(rec.TargetPage, rec.QuestionID)
	if !ok {
		return violationMissing
	}
	rec.TargetBBox = box

	dims := arena.Pages[rec.TargetPage]
	if box.Y0 < 0 || box.X0 < 0 || box.Y1 > dims.Height || box.X1 > dims.Width {
		return violationBounds
	}

	for _, b := range arena.Blocks[rec.TargetPage] {
		if b.Kind == models.BlockKindFeedback && b.QuestionID == rec.QuestionID {
			continue
		}
		if box.Intersects(b.BBox) {
			return violationOverlap
		}
	}
	return violationNone
}
