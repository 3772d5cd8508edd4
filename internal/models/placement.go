package models

// PlacementState — состояние вопроса в цикле контроля качества.
// pending → placed → verified | needs_repair → placed → ... → failed.
// В pending вопрос повторно не возвращается.
type PlacementState string

const (
	PlacementPending     PlacementState = "pending"
	PlacementPlaced      PlacementState = "placed"
	PlacementVerified    PlacementState = "verified"
	PlacementNeedsRepair PlacementState = "needs_repair"
	PlacementFailed      PlacementState = "failed"
)

func (s PlacementState) Terminal() bool {
	return s == PlacementVerified || s == PlacementFailed
}

// PlacementRecord — размещение фидбека одного вопроса. Изменяется между
// итерациями ремонта: каждая попытка переписывает TargetBBox и сбрасывает
// флаги только для своего вопроса.
type PlacementRecord struct {
	QuestionID      int              `json:"question_id"`
	TargetPage      int              `json:"target_page"`
	TargetBBox      BBox             `json:"target_bbox"`
	Rendered        bool             `json:"rendered"`
	OverlapDetected bool             `json:"overlap_detected"`
	State           PlacementState   `json:"state"`
	RepairCount     int              `json:"repair_count"`
	Lines           []string         `json:"lines"`
	Label           CorrectnessLabel `json:"label"`
	AnswerBBox      BBox             `json:"answer_bbox"`
	AnswerPage      int              `json:"answer_page"`
}
