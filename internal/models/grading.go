package models

import "time"

// CorrectnessLabel — итоговая оценка ответа.
type CorrectnessLabel string

const (
	LabelCorrect          CorrectnessLabel = "correct"
	LabelPartiallyCorrect CorrectnessLabel = "partially_correct"
	LabelIncorrect        CorrectnessLabel = "incorrect"
	LabelUnanswered       CorrectnessLabel = "unanswered"
	LabelUngraded         CorrectnessLabel = "ungraded"
)

func (l CorrectnessLabel) String() string {
	return string(l)
}

// Question — один вопрос эталонного документа. ID назначается по порядку
// следования в ключе и стабилен между запусками.
type Question struct {
	ID            int     `json:"question_id"`
	PromptText    string  `json:"prompt_text"`
	KeyAnswerText string  `json:"key_answer_text"`
	KeyBBox       BBox    `json:"key_bbox"`
	KeyPageIndex  int     `json:"key_page_index"`
	MaxScore      float64 `json:"max_score"`
}

// QuestionMap строится из ключа один раз и дальше только читается.
type QuestionMap struct {
	Questions []Question `json:"questions"`
}

func (m *QuestionMap) Len() int {
	return len(m.Questions)
}

func (m *QuestionMap) ByID(id int) (Question, bool) {
	for _, q := range m.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// AnswerRecord — область ответа студента для одного вопроса. Для вопроса без
// найденного ответа создаётся запись с пустым текстом, а не пропуск.
type AnswerRecord struct {
	QuestionID        int    `json:"question_id"`
	StudentAnswerText string `json:"student_answer_text"`
	StudentBBox       BBox   `json:"student_bbox"`
	PageIndex         int    `json:"page_index"`
	Unanswered        bool   `json:"unanswered"`
}

// EvaluationRecord — результат оценки одного вопроса. Создаётся один раз.
type EvaluationRecord struct {
	QuestionID       int              `json:"question_id"`
	Score            float64          `json:"score"`
	MaxScore         float64          `json:"max_score"`
	CorrectnessLabel CorrectnessLabel `json:"correctness_label"`
	FeedbackText     string           `json:"feedback_text"`
	Confidence       float64          `json:"confidence"`
}

// GradingReport — итоговый отчёт; собирается в конце из EvaluationRecord
// в порядке question_id и после этого не изменяется.
type GradingReport struct {
	StudentName       string             `json:"student_name"`
	PerQuestion       []EvaluationRecord `json:"per_question"`
	TotalScore        float64            `json:"total_score"`
	MaxTotal          float64            `json:"max_total"`
	OverallConfidence float64            `json:"overall_confidence"`
	PlacementWarnings []int              `json:"placement_warnings,omitempty"`
	CompletedAt       time.Time          `json:"completed_at"`
}

// BuildGradingReport агрегирует записи в порядке question_id.
func BuildGradingReport(studentName string, records []EvaluationRecord, warnings []int) *GradingReport {
	report := &GradingReport{
		StudentName:       studentName,
		PerQuestion:       records,
		PlacementWarnings: warnings,
		CompletedAt:       time.Now(),
	}

	var confidenceSum float64
	for _, rec := range records {
		report.TotalScore += rec.Score
		report.MaxTotal += rec.MaxScore
		confidenceSum += rec.Confidence
	}

	if len(records) > 0 {
		report.OverallConfidence = confidenceSum / float64(len(records))
	}

	return report
}

// GradingResult — результат одного прогона пайплайна.
type GradingResult struct {
	GradingID          string         `json:"grading_id"`
	StudentName        string         `json:"student_name"`
	Report             *GradingReport `json:"report"`
	QualityCheckPassed bool           `json:"quality_check_passed"`
	AnnotatedPDF       []byte         `json:"-"`
	ReportPDF          []byte         `json:"-"`
	AnnotatedKey       string         `json:"annotated_key,omitempty"`
	ReportKey          string         `json:"report_key,omitempty"`
	ProcessingTimeMs   int            `json:"processing_time_ms"`
}
