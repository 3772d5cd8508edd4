package models

import "time"

type GradingRequestedEvent struct {
	GradingID   string `json:"grading_id"`
	StudentName string `json:"student_name"`
	StudentKey  string `json:"student_key"`
	AnswerKey   string `json:"answer_key"`
	Timestamp   int64  `json:"timestamp"`
}

type GradingProgressEvent struct {
	GradingID string    `json:"grading_id"`
	Stage     string    `json:"stage"`
	Fraction  float64   `json:"fraction"`
	Timestamp time.Time `json:"timestamp"`
}

type GradingCompletedEvent struct {
	GradingID          string    `json:"grading_id"`
	StudentName        string    `json:"student_name"`
	Status             string    `json:"status"`
	TotalScore         float64   `json:"total_score"`
	MaxTotal           float64   `json:"max_total"`
	QualityCheckPassed bool      `json:"quality_check_passed"`
	ProcessingTime     int       `json:"processing_time_ms"`
	CompletedAt        time.Time `json:"completed_at"`
}

type GradingFailedEvent struct {
	GradingID string    `json:"grading_id"`
	Error     string    `json:"error"`
	FailedAt  time.Time `json:"failed_at"`
}
