package models

import "time"

type GradingStatus string

const (
	GradingStatusPending    GradingStatus = "pending"
	GradingStatusProcessing GradingStatus = "processing"
	GradingStatusCompleted  GradingStatus = "completed"
	GradingStatusFailed     GradingStatus = "failed"
)

func (s GradingStatus) String() string {
	return string(s)
}

// GradingRun — состояние одного прогона в реестре. Живёт только в памяти
// процесса: сущности пайплайна между запусками не сохраняются.
type GradingRun struct {
	GradingID   string         `json:"grading_id"`
	StudentName string         `json:"student_name"`
	Status      GradingStatus  `json:"status"`
	Error       string         `json:"error,omitempty"`
	Result      *GradingResult `json:"result,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

type GradingStatusResponse struct {
	GradingID          string         `json:"grading_id"`
	StudentName        string         `json:"student_name"`
	Status             string         `json:"status"`
	Error              string         `json:"error,omitempty"`
	Report             *GradingReport `json:"report,omitempty"`
	QualityCheckPassed bool           `json:"quality_check_passed"`
	AnnotatedURL       string         `json:"annotated_url,omitempty"`
	ReportURL          string         `json:"report_url,omitempty"`
}

type AsyncGradingResponse struct {
	GradingID string `json:"grading_id"`
	Message   string `json:"message"`
	StatusURL string `json:"status_url"`
}

type HealthCheckResponse struct {
	Status        string    `json:"status"`
	RabbitMQ      bool      `json:"rabbitmq"`
	Storage       bool      `json:"storage"`
	ActiveWorkers int       `json:"active_workers"`
	QueueLength   int       `json:"queue_length"`
	Timestamp     time.Time `json:"timestamp"`
}
