package repository

import (
	"errors"
	"sync"
	"time"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

var ErrRunNotFound = errors.New("grading run not found")

// RunRegistry — реестр прогонов в памяти процесса. Результаты живут до
// рестарта сервиса; долговременного хранилища у пайплайна нет.
type RunRegistry interface {
	Create(run *models.GradingRun)
	Get(gradingID string) (*models.GradingRun, error)
	MarkProcessing(gradingID string)
	MarkCompleted(gradingID string, result *models.GradingResult)
	MarkFailed(gradingID string, reason string)
	Count() int
}

type runRegistry struct {
	mu   sync.RWMutex
	runs map[string]*models.GradingRun
}

func NewRunRegistry() RunRegistry {
	return &runRegistry{runs: make(map[string]*models.GradingRun)}
}

func (r *runRegistry) Create(run *models.GradingRun) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	if run.Status == "" {
		run.Status = models.GradingStatusPending
	}
	r.runs[run.GradingID] = run
}

func (r *runRegistry) Get(gradingID string) (*models.GradingRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	run, ok := r.runs[gradingID]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *runRegistry) MarkProcessing(gradingID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[gradingID]; ok {
		now := time.Now()
		run.Status = models.GradingStatusProcessing
		run.StartedAt = &now
	}
}

func (r *runRegistry) MarkCompleted(gradingID string, result *models.GradingResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[gradingID]; ok {
		now := time.Now()
		run.Status = models.GradingStatusCompleted
		run.Result = result
		run.CompletedAt = &now
	}
}

func (r *runRegistry) MarkFailed(gradingID string, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if run, ok := r.runs[gradingID]; ok {
		now := time.Now()
		run.Status = models.GradingStatusFailed
		run.Error = reason
		run.CompletedAt = &now
	}
}

func (r *runRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runs)
}
