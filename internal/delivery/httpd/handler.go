package httpd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/config"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/repository"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/worker"
)

type Handler struct {
	gradingService service.GradingService
	registry       repository.RunRegistry
	artifacts      repository.ArtifactStore
	broker         repository.RabbitMQRepository
	pool           *worker.Pool
	cfg            *config.Config
	logger         zerolog.Logger
}

func NewHandler(
	gradingService service.GradingService,
	registry repository.RunRegistry,
	artifacts repository.ArtifactStore,
	broker repository.RabbitMQRepository,
	pool *worker.Pool,
	cfg *config.Config,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		gradingService: gradingService,
		registry:       registry,
		artifacts:      artifacts,
		broker:         broker,
		pool:           pool,
		cfg:            cfg,
		logger:         logger,
	}
}

func (h *Handler) RegisterRoutes(router chi.Router) {
	router.Get("/health", h.HealthCheck)

	router.Route("/api/v1", func(api chi.Router) {
		api.Route("/gradings", func(r chi.Router) {
			r.Post("/", h.Grade)
			r.Post("/async", h.GradeAsync)
			r.Get("/{grading_id}", h.GetGrading)
			r.Get("/{grading_id}/annotated", h.GetAnnotated)
			r.Get("/{grading_id}/report", h.GetReportPDF)
		})
	})
}

// handleGradingError переводит таксономию ошибок пайплайна в HTTP-статусы.
func (h *Handler) handleGradingError(w http.ResponseWriter, err error) {
	var extractErr *models.ExtractionError
	var analysisErr *models.AnalysisError
	var authErr *models.GatewayAuthError

	switch {
	case errors.As(err, &extractErr):
		writeError(w, http.StatusUnprocessableEntity, extractErr.Error())
	case errors.As(err, &analysisErr):
		writeError(w, http.StatusUnprocessableEntity, analysisErr.Error())
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, "model gateway rejected credentials")
	case errors.Is(err, repository.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "grading run not found")
	default:
		h.logger.Error().Err(err).Msg("Grading request failed")
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

func gradingIDParam(r *http.Request) string {
	return chi.URLParam(r, "grading_id")
}
