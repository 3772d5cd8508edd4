package httpd

import (
	"net/http"
	"time"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := models.HealthCheckResponse{
		Status:    "healthy",
		Storage:   h.artifacts != nil && h.artifacts.Healthy(r.Context()),
		Timestamp: time.Now(),
	}
	if h.broker != nil {
		resp.RabbitMQ = h.broker.Healthy()
	}
	if h.pool != nil {
		resp.ActiveWorkers = h.pool.ActiveWorkers()
		resp.QueueLength = h.pool.QueueLength()
	}

	if !resp.Storage {
		resp.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, resp)
}
