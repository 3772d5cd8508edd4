package httpd

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service"
)

// Grade — синхронная проверка: пара PDF в multipart-форме, отчёт в ответе.
func (h *Handler) Grade(w http.ResponseWriter, r *http.Request) {
	studentName, keyPDF, studentPDF, ok := h.parseUpload(w, r)
	if !ok {
		return
	}

	gradingID := uuid.New().String()
	h.registry.Create(&models.GradingRun{
		GradingID:   gradingID,
		StudentName: studentName,
		Status:      models.GradingStatusProcessing,
	})

	result, err := h.gradingService.Grade(r.Context(), service.GradingRequest{
		GradingID:   gradingID,
		StudentName: studentName,
		KeyPDF:      keyPDF,
		StudentPDF:  studentPDF,
	})
	if err != nil {
		h.registry.MarkFailed(gradingID, err.Error())
		h.handleGradingError(w, err)
		return
	}

	h.registry.MarkCompleted(gradingID, result)
	writeSuccess(w, statusResponse(&models.GradingRun{
		GradingID:   gradingID,
		StudentName: studentName,
		Status:      models.GradingStatusCompleted,
		Result:      result,
	}))
}

// GradeAsync кладёт входные документы в хранилище и ставит задание в очередь.
func (h *Handler) GradeAsync(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, http.StatusServiceUnavailable, "Async grading is disabled")
		return
	}

	studentName, keyPDF, studentPDF, ok := h.parseUpload(w, r)
	if !ok {
		return
	}

	gradingID := uuid.New().String()
	keyArtifact := fmt.Sprintf("uploads/%s_key.pdf", gradingID)
	studentArtifact := fmt.Sprintf("uploads/%s_student.pdf", gradingID)

	ctx := r.Context()
	if err := h.artifacts.Save(ctx, keyArtifact, keyPDF, "application/pdf"); err != nil {
		h.logger.Error().Err(err).Msg("Failed to store answer key upload")
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}
	if err := h.artifacts.Save(ctx, studentArtifact, studentPDF, "application/pdf"); err != nil {
		h.logger.Error().Err(err).Msg("Failed to store student upload")
		writeError(w, http.StatusInternalServerError, "Failed to store upload")
		return
	}

	h.registry.Create(&models.GradingRun{
		GradingID:   gradingID,
		StudentName: studentName,
		Status:      models.GradingStatusPending,
	})

	event := models.GradingRequestedEvent{
		GradingID:   gradingID,
		StudentName: studentName,
		StudentKey:  studentArtifact,
		AnswerKey:   keyArtifact,
		Timestamp:   time.Now().Unix(),
	}
	if err := h.broker.PublishJSON(ctx, h.cfg.RabbitMQ.Exchange, h.cfg.RabbitMQ.RoutingKey, event); err != nil {
		h.registry.MarkFailed(gradingID, "failed to enqueue")
		h.logger.Error().Err(err).Msg("Failed to publish grading request")
		writeError(w, http.StatusInternalServerError, "Failed to enqueue grading")
		return
	}

	writeJSON(w, http.StatusAccepted, models.AsyncGradingResponse{
		GradingID: gradingID,
		Message:   "Grading started",
		StatusURL: "/api/v1/gradings/" + gradingID,
	})
}

func (h *Handler) GetGrading(w http.ResponseWriter, r *http.Request) {
	gradingID := gradingIDParam(r)
	if gradingID == "" {
		writeError(w, http.StatusBadRequest, "Grading ID is required")
		return
	}

	run, err := h.registry.Get(gradingID)
	if err != nil {
		h.handleGradingError(w, err)
		return
	}

	writeSuccess(w, statusResponse(run))
}

func (h *Handler) GetAnnotated(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, func(result *models.GradingResult) ([]byte, string, string) {
		return result.AnnotatedPDF, result.AnnotatedKey, "_marked.pdf"
	})
}

func (h *Handler) GetReportPDF(w http.ResponseWriter, r *http.Request) {
	h.serveArtifact(w, r, func(result *models.GradingResult) ([]byte, string, string) {
		return result.ReportPDF, result.ReportKey, "_report.pdf"
	})
}

func (h *Handler) serveArtifact(w http.ResponseWriter, r *http.Request, pick func(*models.GradingResult) ([]byte, string, string)) {
	gradingID := gradingIDParam(r)
	run, err := h.registry.Get(gradingID)
	if err != nil {
		h.handleGradingError(w, err)
		return
	}
	if run.Status != models.GradingStatusCompleted || run.Result == nil {
		writeError(w, http.StatusConflict, "Grading is not completed")
		return
	}

	data, key, suffix := pick(run.Result)
	if len(data) == 0 && key != "" {
		data, err = h.artifacts.Load(r.Context(), key)
		if err != nil {
			h.handleGradingError(w, err)
			return
		}
	}
	if len(data) == 0 {
		writeError(w, http.StatusNotFound, "Artifact is not available")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", gradingID+suffix))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// parseUpload читает multipart-форму с полями student_name, answer_key и student.
func (h *Handler) parseUpload(w http.ResponseWriter, r *http.Request) (string, []byte, []byte, bool) {
	maxSize := h.cfg.Server.MaxUploadSize
	if maxSize <= 0 {
		maxSize = 32 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart form")
		return "", nil, nil, false
	}

	studentName := r.FormValue("student_name")
	if studentName == "" {
		studentName = "Unknown Student"
	}

	keyPDF, err := readFormFile(r, "answer_key")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Field answer_key is required")
		return "", nil, nil, false
	}
	studentPDF, err := readFormFile(r, "student")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Field student is required")
		return "", nil, nil, false
	}

	return studentName, keyPDF, studentPDF, true
}

func readFormFile(r *http.Request, field string) ([]byte, error) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, err
	}
	defer func(f multipart.File) { f.Close() }(file)
	return io.ReadAll(file)
}

func statusResponse(run *models.GradingRun) models.GradingStatusResponse {
	resp := models.GradingStatusResponse{
		GradingID:   run.GradingID,
		StudentName: run.StudentName,
		Status:      run.Status.String(),
		Error:       run.Error,
	}
	if run.Result != nil {
		resp.Report = run.Result.Report
		resp.QualityCheckPassed = run.Result.QualityCheckPassed
		resp.AnnotatedURL = "/api/v1/gradings/" + run.GradingID + "/annotated"
		resp.ReportURL = "/api/v1/gradings/" + run.GradingID + "/report"
	}
	return resp
}
