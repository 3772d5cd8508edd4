package httpd

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/config"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/repository"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service"
)

type fakeGradingService struct {
	err error
}

func (f *fakeGradingService) Grade(_ context.Context, req service.GradingRequest) (*models.GradingResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.GradingResult{
		GradingID:   req.GradingID,
		StudentName: req.StudentName,
		Report: models.BuildGradingReport(req.StudentName, []models.EvaluationRecord{
			{QuestionID: 1, Score: 10, MaxScore: 10, CorrectnessLabel: models.LabelCorrect, Confidence: 0.9},
		}, nil),
		QualityCheckPassed: true,
		AnnotatedPDF:       []byte("%PDF-annotated"),
		ReportPDF:          []byte("%PDF-report"),
	}, nil
}

func newTestHandler(t *testing.T, svc service.GradingService) (*Handler, chi.Router) {
	t.Helper()
	nop := zerolog.Nop()
	store, err := repository.NewLocalStore(t.TempDir(), nop)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	cfg.Server.MaxUploadSize = 32 << 20

	h := NewHandler(svc, repository.NewRunRegistry(), store, nil, nil, cfg, nop)
	router := chi.NewRouter()
	h.RegisterRoutes(router)
	return h, router
}

func uploadRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	form.WriteField("student_name", "Ivan Petrov")

	key, err := form.CreateFormFile("answer_key", "key.pdf")
	if err != nil {
		t.Fatal(err)
	}
	key.Write([]byte("%PDF-key"))

	student, err := form.CreateFormFile("student", "student.pdf")
	if err != nil {
		t.Fatal(err)
	}
	student.Write([]byte("%PDF-student"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, url, &body)
	req.Header.Set("Content-Type", form.FormDataContentType())
	return req
}

func TestGradeSyncHappyPath(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/gradings/"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool                         `json:"success"`
		Data    models.GradingStatusResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Success || resp.Data.Status != "completed" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Data.Report == nil || resp.Data.Report.TotalScore != 10 {
		t.Errorf("report missing from response: %+v", resp.Data)
	}
	if resp.Data.AnnotatedURL == "" {
		t.Error("annotated URL missing")
	}
}

func TestGradeRequiresBothFiles(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{})

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	f, _ := form.CreateFormFile("student", "student.pdf")
	f.Write([]byte("%PDF-student"))
	form.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/gradings/", &body)
	req.Header.Set("Content-Type", form.FormDataContentType())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGradeMapsExtractionErrorTo422(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{
		err: &models.ExtractionError{Role: models.RoleKey, Reason: "not a PDF document"},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/gradings/"))

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
}

func TestGetGradingNotFound(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gradings/nope", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestGetAnnotatedServesPDF(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/gradings/"))
	if rec.Code != http.StatusOK {
		t.Fatalf("grade failed: %d", rec.Code)
	}
	var resp struct {
		Data models.GradingStatusResponse `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/gradings/"+resp.Data.GradingID+"/annotated", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("content type: %s", ct)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Error("body is not a PDF")
	}
}

func TestGradeAsyncDisabledWithoutBroker(t *testing.T) {
	_, router := newTestHandler(t, &fakeGradingService{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, uploadRequest(t, "/api/v1/gradings/async"))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
