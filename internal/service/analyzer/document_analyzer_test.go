package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

// scriptedGateway отдаёт заранее заданные ответы по порядку вызовов.
type scriptedGateway struct {
	responses []string
	errs      []error
	requests  []models.ModelRequest
}

func (g *scriptedGateway) Generate(_ context.Context, req models.ModelRequest) (*models.ModelResponse, error) {
	call := len(g.requests)
	g.requests = append(g.requests, req)
	if call < len(g.errs) && g.errs[call] != nil {
		return nil, g.errs[call]
	}
	if call >= len(g.responses) {
		return nil, errors.New("no scripted response left")
	}
	return &models.ModelResponse{Text: g.responses[call]}, nil
}

func keyLayout() *models.DocumentLayout {
	return &models.DocumentLayout{
		Role:  models.RoleKey,
		Pages: []models.PageDimensions{{Width: 612, Height: 792}},
		Blocks: []models.PageBlock{
			{PageIndex: 0, BBox: models.NewBBox(56, 80, 400, 100), Text: "Question 1. What is 2+2?"},
			{PageIndex: 0, BBox: models.NewBBox(56, 110, 400, 130), Text: "Answer: 4"},
			{PageIndex: 0, BBox: models.NewBBox(56, 200, 400, 220), Text: "Question 2. Capital of France?"},
			{PageIndex: 0, BBox: models.NewBBox(56, 230, 400, 250), Text: "Answer: Paris"},
		},
	}
}

const keySegmentationOutOfOrder = `{"questions":[
	{"question_id":7,"prompt_block":2,"answer_blocks":[3],"max_score":5},
	{"question_id":3,"prompt_block":0,"answer_blocks":[1],"max_score":10}
]}`

func TestAnalyzeKeyAssignsIDsByDocumentOrder(t *testing.T) {
	gw := &scriptedGateway{responses: []string{keySegmentationOutOfOrder}}
	a := NewAnalyzer(gw, zerolog.Nop())

	qmap, err := a.AnalyzeKey(context.Background(), keyLayout())
	if err != nil {
		t.Fatalf("AnalyzeKey: %v", err)
	}
	if qmap.Len() != 2 {
		t.Fatalf("expected 2 questions, got %d", qmap.Len())
	}
	if qmap.Questions[0].ID != 1 || qmap.Questions[1].ID != 2 {
		t.Errorf("ids must follow document order: %d, %d", qmap.Questions[0].ID, qmap.Questions[1].ID)
	}
	if qmap.Questions[0].PromptText != "Question 1. What is 2+2?" {
		t.Errorf("first question prompt: %q", qmap.Questions[0].PromptText)
	}
	if qmap.Questions[0].MaxScore != 10 || qmap.Questions[1].MaxScore != 5 {
		t.Errorf("max scores: %v, %v", qmap.Questions[0].MaxScore, qmap.Questions[1].MaxScore)
	}
	if qmap.Questions[0].KeyAnswerText != "Answer: 4" {
		t.Errorf("key answer text: %q", qmap.Questions[0].KeyAnswerText)
	}
}

func TestAnalyzeKeyIsDeterministic(t *testing.T) {
	a1 := NewAnalyzer(&scriptedGateway{responses: []string{keySegmentationOutOfOrder}}, zerolog.Nop())
	a2 := NewAnalyzer(&scriptedGateway{responses: []string{keySegmentationOutOfOrder}}, zerolog.Nop())

	first, err := a1.AnalyzeKey(context.Background(), keyLayout())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a2.AnalyzeKey(context.Background(), keyLayout())
	if err != nil {
		t.Fatal(err)
	}
	for i := range first.Questions {
		if first.Questions[i] != second.Questions[i] {
			t.Errorf("question %d differs between runs", i)
		}
	}
}

func TestAnalyzeKeyRetriesOnceAtZeroTemperature(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		"this is not json",
		`{"questions":[{"question_id":1,"prompt_block":0,"answer_blocks":[1],"max_score":10}]}`,
	}}
	a := NewAnalyzer(gw, zerolog.Nop())

	qmap, err := a.AnalyzeKey(context.Background(), keyLayout())
	if err != nil {
		t.Fatalf("AnalyzeKey after retry: %v", err)
	}
	if qmap.Len() != 1 {
		t.Fatalf("expected 1 question, got %d", qmap.Len())
	}
	if len(gw.requests) != 2 {
		t.Fatalf("expected 2 model calls, got %d", len(gw.requests))
	}
	if gw.requests[1].Temperature != 0 {
		t.Errorf("retry must use zero temperature, got %v", gw.requests[1].Temperature)
	}
}

func TestAnalyzeKeyFailsAfterSecondBadResponse(t *testing.T) {
	gw := &scriptedGateway{responses: []string{"garbage", `{"questions":[]}`}}
	a := NewAnalyzer(gw, zerolog.Nop())

	_, err := a.AnalyzeKey(context.Background(), keyLayout())
	var analysisErr *models.AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected AnalysisError, got %v", err)
	}
	if !models.IsFatal(err) {
		t.Error("analysis failure must be fatal")
	}
	if len(gw.requests) != 2 {
		t.Errorf("expected exactly 2 attempts, got %d", len(gw.requests))
	}
}

func TestAnalyzeKeyAuthErrorNotRetried(t *testing.T) {
	authErr := &models.GatewayAuthError{Status: 401}
	gw := &scriptedGateway{errs: []error{authErr}}
	a := NewAnalyzer(gw, zerolog.Nop())

	_, err := a.AnalyzeKey(context.Background(), keyLayout())
	var got *models.GatewayAuthError
	if !errors.As(err, &got) {
		t.Fatalf("expected GatewayAuthError, got %v", err)
	}
	if len(gw.requests) != 1 {
		t.Errorf("auth errors must not be retried, got %d calls", len(gw.requests))
	}
}

func studentLayout() *models.DocumentLayout {
	return &models.DocumentLayout{
		Role:  models.RoleStudent,
		Pages: []models.PageDimensions{{Width: 612, Height: 792}},
		Blocks: []models.PageBlock{
			{PageIndex: 0, BBox: models.NewBBox(56, 90, 400, 110), Text: "1) 2+2 = 4"},
			{PageIndex: 0, BBox: models.NewBBox(56, 210, 400, 230), Text: "2) Paris"},
		},
	}
}

func threeQuestionMap() *models.QuestionMap {
	return &models.QuestionMap{Questions: []models.Question{
		{ID: 1, PromptText: "What is 2+2?", KeyBBox: models.NewBBox(56, 110, 400, 130), KeyPageIndex: 0, MaxScore: 10},
		{ID: 2, PromptText: "Capital of France?", KeyBBox: models.NewBBox(56, 230, 400, 250), KeyPageIndex: 0, MaxScore: 5},
		{ID: 3, PromptText: "Prove the theorem.", KeyBBox: models.NewBBox(56, 500, 400, 550), KeyPageIndex: 0, MaxScore: 15},
	}}
}

func TestAlignStudentEveryQuestionGetsRecord(t *testing.T) {
	gw := &scriptedGateway{responses: []string{
		`{"answers":[{"question_id":1,"blocks":[0]},{"question_id":2,"blocks":[1]},{"question_id":3,"blocks":[]}]}`,
	}}
	a := NewAnalyzer(gw, zerolog.Nop())

	records, err := a.AlignStudent(context.Background(), studentLayout(), threeQuestionMap())
	if err != nil {
		t.Fatalf("AlignStudent: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected a record per question, got %d", len(records))
	}
	if records[0].StudentAnswerText != "1) 2+2 = 4" || records[0].Unanswered {
		t.Errorf("question 1 record: %+v", records[0])
	}
	if !records[2].Unanswered {
		t.Errorf("question 3 must stay unanswered when all blocks are claimed: %+v", records[2])
	}
}

func TestAlignStudentProximityFallback(t *testing.T) {
	// Модель не сопоставила второй вопрос, хотя подходящий блок есть.
	gw := &scriptedGateway{responses: []string{
		`{"answers":[{"question_id":1,"blocks":[0]}]}`,
	}}
	a := NewAnalyzer(gw, zerolog.Nop())

	records, err := a.AlignStudent(context.Background(), studentLayout(), &models.QuestionMap{Questions: []models.Question{
		{ID: 1, KeyBBox: models.NewBBox(56, 110, 400, 130), KeyPageIndex: 0, MaxScore: 10},
		{ID: 2, KeyBBox: models.NewBBox(56, 230, 400, 250), KeyPageIndex: 0, MaxScore: 5},
	}})
	if err != nil {
		t.Fatalf("AlignStudent: %v", err)
	}
	if records[1].Unanswered {
		t.Fatalf("question 2 should be matched by proximity: %+v", records[1])
	}
	if records[1].StudentAnswerText != "2) Paris" {
		t.Errorf("proximity picked wrong block: %q", records[1].StudentAnswerText)
	}
}
