package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
	"github.com/kabirmuntasir/agentic-ai-grader/internal/service/gateway"
)

const (
	// Попытки на один вопрос: первая плюс два ретрая.
	maxAttempts = 3

	evalTemperature = 0.3

	// Порог полного балла относительно максимума.
	correctThreshold = 0.8

	// Потолок уверенности для оценок, которые пришлось обрезать.
	clampedConfidence = 0.1

	unansweredFeedback = "No answer was provided for this question."
	ungradedFeedback   = "This answer could not be graded automatically. Please review it manually."
)

const evalSystemPrompt = `You are a strict but fair exam grader. Compare the student's answer ` +
	`with the reference answer and grade it. Respond with JSON only, no prose: ` +
	`{"score": <number>, "label": "correct|partially_correct|incorrect", ` +
	`"feedback": "<short feedback for the student>", "confidence": <0..1>}`

// Evaluator выставляет оценки по вопросам через шлюз модели.
type Evaluator interface {
	Evaluate(ctx context.Context, question models.Question, answer models.AnswerRecord) (models.EvaluationRecord, error)
	EvaluateAll(ctx context.Context, qmap *models.QuestionMap, answers []models.AnswerRecord) ([]models.EvaluationRecord, error)
}

type answerEvaluator struct {
	gateway     gateway.Gateway
	parallelism int
	retryDelay  time.Duration
	logger      zerolog.Logger
}

func NewEvaluator(gw gateway.Gateway, parallelism int, retryDelay time.Duration, logger zerolog.Logger) Evaluator {
	if parallelism <= 0 {
		parallelism = 4
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return &answerEvaluator{
		gateway:     gw,
		parallelism: parallelism,
		retryDelay:  retryDelay,
		logger:      logger,
	}
}

type evalPayload struct {
	Score      float64 `json:"score"`
	Label      string  `json:"label"`
	Feedback   string  `json:"feedback"`
	Confidence float64 `json:"confidence"`
}

// Evaluate оценивает один ответ. Пустой ответ не ходит в модель. Временные
// сбои ретраятся с экспоненциальной паузой; после исчерпания попыток вопрос
// деградирует до ungraded с нулевой уверенностью. Ошибку возвращает только
// фатальный отказ шлюза.
func (e *answerEvaluator) Evaluate(ctx context.Context, question models.Question, answer models.AnswerRecord) (models.EvaluationRecord, error) {
	if answer.Unanswered {
		return models.EvaluationRecord{
			QuestionID:       question.ID,
			Score:            0,
			MaxScore:         question.MaxScore,
			CorrectnessLabel: models.LabelUnanswered,
			FeedbackText:     unansweredFeedback,
			Confidence:       1,
		}, nil
	}

	prompt := fmt.Sprintf("Question: %s\n\nReference answer:\n%s\n\nStudent answer:\n%s\n\nMaximum score: %.1f",
		question.PromptText, question.KeyAnswerText, answer.StudentAnswerText, question.MaxScore)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := e.gateway.Generate(ctx, models.ModelRequest{
			System:      evalSystemPrompt,
			Prompt:      prompt,
			Temperature: evalTemperature,
		})
		if err == nil {
			var payload evalPayload
			err = json.Unmarshal([]byte(gateway.ExtractJSON(resp.Text)), &payload)
			if err == nil {
				return buildRecord(question, payload), nil
			}
			err = fmt.Errorf("%w: %v", models.ErrInvalidResponse, err)
		}
		lastErr = err

		var authErr *models.GatewayAuthError
		if errors.As(err, &authErr) {
			return models.EvaluationRecord{}, err
		}
		if ctx.Err() != nil {
			break
		}

		if attempt < maxAttempts {
			delay := e.retryDelay << (attempt - 1)
			e.logger.Warn().
				Err(err).
				Int("question_id", question.ID).
				Int("attempt", attempt).
				Dur("delay", delay).
				Msg("Evaluation attempt failed, retrying")

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				attempt = maxAttempts
			}
		}
	}

	e.logger.Error().
		Err(&models.EvaluationError{QuestionID: question.ID, Attempts: maxAttempts, Err: lastErr}).
		Msg("Question degraded to ungraded")

	return models.EvaluationRecord{
		QuestionID:       question.ID,
		Score:            0,
		MaxScore:         question.MaxScore,
		CorrectnessLabel: models.LabelUngraded,
		FeedbackText:     ungradedFeedback,
		Confidence:       0,
	}, nil
}

// EvaluateAll оценивает вопросы пакетами ограниченного размера. Результаты
// возвращаются строго в порядке question_id независимо от порядка завершения.
// При отмене контекста новые вызовы модели не запускаются, а оставшиеся
// вопросы помечаются ungraded; уже полученные оценки сохраняются.
func (e *answerEvaluator) EvaluateAll(ctx context.Context, qmap *models.QuestionMap, answers []models.AnswerRecord) ([]models.EvaluationRecord, error) {
	byQuestion := make(map[int]models.AnswerRecord, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	records := make([]models.EvaluationRecord, qmap.Len())
	errs := make([]error, qmap.Len())

	for start := 0; start < qmap.Len(); start += e.parallelism {
		if ctx.Err() != nil {
			for i := start; i < qmap.Len(); i++ {
				q := qmap.Questions[i]
				records[i] = models.EvaluationRecord{
					QuestionID:       q.ID,
					MaxScore:         q.MaxScore,
					CorrectnessLabel: models.LabelUngraded,
					FeedbackText:     ungradedFeedback,
				}
			}
			e.logger.Warn().Int("skipped", qmap.Len()-start).Msg("Evaluation cancelled, remaining questions left ungraded")
			break
		}

		end := start + e.parallelism
		if end > qmap.Len() {
			end = qmap.Len()
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				q := qmap.Questions[i]
				answer, ok := byQuestion[q.ID]
				if !ok {
					answer = models.AnswerRecord{QuestionID: q.ID, Unanswered: true}
				}
				records[i], errs[i] = e.Evaluate(ctx, q, answer)
			}(i)
		}
		wg.Wait()

		for i := start; i < end; i++ {
			if errs[i] != nil {
				return nil, errs[i]
			}
		}
	}

	return records, nil
}

// buildRecord приводит сырой вывод модели к инвариантам записи: балл в
// [0, max], уверенность в [0, 1], метка согласована с баллом.
func buildRecord(q models.Question, payload evalPayload) models.EvaluationRecord {
	score := payload.Score
	clamped := false
	if score < 0 {
		score = 0
		clamped = true
	}
	if score > q.MaxScore {
		score = q.MaxScore
		clamped = true
	}

	confidence := payload.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	if clamped && confidence > clampedConfidence {
		confidence = clampedConfidence
	}

	return models.EvaluationRecord{
		QuestionID:       q.ID,
		Score:            score,
		MaxScore:         q.MaxScore,
		CorrectnessLabel: resolveLabel(payload.Label, score, q.MaxScore),
		FeedbackText:     payload.Feedback,
		Confidence:       confidence,
	}
}

func resolveLabel(raw string, score, maxScore float64) models.CorrectnessLabel {
	switch models.CorrectnessLabel(raw) {
	case models.LabelCorrect, models.LabelPartiallyCorrect, models.LabelIncorrect:
		return models.CorrectnessLabel(raw)
	}

	// Метку, которую модель не вернула или исказила, выводим из балла.
	switch {
	case maxScore > 0 && score >= maxScore*correctThreshold:
		return models.LabelCorrect
	case score > 0:
		return models.LabelPartiallyCorrect
	default:
		return models.LabelIncorrect
	}
}
