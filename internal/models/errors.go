package models

import (
	"errors"
	"fmt"
)

// Таксономия ошибок пайплайна. Типы проверяются через errors.As, чтобы
// оркестратор мог отличить фатальные ошибки документа от деградации
// отдельных вопросов.

// ExtractionError — некорректный или неподдерживаемый PDF. Фатальна для
// прогона, не ретраится.
type ExtractionError struct {
	Role   DocumentRole
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s document: %s", e.Role, e.Reason)
}

// AnalysisError — ответ модели не прошёл валидацию схемы при анализе
// документа. Анализатор ретраит один раз, после чего ошибка фатальна.
type AnalysisError struct {
	Stage string
	Err   error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("analysis failed at %s: %v", e.Stage, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// EvaluationError — временный сбой шлюза для одного вопроса. Не фатальна:
// после исчерпания ретраев вопрос деградирует до "ungraded".
type EvaluationError struct {
	QuestionID int
	Attempts   int
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation of question %d failed after %d attempts: %v", e.QuestionID, e.Attempts, e.Err)
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// GatewayAuthError — проблема учётных данных. Фатальна, ретраи бессмысленны.
type GatewayAuthError struct {
	Status int
}

func (e *GatewayAuthError) Error() string {
	return fmt.Sprintf("model gateway rejected credentials (status %d)", e.Status)
}

// Ошибки шлюза, классифицируемые по классам ответа.
var (
	ErrRateLimited     = errors.New("model gateway rate limited")
	ErrGatewayTimeout  = errors.New("model gateway timeout")
	ErrInvalidResponse = errors.New("model response failed schema validation")
)

// IsTransient сообщает, имеет ли смысл повторить вызов шлюза.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrGatewayTimeout)
}

// IsFatal сообщает, что ошибка прерывает весь прогон.
func IsFatal(err error) bool {
	var authErr *GatewayAuthError
	var extractErr *ExtractionError
	var analysisErr *AnalysisError
	return errors.As(err, &authErr) || errors.As(err, &extractErr) || errors.As(err, &analysisErr)
}
