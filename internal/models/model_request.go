package models

// ModelRequest — один запрос к размещённой модели оценки.
type ModelRequest struct {
	System      string  `json:"system,omitempty"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

// ModelResponse — разобранный ответ модели. Text уже очищен от обёрток
// markdown, но структурную валидацию выполняет вызывающая сторона.
type ModelResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}
