package models

// DocumentRole — роль документа в проверке.
type DocumentRole string

const (
	RoleStudent DocumentRole = "student"
	RoleKey     DocumentRole = "key"
)

func (r DocumentRole) String() string {
	return string(r)
}

type BlockKind string

const (
	BlockKindText     BlockKind = "text"
	BlockKindFeedback BlockKind = "feedback"
)

// PageBlock — один текстовый блок, извлечённый из PDF. Label и QuestionID
// заполняются только у блоков фидбека: Label определяет цвет отрисовки,
// QuestionID привязывает блок к вопросу-владельцу.
type PageBlock struct {
	PageIndex  int              `json:"page_index"`
	BBox       BBox             `json:"bbox"`
	Text       string           `json:"text"`
	Kind       BlockKind        `json:"kind"`
	FontSize   float64          `json:"font_size,omitempty"`
	Label      CorrectnessLabel `json:"label,omitempty"`
	QuestionID int              `json:"question_id,omitempty"`
}

type PageDimensions struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// DocumentLayout — результат работы экстрактора геометрии. После извлечения
// не изменяется; блоки упорядочены по странице и вертикальной позиции.
type DocumentLayout struct {
	Role   DocumentRole     `json:"role"`
	Pages  []PageDimensions `json:"pages"`
	Blocks []PageBlock      `json:"blocks"`
}

func (l *DocumentLayout) PageCount() int {
	return len(l.Pages)
}

// BlocksOnPage возвращает блоки одной страницы в порядке следования.
func (l *DocumentLayout) BlocksOnPage(pageIndex int) []PageBlock {
	var blocks []PageBlock
	for _, b := range l.Blocks {
		if b.PageIndex == pageIndex {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
