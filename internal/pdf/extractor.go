package pdf

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

const (
	// Потолок размера документа для одного прогона.
	maxPages = 20

	defaultPageWidth  = 612
	defaultPageHeight = 792

	// Доля кегля, в пределах которой глифы считаются одной строкой.
	lineToleranceFactor = 0.5
	// Зазор между словами внутри строки, в долях кегля.
	wordGapFactor = 0.3
	// Максимальный вертикальный зазор между строками одного блока.
	blockJoinFactor = 0.9
)

// Extractor строит геометрическую модель документа из байтов PDF.
type Extractor interface {
	Extract(ctx context.Context, data []byte, role models.DocumentRole) (*models.DocumentLayout, error)
}

type geometryExtractor struct {
	logger zerolog.Logger
}

func NewExtractor(logger zerolog.Logger) Extractor {
	return &geometryExtractor{logger: logger}
}

func (e *geometryExtractor) Extract(ctx context.Context, data []byte, role models.DocumentRole) (*models.DocumentLayout, error) {
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, &models.ExtractionError{Role: role, Reason: "not a PDF document"}
	}

	reader, err := lpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &models.ExtractionError{Role: role, Reason: fmt.Sprintf("failed to open document: %v", err)}
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, &models.ExtractionError{Role: role, Reason: "document has no pages"}
	}
	if pageCount > maxPages {
		return nil, &models.ExtractionError{Role: role, Reason: fmt.Sprintf("page count %d exceeds limit %d", pageCount, maxPages)}
	}

	layout := &models.DocumentLayout{Role: role}

	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			return nil, &models.ExtractionError{Role: role, Reason: fmt.Sprintf("page %d is unreadable", i)}
		}

		dims := pageSize(page)
		layout.Pages = append(layout.Pages, dims)

		frags, err := pageFragments(page, dims.Height)
		if err != nil {
			return nil, &models.ExtractionError{Role: role, Reason: fmt.Sprintf("page %d: %v", i, err)}
		}

		lines := groupLines(frags)
		blocks := groupBlocks(lines, i-1)
		layout.Blocks = append(layout.Blocks, blocks...)
	}

	if len(layout.Blocks) == 0 {
		return nil, &models.ExtractionError{Role: role, Reason: "document has no extractable text blocks"}
	}

	sort.SliceStable(layout.Blocks, func(a, b int) bool {
		if layout.Blocks[a].PageIndex != layout.Blocks[b].PageIndex {
			return layout.Blocks[a].PageIndex < layout.Blocks[b].PageIndex
		}
		return layout.Blocks[a].BBox.Y0 < layout.Blocks[b].BBox.Y0
	})

	e.logger.Debug().
		Str("role", role.String()).
		Int("pages", layout.PageCount()).
		Int("blocks", len(layout.Blocks)).
		Msg("Document layout extracted")

	return layout, nil
}

// Размер страницы из MediaBox, при отсутствии — US Letter.
func pageSize(page lpdf.Page) models.PageDimensions {
	mb := page.V.Key("MediaBox")
	if mb.Kind() == lpdf.Array && mb.Len() == 4 {
		w := mb.Index(2).Float64() - mb.Index(0).Float64()
		h := mb.Index(3).Float64() - mb.Index(1).Float64()
		if w > 0 && h > 0 {
			return models.PageDimensions{Width: w, Height: h}
		}
	}
	return models.PageDimensions{Width: defaultPageWidth, Height: defaultPageHeight}
}

// fragment — один глиф или прогон текста в координатах с началом сверху.
type fragment struct {
	x    float64
	yTop float64
	w    float64
	size float64
	text string
}

// pageFragments переводит содержимое страницы в координаты с началом в левом
// верхнем углу. Разбор потока контента может паниковать на битых документах.
func pageFragments(page lpdf.Page, pageHeight float64) (frags []fragment, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed content stream: %v", r)
		}
	}()

	content := page.Content()
	for _, t := range content.Text {
		if t.S == "" {
			continue
		}
		size := t.FontSize
		if size <= 0 {
			size = 12
		}
		frags = append(frags, fragment{
			x:    t.X,
			yTop: pageHeight - t.Y - size,
			w:    t.W,
			size: size,
			text: t.S,
		})
	}
	return frags, nil
}

type textLine struct {
	x0, x1 float64
	yTop   float64
	size   float64
	text   string
}

// groupLines собирает глифы в строки по совпадению базовой линии и восстанавливает
// пробелы между словами по горизонтальному зазору.
func groupLines(frags []fragment) []textLine {
	if len(frags) == 0 {
		return nil
	}

	sorted := make([]fragment, len(frags))
	copy(sorted, frags)
	sort.SliceStable(sorted, func(a, b int) bool {
		if sorted[a].yTop != sorted[b].yTop {
			return sorted[a].yTop < sorted[b].yTop
		}
		return sorted[a].x < sorted[b].x
	})

	var buckets [][]fragment
	current := []fragment{sorted[0]}
	for _, f := range sorted[1:] {
		anchor := current[0]
		if f.yTop-anchor.yTop <= anchor.size*lineToleranceFactor {
			current = append(current, f)
			continue
		}
		buckets = append(buckets, current)
		current = []fragment{f}
	}
	buckets = append(buckets, current)

	lines := make([]textLine, 0, len(buckets))
	for _, bucket := range buckets {
		sort.SliceStable(bucket, func(a, b int) bool {
			return bucket[a].x < bucket[b].x
		})

		var sb strings.Builder
		line := textLine{
			x0:   bucket[0].x,
			yTop: bucket[0].yTop,
		}
		prevEnd := bucket[0].x
		for i, f := range bucket {
			if i > 0 && f.x-prevEnd > f.size*wordGapFactor && !strings.HasSuffix(sb.String(), " ") {
				sb.WriteByte(' ')
			}
			sb.WriteString(f.text)
			prevEnd = f.x + f.w
			if f.x+f.w > line.x1 {
				line.x1 = f.x + f.w
			}
			if f.size > line.size {
				line.size = f.size
			}
			if f.yTop < line.yTop {
				line.yTop = f.yTop
			}
		}
		line.text = strings.TrimSpace(sb.String())
		if line.text == "" {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// groupBlocks объединяет соседние строки в блоки по вертикальному зазору.
func groupBlocks(lines []textLine, pageIndex int) []models.PageBlock {
	if len(lines) == 0 {
		return nil
	}

	sort.SliceStable(lines, func(a, b int) bool {
		return lines[a].yTop < lines[b].yTop
	})

	var blocks []models.PageBlock
	group := []textLine{lines[0]}
	for _, ln := range lines[1:] {
		prev := group[len(group)-1]
		gap := ln.yTop - (prev.yTop + prev.size)
		if gap <= maxFloat(prev.size, ln.size)*blockJoinFactor {
			group = append(group, ln)
			continue
		}
		blocks = append(blocks, buildBlock(group, pageIndex))
		group = []textLine{ln}
	}
	blocks = append(blocks, buildBlock(group, pageIndex))
	return blocks
}

func buildBlock(lines []textLine, pageIndex int) models.PageBlock {
	block := models.PageBlock{
		PageIndex: pageIndex,
		Kind:      models.BlockKindText,
	}

	texts := make([]string, 0, len(lines))
	box := models.NewBBox(lines[0].x0, lines[0].yTop, lines[0].x1, lines[0].yTop+lines[0].size)
	for _, ln := range lines {
		texts = append(texts, ln.text)
		box = box.Union(models.NewBBox(ln.x0, ln.yTop, ln.x1, ln.yTop+ln.size))
		if ln.size > block.FontSize {
			block.FontSize = ln.size
		}
	}

	block.Text = strings.Join(texts, "\n")
	block.BBox = box
	return block
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
