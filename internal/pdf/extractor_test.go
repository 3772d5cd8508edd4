package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/kabirmuntasir/agentic-ai-grader/internal/models"
)

func TestExtractRejectsNonPDF(t *testing.T) {
	e := NewExtractor(zerolog.Nop())

	_, err := e.Extract(context.Background(), []byte("just some text"), models.RoleStudent)
	var extractErr *models.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if extractErr.Role != models.RoleStudent {
		t.Errorf("error must carry the document role, got %q", extractErr.Role)
	}
}

func TestExtractRejectsTruncatedPDF(t *testing.T) {
	e := NewExtractor(zerolog.Nop())

	_, err := e.Extract(context.Background(), []byte("%PDF-1.7\ngarbage"), models.RoleKey)
	var extractErr *models.ExtractionError
	if !errors.As(err, &extractErr) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestGroupLinesRestoresWords(t *testing.T) {
	frags := []fragment{
		{x: 10, yTop: 100, w: 30, size: 12, text: "Hello"},
		{x: 48, yTop: 100, w: 30, size: 12, text: "world"},
		{x: 10, yTop: 130, w: 40, size: 12, text: "Next"},
	}

	lines := groupLines(frags)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].text != "Hello world" {
		t.Errorf("word gap not restored: %q", lines[0].text)
	}
	if lines[1].text != "Next" {
		t.Errorf("unexpected second line: %q", lines[1].text)
	}
}

func TestGroupLinesJoinsAdjacentGlyphs(t *testing.T) {
	frags := []fragment{
		{x: 10, yTop: 100, w: 7, size: 12, text: "H"},
		{x: 17, yTop: 100, w: 7, size: 12, text: "i"},
	}

	lines := groupLines(frags)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0].text != "Hi" {
		t.Errorf("adjacent glyphs must not get a space: %q", lines[0].text)
	}
}

func TestGroupLinesToleratesBaselineJitter(t *testing.T) {
	frags := []fragment{
		{x: 10, yTop: 100, w: 30, size: 12, text: "same"},
		{x: 60, yTop: 102, w: 30, size: 12, text: "line"},
	}

	lines := groupLines(frags)
	if len(lines) != 1 {
		t.Fatalf("jittered glyphs must stay on one line, got %d lines", len(lines))
	}
}

func TestGroupBlocksSplitsOnLargeGap(t *testing.T) {
	lines := []textLine{
		{x0: 10, x1: 200, yTop: 100, size: 12, text: "Question 1. What is 2+2?"},
		{x0: 10, x1: 180, yTop: 115, size: 12, text: "Answer: 4"},
		{x0: 10, x1: 220, yTop: 300, size: 12, text: "Question 2. Name the capital."},
	}

	blocks := groupBlocks(lines, 0)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Text != "Question 1. What is 2+2?\nAnswer: 4" {
		t.Errorf("first block text: %q", blocks[0].Text)
	}
	if blocks[0].PageIndex != 0 {
		t.Errorf("page index lost: %d", blocks[0].PageIndex)
	}
	if blocks[1].BBox.Y0 != 300 {
		t.Errorf("second block bbox: %+v", blocks[1].BBox)
	}
}

func TestGroupBlocksBBoxCoversAllLines(t *testing.T) {
	lines := []textLine{
		{x0: 10, x1: 200, yTop: 100, size: 12, text: "first"},
		{x0: 30, x1: 250, yTop: 115, size: 12, text: "second"},
	}

	blocks := groupBlocks(lines, 3)
	if len(blocks) != 1 {
		t.Fatalf("expected 1 block, got %d", len(blocks))
	}
	box := blocks[0].BBox
	if box.X0 != 10 || box.X1 != 250 {
		t.Errorf("bbox must cover both lines horizontally: %+v", box)
	}
	if box.Y0 != 100 || box.Y1 != 127 {
		t.Errorf("bbox must cover both lines vertically: %+v", box)
	}
	if blocks[0].FontSize != 12 {
		t.Errorf("block font size: %v", blocks[0].FontSize)
	}
}
