package models

import "math"

// BBox — прямоугольник в координатах страницы, начало в левом верхнем углу
// (Y растёт вниз). X0/Y0 — левый верхний угол, X1/Y1 — правый нижний.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

func NewBBox(x0, y0, x1, y1 float64) BBox {
	return BBox{
		X0: math.Min(x0, x1),
		Y0: math.Min(y0, y1),
		X1: math.Max(x0, x1),
		Y1: math.Max(y0, y1),
	}
}

func (b BBox) Width() float64 {
	return b.X1 - b.X0
}

func (b BBox) Height() float64 {
	return b.Y1 - b.Y0
}

func (b BBox) IsEmpty() bool {
	return b.Width() <= 0 || b.Height() <= 0
}

func (b BBox) Intersects(other BBox) bool {
	return !(b.X1 <= other.X0 ||
		b.X0 >= other.X1 ||
		b.Y1 <= other.Y0 ||
		b.Y0 >= other.Y1)
}

func (b BBox) Union(other BBox) BBox {
	return BBox{
		X0: math.Min(b.X0, other.X0),
		Y0: math.Min(b.Y0, other.Y0),
		X1: math.Max(b.X1, other.X1),
		Y1: math.Max(b.Y1, other.Y1),
	}
}

// TranslateY возвращает копию, сдвинутую по вертикали на dy.
func (b BBox) TranslateY(dy float64) BBox {
	return BBox{X0: b.X0, Y0: b.Y0 + dy, X1: b.X1, Y1: b.Y1 + dy}
}

// VerticalGap — расстояние по вертикали до other; 0 если пересекаются по Y.
func (b BBox) VerticalGap(other BBox) float64 {
	if other.Y0 >= b.Y1 {
		return other.Y0 - b.Y1
	}
	if b.Y0 >= other.Y1 {
		return b.Y0 - other.Y1
	}
	return 0
}
