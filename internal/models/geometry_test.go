package models

import "testing"

func TestNewBBoxNormalizes(t *testing.T) {
	b := NewBBox(100, 200, 50, 150)
	if b.X0 != 50 || b.Y0 != 150 || b.X1 != 100 || b.Y1 != 200 {
		t.Fatalf("unexpected normalized box: %+v", b)
	}
}

func TestBBoxIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b BBox
		want bool
	}{
		{"overlapping", NewBBox(0, 0, 10, 10), NewBBox(5, 5, 15, 15), true},
		{"disjoint", NewBBox(0, 0, 10, 10), NewBBox(20, 20, 30, 30), false},
		{"touching edges", NewBBox(0, 0, 10, 10), NewBBox(10, 0, 20, 10), false},
		{"contained", NewBBox(0, 0, 100, 100), NewBBox(10, 10, 20, 20), true},
		{"vertical only", NewBBox(0, 0, 10, 10), NewBBox(50, 5, 60, 15), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersects(tt.b); got != tt.want {
				t.Errorf("Intersects(%+v, %+v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Intersects(tt.a); got != tt.want {
				t.Errorf("Intersects is not symmetric for %s", tt.name)
			}
		})
	}
}

func TestBBoxUnion(t *testing.T) {
	a := NewBBox(10, 10, 20, 20)
	b := NewBBox(15, 5, 40, 18)
	u := a.Union(b)
	want := BBox{X0: 10, Y0: 5, X1: 40, Y1: 20}
	if u != want {
		t.Fatalf("Union = %+v, want %+v", u, want)
	}
}

func TestBBoxTranslateY(t *testing.T) {
	b := NewBBox(10, 10, 20, 20).TranslateY(15)
	if b.Y0 != 25 || b.Y1 != 35 {
		t.Fatalf("TranslateY: got %+v", b)
	}
	if b.X0 != 10 || b.X1 != 20 {
		t.Fatalf("TranslateY must not touch x coordinates: %+v", b)
	}
}

func TestBBoxVerticalGap(t *testing.T) {
	a := NewBBox(0, 0, 10, 10)
	b := NewBBox(0, 25, 10, 35)
	if got := a.VerticalGap(b); got != 15 {
		t.Fatalf("VerticalGap = %v, want 15", got)
	}
	if got := b.VerticalGap(a); got != 15 {
		t.Fatalf("VerticalGap must be symmetric, got %v", got)
	}
	c := NewBBox(0, 5, 10, 12)
	if got := a.VerticalGap(c); got != 0 {
		t.Fatalf("overlapping boxes must report zero gap, got %v", got)
	}
}
