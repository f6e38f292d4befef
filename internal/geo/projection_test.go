package geo

import (
	"math"
	"testing"
)

func TestEqualAreaDistances(t *testing.T) {
	p, err := EqualArea()
	if err != nil {
		t.Fatalf("EqualArea: %v", err)
	}

	x0, y0, err := p.Forward(-74.0059, 40.7128)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	// 0.01 degree of latitude is roughly 1.11 km anywhere.
	x1, y1, err := p.Forward(-74.0059, 40.7228)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	d := math.Hypot(x1-x0, y1-y0)
	if d < 1000 || d > 1250 {
		t.Fatalf("distance = %.1f m; want about 1110 m", d)
	}
}

func TestGridIndexOrigin(t *testing.T) {
	p, err := NativeGrid()
	if err != nil {
		t.Fatalf("NativeGrid: %v", err)
	}
	g, err := NewGrid(p, 19.6, -123.3, NativeGridSpacing)
	if err != nil {
		t.Fatalf("NewGrid: %v", err)
	}

	row, col, err := g.Index(19.6, -123.3)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if row != 0 || col != 0 {
		t.Fatalf("origin index = (%d, %d); want (0, 0)", row, col)
	}

	// Moving north increases the row, moving east increases the column.
	rowN, _, err := g.Index(20.0, -123.3)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if rowN <= row {
		t.Errorf("north row = %d; want > %d", rowN, row)
	}
	_, colE, err := g.Index(19.6, -122.9)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if colE <= col {
		t.Errorf("east col = %d; want > %d", colE, col)
	}
}

func TestNewGridRejectsSpacing(t *testing.T) {
	p, err := NativeGrid()
	if err != nil {
		t.Fatalf("NativeGrid: %v", err)
	}
	if _, err := NewGrid(p, 19.6, -123.3, 0); err == nil {
		t.Fatal("expected error for zero spacing")
	}
}
