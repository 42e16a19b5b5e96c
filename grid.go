package bgnormalize

import (
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Sample is the set of scalar types accepted as image intensities.
type Sample interface {
	~uint8 | ~uint16 | ~float32 | ~float64
}

// Grid is a rectangular W×H array of scalar values stored row by row.
type Grid[T any] struct {
	W, H int
	Pix  []T // len = W*H, Pix[y*W+x]
}

// NewGrid allocates a zeroed grid. Non-positive sizes yield an empty grid.
func NewGrid[T any](w, h int) *Grid[T] {
	if w <= 0 || h <= 0 {
		return &Grid[T]{}
	}
	return &Grid[T]{W: w, H: h, Pix: make([]T, w*h)}
}

// GridFrom wraps pix as a w×h grid without copying.
func GridFrom[T any](w, h int, pix []T) (*Grid[T], error) {
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("grid %dx%d: %w", w, h, ErrBadShape)
	}
	if len(pix) != w*h {
		return nil, fmt.Errorf("grid %dx%d with %d values: %w", w, h, len(pix), ErrBadShape)
	}
	return &Grid[T]{W: w, H: h, Pix: pix}, nil
}

func gridOffset(w, x, y int) int {
	return y*w + x
}

func (g *Grid[T]) At(x, y int) T {
	return g.Pix[gridOffset(g.W, x, y)]
}

func (g *Grid[T]) Set(x, y int, v T) {
	g.Pix[gridOffset(g.W, x, y)] = v
}

// Row returns the backing slice of row y.
func (g *Grid[T]) Row(y int) []T {
	off := gridOffset(g.W, 0, y)
	return g.Pix[off : off+g.W]
}

func (g *Grid[T]) Clone() *Grid[T] {
	out := &Grid[T]{W: g.W, H: g.H, Pix: make([]T, len(g.Pix))}
	copy(out.Pix, g.Pix)
	return out
}

// Fill sets every value of the grid to v.
func (g *Grid[T]) Fill(v T) {
	for i := range g.Pix {
		g.Pix[i] = v
	}
}

// Empty reports whether the grid holds no values.
func (g *Grid[T]) Empty() bool {
	return g == nil || g.W <= 0 || g.H <= 0 || len(g.Pix) != g.W*g.H
}

// checkShapes returns ErrShapeMismatch unless a and b are both w×h.
func checkShapes(aw, ah, bw, bh int) error {
	if aw != bw || ah != bh {
		return fmt.Errorf("%dx%d vs %dx%d: %w", aw, ah, bw, bh, ErrShapeMismatch)
	}
	return nil
}

// minRowsPerBand keeps tiny grids on a single goroutine.
const minRowsPerBand = 16

// forEachRowBand calls fn on disjoint [y0, y1) bands covering [0, h). Bands
// run concurrently; fn must only write rows inside its own band.
func forEachRowBand(h int, fn func(y0, y1 int)) {
	workers := runtime.GOMAXPROCS(0)
	bands := min(workers, max(1, h/minRowsPerBand))
	if bands <= 1 {
		fn(0, h)
		return
	}
	step := (h + bands - 1) / bands

	var g errgroup.Group
	g.SetLimit(workers)
	for y0 := 0; y0 < h; y0 += step {
		y1 := min(y0+step, h)
		g.Go(func() error {
			fn(y0, y1)
			return nil
		})
	}
	_ = g.Wait()
}
