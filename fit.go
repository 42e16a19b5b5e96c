package bgnormalize

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// NormalizedCoord maps an index in [0, size) to roughly [-1.5, +1.5), which
// keeps high-degree monomials bounded. Fit and evaluation must both use the
// full image extent as size.
func NormalizedCoord(idx, size int) float64 {
	return (float64(idx)/float64(size) - 0.5) * 3
}

// powerTable holds, for one axis, the value of the normalized coordinate
// raised to each basis exponent: vals[i*k+c] = n(i, size)^exps[c].
type powerTable struct {
	size int
	k    int
	vals []float64
}

func newPowerTable(size int, exps []int) *powerTable {
	k := len(exps)
	maxExp := 0
	for _, e := range exps {
		maxExp = max(maxExp, e)
	}
	t := &powerTable{size: size, k: k, vals: make([]float64, size*k)}
	pows := make([]float64, maxExp+1)
	for i := range size {
		v := NormalizedCoord(i, size)
		pows[0] = 1
		for p := 1; p <= maxExp; p++ {
			pows[p] = pows[p-1] * v
		}
		row := t.vals[i*k : (i+1)*k]
		for c, e := range exps {
			row[c] = pows[e]
		}
	}
	return t
}

func (t *powerTable) row(i int) []float64 {
	return t.vals[i*t.k : (i+1)*t.k]
}

// axisTables are the x and y power tables of one (width, height, basis).
// They are read-only once built.
type axisTables struct {
	x, y *powerTable
}

func newAxisTables(width, height int, basis Basis) *axisTables {
	return &axisTables{
		x: newPowerTable(width, basis.xExponents()),
		y: newPowerTable(height, basis.yExponents()),
	}
}

func (t *axisTables) matches(width, height int) bool {
	return t != nil && t.x.size == width && t.y.size == height
}

// FitModel is a fitted polynomial surface. Fit never modifies a model after
// returning it, so concurrent evaluation is safe as long as callers leave
// Basis and Coeffs alone.
type FitModel struct {
	MaxDegree int
	Basis     Basis
	Coeffs    []float64

	// Samples is the number of masked pixels used by the fit.
	Samples int
	// RMS is the root-mean-square residual over those samples.
	RMS float64

	tables *axisTables
}

// Fit estimates polynomial coefficients, in the least-squares sense, from the
// pixels of img selected by mask on a samplingStep stride.
//
// Singular systems are rejected with ErrIllConditioned only when the QR
// condition estimate exceeds mat.ConditionTolerance. Exactly duplicated
// columns, such as the constant and y terms of a single-row image, can slip
// under that estimate; the solve then picks one of many coefficient vectors
// that all reproduce the sampled pixels.
func Fit[T Sample](img *Grid[T], mask *Grid[bool], maxDegree, samplingStep int) (*FitModel, error) {
	if img.Empty() || mask.Empty() {
		return nil, fmt.Errorf("fit: %w", ErrNilGrid)
	}
	if err := checkShapes(img.W, img.H, mask.W, mask.H); err != nil {
		return nil, fmt.Errorf("fit image/mask: %w", err)
	}
	if samplingStep < 1 {
		return nil, fmt.Errorf("fit step %d: %w", samplingStep, ErrInvalidSamplingStep)
	}
	basis, err := BuildBasis(maxDegree)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	start := time.Now()
	k := basis.Len()
	w, h := img.W, img.H

	// first count the samples to size the system
	m := 0
	for y := 0; y < h; y += samplingStep {
		for x := 0; x < w; x += samplingStep {
			if mask.At(x, y) {
				m++
			}
		}
	}
	if m < k {
		return nil, fmt.Errorf("fit: %d samples for %d coefficients (step %d): %w",
			m, k, samplingStep, ErrInsufficientSamples)
	}

	tables := newAxisTables(w, h, basis)
	a := mat.NewDense(m, k, nil)
	b := mat.NewVecDense(m, nil)
	i := 0
	for y := 0; y < h; y += samplingStep {
		yRow := tables.y.row(y)
		for x := 0; x < w; x += samplingStep {
			if !mask.At(x, y) {
				continue
			}
			floats.MulTo(a.RawRowView(i), tables.x.row(x), yRow)
			b.SetVec(i, float64(img.At(x, y)))
			i++
		}
	}

	var qr mat.QR
	qr.Factorize(a)
	theta := mat.NewVecDense(k, nil)
	if err := qr.SolveVecTo(theta, false, b); err != nil {
		var cond mat.Condition
		if errors.As(err, &cond) {
			return nil, fmt.Errorf("fit degree %d on %d samples (condition %g): %w",
				maxDegree, m, float64(cond), ErrIllConditioned)
		}
		return nil, fmt.Errorf("fit: solve: %w", err)
	}

	resid := mat.NewVecDense(m, nil)
	resid.MulVec(a, theta)
	resid.SubVec(resid, b)
	rms := mat.Norm(resid, 2) / math.Sqrt(float64(m))

	coeffs := make([]float64, k)
	for c := range k {
		coeffs[c] = theta.AtVec(c)
	}

	logger.Debug().
		Int("width", w).
		Int("height", h).
		Int("degree", maxDegree).
		Int("samples", m).
		Int("coeffs", k).
		Float64("rms", rms).
		Dur("elapsed", time.Since(start)).
		Msg("fitted background polynomial")

	return &FitModel{
		MaxDegree: maxDegree,
		Basis:     basis,
		Coeffs:    coeffs,
		Samples:   m,
		RMS:       rms,
		tables:    tables,
	}, nil
}

// Evaluate computes the fitted surface at every pixel of a width×height grid.
// Values are not clamped.
func (fm *FitModel) Evaluate(width, height int) (*Grid[float64], error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("evaluate %dx%d: %w", width, height, ErrBadShape)
	}
	if len(fm.Coeffs) != fm.Basis.Len() {
		return nil, fmt.Errorf("evaluate: %d coefficients for %d monomials: %w",
			len(fm.Coeffs), fm.Basis.Len(), ErrBadShape)
	}
	tables := fm.tables
	if !tables.matches(width, height) {
		tables = newAxisTables(width, height, fm.Basis)
	}
	out := NewGrid[float64](width, height)
	k := len(fm.Coeffs)

	forEachRowBand(height, func(y0, y1 int) {
		rowCoef := make([]float64, k)
		for y := y0; y < y1; y++ {
			floats.MulTo(rowCoef, fm.Coeffs, tables.y.row(y))
			dst := out.Row(y)
			for x := range width {
				dst[x] = floats.Dot(rowCoef, tables.x.row(x))
			}
		}
	})
	return out, nil
}

// At evaluates the surface at a single pixel of a width×height grid. It
// returns NaN when Coeffs and Basis differ in length.
func (fm *FitModel) At(x, y, width, height int) float64 {
	if len(fm.Coeffs) != fm.Basis.Len() {
		return math.NaN()
	}
	xn := NormalizedCoord(x, width)
	yn := NormalizedCoord(y, height)
	v := 0.0
	for c, mono := range fm.Basis {
		v += fm.Coeffs[c] * math.Pow(xn, float64(mono.DegX)) * math.Pow(yn, float64(mono.DegY))
	}
	return v
}

// FitBackground fits a model with opt.MaxDegree and opt.SamplingStep and
// returns it evaluated over the full image extent.
func FitBackground[T Sample](img *Grid[T], mask *Grid[bool], opt Options) (*Grid[float64], *FitModel, error) {
	model, err := Fit(img, mask, opt.MaxDegree, opt.SamplingStep)
	if err != nil {
		return nil, nil, err
	}
	bg, err := model.Evaluate(img.W, img.H)
	if err != nil {
		return nil, nil, err
	}
	return bg, model, nil
}
