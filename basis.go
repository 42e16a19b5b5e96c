package bgnormalize

import "fmt"

// Monomial is the term x^DegX · y^DegY.
type Monomial struct {
	DegX, DegY int
}

func (m Monomial) Degree() int {
	return m.DegX + m.DegY
}

func (m Monomial) String() string {
	return fmt.Sprintf("x^%d·y^%d", m.DegX, m.DegY)
}

// Basis is the ordered list of monomials of a polynomial model. Coefficient
// vectors and design matrix columns follow the same order.
type Basis []Monomial

func (b Basis) Len() int {
	return len(b)
}

// MaxDegree returns the largest total degree in the basis, or -1 if empty.
func (b Basis) MaxDegree() int {
	d := -1
	for _, m := range b {
		d = max(d, m.Degree())
	}
	return d
}

func (b Basis) xExponents() []int {
	out := make([]int, len(b))
	for i, m := range b {
		out[i] = m.DegX
	}
	return out
}

func (b Basis) yExponents() []int {
	out := make([]int, len(b))
	for i, m := range b {
		out[i] = m.DegY
	}
	return out
}

// NumCoeffs returns the number of monomials with total degree <= maxDegree.
func NumCoeffs(maxDegree int) int {
	if maxDegree < 0 {
		return 0
	}
	return (maxDegree + 1) * (maxDegree + 2) / 2
}

// BuildBasis enumerates all monomials of total degree <= maxDegree.
// Entry 0 is the constant term; the rest are grouped by ascending total
// degree and, within a degree, by ascending y exponent.
func BuildBasis(maxDegree int) (Basis, error) {
	if maxDegree < 0 {
		return nil, fmt.Errorf("degree %d: %w", maxDegree, ErrInvalidDegree)
	}
	basis := make(Basis, 1, NumCoeffs(maxDegree))
	basis[0] = Monomial{}
	for order := 1; order <= maxDegree; order++ {
		for n := 0; n <= order; n++ {
			basis = append(basis, Monomial{DegX: order - n, DegY: n})
		}
	}
	return basis, nil
}
