package svd

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// TruncatedSVD keeps the top K right singular vectors of a data matrix X.
// They are found as the leading eigenvectors of the Gram matrix XᵀX, whose
// eigenvalues are the squared singular values of X.
type TruncatedSVD struct {
	// Components is the p x k matrix of right singular vectors, one per
	// column, ordered by descending singular value. Every column is
	// sign-adjusted so that its first entry is non-negative.
	Components *mat.Dense

	// Values holds the k leading eigenvalues of the Gram matrix.
	Values []float64

	// The number of dimensions to truncate to.
	K int
}

// Gram returns XᵀX for the n x p matrix x.
func Gram(x mat.Matrix) *mat.SymDense {
	_, p := x.Dims()
	g := mat.NewSymDense(p, nil)
	g.SymOuterK(1, x.T())
	return g
}

// Fit eigendecomposes the p x p Gram matrix and keeps the top K directions.
func (t *TruncatedSVD) Fit(gram mat.Symmetric) error {
	p := gram.SymmetricDim()
	if t.K < 1 || t.K > p {
		return fmt.Errorf("cannot keep %d directions of a %d x %d gram matrix", t.K, p, p)
	}

	var eig mat.EigenSym
	if ok := eig.Factorize(gram, true); !ok {
		return fmt.Errorf("failed to eigendecompose gram matrix")
	}

	var vectors mat.Dense
	eig.VectorsTo(&vectors)
	values := eig.Values(nil)

	// EigenSym orders eigenvalues ascending, so the leading directions are
	// the last columns.
	t.Components = mat.NewDense(p, t.K, nil)
	t.Values = make([]float64, t.K)
	for k := 0; k < t.K; k++ {
		src := p - 1 - k
		t.Values[k] = values[src]
		t.Components.SetCol(k, mat.Col(nil, src, &vectors))
	}
	SignAdjust(t.Components)
	return nil
}

// Transform projects the rows of m onto the fitted components.
func (t *TruncatedSVD) Transform(m mat.Matrix) (*mat.Dense, error) {
	if t.Components == nil {
		return nil, fmt.Errorf("you must call Fit before Transform")
	}
	_, c := m.Dims()
	p, _ := t.Components.Dims()
	if c != p {
		return nil, fmt.Errorf("matrix has %d columns but the components have %d rows", c, p)
	}
	var product mat.Dense
	product.Mul(m, t.Components)
	return &product, nil
}

// FitTransform fits the directions of m's Gram matrix and returns the
// projection of m onto them.
func (t *TruncatedSVD) FitTransform(m mat.Matrix) (*mat.Dense, error) {
	if err := t.Fit(Gram(m)); err != nil {
		return nil, err
	}
	return t.Transform(m)
}

// SignAdjust flips every column of a whose first entry is negative, so that
// repeated decompositions agree on the sign of each direction.
func SignAdjust(a *mat.Dense) {
	r, c := a.Dims()
	if r == 0 {
		return
	}
	for j := 0; j < c; j++ {
		if a.At(0, j) >= 0 {
			continue
		}
		for i := 0; i < r; i++ {
			a.Set(i, j, -a.At(i, j))
		}
	}
}
