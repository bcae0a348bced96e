package svd

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Procrustes returns the matrix with orthonormal columns closest to m in
// Frobenius norm. With the thin decomposition m = U Σ Vᵀ that matrix is U Vᵀ.
func Procrustes(m mat.Matrix) (*mat.Dense, error) {
	r, c := m.Dims()
	if r < c {
		return nil, fmt.Errorf("procrustes needs at least as many rows as columns, got %d x %d", r, c)
	}
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, fmt.Errorf("failed to find SVD of procrustes target")
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var rotation mat.Dense
	rotation.Mul(&u, v.T())
	return &rotation, nil
}
