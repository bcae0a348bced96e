package aespca

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Status tells how a decomposition ended and whether its numbers may be used.
type Status string

const (
	// The normalized loadings moved by at most EpsConv in the last round.
	StatusConverged Status = "converged"

	// The iteration budget ran out first. The loadings are the last round's.
	StatusIterationLimit Status = "iteration_limit"

	// The sparse solver failed and the loadings are the SVD directions.
	StatusFallback Status = "fallback"

	// The input could not be decomposed. Every matrix is filled with NaN.
	StatusUnusable Status = "unusable"
)

// Result holds the sparse and the plain SVD decomposition of one matrix.
type Result struct {
	Status Status

	// Loadings is p x d, one unit-norm (or all-zero) column per component.
	Loadings *mat.Dense
	// SVDLoadings is p x d: the sign-adjusted leading eigenvectors of XᵀX.
	SVDLoadings *mat.Dense
	// Scores is X · Loadings.
	Scores *mat.Dense
	// SVDScores is X · SVDLoadings.
	SVDScores *mat.Dense

	// Row labels of the loadings and column labels of every matrix.
	FeatureNames   []string
	ComponentNames []string

	Samples    int
	Iterations int
	Diff       float64

	// Components whose solve failed in the round that triggered the fallback.
	FailedComponents []int
}

// Usable reports whether the matrices hold numbers rather than placeholders.
func (r *Result) Usable() bool {
	return r != nil && r.Status != StatusUnusable
}

func newUnusable(n, p, d int, features []string) *Result {
	return &Result{
		Status:         StatusUnusable,
		Loadings:       nanDense(p, d),
		SVDLoadings:    nanDense(p, d),
		Scores:         nanDense(n, d),
		SVDScores:      nanDense(n, d),
		FeatureNames:   featureNames(features, p),
		ComponentNames: componentNames(d),
		Samples:        n,
		Diff:           math.NaN(),
	}
}

// nanDense returns an r x c matrix of NaN, or nil if either dimension is
// not positive.
func nanDense(r, c int) *mat.Dense {
	if r < 1 || c < 1 {
		return nil
	}
	data := make([]float64, r*c)
	for i := range data {
		data[i] = math.NaN()
	}
	return mat.NewDense(r, c, data)
}

func featureNames(features []string, p int) []string {
	if len(features) == p && p > 0 {
		return append([]string(nil), features...)
	}
	ret := make([]string, 0, max(p, 0))
	for i := 1; i <= p; i++ {
		ret = append(ret, fmt.Sprintf("V%d", i))
	}
	return ret
}

func componentNames(d int) []string {
	ret := make([]string, 0, max(d, 0))
	for i := 1; i <= d; i++ {
		ret = append(ret, fmt.Sprintf("PC%d", i))
	}
	return ret
}
