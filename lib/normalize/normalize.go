// Package normalize holds the column scaling helpers shared by the
// decomposition and the callers that prepare assay data for it.
package normalize

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// ColumnNorms returns the Euclidean norm of every column of m.
func ColumnNorms(m mat.Matrix) []float64 {
	r, c := m.Dims()
	norms := make([]float64, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, m)
		norms[j] = floats.Norm(col, 2)
	}
	return norms
}

// NormalizeColumns scales every column of m to unit Euclidean norm in place.
// All-zero columns are left as they are.
func NormalizeColumns(m *mat.Dense) {
	r, _ := m.Dims()
	for j, norm := range ColumnNorms(m) {
		if norm == 0 {
			norm = 1
		}
		for i := 0; i < r; i++ {
			m.Set(i, j, m.At(i, j)/norm)
		}
	}
}

// MaxAbsDiff is the largest absolute elementwise difference between a and b,
// which must have the same shape.
func MaxAbsDiff(a, b mat.Matrix) float64 {
	var d mat.Dense
	d.Sub(a, b)
	r, c := d.Dims()
	ret := 0.0
	for i := 0; i < r; i++ {
		row := d.RawRowView(i)[:c]
		for _, v := range row {
			if av := math.Abs(v); av > ret {
				ret = av
			}
		}
	}
	return ret
}

// AllFinite reports whether m holds neither NaN nor infinite values.
func AllFinite(m mat.Matrix) bool {
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// StandardizeSlice centers slice on its mean and scales it to unit sample
// standard deviation. A constant slice is set to zero and reported as such.
// A slice holding NaN or infinite values is left untouched so that the
// missing values stay visible downstream.
func StandardizeSlice(slice []float64) bool {
	for _, v := range slice {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if len(slice) < 2 {
		for i := range slice {
			slice[i] = 0.0
		}
		return true
	}
	mean, std := stat.MeanStdDev(slice, nil)
	if std == 0.0 {
		for i := range slice {
			slice[i] = 0.0
		}
		return true
	}
	floats.AddConst(-mean, slice)
	floats.Scale(1/std, slice)
	return false
}

// StandardizeColumns standardizes every column of x in place and returns
// which columns were constant.
func StandardizeColumns(x *mat.Dense) []bool {
	r, c := x.Dims()
	constant := make([]bool, c)
	col := make([]float64, r)
	for j := 0; j < c; j++ {
		mat.Col(col, j, x)
		constant[j] = StandardizeSlice(col)
		x.SetCol(j, col)
	}
	return constant
}
