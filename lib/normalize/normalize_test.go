package normalize

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestNormalizeColumns(t *testing.T) {
	m := mat.NewDense(3, 3, []float64{
		3.0, 0.0, 1.0,
		4.0, 0.0, 1.0,
		0.0, 0.0, 1.0,
	})
	NormalizeColumns(m)

	expected := mat.NewDense(3, 3, []float64{
		0.6, 0.0, 1 / math.Sqrt(3),
		0.8, 0.0, 1 / math.Sqrt(3),
		0.0, 0.0, 1 / math.Sqrt(3),
	})
	if !mat.EqualApprox(m, expected, 1e-12) {
		t.Errorf("expected normalized matrix %v but got %v", mat.Formatted(expected), mat.Formatted(m))
	}

	norms := ColumnNorms(m)
	if math.Abs(norms[0]-1.0) > 1e-12 || math.Abs(norms[2]-1.0) > 1e-12 {
		t.Errorf("expected unit norms for non-zero columns but got %v", norms)
	}
	if norms[1] != 0.0 {
		t.Errorf("expected the zero column to stay zero but got norm %f", norms[1])
	}
}

func TestMaxAbsDiff(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{0.1, 0.2, 0.3, 0.4})
	b := mat.NewDense(2, 2, []float64{0.1, -0.3, 0.3, 0.45})
	diff := MaxAbsDiff(a, b)
	if math.Abs(diff-0.5) > 1e-12 {
		t.Errorf("expected max abs diff 0.5 but got %f", diff)
	}
	if MaxAbsDiff(a, a) != 0.0 {
		t.Errorf("expected zero difference of a matrix with itself")
	}
}

func TestAllFinite(t *testing.T) {
	if !AllFinite(mat.NewDense(1, 2, []float64{1, 2})) {
		t.Errorf("expected finite matrix to be reported finite")
	}
	if AllFinite(mat.NewDense(1, 2, []float64{1, math.NaN()})) {
		t.Errorf("expected NaN to be detected")
	}
	if AllFinite(mat.NewDense(1, 2, []float64{math.Inf(-1), 2})) {
		t.Errorf("expected -Inf to be detected")
	}
}

func TestStandardizeSlice(t *testing.T) {
	vec := []float64{0.1, 0.2, 0.3}
	isConstant := StandardizeSlice(vec)

	if isConstant {
		t.Errorf("did not expect %v to be considered constant", vec)
	}
	// Mean 0.2 and sample sd 0.1.
	if math.Abs(vec[0]+1.0) > 1e-9 || math.Abs(vec[1]) > 1e-9 || math.Abs(vec[2]-1.0) > 1e-9 {
		t.Errorf("expected standardized values -1, 0, 1 but got %v", vec)
	}

	constant := []float64{2.5, 2.5, 2.5}
	if !StandardizeSlice(constant) {
		t.Errorf("expected %v to be considered constant", constant)
	}
	for _, v := range constant {
		if v != 0.0 {
			t.Errorf("expected constant slice to be zeroed but got %v", constant)
		}
	}
}

func TestStandardizeSliceKeepsMissingValues(t *testing.T) {
	for _, bad := range []float64{math.NaN(), math.Inf(1)} {
		vec := []float64{1.0, bad, 3.0}
		if StandardizeSlice(vec) {
			t.Errorf("did not expect %v to be considered constant", vec)
		}
		if vec[0] != 1.0 || vec[2] != 3.0 {
			t.Errorf("expected finite values to stay unchanged but got %v", vec)
		}
		if !math.IsNaN(vec[1]) && !math.IsInf(vec[1], 0) {
			t.Errorf("expected the non-finite value to survive but got %v", vec)
		}
	}
	single := []float64{math.NaN()}
	if StandardizeSlice(single) || !math.IsNaN(single[0]) {
		t.Errorf("expected a lone NaN to survive but got %v", single)
	}
}

func TestStandardizeColumns(t *testing.T) {
	x := mat.NewDense(3, 2, []float64{
		1.0, 7.0,
		2.0, 7.0,
		3.0, 7.0,
	})
	constant := StandardizeColumns(x)
	if constant[0] || !constant[1] {
		t.Errorf("expected only the second column to be constant but got %v", constant)
	}
	expected := mat.NewDense(3, 2, []float64{
		-1.0, 0.0,
		0.0, 0.0,
		1.0, 0.0,
	})
	if !mat.EqualApprox(x, expected, 1e-9) {
		t.Errorf("expected %v but got %v", mat.Formatted(expected), mat.Formatted(x))
	}
}
