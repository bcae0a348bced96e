package datatypes

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"github.com/bioc/pathwayPCA/lib/settings"
	"gonum.org/v1/gonum/mat"
)

func TestMarshalMatrixWithNaN(t *testing.T) {
	m := NewMatrix(mat.NewDense(2, 2, []float64{0.5, math.NaN(), -1.0, 2.0}),
		[]string{"g1", "g2"}, []string{"PC1", "PC2"})
	b, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !strings.Contains(string(b), `"values":[[0.5,null],[-1,2]]`) {
		t.Errorf("expected NaN to be encoded as null but got %s", b)
	}

	var reconstructed Matrix
	if err := (&reconstructed).UnmarshalJSON(b); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !math.IsNaN(reconstructed.Values[0][1]) {
		t.Errorf("expected null to decode as NaN but got %f", reconstructed.Values[0][1])
	}
	if reconstructed.Values[1][0] != -1.0 || reconstructed.Values[1][1] != 2.0 {
		t.Errorf("value mismatch in reconstructed matrix: %v", reconstructed.Values)
	}
	if reconstructed.RowNames[1] != "g2" || reconstructed.ColumnNames[0] != "PC1" {
		t.Errorf("label mismatch in reconstructed matrix: %v %v",
			reconstructed.RowNames, reconstructed.ColumnNames)
	}
}

func TestMatrixDense(t *testing.T) {
	m := &Matrix{Values: [][]float64{{1, 2, 3}, {4, 5, 6}}}
	d, err := m.Dense()
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if r, c := d.Dims(); r != 2 || c != 3 {
		t.Errorf("expected a 2 x 3 matrix but got %d x %d", r, c)
	}
	if d.At(1, 2) != 6 {
		t.Errorf("expected 6 at (1, 2) but got %f", d.At(1, 2))
	}

	ragged := &Matrix{Values: [][]float64{{1, 2}, {3}}}
	if _, err := ragged.Dense(); err == nil {
		t.Errorf("expected error for a ragged matrix")
	}

	empty := &Matrix{}
	if d, err := empty.Dense(); d != nil || err != nil {
		t.Errorf("expected no matrix and no error for an empty matrix")
	}
}

func TestFromUnusableResult(t *testing.T) {
	r := aespca.NewDefaultDecomposer().Decompose(mat.NewDense(2, 2, []float64{1, math.NaN(), 0, 1}), nil,
		defaultSettings())
	msg := FromResult("p53", r)
	if msg.Usable() {
		t.Errorf("expected an unusable result message")
	}

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !strings.Contains(string(b), `"status":"unusable"`) || !strings.Contains(string(b), `"diff":null`) {
		t.Errorf("unexpected encoding %s", b)
	}

	var reconstructed ResultMessage
	if err := json.Unmarshal(b, &reconstructed); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if reconstructed.Pathway != "p53" || reconstructed.Status != aespca.StatusUnusable {
		t.Errorf("header mismatch: %+v", reconstructed)
	}
	if !math.IsNaN(reconstructed.Diff) {
		t.Errorf("expected NaN diff but got %f", reconstructed.Diff)
	}
	if len(reconstructed.Loadings.Values) != 2 || !math.IsNaN(reconstructed.Loadings.Values[0][0]) {
		t.Errorf("expected NaN placeholder loadings but got %v", reconstructed.Loadings.Values)
	}
	if reconstructed.Loadings.RowNames[0] != "V1" || reconstructed.Loadings.ColumnNames[0] != "PC1" {
		t.Errorf("expected default labels but got %v %v",
			reconstructed.Loadings.RowNames, reconstructed.Loadings.ColumnNames)
	}
}

func TestFromResult(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1.0, 0.9, 0.1,
		-1.0, -1.1, 0.2,
		2.0, 1.8, -0.1,
		-2.0, -1.9, -0.2,
	})
	cfg := defaultSettings()
	cfg.MaxIter = 0
	r := aespca.NewDefaultDecomposer().Decompose(x, []string{"a", "b", "c"}, cfg)
	msg := FromResult("glycolysis", r)
	msg.JobID = "job-1"

	b, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	var reconstructed ResultMessage
	if err := json.Unmarshal(b, &reconstructed); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !reconstructed.Usable() {
		t.Errorf("expected a usable result message")
	}
	if reconstructed.JobID != "job-1" || reconstructed.Status != aespca.StatusIterationLimit {
		t.Errorf("header mismatch: %+v", reconstructed)
	}
	loadings, err := reconstructed.Loadings.Dense()
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if !mat.EqualApprox(loadings, r.Loadings, 1e-12) {
		t.Errorf("expected %v but got %v", mat.Formatted(r.Loadings), mat.Formatted(loadings))
	}
	if len(reconstructed.Scores.Values) != 4 || reconstructed.Scores.RowNames != nil {
		t.Errorf("expected 4 unlabelled score rows but got %+v", reconstructed.Scores)
	}
}

func defaultSettings() settings.AESSettings {
	return settings.NewAESSettings()
}
