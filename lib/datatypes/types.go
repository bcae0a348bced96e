package datatypes

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/bioc/pathwayPCA/lib/aespca"
	"gonum.org/v1/gonum/mat"
)

// Matrix is a labelled matrix on the wire.
// The fields are public because this struct gets
// json-encoded. NaN values are encoded as null.
type Matrix struct {
	RowNames    []string
	ColumnNames []string
	Values      [][]float64
}

// NewMatrix copies m. A nil m gives a Matrix without values.
func NewMatrix(m mat.Matrix, rowNames []string, columnNames []string) *Matrix {
	ret := &Matrix{RowNames: rowNames, ColumnNames: columnNames}
	if m == nil {
		return ret
	}
	r, c := m.Dims()
	ret.Values = make([][]float64, r)
	for i := 0; i < r; i++ {
		ret.Values[i] = make([]float64, c)
		for j := 0; j < c; j++ {
			ret.Values[i][j] = m.At(i, j)
		}
	}
	return ret
}

// Dense returns the values as a gonum matrix, or nil if there are none.
func (m *Matrix) Dense() (*mat.Dense, error) {
	if len(m.Values) == 0 || len(m.Values[0]) == 0 {
		return nil, nil
	}
	r, c := len(m.Values), len(m.Values[0])
	data := make([]float64, 0, r*c)
	for i, row := range m.Values {
		if len(row) != c {
			return nil, fmt.Errorf("row %d has %d values but row 0 has %d", i, len(row), c)
		}
		data = append(data, row...)
	}
	return mat.NewDense(r, c, data), nil
}

type wireMatrix struct {
	RowNames    []string     `json:"rowNames,omitempty"`
	ColumnNames []string     `json:"columnNames,omitempty"`
	Values      [][]*float64 `json:"values"`
}

func (m *Matrix) MarshalJSON() ([]byte, error) {
	values := make([][]*float64, len(m.Values))
	for i, row := range m.Values {
		values[i] = make([]*float64, len(row))
		for j := range row {
			values[i][j] = nullable(row[j])
		}
	}
	return json.Marshal(&wireMatrix{
		RowNames:    m.RowNames,
		ColumnNames: m.ColumnNames,
		Values:      values,
	})
}

func (m *Matrix) UnmarshalJSON(data []byte) error {
	wm := &wireMatrix{}
	if err := json.Unmarshal(data, wm); err != nil {
		return err
	}
	m.RowNames = wm.RowNames
	m.ColumnNames = wm.ColumnNames
	m.Values = make([][]float64, len(wm.Values))
	for i, row := range wm.Values {
		m.Values[i] = make([]float64, len(row))
		for j, v := range row {
			m.Values[i][j] = fromNullable(v)
		}
	}
	return nil
}

// ResultMessage is the wire form of one decomposition.
type ResultMessage struct {
	JobID            string
	Pathway          string
	Status           aespca.Status
	Iterations       int
	Diff             float64
	FailedComponents []int
	Loadings         *Matrix
	SVDLoadings      *Matrix
	Scores           *Matrix
	SVDScores        *Matrix

	// Error is set instead of the matrices when the job could not be run.
	Error string
}

// FromResult converts r. Score matrices carry no row names.
func FromResult(pathway string, r *aespca.Result) *ResultMessage {
	return &ResultMessage{
		Pathway:          pathway,
		Status:           r.Status,
		Iterations:       r.Iterations,
		Diff:             r.Diff,
		FailedComponents: r.FailedComponents,
		Loadings:         NewMatrix(denseOrNil(r.Loadings), r.FeatureNames, r.ComponentNames),
		SVDLoadings:      NewMatrix(denseOrNil(r.SVDLoadings), r.FeatureNames, r.ComponentNames),
		Scores:           NewMatrix(denseOrNil(r.Scores), nil, r.ComponentNames),
		SVDScores:        NewMatrix(denseOrNil(r.SVDScores), nil, r.ComponentNames),
	}
}

// Usable mirrors aespca.Result.Usable.
func (r *ResultMessage) Usable() bool {
	return r.Error == "" && r.Status != "" && r.Status != aespca.StatusUnusable
}

type wireResult struct {
	JobID            string        `json:"jobId,omitempty"`
	Pathway          string        `json:"pathway,omitempty"`
	Status           aespca.Status `json:"status,omitempty"`
	Iterations       int           `json:"iterations"`
	Diff             *float64      `json:"diff"`
	FailedComponents []int         `json:"failedComponents,omitempty"`
	Loadings         *Matrix       `json:"loadings,omitempty"`
	SVDLoadings      *Matrix       `json:"svdLoadings,omitempty"`
	Scores           *Matrix       `json:"scores,omitempty"`
	SVDScores        *Matrix       `json:"svdScores,omitempty"`
	Error            string        `json:"error,omitempty"`
}

func (r *ResultMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(&wireResult{
		JobID:            r.JobID,
		Pathway:          r.Pathway,
		Status:           r.Status,
		Iterations:       r.Iterations,
		Diff:             nullable(r.Diff),
		FailedComponents: r.FailedComponents,
		Loadings:         r.Loadings,
		SVDLoadings:      r.SVDLoadings,
		Scores:           r.Scores,
		SVDScores:        r.SVDScores,
		Error:            r.Error,
	})
}

func (r *ResultMessage) UnmarshalJSON(data []byte) error {
	wr := &wireResult{}
	if err := json.Unmarshal(data, wr); err != nil {
		return err
	}
	r.JobID = wr.JobID
	r.Pathway = wr.Pathway
	r.Status = wr.Status
	r.Iterations = wr.Iterations
	r.Diff = fromNullable(wr.Diff)
	r.FailedComponents = wr.FailedComponents
	r.Loadings = wr.Loadings
	r.SVDLoadings = wr.SVDLoadings
	r.Scores = wr.Scores
	r.SVDScores = wr.SVDScores
	r.Error = wr.Error
	return nil
}

func nullable(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func fromNullable(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// denseOrNil keeps a nil *mat.Dense from turning into a non-nil interface.
func denseOrNil(m *mat.Dense) mat.Matrix {
	if m == nil {
		return nil
	}
	return m
}
