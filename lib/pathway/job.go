package pathway

import (
	"encoding/json"
	"fmt"

	"github.com/bioc/pathwayPCA/lib/datatypes"
	"github.com/bioc/pathwayPCA/lib/settings"
	"gonum.org/v1/gonum/mat"
)

// A Job carries everything needed to decompose one pathway matrix. It is
// the body of HTTP decomposition requests and of kafka job messages.
type Job struct {
	ID      string `json:"jobId,omitempty"`
	Pathway string `json:"pathway,omitempty"`

	// Column names of Data. May be empty.
	Features []string `json:"features,omitempty"`

	// Samples x features, row-major.
	Data [][]float64 `json:"data"`

	// Overrides Settings.Standardize when set.
	Standardize *bool `json:"standardize,omitempty"`

	// Partial AESSettings applied on top of the defaults.
	Settings json.RawMessage `json:"settings,omitempty"`
}

// NewJob builds a job for x with the given settings.
func NewJob(id string, pathway string, features []string, x mat.Matrix, cfg settings.AESSettings) (*Job, error) {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return &Job{
		ID:       id,
		Pathway:  pathway,
		Features: features,
		Data:     datatypes.NewMatrix(x, nil, nil).Values,
		Settings: raw,
	}, nil
}

func (j *Job) Matrix() (*mat.Dense, error) {
	x, err := (&datatypes.Matrix{Values: j.Data}).Dense()
	if err != nil {
		return nil, err
	}
	if x == nil {
		return nil, fmt.Errorf("job %s has no data", j.ID)
	}
	_, c := x.Dims()
	if len(j.Features) > 0 && len(j.Features) != c {
		return nil, fmt.Errorf("job %s has %d columns but %d feature names", j.ID, c, len(j.Features))
	}
	return x, nil
}

// Config applies the job's settings on top of base.
func (j *Job) Config(base settings.AESSettings) (settings.AESSettings, error) {
	cfg, err := settings.Overlay(base, j.Settings)
	if err != nil {
		return cfg, err
	}
	if j.Standardize != nil {
		cfg.Standardize = *j.Standardize
	}
	return cfg, nil
}

// Run decomposes the job's matrix. Errors are about malformed jobs only;
// numerical trouble is reported through the result's status.
func (r *Runner) Run(job *Job, base settings.AESSettings) (*datatypes.ResultMessage, *Outcome, error) {
	x, err := job.Matrix()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := job.Config(base)
	if err != nil {
		return nil, nil, err
	}
	var features []string
	if len(job.Features) > 0 {
		features = job.Features
	}
	outcome := r.DecomposeMatrix(job.Pathway, x, features, cfg)
	msg := datatypes.FromResult(job.Pathway, outcome.Result)
	msg.JobID = job.ID
	return msg, outcome, nil
}
