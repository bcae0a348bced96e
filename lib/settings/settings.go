// Package settings contains all the parameters for the AES-PCA decomposition
// and the sparse direction solver it drives.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

const (
	PENALTY_LASSO = "lasso"
	PENALTY_LAR   = "lar"

	CRITERION_BIC = "bic"
	CRITERION_AIC = "aic"
)

var ErrInvalidSettings = errors.New("invalid settings")

// LarsSettings tune the least angle regression path used to find sparse
// loading vectors.
type LarsSettings struct {
	// Model selection criterion along the path when no penalty parameter is given.
	Criterion string `yaml:"criterion" json:"criterion"`

	// Maximum number of path steps. 0 means 8 * the number of features.
	MaxSteps int `yaml:"maxSteps" json:"maxSteps"`

	// Numerical tolerance for ties, zero coefficients and step lengths.
	Eps float64 `yaml:"eps" json:"eps"`

	// Largest acceptable condition number of the active-set Gram block.
	// Candidates that push it higher are treated as collinear and ignored.
	MaxCondition float64 `yaml:"maxCondition" json:"maxCondition"`
}

type AESSettings struct {
	// The number of principal components to extract (d).
	Components int `yaml:"components" json:"components"`

	// Upper bound on the number of sparse-solve / Procrustes rounds.
	// 0 skips the refinement and returns the plain SVD directions.
	MaxIter int `yaml:"maxIter" json:"maxIter"`

	// Convergence threshold on the largest elementwise change of the
	// normalized loadings between two rounds.
	EpsConv float64 `yaml:"epsConv" json:"epsConv"`

	// Whether the solver uses adaptive (direction-weighted) penalties.
	Adaptive bool `yaml:"adaptive" json:"adaptive"`

	// Optional per-component penalty parameters. Missing entries mean the
	// solver picks the penalty by its selection criterion.
	Para []float64 `yaml:"para,omitempty" json:"para,omitempty"`

	// Center and scale each feature before decomposing. The core never
	// rescales; this is applied by the callers that read raw assays.
	Standardize bool `yaml:"standardize" json:"standardize"`

	// Pathways with fewer measured features than this are rejected.
	MinFeatures int `yaml:"minFeatures" json:"minFeatures"`

	// Number of pathways decomposed concurrently by batch runners.
	Workers int `yaml:"workers" json:"workers"`

	Lars LarsSettings `yaml:"lars" json:"lars"`
}

// NewAESSettings returns the default settings. Files and flags are applied
// on top of these so that absent keys keep their defaults.
func NewAESSettings() AESSettings {
	return AESSettings{
		Components:  1,
		MaxIter:     10,
		EpsConv:     1e-3,
		Adaptive:    true,
		Standardize: true,
		MinFeatures: 3,
		Workers:     runtime.GOMAXPROCS(0),
		Lars: LarsSettings{
			Criterion:    CRITERION_BIC,
			Eps:          1e-10,
			MaxCondition: 1e12,
		},
	}
}

// ComputeSettingsFields fills in the fields whose defaults depend on the
// machine or whose zero value carries no meaning. Every other field is taken
// as given: Load and Overlay start from NewAESSettings, so absent keys already
// hold their defaults and explicit zeros such as epsConv: 0 are kept.
func (s AESSettings) ComputeSettingsFields() AESSettings {
	if s.Workers <= 0 {
		s.Workers = runtime.GOMAXPROCS(0)
	}
	if s.Lars.Criterion == "" {
		s.Lars.Criterion = CRITERION_BIC
	}
	return s
}

// Validate reports settings that no decomposition can run with.
func (s AESSettings) Validate() error {
	if s.Components < 1 {
		return fmt.Errorf("%w: components must be at least 1, got %d", ErrInvalidSettings, s.Components)
	}
	if s.MaxIter < 0 {
		return fmt.Errorf("%w: maxIter must not be negative, got %d", ErrInvalidSettings, s.MaxIter)
	}
	if s.EpsConv < 0 {
		return fmt.Errorf("%w: epsConv must not be negative, got %f", ErrInvalidSettings, s.EpsConv)
	}
	if s.Para != nil && len(s.Para) != s.Components {
		return fmt.Errorf("%w: para has %d entries for %d components", ErrInvalidSettings,
			len(s.Para), s.Components)
	}
	switch s.Lars.Criterion {
	case "", CRITERION_BIC, CRITERION_AIC:
	default:
		return fmt.Errorf("%w: unsupported criterion %q", ErrInvalidSettings, s.Lars.Criterion)
	}
	if s.Lars.MaxSteps < 0 {
		return fmt.Errorf("%w: lars maxSteps must not be negative, got %d", ErrInvalidSettings, s.Lars.MaxSteps)
	}
	return nil
}

// Load reads YAML settings from path on top of the defaults.
func Load(path string) (AESSettings, error) {
	s := NewAESSettings()
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("reading settings file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	s = s.ComputeSettingsFields()
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// FromJSON decodes settings sent with a request on top of the defaults.
// Empty input gives the defaults.
func FromJSON(raw []byte) (AESSettings, error) {
	return Overlay(NewAESSettings(), raw)
}

// Overlay decodes JSON settings on top of base.
func Overlay(base AESSettings, raw []byte) (AESSettings, error) {
	s := base
	if base.Para != nil {
		s.Para = append([]float64(nil), base.Para...)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s); err != nil {
			return s, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
		}
	}
	s = s.ComputeSettingsFields()
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}
