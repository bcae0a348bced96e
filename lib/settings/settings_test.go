package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSettingsFields(t *testing.T) {
	s := AESSettings{MaxIter: 0}.ComputeSettingsFields()

	assert.Positive(t, s.Workers)
	assert.Equal(t, CRITERION_BIC, s.Lars.Criterion)
	assert.Equal(t, 0, s.MaxIter, "maxIter 0 is meaningful and must survive defaulting")
	assert.Equal(t, 0.0, s.EpsConv, "epsConv 0 is meaningful and must survive defaulting")
	assert.Equal(t, 0, s.MinFeatures)
	assert.Equal(t, 0.0, s.Lars.Eps)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*AESSettings)
		wantErr bool
	}{
		{name: "defaults", mutate: func(s *AESSettings) {}},
		{name: "zero components", mutate: func(s *AESSettings) { s.Components = 0 }, wantErr: true},
		{name: "negative maxIter", mutate: func(s *AESSettings) { s.MaxIter = -1 }, wantErr: true},
		{name: "negative epsConv", mutate: func(s *AESSettings) { s.EpsConv = -0.1 }, wantErr: true},
		{name: "para length mismatch", mutate: func(s *AESSettings) {
			s.Components = 2
			s.Para = []float64{0.1}
		}, wantErr: true},
		{name: "para matches", mutate: func(s *AESSettings) {
			s.Components = 2
			s.Para = []float64{0.1, 0.2}
		}},
		{name: "bad criterion", mutate: func(s *AESSettings) { s.Lars.Criterion = "cv" }, wantErr: true},
		{name: "aic", mutate: func(s *AESSettings) { s.Lars.Criterion = CRITERION_AIC }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := NewAESSettings()
			c.mutate(&s)
			err := s.Validate()
			if c.wantErr {
				require.ErrorIs(t, err, ErrInvalidSettings)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "aespca.yaml")
	content := []byte(`components: 2
maxIter: 25
adaptive: false
lars:
  criterion: aic
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Components)
	assert.Equal(t, 25, s.MaxIter)
	assert.False(t, s.Adaptive)
	assert.Equal(t, CRITERION_AIC, s.Lars.Criterion)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, 1e-3, s.EpsConv)
	assert.True(t, s.Standardize)
	assert.Equal(t, 1e12, s.Lars.MaxCondition)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("components: 2\npara: [0.5]\n"), 0o600))

	_, err := Load(path)
	require.ErrorIs(t, err, ErrInvalidSettings)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	s, err := FromJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, NewAESSettings(), s)

	s, err = FromJSON([]byte(`{"components": 2, "adaptive": false, "para": [0.1, 0.2]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Components)
	assert.False(t, s.Adaptive)
	assert.Equal(t, []float64{0.1, 0.2}, s.Para)
	assert.Equal(t, 10, s.MaxIter)

	s, err = FromJSON([]byte(`{"epsConv": 0, "maxIter": 10}`))
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.EpsConv)
	assert.Equal(t, 10, s.MaxIter)

	_, err = FromJSON([]byte(`{"components": 0}`))
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = FromJSON([]byte(`{"components": "two"}`))
	assert.ErrorIs(t, err, ErrInvalidSettings)
	_, err = FromJSON([]byte(`{"lars": {"criterion": "cv"}}`))
	assert.ErrorIs(t, err, ErrInvalidSettings)
}

func TestOverlayKeepsBase(t *testing.T) {
	base := NewAESSettings()
	base.Components = 2
	base.Para = []float64{1, 2}

	s, err := Overlay(base, []byte(`{"para": [3, 4], "maxIter": 4}`))
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4}, s.Para)
	assert.Equal(t, 4, s.MaxIter)
	assert.Equal(t, 2, s.Components)
	assert.Equal(t, []float64{1, 2}, base.Para)

	base.EpsConv = 0
	s, err = Overlay(base, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.EpsConv)
}

func TestLoadKeepsExplicitZeros(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zeros.yaml")
	require.NoError(t, os.WriteFile(path, []byte("epsConv: 0\nminFeatures: 0\n"), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.EpsConv)
	assert.Equal(t, 0, s.MinFeatures)
	assert.Equal(t, 10, s.MaxIter)
}
