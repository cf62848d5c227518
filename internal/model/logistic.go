package model

import (
	"fmt"
	"math"
)

// Logistic is a binary logistic regression.
type Logistic struct {
	version      string
	featureNames []string
	classes      []int
	coef         []float64
	intercept    float64
}

type logisticArtifact struct {
	Kind         string    `json:"kind"`
	Version      string    `json:"version"`
	FeatureNames []string  `json:"feature_names"`
	Classes      []int     `json:"classes"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// NewLogistic builds a logistic model. featureNames may be nil; when set it
// must match the coefficient count.
func NewLogistic(version string, featureNames []string, classes []int, coef []float64, intercept float64) (*Logistic, error) {
	if len(classes) == 0 {
		classes = []int{0, 1}
	}
	if len(classes) != 2 {
		return nil, fmt.Errorf("%w: logistic model must have 2 classes, got %d", ErrInvalidArtifact, len(classes))
	}
	if len(coef) == 0 {
		return nil, fmt.Errorf("%w: logistic model has no coefficients", ErrInvalidArtifact)
	}
	if featureNames != nil && len(featureNames) != len(coef) {
		return nil, fmt.Errorf("%w: %d feature names for %d coefficients", ErrInvalidArtifact, len(featureNames), len(coef))
	}
	for i, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("%w: coefficient %d is not finite", ErrInvalidArtifact, i)
		}
	}
	return &Logistic{
		version:      version,
		featureNames: copyStrings(featureNames),
		classes:      copyInts(classes),
		coef:         append([]float64(nil), coef...),
		intercept:    intercept,
	}, nil
}

func (m *Logistic) PredictProba(x []float64) ([]float64, error) {
	if err := checkRow(x, len(m.coef)); err != nil {
		return nil, err
	}
	z := m.intercept
	for i, w := range m.coef {
		z += w * x[i]
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

func (m *Logistic) Predict(x []float64) (int, error) {
	proba, err := m.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return m.classes[argmax(proba)], nil
}

func (m *Logistic) FeatureNames() []string { return copyStrings(m.featureNames) }

func (m *Logistic) Info() Info {
	return Info{
		Kind:         KindLogistic,
		Version:      m.version,
		Classes:      copyInts(m.classes),
		NumFeatures:  len(m.coef),
		FeatureNames: copyStrings(m.featureNames),
	}
}
