// Package model loads the fitted fraud classifier and its label encoders.
//
// Artifacts are JSON documents exported from the training pipeline. Two
// classifier kinds are understood: a binary logistic regression and a
// soft-voting ensemble of binary decision trees. Both follow scikit-learn
// semantics: Predict is the argmax of PredictProba, ties resolving to the
// lower class index.
package model

import (
	"errors"
	"fmt"
	"math"
)

// Classifier kinds.
const (
	KindLogistic     = "logistic"
	KindTreeEnsemble = "tree_ensemble"
)

var (
	// ErrInvalidArtifact is returned when an artifact cannot be loaded.
	ErrInvalidArtifact = errors.New("invalid model artifact")

	// ErrInvalidInput is returned when a row does not fit the model.
	ErrInvalidInput = errors.New("invalid model input")
)

// Classifier is a fitted binary classifier over a single numeric row.
type Classifier interface {
	Predict(x []float64) (int, error)
	PredictProba(x []float64) ([]float64, error)
	// FeatureNames returns the fitted column order, or nil when the model
	// was fitted without names.
	FeatureNames() []string
	Info() Info
}

// Info describes a loaded classifier.
type Info struct {
	Kind         string   `json:"kind"`
	Version      string   `json:"version"`
	Classes      []int    `json:"classes"`
	NumFeatures  int      `json:"numFeatures"`
	FeatureNames []string `json:"featureNames,omitempty"`
}

// PositiveClassIndex returns the column of PredictProba holding class 1.
// Models whose classes do not include 1 report their last column.
func (i Info) PositiveClassIndex() int {
	for idx, c := range i.Classes {
		if c == 1 {
			return idx
		}
	}
	return len(i.Classes) - 1
}

func checkRow(x []float64, width int) error {
	if len(x) != width {
		return fmt.Errorf("%w: expected %d features, got %d", ErrInvalidInput, width, len(x))
	}
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: feature %d is not finite", ErrInvalidInput, i)
		}
	}
	return nil
}

func argmax(p []float64) int {
	best := 0
	for i := 1; i < len(p); i++ {
		if p[i] > p[best] {
			best = i
		}
	}
	return best
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

func copyInts(s []int) []int {
	out := make([]int, len(s))
	copy(out, s)
	return out
}
