package model

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogistic_PredictProba(t *testing.T) {
	m, err := NewLogistic("v1", []string{"a", "b"}, nil, []float64{1, -1}, 0)
	require.NoError(t, err)

	proba, err := m.PredictProba([]float64{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, proba[1], 1e-12)
	assert.InDelta(t, 1.0, proba[0]+proba[1], 1e-12)

	proba, err = m.PredictProba([]float64{3, 0})
	require.NoError(t, err)
	assert.InDelta(t, 1/(1+math.Exp(-3)), proba[1], 1e-12)

	cls, err := m.Predict([]float64{3, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, cls)
}

func TestLogistic_TieGoesToLowerClass(t *testing.T) {
	m, err := NewLogistic("v1", nil, []int{0, 1}, []float64{1}, 0)
	require.NoError(t, err)

	cls, err := m.Predict([]float64{0})
	require.NoError(t, err)
	assert.Equal(t, 0, cls)
}

func TestLogistic_RejectsBadRows(t *testing.T) {
	m, err := NewLogistic("v1", nil, nil, []float64{1, 2}, 0)
	require.NoError(t, err)

	_, err = m.PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.PredictProba([]float64{1, math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = m.Predict([]float64{math.Inf(1), 0})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestNewLogistic_Validation(t *testing.T) {
	_, err := NewLogistic("v1", nil, []int{0, 1, 2}, []float64{1}, 0)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = NewLogistic("v1", nil, nil, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidArtifact)

	_, err = NewLogistic("v1", []string{"a"}, nil, []float64{1, 2}, 0)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

// stump splits feature 0 at 10: left leaf mostly legit, right mostly fraud.
func stump() Tree {
	return Tree{Nodes: []Node{
		{Feature: 0, Threshold: 10, Left: 1, Right: 2},
		{Feature: -1, Value: []float64{90, 10}},
		{Feature: -1, Value: []float64{20, 80}},
	}}
}

func TestForest_AveragesTrees(t *testing.T) {
	constant := Tree{Nodes: []Node{{Feature: -1, Value: []float64{0.5, 0.5}}}}
	f, err := NewForest("v1", []string{"amount"}, nil, 0, []Tree{stump(), constant})
	require.NoError(t, err)

	proba, err := f.PredictProba([]float64{10})
	require.NoError(t, err)
	assert.InDelta(t, (0.1+0.5)/2, proba[1], 1e-12)

	proba, err = f.PredictProba([]float64{10.5})
	require.NoError(t, err)
	assert.InDelta(t, (0.8+0.5)/2, proba[1], 1e-12)

	cls, err := f.Predict([]float64{50})
	require.NoError(t, err)
	assert.Equal(t, 1, cls)

	info := f.Info()
	assert.Equal(t, KindTreeEnsemble, info.Kind)
	assert.Equal(t, 1, info.NumFeatures)
	assert.Equal(t, 1, info.PositiveClassIndex())
}

func TestNewForest_RejectsBadTrees(t *testing.T) {
	tests := map[string]Tree{
		"no nodes":        {},
		"cycle":           {Nodes: []Node{{Feature: 0, Left: 0, Right: 0}}},
		"child oob":       {Nodes: []Node{{Feature: 0, Left: 1, Right: 5}, {Feature: -1, Value: []float64{1, 0}}}},
		"feature oob":     {Nodes: []Node{{Feature: 3, Left: 1, Right: 2}, {Feature: -1, Value: []float64{1, 0}}, {Feature: -1, Value: []float64{0, 1}}}},
		"leaf width":      {Nodes: []Node{{Feature: -1, Value: []float64{1}}}},
		"negative weight": {Nodes: []Node{{Feature: -1, Value: []float64{-1, 2}}}},
		"zero weight":     {Nodes: []Node{{Feature: -1, Value: []float64{0, 0}}}},
	}
	for name, tree := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := NewForest("v1", nil, nil, 1, []Tree{tree})
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestParseClassifier(t *testing.T) {
	clf, err := ParseClassifier([]byte(`{
		"kind": "logistic",
		"version": "2024.03",
		"feature_names": ["x", "y"],
		"coefficients": [0.5, -0.25],
		"intercept": 1
	}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, clf.FeatureNames())
	assert.Equal(t, "2024.03", clf.Info().Version)

	clf, err = ParseClassifier([]byte(`{
		"kind": "tree_ensemble",
		"n_features": 1,
		"trees": [{"nodes": [{"feature": -1, "value": [3, 1]}]}]
	}`))
	require.NoError(t, err)
	assert.Nil(t, clf.FeatureNames())
	assert.True(t, strings.HasPrefix(clf.Info().Version, "sha256:"))

	proba, err := clf.PredictProba([]float64{0})
	require.NoError(t, err)
	assert.InDelta(t, 0.25, proba[1], 1e-12)
}

func TestParseClassifier_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"not json":     `nope`,
		"missing kind": `{"coefficients": [1]}`,
		"unknown kind": `{"kind": "svm"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseClassifier([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidArtifact)
		})
	}
}

func TestEncoderSet_UnmarshalJSON(t *testing.T) {
	var set EncoderSet
	err := json.Unmarshal([]byte(`{
		"Merchant Category": ["Books", "Electronics", "Travel"],
		"City": {"Ankara": 4, "Izmir": 9},
		"Terminal": [101, 2.5, true]
	}`), &set)
	require.NoError(t, err)

	assert.Equal(t, []string{"City", "Merchant Category", "Terminal"}, set.Columns())

	mc, ok := set.Table("Merchant Category")
	require.True(t, ok)
	code, ok := mc.Code("Travel")
	assert.True(t, ok)
	assert.Equal(t, 2, code)
	_, ok = mc.Code("Unknown")
	assert.False(t, ok)

	city, _ := set.Table("City")
	code, _ = city.Code("Izmir")
	assert.Equal(t, 9, code)

	term, _ := set.Table("Terminal")
	code, ok = term.Code("101")
	assert.True(t, ok)
	assert.Equal(t, 0, code)
	code, _ = term.Code("2.5")
	assert.Equal(t, 1, code)

	assert.Equal(t, map[string]int{"City": 2, "Merchant Category": 3, "Terminal": 3}, set.Sizes())
}

func TestEncoderSet_RejectsScalars(t *testing.T) {
	var set EncoderSet
	err := json.Unmarshal([]byte(`{"City": "Ankara"}`), &set)
	assert.Error(t, err)
}

func TestNilEncoderSet(t *testing.T) {
	var set *EncoderSet
	_, ok := set.Table("x")
	assert.False(t, ok)
	assert.Empty(t, set.Columns())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	modelPath := filepath.Join(dir, "model.json")
	encPath := filepath.Join(dir, "encoders.json")
	require.NoError(t, os.WriteFile(modelPath, []byte(`{"kind":"logistic","coefficients":[1]}`), 0o600))
	require.NoError(t, os.WriteFile(encPath, []byte(`{"City":["Ankara"]}`), 0o600))

	a, err := Load(modelPath, encPath)
	require.NoError(t, err)
	assert.Equal(t, KindLogistic, a.Classifier.Info().Kind)
	assert.Equal(t, []string{"City"}, a.Encoders.Columns())

	_, err = Load(filepath.Join(dir, "missing.json"), encPath)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(encPath, []byte(`[1,2]`), 0o600))
	_, err = Load(modelPath, encPath)
	assert.ErrorIs(t, err, ErrInvalidArtifact)
}

func TestBundledArtifactsLoad(t *testing.T) {
	a, err := Load("../../models/final_fraud_model.json", "../../models/encoders_dict.json")
	require.NoError(t, err)
	assert.Len(t, a.Classifier.FeatureNames(), a.Classifier.Info().NumFeatures)
	for _, col := range a.Encoders.Columns() {
		assert.Contains(t, a.Classifier.FeatureNames(), col)
	}
}
