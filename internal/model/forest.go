package model

import (
	"fmt"
	"math"
)

// Node is one decision-tree node. Leaves have Feature < 0. Internal nodes
// send x[Feature] <= Threshold to Left and everything else to Right.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// Tree is a fitted decision tree; Nodes[0] is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Forest averages the leaf class distributions of its trees.
type Forest struct {
	version      string
	featureNames []string
	classes      []int
	numFeatures  int
	trees        []Tree
}

type forestArtifact struct {
	Kind         string   `json:"kind"`
	Version      string   `json:"version"`
	FeatureNames []string `json:"feature_names"`
	Classes      []int    `json:"classes"`
	NumFeatures  int      `json:"n_features"`
	Trees        []Tree   `json:"trees"`
}

// NewForest validates and builds a tree ensemble. Leaf values may be class
// counts or fractions and are normalized per leaf.
func NewForest(version string, featureNames []string, classes []int, numFeatures int, trees []Tree) (*Forest, error) {
	if len(classes) == 0 {
		classes = []int{0, 1}
	}
	if numFeatures == 0 {
		numFeatures = len(featureNames)
	}
	if numFeatures <= 0 {
		return nil, fmt.Errorf("%w: tree ensemble needs n_features or feature_names", ErrInvalidArtifact)
	}
	if featureNames != nil && len(featureNames) != numFeatures {
		return nil, fmt.Errorf("%w: %d feature names for %d features", ErrInvalidArtifact, len(featureNames), numFeatures)
	}
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: tree ensemble has no trees", ErrInvalidArtifact)
	}

	normalized := make([]Tree, len(trees))
	for t, tree := range trees {
		nodes, err := normalizeTree(tree.Nodes, len(classes), numFeatures)
		if err != nil {
			return nil, fmt.Errorf("%w: tree %d: %v", ErrInvalidArtifact, t, err)
		}
		normalized[t] = Tree{Nodes: nodes}
	}

	return &Forest{
		version:      version,
		featureNames: copyStrings(featureNames),
		classes:      copyInts(classes),
		numFeatures:  numFeatures,
		trees:        normalized,
	}, nil
}

// normalizeTree copies the nodes, checks their links and scales leaf values
// to sum to one. Children must follow their parent so traversal terminates.
func normalizeTree(nodes []Node, numClasses, numFeatures int) ([]Node, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes")
	}
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		if n.Feature < 0 {
			if len(n.Value) != numClasses {
				return nil, fmt.Errorf("leaf %d has %d values for %d classes", i, len(n.Value), numClasses)
			}
			var sum float64
			for _, v := range n.Value {
				if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
					return nil, fmt.Errorf("leaf %d has invalid value %v", i, v)
				}
				sum += v
			}
			if sum == 0 {
				return nil, fmt.Errorf("leaf %d has no weight", i)
			}
			value := make([]float64, numClasses)
			for c, v := range n.Value {
				value[c] = v / sum
			}
			out[i] = Node{Feature: -1, Left: -1, Right: -1, Value: value}
			continue
		}
		if n.Feature >= numFeatures {
			return nil, fmt.Errorf("node %d splits on feature %d of %d", i, n.Feature, numFeatures)
		}
		if n.Left <= i || n.Left >= len(nodes) || n.Right <= i || n.Right >= len(nodes) {
			return nil, fmt.Errorf("node %d has invalid children %d/%d", i, n.Left, n.Right)
		}
		out[i] = Node{Feature: n.Feature, Threshold: n.Threshold, Left: n.Left, Right: n.Right}
	}
	return out, nil
}

func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if err := checkRow(x, f.numFeatures); err != nil {
		return nil, err
	}
	proba := make([]float64, len(f.classes))
	for _, tree := range f.trees {
		leaf := tree.leaf(x)
		for c, v := range leaf.Value {
			proba[c] += v
		}
	}
	n := float64(len(f.trees))
	for c := range proba {
		proba[c] /= n
	}
	return proba, nil
}

func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return f.classes[argmax(proba)], nil
}

func (t Tree) leaf(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Feature < 0 {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (f *Forest) FeatureNames() []string { return copyStrings(f.featureNames) }

func (f *Forest) Info() Info {
	return Info{
		Kind:         KindTreeEnsemble,
		Version:      f.version,
		Classes:      copyInts(f.classes),
		NumFeatures:  f.numFeatures,
		FeatureNames: copyStrings(f.featureNames),
	}
}
