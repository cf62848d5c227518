package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
)

// Artifacts is the read-only model context shared by every request.
type Artifacts struct {
	Classifier Classifier
	Encoders   *EncoderSet
}

// Load reads the classifier and encoder artifacts.
func Load(modelPath, encodersPath string) (*Artifacts, error) {
	clf, err := LoadClassifier(modelPath)
	if err != nil {
		return nil, err
	}
	enc, err := LoadEncoders(encodersPath)
	if err != nil {
		return nil, err
	}
	return &Artifacts{Classifier: clf, Encoders: enc}, nil
}

// LoadClassifier reads a classifier artifact from disk. An artifact without
// a version is versioned by its content digest.
func LoadClassifier(path string) (Classifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", path, err)
	}
	clf, err := ParseClassifier(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return clf, nil
}

// ParseClassifier decodes a classifier artifact.
func ParseClassifier(data []byte) (Classifier, error) {
	var head struct {
		Kind    string `json:"kind"`
		Version string `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	version := head.Version
	if version == "" {
		sum := sha256.Sum256(data)
		version = "sha256:" + hex.EncodeToString(sum[:6])
	}

	switch head.Kind {
	case KindLogistic:
		var a logisticArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		return NewLogistic(version, a.FeatureNames, a.Classes, a.Coefficients, a.Intercept)
	case KindTreeEnsemble:
		var a forestArtifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
		}
		return NewForest(version, a.FeatureNames, a.Classes, a.NumFeatures, a.Trees)
	case "":
		return nil, fmt.Errorf("%w: missing kind", ErrInvalidArtifact)
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidArtifact, head.Kind)
	}
}

// LoadEncoders reads the encoder artifact from disk.
func LoadEncoders(path string) (*EncoderSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read encoders %s: %w", path, err)
	}
	var set EncoderSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to load encoders %s: %w: %v", path, ErrInvalidArtifact, err)
	}
	return &set, nil
}
