// Package model loads trained URL classifiers and runs them against the
// feature vectors produced by package features.
package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

// Artifact formats.
const (
	FormatForest = "forest"
	FormatONNX   = "onnx"
)

// ClassMalicious is the label the adapter reports as malicious.
const ClassMalicious = "malicious"

var (
	// ErrUnavailable wraps every load failure: missing, unreadable or corrupt
	// artifacts. Callers fall back to heuristics.
	ErrUnavailable = errors.New("classifier unavailable")
	// ErrIncompatible marks an artifact trained against a different feature
	// layout.
	ErrIncompatible = errors.New("incompatible model artifact")
)

// Artifact is the serialized classifier plus the feature ordering it was
// trained against. Artifacts are immutable once written.
type Artifact struct {
	Format         string    `json:"format"`
	Version        string    `json:"version"`
	FeatureVersion string    `json:"feature_version"`
	Features       []string  `json:"features"`
	Classes        []string  `json:"classes"`
	TrainedAt      time.Time `json:"trained_at"`
	Metrics        *Metrics  `json:"metrics,omitempty"`
	Forest         *Forest   `json:"forest,omitempty"`
	ONNX           *ONNXSpec `json:"onnx,omitempty"`
}

// Metrics summarises the held-out evaluation recorded at training time.
type Metrics struct {
	Accuracy          float64            `json:"accuracy"`
	Precision         float64            `json:"precision"`
	Recall            float64            `json:"recall"`
	F1                float64            `json:"f1"`
	TrainSize         int                `json:"train_size"`
	TestSize          int                `json:"test_size"`
	FeatureImportance map[string]float64 `json:"feature_importance,omitempty"`
}

// ONNXSpec points at an ONNX graph stored next to the artifact.
type ONNXSpec struct {
	Path              string `json:"path"`
	Input             string `json:"input"`
	LabelOutput       string `json:"label_output"`
	ProbabilityOutput string `json:"probability_output,omitempty"`
}

// ReadArtifact decodes and validates the artifact at path.
func ReadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", path, err)
	}
	if _, err := a.columns(); err != nil {
		return nil, err
	}
	return &a, nil
}

// WriteArtifact replaces path atomically: the artifact is written to a temp
// file in the same directory and renamed over the target.
func WriteArtifact(path string, a *Artifact) error {
	if _, err := a.columns(); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".artifact-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp artifact: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp artifact: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("activate artifact: %w", err)
	}
	return nil
}

// columns validates the artifact against the extractor and returns the
// vector columns fed to the backend. The artifact's feature ordering must be
// exactly features.Names; reordered or partial orderings are rejected.
func (a *Artifact) columns() ([]int, error) {
	switch a.Format {
	case FormatForest:
		if a.Forest == nil || len(a.Forest.Trees) == 0 {
			return nil, fmt.Errorf("%w: forest artifact has no trees", ErrIncompatible)
		}
	case FormatONNX:
		if a.ONNX == nil || a.ONNX.Path == "" {
			return nil, fmt.Errorf("%w: onnx artifact has no graph path", ErrIncompatible)
		}
	default:
		return nil, fmt.Errorf("%w: unknown format %q", ErrIncompatible, a.Format)
	}
	if a.FeatureVersion != features.Version {
		return nil, fmt.Errorf("%w: feature version %q, extractor is %q",
			ErrIncompatible, a.FeatureVersion, features.Version)
	}
	if len(a.Features) == 0 {
		return nil, fmt.Errorf("%w: no feature ordering", ErrIncompatible)
	}
	if len(a.Classes) < 2 {
		return nil, fmt.Errorf("%w: need at least two classes", ErrIncompatible)
	}

	if len(a.Features) != features.NumFeatures {
		return nil, fmt.Errorf("%w: %d features, extractor has %d",
			ErrIncompatible, len(a.Features), features.NumFeatures)
	}
	cols := make([]int, features.NumFeatures)
	for i, name := range a.Features {
		if name != features.Names[i] {
			return nil, fmt.Errorf("%w: feature %d is %q, want %q",
				ErrIncompatible, i, name, features.Names[i])
		}
		cols[i] = i
	}
	return cols, nil
}

// maliciousClass returns the index of the malicious label, defaulting to 1.
func (a *Artifact) maliciousClass() int {
	for i, c := range a.Classes {
		if c == ClassMalicious {
			return i
		}
	}
	return 1
}
