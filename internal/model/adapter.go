package model

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

// defaultConfidence is reported when the model exposes no class
// probabilities.
const defaultConfidence = 50.0

// Prediction is the classifier's binary verdict for one URL.
type Prediction struct {
	IsMalicious bool    `json:"is_malicious"`
	Confidence  float64 `json:"confidence"`
}

type backend interface {
	// Predict returns the predicted class index and, when the model has
	// them, per-class probabilities.
	Predict(x []float64) (int, []float64, error)
	Close() error
}

type loaded struct {
	artifact  *Artifact
	columns   []int
	malicious int
	backend   backend
}

// Adapter lazily loads one artifact on first use and keeps it for the life of
// the process. A failed load is remembered; every later call reports it.
type Adapter struct {
	path   string
	logger *slog.Logger

	once      sync.Once
	closeOnce sync.Once
	model     *loaded
	err       error
	loadFn    func(path string) (*loaded, error)
}

// NewAdapter returns an adapter for the artifact at path. Nothing is read
// until the first prediction.
func NewAdapter(path string, logger *slog.Logger) *Adapter {
	return &Adapter{path: path, logger: logger, loadFn: loadArtifact}
}

func (a *Adapter) load() (*loaded, error) {
	a.once.Do(func() {
		m, err := a.loadFn(a.path)
		if err != nil {
			a.err = fmt.Errorf("%w: %w", ErrUnavailable, err)
			a.logger.Warn("classifier unavailable", "path", a.path, "err", err)
			return
		}
		a.model = m
		a.logger.Info("classifier loaded",
			"path", a.path,
			"format", m.artifact.Format,
			"version", m.artifact.Version,
		)
	})
	return a.model, a.err
}

// Available loads the artifact if needed and reports whether it is usable.
func (a *Adapter) Available() error {
	_, err := a.load()
	return err
}

// Artifact returns the loaded artifact, or nil if loading failed.
func (a *Adapter) Artifact() *Artifact {
	m, err := a.load()
	if err != nil {
		return nil
	}
	return m.artifact
}

// Predict classifies one URL.
func (a *Adapter) Predict(rawURL string) (Prediction, error) {
	m, err := a.load()
	if err != nil {
		return Prediction{}, err
	}
	return m.predict(rawURL)
}

// PredictBatch classifies urls in order. Any failure fails the batch.
func (a *Adapter) PredictBatch(urls []string) ([]Prediction, error) {
	m, err := a.load()
	if err != nil {
		return nil, err
	}
	out := make([]Prediction, len(urls))
	for i, u := range urls {
		p, err := m.predict(u)
		if err != nil {
			return nil, fmt.Errorf("predict %d: %w", i, err)
		}
		out[i] = p
	}
	return out, nil
}

// Close releases backend resources. It waits for an in-flight first load;
// an adapter closed before it ever loaded reports ErrUnavailable afterwards.
func (a *Adapter) Close() error {
	a.once.Do(func() {
		a.err = fmt.Errorf("%w: adapter closed", ErrUnavailable)
	})
	var err error
	a.closeOnce.Do(func() {
		if a.model != nil {
			err = a.model.backend.Close()
		}
	})
	return err
}

func (m *loaded) predict(rawURL string) (Prediction, error) {
	v := features.Extract(rawURL)
	x := make([]float64, len(m.columns))
	for i, col := range m.columns {
		x[i] = v[col]
	}

	label, proba, err := m.backend.Predict(x)
	if err != nil {
		return Prediction{}, err
	}
	p := Prediction{IsMalicious: label == m.malicious, Confidence: defaultConfidence}
	if label >= 0 && label < len(proba) {
		p.Confidence = proba[label] * 100
	}
	return p, nil
}

func loadArtifact(path string) (*loaded, error) {
	art, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	cols, err := art.columns()
	if err != nil {
		return nil, err
	}

	m := &loaded{artifact: art, columns: cols, malicious: art.maliciousClass()}
	switch art.Format {
	case FormatForest:
		m.backend = &forestBackend{forest: art.Forest, numClasses: len(art.Classes)}
	case FormatONNX:
		b, err := loadONNX(path, art.ONNX, len(cols), len(art.Classes))
		if err != nil {
			return nil, err
		}
		m.backend = b
	}
	return m, nil
}
