package model

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// onnxBackend runs a scikit-learn classifier exported to ONNX. The tensors
// are shared across calls, so Predict holds mu for the whole run.
type onnxBackend struct {
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	label   *ort.Tensor[int64]
	proba   *ort.Tensor[float32]
}

func loadONNX(artifactPath string, spec *ONNXSpec, numFeatures, numClasses int) (*onnxBackend, error) {
	libPath := strings.TrimSpace(os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"))
	if libPath == "" {
		return nil, errors.New("onnxruntime shared library not found; set ONNXRUNTIME_SHARED_LIBRARY_PATH")
	}
	ort.SetSharedLibraryPath(libPath)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnxruntime: %w", err)
		}
	}

	graph := spec.Path
	if !filepath.IsAbs(graph) {
		graph = filepath.Join(filepath.Dir(artifactPath), graph)
	}
	if _, err := os.Stat(graph); err != nil {
		return nil, fmt.Errorf("onnx graph missing at %s: %w", graph, err)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numFeatures)))
	if err != nil {
		return nil, fmt.Errorf("allocate input tensor: %w", err)
	}
	label, err := ort.NewEmptyTensor[int64](ort.NewShape(1))
	if err != nil {
		input.Destroy()
		return nil, fmt.Errorf("allocate label tensor: %w", err)
	}

	b := &onnxBackend{input: input, label: label}
	outputNames := []string{spec.LabelOutput}
	outputs := []ort.Value{label}
	if spec.ProbabilityOutput != "" {
		proba, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(numClasses)))
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("allocate probability tensor: %w", err)
		}
		b.proba = proba
		outputNames = append(outputNames, spec.ProbabilityOutput)
		outputs = append(outputs, proba)
	}

	session, err := ort.NewAdvancedSession(
		graph,
		[]string{spec.Input},
		outputNames,
		[]ort.Value{input},
		outputs,
		nil,
	)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("create onnx session: %w", err)
	}
	b.session = session
	return b, nil
}

func (b *onnxBackend) Predict(x []float64) (int, []float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	in := b.input.GetData()
	for i := range in {
		in[i] = 0
		if i < len(x) {
			in[i] = float32(x[i])
		}
	}
	if err := b.session.Run(); err != nil {
		return 0, nil, fmt.Errorf("onnx run: %w", err)
	}

	label := int(b.label.GetData()[0])
	if b.proba == nil {
		return label, nil, nil
	}
	raw := b.proba.GetData()
	proba := make([]float64, len(raw))
	for i, p := range raw {
		proba[i] = float64(p)
	}
	return label, proba, nil
}

func (b *onnxBackend) Close() error {
	var errs []error
	if b.session != nil {
		errs = append(errs, b.session.Destroy())
	}
	if b.input != nil {
		errs = append(errs, b.input.Destroy())
	}
	if b.label != nil {
		errs = append(errs, b.label.Destroy())
	}
	if b.proba != nil {
		errs = append(errs, b.proba.Destroy())
	}
	return errors.Join(errs...)
}
