package trainer

import (
	"errors"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/model"
)

// Config controls a training run.
type Config struct {
	Forest       ForestParams
	TestFraction float64
	Version      string
}

// DefaultConfig matches the production model: 100 trees of depth at most
// 15, min split 5, seed 42, 20% held out.
func DefaultConfig() Config {
	return Config{
		Forest:       ForestParams{Trees: 100, MaxDepth: 15, MinSplit: 5, Seed: 42},
		TestFraction: 0.2,
	}
}

// ClassReport is precision/recall/F1 for one class.
type ClassReport struct {
	Class     string
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report summarises a training run.
type Report struct {
	TrainSize  int
	TestSize   int
	Accuracy   float64
	Classes    []ClassReport
	Importance []FeatureImportance
}

// FeatureImportance pairs a feature name with its share of Gini decrease.
type FeatureImportance struct {
	Feature    string
	Importance float64
}

var classNames = []string{"safe", model.ClassMalicious}

// Train fits a forest on samples and returns the artifact plus its held-out
// evaluation.
func Train(samples []Sample, cfg Config, now time.Time) (*model.Artifact, *Report, error) {
	if len(samples) == 0 {
		return nil, nil, errors.New("empty dataset")
	}
	mal, safe := Counts(samples)
	if mal == 0 || safe == 0 {
		return nil, nil, fmt.Errorf("dataset needs both classes, have %d malicious and %d safe", mal, safe)
	}
	if cfg.Forest.Trees <= 0 || cfg.Forest.MaxDepth <= 0 {
		return nil, nil, fmt.Errorf("invalid forest params %+v", cfg.Forest)
	}

	x := make([][]float64, len(samples))
	y := make([]int, len(samples))
	for i, s := range samples {
		if s.Label != LabelSafe && s.Label != LabelMalicious {
			return nil, nil, fmt.Errorf("sample %d: bad label %d", i, s.Label)
		}
		x[i] = features.Extract(s.URL).Slice()
		y[i] = s.Label
	}

	trainIdx, testIdx := stratifiedSplit(y, cfg.TestFraction, cfg.Forest.Seed)
	forest, importance := fitForest(pick(x, trainIdx), pickInt(y, trainIdx), len(classNames), cfg.Forest)

	version := cfg.Version
	if version == "" {
		version = now.UTC().Format("20060102T150405Z")
	}
	art := &model.Artifact{
		Format:         model.FormatForest,
		Version:        version,
		FeatureVersion: features.Version,
		Features:       append([]string(nil), features.Names[:]...),
		Classes:        append([]string(nil), classNames...),
		TrainedAt:      now.UTC(),
		Forest:         forest,
	}

	rep := evaluate(forest, pick(x, testIdx), pickInt(y, testIdx))
	rep.TrainSize, rep.TestSize = len(trainIdx), len(testIdx)
	for f, v := range importance {
		rep.Importance = append(rep.Importance, FeatureImportance{Feature: features.Names[f], Importance: v})
	}
	sort.SliceStable(rep.Importance, func(i, j int) bool {
		return rep.Importance[i].Importance > rep.Importance[j].Importance
	})

	m := &model.Metrics{
		Accuracy:          rep.Accuracy,
		TrainSize:         rep.TrainSize,
		TestSize:          rep.TestSize,
		FeatureImportance: make(map[string]float64, len(rep.Importance)),
	}
	if len(rep.Classes) > LabelMalicious {
		c := rep.Classes[LabelMalicious]
		m.Precision, m.Recall, m.F1 = c.Precision, c.Recall, c.F1
	}
	for _, fi := range rep.Importance {
		m.FeatureImportance[fi.Feature] = fi.Importance
	}
	art.Metrics = m
	return art, rep, nil
}

// stratifiedSplit holds out fraction of each class, shuffled with seed.
// Every class with at least two samples keeps one on each side.
func stratifiedSplit(y []int, fraction float64, seed int64) (train, test []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, c := range y {
		byClass[c] = append(byClass[c], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		n := int(float64(len(idx))*fraction + 0.5)
		if len(idx) >= 2 {
			n = min(max(n, 1), len(idx)-1)
		} else {
			n = 0
		}
		test = append(test, idx[:n]...)
		train = append(train, idx[n:]...)
	}
	sort.Ints(train)
	sort.Ints(test)
	return train, test
}

func evaluate(forest *model.Forest, x [][]float64, y []int) *Report {
	rep := &Report{}
	k := len(classNames)
	confusion := make([][]int, k)
	for i := range confusion {
		confusion[i] = make([]int, k)
	}
	correct := 0
	for i := range x {
		proba, err := forest.Proba(x[i], k)
		if err != nil {
			continue
		}
		pred := 0
		for c := 1; c < k; c++ {
			if proba[c] > proba[pred] {
				pred = c
			}
		}
		confusion[y[i]][pred]++
		if pred == y[i] {
			correct++
		}
	}
	if len(x) > 0 {
		rep.Accuracy = float64(correct) / float64(len(x))
	}

	for c := 0; c < k; c++ {
		var tp, fp, fn int
		tp = confusion[c][c]
		for o := 0; o < k; o++ {
			if o != c {
				fp += confusion[o][c]
				fn += confusion[c][o]
			}
		}
		cr := ClassReport{Class: classNames[c], Support: tp + fn}
		if tp+fp > 0 {
			cr.Precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			cr.Recall = float64(tp) / float64(tp+fn)
		}
		if cr.Precision+cr.Recall > 0 {
			cr.F1 = 2 * cr.Precision * cr.Recall / (cr.Precision + cr.Recall)
		}
		rep.Classes = append(rep.Classes, cr)
	}
	return rep
}

// Print writes a human-readable summary with the top n features.
func (r *Report) Print(w io.Writer, top int) {
	fmt.Fprintf(w, "train=%d test=%d accuracy=%.2f%%\n\n", r.TrainSize, r.TestSize, r.Accuracy*100)
	fmt.Fprintf(w, "%-10s %9s %9s %9s %8s\n", "class", "precision", "recall", "f1", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(w, "%-10s %9.2f %9.2f %9.2f %8d\n", c.Class, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintln(w, "\nfeature importance:")
	for i, fi := range r.Importance {
		if i >= top {
			break
		}
		fmt.Fprintf(w, "  %-26s %.4f\n", fi.Feature, fi.Importance)
	}
}

func pick(x [][]float64, idx []int) [][]float64 {
	out := make([][]float64, len(idx))
	for i, j := range idx {
		out[i] = x[j]
	}
	return out
}

func pickInt(y []int, idx []int) []int {
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = y[j]
	}
	return out
}
