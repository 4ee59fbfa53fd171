package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/model"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/server"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/trainer"
)

func main() {
	_ = godotenv.Load()

	dataDir := flag.String("data", "data/training", "directory holding training_dataset_*.csv files")
	dataset := flag.String("dataset", "", "explicit dataset CSV (default: latest in -data, else synthesize)")
	out := flag.String("out", envOr("MODEL_PATH", "model/linkbuster_model.json"), "artifact output path")
	samples := flag.Int("samples", 200, "synthetic dataset size when no CSV exists")
	trees := flag.Int("trees", 100, "number of trees")
	depth := flag.Int("max-depth", 15, "maximum tree depth")
	minSplit := flag.Int("min-split", 5, "minimum samples to split a node")
	seed := flag.Int64("seed", 42, "random seed")
	malLists := flag.String("github-malicious", "", "comma-separated owner/repo/path URL lists labelled malicious")
	safeLists := flag.String("github-safe", "", "comma-separated owner/repo/path URL lists labelled safe")
	ghLimit := flag.Int("github-limit", 500, "max URLs taken from each GitHub list")
	flag.Parse()

	logger := server.SetupLogger(os.Getenv("LOG_LEVEL"))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	data, err := loadDataset(*dataset, *dataDir, *samples, logger)
	if err != nil {
		logger.Error("failed to load dataset", "err", err)
		os.Exit(1)
	}

	if *malLists != "" || *safeLists != "" {
		fetcher := trainer.NewGitHubFetcher(ctx, os.Getenv("GITHUB_TOKEN"), logger)
		for _, spec := range splitList(*malLists) {
			data = appendList(ctx, fetcher, data, spec, trainer.LabelMalicious, *ghLimit, logger)
		}
		for _, spec := range splitList(*safeLists) {
			data = appendList(ctx, fetcher, data, spec, trainer.LabelSafe, *ghLimit, logger)
		}
	}

	mal, safe := trainer.Counts(data)
	logger.Info("dataset ready", "urls", len(data), "malicious", mal, "safe", safe)

	cfg := trainer.DefaultConfig()
	cfg.Forest = trainer.ForestParams{Trees: *trees, MaxDepth: *depth, MinSplit: *minSplit, Seed: *seed}

	start := time.Now()
	art, rep, err := trainer.Train(data, cfg, time.Now())
	if err != nil {
		logger.Error("training failed", "err", err)
		os.Exit(1)
	}
	logger.Info("model trained", "duration", time.Since(start), "accuracy", rep.Accuracy)
	rep.Print(os.Stdout, 10)

	if err := model.WriteArtifact(*out, art); err != nil {
		logger.Error("failed to write artifact", "path", *out, "err", err)
		os.Exit(1)
	}
	logger.Info("artifact written", "path", *out, "version", art.Version)
}

// loadDataset prefers an explicit CSV, then the newest CSV in dir, and
// otherwise synthesizes one and saves it under dir for the next run.
func loadDataset(explicit, dir string, n int, logger *slog.Logger) ([]trainer.Sample, error) {
	if explicit != "" {
		logger.Info("using dataset", "path", explicit)
		return trainer.LoadCSV(explicit)
	}
	latest, err := trainer.LatestCSV(dir)
	if err != nil {
		return nil, err
	}
	if latest != "" {
		logger.Info("using existing dataset", "path", latest)
		return trainer.LoadCSV(latest)
	}

	data := trainer.Synthesize(n)
	path := filepath.Join(dir, trainer.DatasetName(time.Now()))
	if err := trainer.SaveCSV(path, data); err != nil {
		logger.Warn("could not save synthesized dataset", "path", path, "err", err)
	} else {
		logger.Info("synthesized dataset", "path", path, "urls", len(data))
	}
	return data, nil
}

func appendList(ctx context.Context, f *trainer.GitHubFetcher, data []trainer.Sample, spec string, label, limit int, logger *slog.Logger) []trainer.Sample {
	list, err := trainer.ParseGitHubList(spec, label)
	if err != nil {
		logger.Warn("skipping github list", "err", err)
		return data
	}
	got, err := f.Fetch(ctx, list, limit)
	if err != nil {
		logger.Warn("github list fetch failed", "list", spec, "err", err)
		return data
	}
	return append(data, got...)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
