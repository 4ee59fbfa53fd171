// Package trainer builds labelled URL datasets and fits the random forest
// the classifier adapter loads.
package trainer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Labels used in datasets and artifacts.
const (
	LabelSafe      = 0
	LabelMalicious = 1
)

// Sample is one labelled URL.
type Sample struct {
	URL   string
	Label int
}

var sampleMalicious = []string{
	"http://paypal-verify-security.xyz/login.php",
	"https://bank-account-secure.gq/update",
	"http://185.62.58.45/login/microsoft/authenticate",
	"https://facebook-password-reset.tk/confirm",
	"http://netflix-payment-update.cf/billing",
	"https://apple-id-verify-account.ga/confirm",
	"http://urgent-security-alert.top/verify",
	"https://google-account-recovery.club/login",
	"http://win-free-iphone.ml/claim",
	"https://account-suspended-alert.xyz/reactivate",
}

var sampleSafe = []string{
	"https://www.google.com",
	"https://github.com/python/cpython",
	"https://stackoverflow.com/questions/tagged/python",
	"https://www.wikipedia.org/wiki/Machine_learning",
	"https://www.nytimes.com/section/technology",
	"https://www.youtube.com/watch?v=educational",
	"https://www.amazon.com/gp/bestsellers",
	"https://www.facebook.com/marketplace",
	"https://www.instagram.com/explore/tags/nature",
	"https://www.linkedin.com/learning/machine-learning",
}

// Synthesize builds a balanced dataset of n samples by cycling the built-in
// URL lists, malicious first.
func Synthesize(n int) []Sample {
	per := n / 2
	out := make([]Sample, 0, per*2)
	for i := 0; i < per; i++ {
		out = append(out, Sample{URL: sampleMalicious[i%len(sampleMalicious)], Label: LabelMalicious})
	}
	for i := 0; i < per; i++ {
		out = append(out, Sample{URL: sampleSafe[i%len(sampleSafe)], Label: LabelSafe})
	}
	return out
}

// DatasetName is the file name a dataset saved on day t gets.
func DatasetName(t time.Time) string {
	return "training_dataset_" + t.Format("20060102") + ".csv"
}

// ReadCSV parses a url,label dataset. The header row is optional.
func ReadCSV(r io.Reader) ([]Sample, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	var out []Sample
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
		line++
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: want url,label", line)
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(rec[0]), "url") {
			continue
		}
		label, err := strconv.Atoi(strings.TrimSpace(rec[1]))
		if err != nil || (label != LabelSafe && label != LabelMalicious) {
			return nil, fmt.Errorf("line %d: bad label %q", line, rec[1])
		}
		out = append(out, Sample{URL: rec[0], Label: label})
	}
	return out, nil
}

// LoadCSV reads the dataset at path.
func LoadCSV(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// SaveCSV writes samples with a url,label header.
func SaveCSV(path string, samples []Sample) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := csv.NewWriter(f)
	_ = w.Write([]string{"url", "label"})
	for _, s := range samples {
		_ = w.Write([]string{s.URL, strconv.Itoa(s.Label)})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("write dataset: %w", err)
	}
	return f.Close()
}

// LatestCSV returns the lexically last .csv file in dir, or "" if none.
func LatestCSV(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", nil
	}
	sort.Strings(names)
	return filepath.Join(dir, names[len(names)-1]), nil
}

// Counts returns the number of malicious and safe samples.
func Counts(samples []Sample) (malicious, safe int) {
	for _, s := range samples {
		if s.Label == LabelMalicious {
			malicious++
		} else {
			safe++
		}
	}
	return malicious, safe
}
