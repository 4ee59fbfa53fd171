package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
)

// Scorer produces verdicts. *classify.Pipeline satisfies it.
type Scorer interface {
	Score(ctx context.Context, url string) *classify.Verdict
	ScoreBatch(ctx context.Context, urls []string) []*classify.Verdict
}

// ScanStore is the scan history persistence. *db.DB satisfies it.
type ScanStore interface {
	InsertScan(ctx context.Context, s *db.ScanRecord) error
	ListScans(ctx context.Context, userID, limit, offset int) ([]db.ScanRecord, error)
	CountScans(ctx context.Context, userID int) (int, error)
	GetStats(ctx context.Context, userID int) (*db.Stats, error)
	ClearHistoryKeepLatest(ctx context.Context, userID, keep int) (int64, error)
	ClearAllHistory(ctx context.Context, userID int) (int64, error)
}

// Alerter queues alerts without blocking. *notify.Emitter satisfies it.
type Alerter interface {
	Emit(a *notify.Alert) bool
}

var _ Scorer = (*classify.Pipeline)(nil)

const maxBodyBytes = 1 << 20

type urlRequest struct {
	URL string `json:"url"`
}

// decodeURL reads {"url": ...} and writes a 400 when it is missing.
func decodeURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req urlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return "", false
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		jsonError(w, "No URL provided", http.StatusBadRequest)
		return "", false
	}
	return url, true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
