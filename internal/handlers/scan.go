package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/auth"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
)

// ScanConfig tunes the authenticated scan and history endpoints.
type ScanConfig struct {
	AlertThreshold int // alert when risk_score >= this
	PageSize       int
	KeepOnClear    int
}

func DefaultScanConfig() ScanConfig {
	return ScanConfig{AlertThreshold: 60, PageSize: 10, KeepOnClear: 50}
}

// ScanHandler serves scanning and history for signed-in users.
type ScanHandler struct {
	scorer Scorer
	scans  ScanStore
	alerts Alerter
	cfg    ScanConfig
	logger *slog.Logger
}

// NewScanHandler wires the handler. alerts may be nil.
func NewScanHandler(scorer Scorer, scans ScanStore, alerts Alerter, cfg ScanConfig, logger *slog.Logger) *ScanHandler {
	def := DefaultScanConfig()
	if cfg.AlertThreshold <= 0 {
		cfg.AlertThreshold = def.AlertThreshold
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = def.PageSize
	}
	if cfg.KeepOnClear <= 0 {
		cfg.KeepOnClear = def.KeepOnClear
	}
	return &ScanHandler{scorer: scorer, scans: scans, alerts: alerts, cfg: cfg, logger: logger}
}

// Scan handles POST /api/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	url, ok := decodeURL(w, r)
	if !ok {
		return
	}

	v := h.scorer.Score(r.Context(), url)
	h.logger.Info("scan completed", "user_id", user.ID, "url", url,
		"risk_score", v.RiskScore, "status", v.Status, "rule", v.Rule)

	// Inserting the row also publishes the live event via the scans trigger.
	rec := &db.ScanRecord{
		UserID:  user.ID,
		URL:     v.URL,
		Score:   v.RiskScore,
		Status:  v.Status,
		Threats: v.Threats,
		Rule:    v.Rule,
	}
	if err := h.scans.InsertScan(r.Context(), rec); err != nil {
		h.logger.Error("save scan failed", "user_id", user.ID, "err", err)
	}

	if v.RiskScore >= h.cfg.AlertThreshold && h.alerts != nil {
		if !h.alerts.Emit(notify.FromVerdict(v, user.ID, user.Email)) {
			h.logger.Warn("alert not queued", "user_id", user.ID, "url", url)
		}
	}

	writeJSON(w, v)
}

type historyPage struct {
	Items      []db.ScanRecord `json:"items"`
	Page       int             `json:"page"`
	TotalPages int             `json:"total_pages"`
	Total      int             `json:"total"`
}

// History handles GET /api/history?page=N
func (h *ScanHandler) History(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}

	total, err := h.scans.CountScans(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("count scans failed", "user_id", user.ID, "err", err)
		jsonError(w, "failed to fetch history", http.StatusInternalServerError)
		return
	}
	items, err := h.scans.ListScans(r.Context(), user.ID, h.cfg.PageSize, (page-1)*h.cfg.PageSize)
	if err != nil {
		h.logger.Error("list scans failed", "user_id", user.ID, "err", err)
		jsonError(w, "failed to fetch history", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []db.ScanRecord{}
	}

	writeJSON(w, historyPage{
		Items:      items,
		Page:       page,
		TotalPages: (total + h.cfg.PageSize - 1) / h.cfg.PageSize,
		Total:      total,
	})
}

// Stats handles GET /api/dashboard-stats
func (h *ScanHandler) Stats(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	stats, err := h.scans.GetStats(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("get stats failed", "user_id", user.ID, "err", err)
		jsonError(w, "failed to fetch stats", http.StatusInternalServerError)
		return
	}
	if stats.ByStatus == nil {
		stats.ByStatus = map[string]int{}
	}
	for _, s := range []string{classify.StatusSafe, classify.StatusLowRisk, classify.StatusSuspicious, classify.StatusHighRisk, classify.StatusCritical} {
		if _, ok := stats.ByStatus[s]; !ok {
			stats.ByStatus[s] = 0
		}
	}
	writeJSON(w, stats)
}

// ClearHistory handles POST /api/clear-history. The newest records are kept.
func (h *ScanHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	n, err := h.scans.ClearHistoryKeepLatest(r.Context(), user.ID, h.cfg.KeepOnClear)
	if err != nil {
		h.logger.Error("clear history failed", "user_id", user.ID, "err", err)
		jsonError(w, "failed to clear history", http.StatusInternalServerError)
		return
	}
	h.logger.Info("cleared old history", "user_id", user.ID, "deleted", n)
	writeJSON(w, map[string]any{"deleted": n, "kept": h.cfg.KeepOnClear})
}

// ClearAllHistory handles POST /api/clear-all-history
func (h *ScanHandler) ClearAllHistory(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	n, err := h.scans.ClearAllHistory(r.Context(), user.ID)
	if err != nil {
		h.logger.Error("clear all history failed", "user_id", user.ID, "err", err)
		jsonError(w, "failed to clear history", http.StatusInternalServerError)
		return
	}
	h.logger.Info("cleared all history", "user_id", user.ID, "deleted", n)
	writeJSON(w, map[string]any{"deleted": n})
}
