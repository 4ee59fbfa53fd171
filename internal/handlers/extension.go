package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
)

const (
	ExtensionVersion = "2.0"
	MaxBatchURLs     = 50
	batchThreats     = 2
)

// Broadcaster pushes a message to every connected extension. *ws.Manager satisfies it.
type Broadcaster interface {
	Broadcast(data any)
}

// Badge returns the extension toolbar badge for a status.
func Badge(status string) (text, color string) {
	switch status {
	case classify.StatusCritical:
		return "!!", "#dc3545"
	case classify.StatusHighRisk:
		return "!", "#ff9800"
	case classify.StatusSuspicious:
		return "?", "#ffc107"
	default:
		return "✓", "#28a745"
	}
}

// QuickScanResponse is the extension's view of a verdict.
type QuickScanResponse struct {
	URL        string   `json:"url"`
	RiskScore  int      `json:"risk_score"`
	Status     string   `json:"status"`
	Threats    []string `json:"threats"`
	Insights   []string `json:"insights"`
	Confidence float64  `json:"confidence"`
	BadgeText  string   `json:"badge_text"`
	BadgeColor string   `json:"badge_color"`
	Timestamp  string   `json:"timestamp"`
}

func NewQuickScanResponse(v *classify.Verdict) QuickScanResponse {
	text, color := Badge(v.Status)
	ts := v.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return QuickScanResponse{
		URL:        v.URL,
		RiskScore:  v.RiskScore,
		Status:     v.Status,
		Threats:    v.Threats,
		Insights:   v.Insights,
		Confidence: v.Confidence,
		BadgeText:  text,
		BadgeColor: color,
		Timestamp:  ts.Format(time.RFC3339),
	}
}

type batchResult struct {
	URL       string   `json:"url"`
	RiskScore int      `json:"risk_score"`
	Status    string   `json:"status"`
	Threats   []string `json:"threats"`
}

func newBatchResult(v *classify.Verdict) batchResult {
	threats := v.Threats
	if len(threats) > batchThreats {
		threats = threats[:batchThreats]
	}
	return batchResult{URL: v.URL, RiskScore: v.RiskScore, Status: v.Status, Threats: threats}
}

// ExtensionHandler serves the public browser extension API.
type ExtensionHandler struct {
	scorer    Scorer
	alerts    Alerter
	broadcast Broadcaster
	recipient string
	logger    *slog.Logger
}

// NewExtensionHandler wires the handler. alerts and broadcast may be nil.
func NewExtensionHandler(scorer Scorer, alerts Alerter, broadcast Broadcaster, recipient string, logger *slog.Logger) *ExtensionHandler {
	return &ExtensionHandler{scorer: scorer, alerts: alerts, broadcast: broadcast, recipient: recipient, logger: logger}
}

// QuickScan handles POST /api/quick-scan
func (h *ExtensionHandler) QuickScan(w http.ResponseWriter, r *http.Request) {
	url, ok := decodeURL(w, r)
	if !ok {
		return
	}
	v := h.scorer.Score(r.Context(), url)
	h.logger.Info("extension scan", "url", url, "status", v.Status, "risk_score", v.RiskScore)
	writeJSON(w, NewQuickScanResponse(v))
}

// BatchScan handles POST /api/batch-scan
func (h *ExtensionHandler) BatchScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.URLs) > MaxBatchURLs {
		jsonError(w, "too many URLs (max 50)", http.StatusBadRequest)
		return
	}

	verdicts := h.scorer.ScoreBatch(r.Context(), req.URLs)
	results := make([]batchResult, 0, len(verdicts))
	for _, v := range verdicts {
		results = append(results, newBatchResult(v))
	}
	writeJSON(w, map[string]any{"results": results})
}

// Status handles GET /api/extension-status
func (h *ExtensionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":  "active",
		"version": ExtensionVersion,
		"name":    "LinkBuster AI Security",
		"message": "API is running and ready",
		"features": []string{
			"quick-scan",
			"batch-scan",
			"emergency-alert",
			"websocket-scan",
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// TestConnection handles GET /api/test-connection
func (h *ExtensionHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"status":    "connected",
		"connected": true,
		"service":   "LinkBuster AI",
		"version":   ExtensionVersion,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// EmergencyAlert handles POST /api/emergency-alert
func (h *ExtensionHandler) EmergencyAlert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL       string   `json:"url"`
		RiskScore int      `json:"risk_score"`
		Reason    string   `json:"reason"`
		Threats   []string `json:"threats"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		jsonError(w, "No URL provided", http.StatusBadRequest)
		return
	}
	if req.RiskScore < 0 || req.RiskScore > 100 {
		jsonError(w, "risk_score must be between 0 and 100", http.StatusBadRequest)
		return
	}

	h.logger.Warn("emergency alert from extension",
		"url", req.URL, "risk_score", req.RiskScore, "reason", req.Reason, "threats", req.Threats)

	alert := notify.Emergency(req.URL, req.RiskScore, req.Reason, req.Threats)
	alert.Recipient = h.recipient

	action := "logged"
	if h.alerts != nil && h.alerts.Emit(alert) {
		action = "forwarded"
	}
	if h.broadcast != nil {
		h.broadcast.Broadcast(map[string]any{"type": "emergency_alert", "alert": alert})
	}
	writeJSON(w, map[string]string{"status": "alert_received", "action": action, "scan_id": alert.ScanID})
}
