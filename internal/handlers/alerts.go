package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/auth"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/notify"
)

// AuditLister reads alert delivery records. *db.DB satisfies it.
type AuditLister interface {
	ListAlertAudit(ctx context.Context, limit int) ([]db.AlertAudit, error)
}

// MetricsSource exposes delivery counters. *notify.Emitter satisfies it.
type MetricsSource interface {
	Metrics() notify.Metrics
}

const auditScanLimit = 200

// AlertsHandler shows a user the delivery log of their alerts.
type AlertsHandler struct {
	audit   AuditLister
	metrics MetricsSource
	logger  *slog.Logger
}

func NewAlertsHandler(audit AuditLister, metrics MetricsSource, logger *slog.Logger) *AlertsHandler {
	return &AlertsHandler{audit: audit, metrics: metrics, logger: logger}
}

// List handles GET /api/alerts
func (h *AlertsHandler) List(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUserFromCtx(r.Context())
	entries, err := h.audit.ListAlertAudit(r.Context(), auditScanLimit)
	if err != nil {
		h.logger.Error("list alert audit failed", "err", err)
		jsonError(w, "failed to fetch alerts", http.StatusInternalServerError)
		return
	}

	items := []db.AlertAudit{}
	for _, e := range entries {
		if e.Recipient == user.Email {
			items = append(items, e)
		}
	}

	resp := map[string]any{"items": items}
	if h.metrics != nil {
		m := h.metrics.Metrics()
		resp["queue"] = map[string]uint64{"enqueued": m.Enqueued, "dropped": m.Dropped}
	}
	writeJSON(w, resp)
}
