package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/auth"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/db"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/sse"
)

// RecentScans lists a user's newest scans. *db.DB satisfies it.
type RecentScans interface {
	ListScans(ctx context.Context, userID, limit, offset int) ([]db.ScanRecord, error)
}

const hydrateCount = 10

// StreamHandler serves each user's live scan stream over SSE.
type StreamHandler struct {
	hub       *sse.Hub
	scans     RecentScans
	logger    *slog.Logger
	keepalive time.Duration
}

func NewStreamHandler(hub *sse.Hub, scans RecentScans, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{hub: hub, scans: scans, logger: logger, keepalive: 30 * time.Second}
}

// HandleSSE handles GET /api/stream/events
// It replays the user's most recent scans, then streams live scan events
// with periodic keepalives.
func (sh *StreamHandler) HandleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	user := auth.GetUserFromCtx(r.Context())

	// Subscribe before hydrating so no scan falls between the two.
	ch, cancel := sh.hub.Subscribe(user.ID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	recent, err := sh.scans.ListScans(r.Context(), user.ID, hydrateCount, 0)
	if err != nil {
		sh.logger.Warn("sse hydrate failed", "user_id", user.ID, "err", err)
	}
	for i := len(recent) - 1; i >= 0; i-- {
		data, _ := json.Marshal(recent[i])
		fmt.Fprintf(w, "event: scan\ndata: %s\n\n", data)
	}
	fmt.Fprintf(w, "event: hydrated\ndata: {\"count\":%d}\n\n", len(recent))
	flusher.Flush()

	keepalive := time.NewTicker(sh.keepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, event.Data)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ": keepalive\n\n")
			flusher.Flush()
		}
	}
}
