package sse

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ScanChannel is the NOTIFY channel fed by the scans insert trigger.
const ScanChannel = "scan_stream"

// PGListener bridges PostgreSQL scan notifications to the SSE hub.
type PGListener struct {
	pool   *pgxpool.Pool
	hub    *Hub
	logger *slog.Logger
}

func NewPGListener(pool *pgxpool.Pool, hub *Hub, logger *slog.Logger) *PGListener {
	return &PGListener{pool: pool, hub: hub, logger: logger}
}

// Listen blocks until ctx is cancelled or the connection fails.
// It should be run inside RunWithRecovery so it auto-restarts on failure.
func (pl *PGListener) Listen(ctx context.Context) {
	conn, err := pl.pool.Acquire(ctx)
	if err != nil {
		pl.logger.Error("pg-listen: acquire connection failed", "err", err)
		return
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+ScanChannel); err != nil {
		pl.logger.Error("pg-listen: LISTEN failed", "channel", ScanChannel, "err", err)
		return
	}
	pl.logger.Info("pg-listen: subscribed", "channel", ScanChannel)

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return // graceful shutdown
			}
			pl.logger.Error("pg-listen: notification error", "err", err)
			return // RunWithRecovery will reconnect
		}
		pl.dispatch(notification.Channel, notification.Payload)
	}
}

func (pl *PGListener) dispatch(channel, payload string) {
	if channel != ScanChannel {
		return
	}
	var row struct {
		UserID int `json:"user_id"`
	}
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		pl.logger.Warn("pg-listen: unmarshal payload failed", "err", err)
		return
	}
	if row.UserID == 0 {
		return
	}
	pl.hub.Publish(row.UserID, Event{Type: "scan", Data: []byte(payload)})
}
