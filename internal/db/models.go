package db

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type Session struct {
	ID        string    `json:"id"`
	UserID    int       `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

// ScanRecord is one entry of a user's scan history.
type ScanRecord struct {
	ID        int64     `json:"id"`
	UserID    int       `json:"user_id"`
	URL       string    `json:"url"`
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	Threats   []string  `json:"threats"`
	Rule      string    `json:"rule,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Stats summarises a user's scan history for the dashboard.
type Stats struct {
	Total        int            `json:"total"`
	ByStatus     map[string]int `json:"by_status"`
	AverageScore float64        `json:"average_score"`
	Today        int            `json:"today"`
	HighRisk     int            `json:"high_risk"`
}

// Alert delivery outcomes recorded in alert_audit.
const (
	AlertSent     = "SENT"
	AlertLocalLog = "LOCAL_LOG"
)

type AlertAudit struct {
	ID        int64     `json:"id"`
	ScanID    string    `json:"scan_id"`
	Recipient string    `json:"recipient"`
	URL       string    `json:"url"`
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	Sink      string    `json:"sink"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
