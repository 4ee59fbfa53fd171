// Package notify delivers high-risk scan alerts to email and webhook sinks
// off the request path and records every delivery outcome.
package notify

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/classify"
)

// Risk levels used in alert subjects.
const (
	LevelCritical = "CRITICAL"
	LevelHigh     = "HIGH"
	LevelMedium   = "MEDIUM"
)

// Alert sources.
const (
	SourceScan      = "scan"
	SourceExtension = "extension"
)

// Alert is one notification about a risky URL.
type Alert struct {
	ID         string    `json:"id"`
	ScanID     string    `json:"scan_id"`
	Source     string    `json:"source"`
	UserID     int       `json:"user_id,omitempty"`
	Recipient  string    `json:"recipient,omitempty"`
	URL        string    `json:"url"`
	RiskScore  int       `json:"risk_score"`
	Level      string    `json:"level"`
	Status     string    `json:"status,omitempty"`
	Confidence float64   `json:"confidence"`
	Threats    []string  `json:"threats"`
	Insights   []string  `json:"insights"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// RiskLevel maps a score onto the alert level.
func RiskLevel(score int) string {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	default:
		return LevelMedium
	}
}

// ScanID is the first 12 hex digits of md5(url), uppercased.
func ScanID(rawURL string) string {
	sum := md5.Sum([]byte(rawURL))
	return strings.ToUpper(hex.EncodeToString(sum[:])[:12])
}

// FromVerdict builds an alert for a scored URL.
func FromVerdict(v *classify.Verdict, userID int, recipient string) *Alert {
	ts := v.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return &Alert{
		ID:         uuid.NewString(),
		ScanID:     ScanID(v.URL),
		Source:     SourceScan,
		UserID:     userID,
		Recipient:  recipient,
		URL:        v.URL,
		RiskScore:  v.RiskScore,
		Level:      RiskLevel(v.RiskScore),
		Status:     v.Status,
		Confidence: v.Confidence,
		Threats:    v.Threats,
		Insights:   v.Insights,
		Timestamp:  ts,
	}
}

// Emergency builds an alert raised directly by the browser extension.
func Emergency(rawURL string, score int, reason string, threats []string) *Alert {
	if threats == nil {
		threats = []string{}
	}
	return &Alert{
		ID:        uuid.NewString(),
		ScanID:    ScanID(rawURL),
		Source:    SourceExtension,
		URL:       rawURL,
		RiskScore: score,
		Level:     RiskLevel(score),
		Status:    classify.StatusForScore(score),
		Threats:   threats,
		Insights:  []string{},
		Reason:    reason,
		Timestamp: time.Now(),
	}
}
