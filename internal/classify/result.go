package classify

import "time"

// Status labels, ordered from least to most severe.
const (
	StatusSafe       = "Safe"
	StatusLowRisk    = "Low Risk"
	StatusSuspicious = "Suspicious"
	StatusHighRisk   = "High Risk"
	StatusCritical   = "Critical"
)

// Rule names recorded on a Verdict.
const (
	RuleTestDomain    = "test_domain"
	RuleKeywordMatch  = "keyword_match"
	RuleSuspiciousTLD = "suspicious_tld"
	RuleGeneric       = "generic"
)

// Verdict is the normalized risk assessment for one URL.
type Verdict struct {
	URL              string         `json:"url"`
	RiskScore        int            `json:"risk_score"`
	Status           string         `json:"status"`
	Threats          []string       `json:"threats"`
	Insights         []string       `json:"insights"`
	Confidence       float64        `json:"confidence"`
	Timestamp        time.Time      `json:"timestamp"`
	Rule             string         `json:"rule"`
	Terminal         bool           `json:"terminal"`
	IsTestURL        bool           `json:"is_test_url,omitempty"`
	DetectedPatterns []string       `json:"detected_patterns,omitempty"`
	Reputation       string         `json:"reputation,omitempty"`
	Model            *ModelOpinion  `json:"model,omitempty"`
	Advisor          *AdvisorResult `json:"advisor,omitempty"`
}

// ModelOpinion records what the trained classifier said about the URL.
type ModelOpinion struct {
	IsMalicious bool    `json:"is_malicious"`
	Confidence  float64 `json:"confidence"`
	Escalated   bool    `json:"escalated"`
	Error       string  `json:"error,omitempty"`
}

// StatusForScore maps a 0-100 risk score onto its status label. Every
// non-terminal verdict is labelled through this function.
func StatusForScore(score int) string {
	switch {
	case score >= 80:
		return StatusCritical
	case score >= 60:
		return StatusHighRisk
	case score >= 40:
		return StatusSuspicious
	case score >= 20:
		return StatusLowRisk
	default:
		return StatusSafe
	}
}

// Severity orders status labels; unknown labels rank as Safe.
func Severity(status string) int {
	switch status {
	case StatusCritical:
		return 4
	case StatusHighRisk:
		return 3
	case StatusSuspicious:
		return 2
	case StatusLowRisk:
		return 1
	default:
		return 0
	}
}

// escalate raises the verdict's score to at least floor and relabels it.
// Scores never go down.
func (v *Verdict) escalate(floor int) bool {
	if floor <= v.RiskScore {
		return false
	}
	v.RiskScore = clampScore(floor)
	v.Status = StatusForScore(v.RiskScore)
	return true
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
