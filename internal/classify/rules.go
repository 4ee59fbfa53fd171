package classify

import (
	"fmt"
	"strings"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

// Input is the pre-parsed URL handed to every rule.
type Input struct {
	Raw   string
	Lower string
	Parts features.Parts
}

func newInput(raw string) *Input {
	return &Input{
		Raw:   raw,
		Lower: strings.ToLower(raw),
		Parts: features.Parse(raw),
	}
}

// Rule is one variant of the engine's rule chain: TestDomainRule,
// KeywordMatchRule, SuspiciousTLDRule or GenericScoreRule. Match returns nil
// when the rule does not apply.
type Rule interface {
	Name() string
	Terminal() bool
	Match(in *Input) *Verdict
}

// TestDomainRule pins official Safe Browsing test pages to a fixed critical
// verdict.
type TestDomainRule struct {
	Domains []string
}

func (TestDomainRule) Name() string   { return RuleTestDomain }
func (TestDomainRule) Terminal() bool { return true }

func (r TestDomainRule) Match(in *Input) *Verdict {
	for _, d := range r.Domains {
		if strings.Contains(in.Lower, d) {
			return &Verdict{
				RiskScore: 98,
				Status:    StatusCritical,
				Threats: []string{
					"Google Safe Browsing Test Malware",
					"Known Malicious Pattern",
					"Security API Trigger",
				},
				Insights: []string{
					"Official Google malware test page",
					"Safe for demonstration purposes",
					"Triggers real threat detection APIs",
					"Used by security researchers worldwide",
				},
				Confidence: 99.9,
				IsTestURL:  true,
			}
		}
	}
	return nil
}

// KeywordMatchRule fires on well-known phishing phrases anywhere in the URL.
type KeywordMatchRule struct {
	Patterns []string
}

func (KeywordMatchRule) Name() string   { return RuleKeywordMatch }
func (KeywordMatchRule) Terminal() bool { return true }

func (r KeywordMatchRule) Match(in *Input) *Verdict {
	var found []string
	for _, p := range r.Patterns {
		if strings.Contains(in.Lower, p) {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil
	}

	threats := make([]string, 0, 3)
	for _, p := range found[:min(3, len(found))] {
		threats = append(threats, "Phishing pattern: "+p)
	}
	return &Verdict{
		RiskScore: 85,
		Status:    StatusHighRisk,
		Threats:   threats,
		Insights: []string{
			"Suspicious URL structure detected",
			"Multiple phishing indicators found",
			"High probability of social engineering",
			fmt.Sprintf("Found %d threat patterns", len(found)),
		},
		Confidence:       92.5,
		DetectedPatterns: found,
	}
}

// SuspiciousTLDRule fires when the host ends in a high-risk suffix.
type SuspiciousTLDRule struct {
	Suffixes []string
}

func (SuspiciousTLDRule) Name() string   { return RuleSuspiciousTLD }
func (SuspiciousTLDRule) Terminal() bool { return true }

func (r SuspiciousTLDRule) Match(in *Input) *Verdict {
	if !hasSuffix(in.Parts.Host, r.Suffixes) {
		return nil
	}
	return &Verdict{
		RiskScore: 75,
		Status:    StatusSuspicious,
		Threats:   []string{"Suspicious domain extension", "High-risk TLD detected"},
		Insights: []string{
			"Suspicious domain extension",
			"Extension is associated with malicious sites",
			"Exercise caution with this TLD",
			"Higher fraud probability",
		},
		Confidence: 88.0,
	}
}

func hasSuffix(host string, suffixes []string) bool {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return false
	}
	for _, s := range suffixes {
		if strings.HasSuffix(host, s) {
			return true
		}
	}
	return false
}
