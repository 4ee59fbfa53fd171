package classify

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/features"
)

// signals are the URL measurements the generic formula scores.
type signals struct {
	length    int
	dots      int
	https     bool
	ip        bool
	keywords  int // distinct high+medium risk keywords
	highRisk  int // distinct high risk keywords
	entropy   float64
	pathDepth int
	params    int
	brands    []string
	extension bool
}

// GenericScoreRule is the catch-all formula. It always matches.
type GenericScoreRule struct {
	Tables *Tables
}

func (GenericScoreRule) Name() string   { return RuleGeneric }
func (GenericScoreRule) Terminal() bool { return false }

func (r GenericScoreRule) Match(in *Input) *Verdict {
	s := r.measure(in)
	score := s.score()
	return &Verdict{
		RiskScore:  score,
		Status:     StatusForScore(score),
		Threats:    s.threats(),
		Insights:   s.insights(score),
		Confidence: s.confidence(),
	}
}

func (r GenericScoreRule) measure(in *Input) signals {
	s := signals{
		length:    utf8.RuneCountInString(in.Raw),
		dots:      strings.Count(in.Raw, "."),
		https:     in.Parts.Scheme == "https",
		ip:        features.IsIPv4Literal(in.Parts.Host),
		entropy:   features.Entropy(in.Raw),
		extension: hasSuffix(in.Parts.Host, r.Tables.SuspiciousExtensions),
	}
	for _, kw := range r.Tables.HighRiskKeywords {
		if strings.Contains(in.Lower, kw) {
			s.highRisk++
		}
	}
	s.keywords = s.highRisk
	for _, kw := range r.Tables.MediumRiskKeywords {
		if strings.Contains(in.Lower, kw) {
			s.keywords++
		}
	}
	for _, b := range r.Tables.Brands {
		if strings.Contains(in.Lower, b) {
			s.brands = append(s.brands, b)
		}
	}
	for _, seg := range strings.Split(in.Parts.Path, "/") {
		if seg != "" {
			s.pathDepth++
		}
	}
	if in.Parts.Query != "" {
		s.params = strings.Count(in.Parts.Query, "&") + 1
	}
	return s
}

func (s signals) score() int {
	var total float64
	if s.length > 100 {
		total += math.Min(20, float64((s.length-100)/5))
	}
	if s.dots > 5 {
		total += math.Min(15, float64((s.dots-5)*2))
	}
	if !s.https {
		total += 25
	}
	if s.ip {
		total += 30
	}
	total += math.Min(35, float64(s.keywords*8))
	if s.entropy > 4.0 {
		total += math.Min(20, (s.entropy-4.0)*5)
	}
	if s.pathDepth > 3 {
		total += math.Min(10, float64((s.pathDepth-3)*2))
	}
	if s.params > 2 {
		total += math.Min(10, float64((s.params-2)*2))
	}
	return clampScore(int(math.Min(total, 100)))
}

func (s signals) threats() []string {
	var out []string
	switch {
	case s.highRisk >= 2:
		out = append(out, fmt.Sprintf("Phishing attempt (%d high-risk keywords)", s.highRisk))
	case s.highRisk == 1:
		out = append(out, "Potential phishing indicators")
	}
	if s.extension {
		out = append(out, "Suspicious domain extension")
	}
	if len(s.brands) > 0 {
		out = append(out, "Brand impersonation: "+strings.Join(s.brands[:min(2, len(s.brands))], ", "))
	}
	switch {
	case s.entropy > 4.5:
		out = append(out, "Advanced obfuscation techniques")
	case s.entropy > 4.0:
		out = append(out, "Possible obfuscation")
	}
	if s.length > 120 {
		out = append(out, "URL spoofing/long domain")
	}
	if s.ip {
		out = append(out, "IP address usage (suspicious)")
	}
	if len(out) == 0 {
		out = append(out, noThreats)
	}
	return out
}

// levelInsight is the leading insight line for a status.
func levelInsight(status string) string {
	switch status {
	case StatusCritical:
		return "CRITICAL: High-confidence malicious patterns"
	case StatusHighRisk:
		return "HIGH RISK: Multiple threat indicators"
	case StatusSuspicious:
		return "SUSPICIOUS: Several risk factors"
	case StatusLowRisk:
		return "LOW RISK: Minor concerns"
	default:
		return "SAFE: No significant risks"
	}
}

func (s signals) insights(score int) []string {
	out := []string{levelInsight(StatusForScore(score))}

	switch {
	case s.keywords >= 3:
		out = append(out, "Multiple suspicious keywords detected")
	case s.keywords >= 1:
		out = append(out, "Suspicious keywords present")
	}
	if !s.https {
		out = append(out, "Unencrypted HTTP connection")
	}
	if s.ip {
		out = append(out, "Uses IP address instead of domain")
	}
	if s.entropy > 4.0 {
		out = append(out, "High entropy suggests hiding techniques")
	}
	if s.length > 100 {
		out = append(out, "Unusually long URL structure")
	}
	return out
}

// confidence is the share of four coarse checks the URL satisfies, as a
// percentage.
func (s signals) confidence() float64 {
	n := 0
	if s.length > 30 {
		n++
	}
	if s.keywords > 0 {
		n++
	}
	if s.entropy > 3.0 {
		n++
	}
	if s.dots > 1 {
		n++
	}
	return float64(n) / 4 * 100
}
