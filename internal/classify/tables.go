package classify

import (
	"bufio"
	"embed"
	"strings"
)

//go:embed data/*.txt
var tableData embed.FS

// Tables holds the fixed lookup lists the rule engine matches against. A
// Tables value is never modified after construction.
type Tables struct {
	TestDomains          []string
	PhishingPatterns     []string
	SuspiciousTLDs       []string
	SuspiciousExtensions []string
	HighRiskKeywords     []string
	MediumRiskKeywords   []string
	Brands               []string
}

var defaultTables *Tables

func init() {
	defaultTables = &Tables{
		TestDomains:          loadList("data/test_domains.txt"),
		PhishingPatterns:     loadList("data/phishing_patterns.txt"),
		SuspiciousTLDs:       loadList("data/suspicious_tlds.txt"),
		SuspiciousExtensions: loadList("data/suspicious_extensions.txt"),
		HighRiskKeywords:     loadList("data/high_risk_keywords.txt"),
		MediumRiskKeywords:   loadList("data/medium_risk_keywords.txt"),
		Brands:               loadList("data/brands.txt"),
	}
}

// DefaultTables returns the embedded tables loaded at startup.
func DefaultTables() *Tables {
	return defaultTables
}

// loadList reads one lowercase entry per line, skipping blanks and # comments.
func loadList(name string) []string {
	f, err := tableData.Open(name)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.ToLower(line))
	}
	return out
}
