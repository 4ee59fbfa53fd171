package classify

import "time"

// Engine evaluates the rule chain in order; the first terminal rule that
// matches decides the verdict, otherwise the generic formula does.
type Engine struct {
	rules []Rule
	now   func() time.Time
}

// NewEngine builds the standard chain over t. A nil t uses DefaultTables.
func NewEngine(t *Tables) *Engine {
	if t == nil {
		t = DefaultTables()
	}
	return &Engine{
		rules: []Rule{
			TestDomainRule{Domains: t.TestDomains},
			KeywordMatchRule{Patterns: t.PhishingPatterns},
			SuspiciousTLDRule{Suffixes: t.SuspiciousTLDs},
			GenericScoreRule{Tables: t},
		},
		now: time.Now,
	}
}

// NewEngineWithRules builds an engine over an explicit chain.
func NewEngineWithRules(rules ...Rule) *Engine {
	return &Engine{rules: rules, now: time.Now}
}

// Rules exposes the chain in evaluation order.
func (e *Engine) Rules() []Rule {
	return e.rules
}

// Evaluate scores raw. It accepts any string.
func (e *Engine) Evaluate(raw string) *Verdict {
	in := newInput(raw)
	for _, r := range e.rules {
		v := r.Match(in)
		if v == nil {
			continue
		}
		v.URL = raw
		v.Rule = r.Name()
		v.Terminal = r.Terminal()
		v.Timestamp = e.now()
		return v
	}

	// Only reachable with a custom chain lacking the generic rule.
	return &Verdict{
		URL:       raw,
		Status:    StatusForScore(0),
		Threats:   []string{noThreats},
		Insights:  []string{levelInsight(StatusSafe)},
		Rule:      RuleGeneric,
		Timestamp: e.now(),
	}
}
