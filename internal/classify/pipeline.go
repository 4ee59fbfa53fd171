package classify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/model"
	"github.com/Rohithstu/FakeLinkBuster-Pro/internal/reputation"
)

const noThreats = "No specific threats detected"

// ReputationChecker looks a URL up in external threat feeds.
type ReputationChecker interface {
	Check(ctx context.Context, rawURL string) reputation.Report
}

// Predictor is the trained classifier.
type Predictor interface {
	Predict(rawURL string) (model.Prediction, error)
}

// Advisor gives an LLM second opinion on a verdict.
type Advisor interface {
	Advise(ctx context.Context, v *Verdict) *AdvisorResult
}

// PipelineConfig holds the escalation thresholds.
type PipelineConfig struct {
	ReputationTimeout   time.Duration
	ModelMinConfidence  float64
	ModelFloor          int
	AdvisorTimeout      time.Duration
	AdvisorMinConfident float64
	AdvisorFloor        int
	YoungDomainDays     int
	YoungDomainFloor    int
	BatchConcurrency    int
}

// DefaultPipelineConfig returns the production thresholds.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ReputationTimeout:   5 * time.Second,
		ModelMinConfidence:  80,
		ModelFloor:          60,
		AdvisorTimeout:      15 * time.Second,
		AdvisorMinConfident: 0.8,
		AdvisorFloor:        80,
		YoungDomainDays:     30,
		YoungDomainFloor:    40,
		BatchConcurrency:    8,
	}
}

// Pipeline is the scoring façade: heuristic engine first, then the optional
// collaborators, each of which may only raise the score.
type Pipeline struct {
	engine     *Engine
	reputation ReputationChecker
	model      Predictor
	advisor    Advisor
	cfg        PipelineConfig
	logger     *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithReputation enables the reputation stage.
func WithReputation(r ReputationChecker) Option {
	return func(p *Pipeline) { p.reputation = r }
}

// WithModel enables the classifier stage.
func WithModel(m Predictor) Option {
	return func(p *Pipeline) { p.model = m }
}

// WithAdvisor enables the LLM advisor stage.
func WithAdvisor(a Advisor) Option {
	return func(p *Pipeline) { p.advisor = a }
}

// WithConfig overrides the default thresholds.
func WithConfig(cfg PipelineConfig) Option {
	return func(p *Pipeline) { p.cfg = cfg }
}

// NewPipeline wraps engine. A nil engine uses the default rule tables.
func NewPipeline(engine *Engine, logger *slog.Logger, opts ...Option) *Pipeline {
	if engine == nil {
		engine = NewEngine(nil)
	}
	p := &Pipeline{engine: engine, cfg: DefaultPipelineConfig(), logger: logger}
	for _, o := range opts {
		o(p)
	}
	if p.cfg.BatchConcurrency <= 0 {
		p.cfg.BatchConcurrency = 1
	}
	return p
}

// Engine returns the underlying rule engine.
func (p *Pipeline) Engine() *Engine {
	return p.engine
}

// Score produces the final verdict for raw. It never fails; collaborator
// errors are logged and leave the heuristic verdict in place.
func (p *Pipeline) Score(ctx context.Context, raw string) *Verdict {
	v := p.engine.Evaluate(raw)
	if v.Terminal {
		return v
	}

	heuristic := StatusForScore(v.RiskScore)
	p.applyReputation(ctx, v)
	p.applyModel(v)
	p.applyAdvisor(ctx, v)

	v.Status = StatusForScore(v.RiskScore)
	if v.Status != heuristic && len(v.Insights) > 0 && v.Insights[0] == levelInsight(heuristic) {
		v.Insights[0] = levelInsight(v.Status)
	}
	return v
}

// ScoreBatch scores urls concurrently and returns verdicts in input order.
func (p *Pipeline) ScoreBatch(ctx context.Context, urls []string) []*Verdict {
	out := make([]*Verdict, len(urls))
	var g errgroup.Group
	g.SetLimit(p.cfg.BatchConcurrency)
	for i, u := range urls {
		i, u := i, u
		g.Go(func() error {
			out[i] = p.Score(ctx, u)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (p *Pipeline) applyReputation(ctx context.Context, v *Verdict) {
	if p.reputation == nil {
		return
	}
	rctx, cancel := context.WithTimeout(ctx, p.cfg.ReputationTimeout)
	defer cancel()

	rep := p.reputation.Check(rctx, v.URL)
	v.Reputation = string(rep.Status)

	switch rep.Status {
	case reputation.Danger:
		v.escalate(95)
		v.Status = StatusCritical
		v.addThreat("Flagged by " + strings.Join(rep.Sources, ", "))
		v.Insights = append(v.Insights, "CRITICAL: Listed by threat intelligence feeds")
	case reputation.Error:
		p.logger.Warn("reputation unavailable, treating as safe", "url", v.URL)
	}

	if rep.AgeKnown && rep.DomainAgeDays < p.cfg.YoungDomainDays {
		v.addThreat(fmt.Sprintf("Newly registered domain (%d days)", rep.DomainAgeDays))
		v.escalate(p.cfg.YoungDomainFloor)
	}
	if rep.NXDomain {
		v.Insights = append(v.Insights, "Domain does not resolve (NXDOMAIN)")
	}
}

func (p *Pipeline) applyModel(v *Verdict) {
	if p.model == nil {
		return
	}
	pred, err := p.model.Predict(v.URL)
	if err != nil {
		p.logger.Debug("classifier skipped", "url", v.URL, "err", err)
		v.Model = &ModelOpinion{Error: err.Error()}
		return
	}

	op := &ModelOpinion{IsMalicious: pred.IsMalicious, Confidence: pred.Confidence}
	v.Model = op
	if !pred.IsMalicious || pred.Confidence < p.cfg.ModelMinConfidence {
		return
	}
	op.Escalated = v.escalate(p.cfg.ModelFloor)
	v.addThreat(fmt.Sprintf("ML classifier: malicious (%.1f%% confidence)", pred.Confidence))
	v.Insights = append(v.Insights, "Trained model flagged this URL")
}

func (p *Pipeline) applyAdvisor(ctx context.Context, v *Verdict) {
	if p.advisor == nil {
		return
	}
	if status := StatusForScore(v.RiskScore); status != StatusSuspicious && status != StatusHighRisk {
		return
	}

	actx, cancel := context.WithTimeout(ctx, p.cfg.AdvisorTimeout)
	defer cancel()
	res := p.advisor.Advise(actx, v)
	if res == nil {
		return
	}
	v.Advisor = res
	if res.Error != "" {
		p.logger.Warn("advisor failed", "url", v.URL, "err", res.Error)
		return
	}
	if res.Classification == AdviceMalicious && res.Confidence >= p.cfg.AdvisorMinConfident {
		v.escalate(p.cfg.AdvisorFloor)
		reason := res.Reason
		if reason == "" {
			reason = "malicious"
		}
		v.addThreat("AI advisor: " + reason)
	}
}

// addThreat appends t, dropping the placeholder used when nothing was found.
func (v *Verdict) addThreat(t string) {
	if len(v.Threats) == 1 && v.Threats[0] == noThreats {
		v.Threats = v.Threats[:0]
	}
	v.Threats = append(v.Threats, t)
}
