package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
)

// Advisor classifications.
const (
	AdviceSafe       = "SAFE"
	AdviceSuspicious = "SUSPICIOUS"
	AdviceMalicious  = "MALICIOUS"
)

// AdvisorResult is an LLM second opinion on a URL.
type AdvisorResult struct {
	Classification string  `json:"classification"`
	Confidence     float64 `json:"confidence"`
	Reason         string  `json:"reason"`
	Advisor        string  `json:"advisor"`
	ResponseTimeMs float64 `json:"response_time_ms,omitempty"`
	Error          string  `json:"error,omitempty"`
}

// ClaudeAdvisor asks Claude on AWS Bedrock to review URLs the heuristics
// already consider risky.
type ClaudeAdvisor struct {
	client anthropic.Client
	model  string
	prompt string
	logger *slog.Logger
}

// NewClaudeAdvisor returns nil when no AWS credentials are configured.
func NewClaudeAdvisor(ctx context.Context, model string, logger *slog.Logger) *ClaudeAdvisor {
	if os.Getenv("AWS_ACCESS_KEY_ID") == "" && os.Getenv("AWS_PROFILE") == "" {
		logger.Warn("advisor disabled: AWS credentials not configured")
		return nil
	}
	if model == "" {
		model = "global.anthropic.claude-sonnet-4-5-20250929-v1:0"
	}
	return &ClaudeAdvisor{
		client: anthropic.NewClient(bedrock.WithLoadDefaultConfig(ctx)),
		model:  model,
		prompt: defaultAdvisorPrompt,
		logger: logger,
	}
}

// Advise never returns nil. Failures come back as a SUSPICIOUS result with
// Error set, which the pipeline ignores.
func (a *ClaudeAdvisor) Advise(ctx context.Context, v *Verdict) *AdvisorResult {
	start := time.Now()

	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 300,
		System: []anthropic.TextBlockParam{
			{Text: a.prompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(describeForAdvisor(v))),
		},
	})
	elapsed := float64(time.Since(start).Milliseconds())

	if err != nil {
		a.logger.Warn("advisor request failed", "err", err)
		return degradedAdvice(fmt.Sprintf("Claude API error: %v", err), elapsed)
	}
	if len(message.Content) == 0 {
		return degradedAdvice("Empty Claude response", elapsed)
	}

	result := parseAdvice(strings.TrimSpace(message.Content[0].Text))
	result.ResponseTimeMs = elapsed
	return result
}

func describeForAdvisor(v *Verdict) string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", v.URL)
	fmt.Fprintf(&b, "Heuristic score: %d (%s)\n", v.RiskScore, v.Status)
	if len(v.Threats) > 0 {
		fmt.Fprintf(&b, "Heuristic findings: %s\n", strings.Join(v.Threats, "; "))
	}
	return b.String()
}

func degradedAdvice(reason string, elapsed float64) *AdvisorResult {
	return &AdvisorResult{
		Classification: AdviceSuspicious,
		Confidence:     0.5,
		Reason:         reason,
		Advisor:        "claude",
		ResponseTimeMs: elapsed,
		Error:          reason,
	}
}

// parseAdvice extracts the JSON object from model output that may carry
// extra prose around it.
func parseAdvice(content string) *AdvisorResult {
	var r AdvisorResult
	if err := json.Unmarshal([]byte(content), &r); err != nil {
		start := strings.Index(content, "{")
		end := strings.LastIndex(content, "}")
		if start < 0 || end <= start || json.Unmarshal([]byte(content[start:end+1]), &r) != nil {
			return degradedAdvice("Failed to parse advisor response", 0)
		}
	}
	r.Classification = strings.ToUpper(strings.TrimSpace(r.Classification))
	switch r.Classification {
	case AdviceSafe, AdviceSuspicious, AdviceMalicious:
	default:
		return degradedAdvice("Unknown advisor classification "+r.Classification, 0)
	}
	r.Advisor = "claude"
	return &r
}

const defaultAdvisorPrompt = `You review URLs for phishing and malware. A heuristic scanner has already flagged the URL below as risky. Judge the URL itself (host, path, query, brand names, lookalike characters) and respond with a JSON object:
{"classification": "SAFE" | "SUSPICIOUS" | "MALICIOUS", "confidence": 0.0-1.0, "reason": "one sentence"}

Do not visit the URL. Only respond with the JSON object.`
