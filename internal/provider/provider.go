// Package provider contains the backends that perform text analysis and the
// fallback chain that picks between them. Failure is carried in-band in the
// Analysis payload: a provider that returns a well-formed result with Error
// set is treated exactly like one whose call failed.
package provider

import (
	"context"
	"encoding/json"
)

// Attitude modes shaping the analysis prompt.
const (
	ModeArgumentative = "argumentative"
	ModeBalanced      = "balanced"
	ModeHelpful       = "helpful"
)

// ValidMode reports whether mode is one of the known attitude modes.
func ValidMode(mode string) bool {
	return mode == ModeArgumentative || mode == ModeBalanced || mode == ModeHelpful
}

// Analysis is the fact-check report a provider produces. Error doubles as the
// failure marker consumed by the fallback chain.
type Analysis struct {
	Summary            string   `json:"summary,omitempty"`
	VerifiedFacts      []string `json:"verified_facts,omitempty"`
	QuestionableClaims []string `json:"questionable_claims,omitempty"`
	CounterArguments   []string `json:"counter_arguments,omitempty"`
	LogicalFallacies   []string `json:"logical_fallacies,omitempty"`
	Recommendations    []string `json:"recommendations,omitempty"`
	ConfidenceScore    float64  `json:"confidence_score"`
	Error              string   `json:"error,omitempty"`
	ProviderUsed       string   `json:"provider_used,omitempty"`
	FallbackUsed       bool     `json:"fallback_used,omitempty"`
	ProvidersTried     []string `json:"providers_tried,omitempty"`
}

// Failed reports whether the analysis carries the in-band error marker.
func (a *Analysis) Failed() bool {
	return a == nil || a.Error != ""
}

// Reporter receives coarse progress percentages from a provider. A nil
// Reporter is valid and discards everything.
type Reporter func(percent int)

func (r Reporter) Report(percent int) {
	if r != nil {
		r(percent)
	}
}

// Provider is one analysis backend. Analyze never returns a Go error; network
// and decode failures are folded into the Analysis Error field so the chain
// has a single failure signal to branch on.
type Provider interface {
	Name() string
	Analyze(ctx context.Context, text, mode string, report Reporter) *Analysis
}

const systemPromptBase = `You are an expert fact-checker and critical thinker. Analyze the provided text and respond with JSON of the form:
{
  "summary": "brief summary of your analysis",
  "verified_facts": ["..."],
  "questionable_claims": ["..."],
  "counter_arguments": ["..."],
  "logical_fallacies": ["..."],
  "recommendations": ["..."],
  "confidence_score": 0.85
}`

func systemPrompt(mode string) string {
	switch mode {
	case ModeArgumentative:
		return systemPromptBase + "\n\nBe particularly critical: challenge every claim vigorously and hunt for flaws."
	case ModeHelpful:
		return systemPromptBase + "\n\nBe constructive and educational; help the reader understand different perspectives."
	default:
		return systemPromptBase + "\n\nProvide a balanced analysis that considers multiple viewpoints fairly."
	}
}

// parseContent interprets a model completion. Models are asked for JSON but
// frequently answer in prose; in that case the whole completion becomes the
// summary with proseConfidence as the score.
func parseContent(content string, proseConfidence float64) *Analysis {
	var a Analysis
	if err := json.Unmarshal([]byte(content), &a); err == nil && (a.Summary != "" || len(a.CounterArguments) > 0 || len(a.VerifiedFacts) > 0) {
		a.Error = ""
		return &a
	}
	return &Analysis{Summary: content, ConfidenceScore: proseConfidence}
}
