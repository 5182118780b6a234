package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-3-sonnet-20240229"
	anthropicAPIVersion     = "2023-06-01"
)

// Anthropic calls the Messages API.
type Anthropic struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewAnthropic(apiKey, model string) *Anthropic {
	if model == "" {
		model = anthropicDefaultModel
	}
	return &Anthropic{
		apiKey:  apiKey,
		model:   model,
		baseURL: anthropicDefaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// UseEndpoint points the provider at an alternative API base URL.
// Intended for tests.
func (p *Anthropic) UseEndpoint(baseURL string) {
	p.baseURL = baseURL
}

func (p *Anthropic) Name() string { return "anthropic" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system"`
	Messages  []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Anthropic) Analyze(ctx context.Context, text, mode string, report Reporter) *Analysis {
	report.Report(10)

	body, err := json.Marshal(anthropicRequest{
		Model:     p.model,
		MaxTokens: maxCompletionTokens,
		System:    systemPrompt(mode),
		Messages:  []anthropicMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return p.failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return p.failure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	report.Report(50)
	resp, err := p.client.Do(req)
	if err != nil {
		return p.failure(err)
	}
	defer func() { _ = resp.Body.Close() }()
	report.Report(80)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.failure(err)
	}

	var decoded anthropicResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return p.failure(fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return p.failure(fmt.Errorf("status %d: %s", resp.StatusCode, decoded.Error.Message))
		}
		return p.failure(fmt.Errorf("status %d", resp.StatusCode))
	}
	if len(decoded.Content) == 0 {
		return p.failure(fmt.Errorf("empty content in response"))
	}

	result := parseContent(decoded.Content[0].Text, 0.8)
	result.ProviderUsed = p.Name()
	report.Report(100)
	return result
}

func (p *Anthropic) failure(err error) *Analysis {
	return &Analysis{
		Error:        fmt.Sprintf("anthropic: %v", err),
		ProviderUsed: p.Name(),
	}
}
