package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	openAIDefaultBaseURL = "https://api.openai.com/v1"
	openAIDefaultModel   = "gpt-4"
	requestTimeout       = 60 * time.Second
	maxCompletionTokens  = 2000
)

// OpenAI calls the Chat Completions API.
type OpenAI struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = openAIDefaultModel
	}
	return &OpenAI{
		apiKey:  apiKey,
		model:   model,
		baseURL: openAIDefaultBaseURL,
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// UseEndpoint points the provider at an alternative API base URL.
// Intended for tests.
func (p *OpenAI) UseEndpoint(baseURL string) {
	p.baseURL = baseURL
}

func (p *OpenAI) Name() string { return "openai" }

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAI) Analyze(ctx context.Context, text, mode string, report Reporter) *Analysis {
	report.Report(10)

	body, err := json.Marshal(openAIRequest{
		Model: p.model,
		Messages: []openAIMessage{
			{Role: "system", Content: systemPrompt(mode)},
			{Role: "user", Content: text},
		},
		Temperature: 0.7,
		MaxTokens:   maxCompletionTokens,
	})
	if err != nil {
		return p.failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return p.failure(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

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

	var decoded openAIResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return p.failure(fmt.Errorf("decode response: %w", err))
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != nil {
			return p.failure(fmt.Errorf("status %d: %s", resp.StatusCode, decoded.Error.Message))
		}
		return p.failure(fmt.Errorf("status %d", resp.StatusCode))
	}
	if len(decoded.Choices) == 0 {
		return p.failure(fmt.Errorf("empty choices in response"))
	}

	result := parseContent(decoded.Choices[0].Message.Content, 0.8)
	result.ProviderUsed = p.Name()
	report.Report(100)
	return result
}

func (p *OpenAI) failure(err error) *Analysis {
	return &Analysis{
		Error:        fmt.Sprintf("openai: %v", err),
		ProviderUsed: p.Name(),
	}
}
