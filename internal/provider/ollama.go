package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const ollamaDefaultModel = "llama2"

// Ollama calls a locally hosted model through the Ollama generate API.
type Ollama struct {
	endpoint string
	model    string
	client   *http.Client
}

func NewOllama(endpoint, model string) *Ollama {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = ollamaDefaultModel
	}
	return &Ollama{
		endpoint: strings.TrimRight(endpoint, "/"),
		model:    model,
		client:   &http.Client{Timeout: requestTimeout},
	}
}

func (p *Ollama) Name() string { return "ollama" }

type ollamaRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

func (p *Ollama) Analyze(ctx context.Context, text, mode string, report Reporter) *Analysis {
	report.Report(10)

	prompt := fmt.Sprintf("%s\n\nText to analyze: %s\n\nProvide your analysis:", systemPrompt(mode), text)
	body, err := json.Marshal(ollamaRequest{
		Model:  p.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.7,
			"top_p":       0.9,
		},
	})
	if err != nil {
		return p.failure(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return p.failure(err)
	}
	req.Header.Set("Content-Type", "application/json")

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
	if resp.StatusCode != http.StatusOK {
		return p.failure(fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	var decoded ollamaResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return p.failure(fmt.Errorf("decode response: %w", err))
	}
	if decoded.Error != "" {
		return p.failure(fmt.Errorf("%s", decoded.Error))
	}

	result := parseContent(decoded.Response, 0.7)
	result.ProviderUsed = p.Name()
	report.Report(100)
	return result
}

func (p *Ollama) failure(err error) *Analysis {
	return &Analysis{
		Error:        fmt.Sprintf("ollama: %v", err),
		ProviderUsed: p.Name(),
	}
}
