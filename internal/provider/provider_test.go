package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseContentJSON(t *testing.T) {
	content := `{"summary":"looks accurate","verified_facts":["the sky is blue"],"confidence_score":0.92}`
	a := parseContent(content, 0.8)
	assert.Equal(t, "looks accurate", a.Summary)
	assert.Equal(t, []string{"the sky is blue"}, a.VerifiedFacts)
	assert.Equal(t, 0.92, a.ConfidenceScore)
	assert.False(t, a.Failed())
}

func TestParseContentProseFallback(t *testing.T) {
	content := "The claim appears mostly accurate, though sources vary."
	a := parseContent(content, 0.7)
	assert.Equal(t, content, a.Summary)
	assert.Equal(t, 0.7, a.ConfidenceScore)
}

func TestParseContentEmptyJSONFallsBackToProse(t *testing.T) {
	// Valid JSON with none of the expected fields is treated as prose.
	a := parseContent(`{"unrelated":true}`, 0.8)
	assert.Equal(t, `{"unrelated":true}`, a.Summary)
	assert.Equal(t, 0.8, a.ConfidenceScore)
}

func TestValidMode(t *testing.T) {
	assert.True(t, ValidMode(ModeArgumentative))
	assert.True(t, ValidMode(ModeBalanced))
	assert.True(t, ValidMode(ModeHelpful))
	assert.False(t, ValidMode("sarcastic"))
	assert.False(t, ValidMode(""))
}

func TestSystemPromptVariesByMode(t *testing.T) {
	argumentative := systemPrompt(ModeArgumentative)
	helpful := systemPrompt(ModeHelpful)
	balanced := systemPrompt(ModeBalanced)

	assert.NotEqual(t, argumentative, helpful)
	assert.NotEqual(t, argumentative, balanced)
	for _, p := range []string{argumentative, helpful, balanced} {
		assert.Contains(t, p, "fact-checker")
	}
}

func TestNilReporterIsSafe(t *testing.T) {
	var r Reporter
	r.Report(50) // must not panic
}

func TestOpenAIAnalyze(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotBody = req["model"].(string)

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{
					"role":    "assistant",
					"content": `{"summary":"checked","confidence_score":0.9}`,
				}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", "gpt-4")
	p.UseEndpoint(srv.URL)

	var progress []int
	res := p.Analyze(context.Background(), "claim text", ModeBalanced, func(pct int) {
		progress = append(progress, pct)
	})

	require.False(t, res.Failed())
	assert.Equal(t, "checked", res.Summary)
	assert.Equal(t, "openai", res.ProviderUsed)
	assert.Equal(t, "Bearer sk-test", gotAuth)
	assert.Equal(t, "gpt-4", gotBody)
	assert.Equal(t, []int{10, 50, 80, 100}, progress)
}

func TestOpenAIErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded"},
		})
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", "")
	p.UseEndpoint(srv.URL)

	res := p.Analyze(context.Background(), "text", ModeBalanced, nil)
	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "openai:")
	assert.Contains(t, res.Error, "rate limit exceeded")
	assert.Equal(t, "openai", res.ProviderUsed)
}

func TestOpenAIUnreachableHost(t *testing.T) {
	p := NewOpenAI("sk-test", "")
	p.UseEndpoint("http://127.0.0.1:1")

	res := p.Analyze(context.Background(), "text", ModeBalanced, nil)
	require.True(t, res.Failed())
	assert.True(t, strings.HasPrefix(res.Error, "openai:"))
}

func TestAnthropicAnalyze(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/messages", r.URL.Path)
		require.Equal(t, "sk-ant", r.Header.Get("x-api-key"))
		require.NotEmpty(t, r.Header.Get("anthropic-version"))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]string{
				{"text": `{"summary":"verified","confidence_score":0.85}`},
			},
		})
	}))
	defer srv.Close()

	p := NewAnthropic("sk-ant", "")
	p.UseEndpoint(srv.URL)

	res := p.Analyze(context.Background(), "text", ModeHelpful, nil)
	require.False(t, res.Failed())
	assert.Equal(t, "verified", res.Summary)
	assert.Equal(t, "anthropic", res.ProviderUsed)
}

func TestOllamaAnalyzeProseResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, false, req["stream"])

		_ = json.NewEncoder(w).Encode(map[string]string{
			"response": "The statement is broadly correct.",
		})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "llama2")
	res := p.Analyze(context.Background(), "text", ModeBalanced, nil)
	require.False(t, res.Failed())
	assert.Equal(t, "The statement is broadly correct.", res.Summary)
	assert.Equal(t, 0.7, res.ConfidenceScore)
	assert.Equal(t, "ollama", res.ProviderUsed)
}

func TestOllamaInBandError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "model not found"})
	}))
	defer srv.Close()

	p := NewOllama(srv.URL, "nope")
	res := p.Analyze(context.Background(), "text", ModeBalanced, nil)
	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "model not found")
}

func TestAnalyzeRespectsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	p := NewOpenAI("sk-test", "")
	p.UseEndpoint(srv.URL)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := p.Analyze(ctx, "text", ModeBalanced, nil)
	require.True(t, res.Failed())
}
