package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/cache"
	"veritas/internal/history"
	"veritas/internal/provider"
	"veritas/internal/resilience"
)

type stubProvider struct {
	name   string
	result *provider.Analysis
	calls  int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Analyze(ctx context.Context, text, mode string, report provider.Reporter) *provider.Analysis {
	s.calls++
	cp := *s.result
	return &cp
}

type memoryHistory struct {
	saved []*history.Record
}

func (m *memoryHistory) Save(ctx context.Context, rec *history.Record) error {
	m.saved = append(m.saved, rec)
	return nil
}

func (m *memoryHistory) GetByHash(ctx context.Context, hash string) (*history.Record, error) {
	for _, rec := range m.saved {
		if rec.ContentHash == hash {
			return rec, nil
		}
	}
	return nil, history.ErrNotFound
}

func (m *memoryHistory) Recent(ctx context.Context, limit int) ([]history.Record, error) {
	return nil, nil
}

func (m *memoryHistory) Search(ctx context.Context, query string, limit int) ([]history.Record, error) {
	return nil, nil
}

func (m *memoryHistory) Close() error { return nil }

func newChain(providers map[string]provider.Provider) *provider.Chain {
	c := provider.NewChain(provider.ChainOptions{
		Breaker: resilience.BreakerOptions{FailureThreshold: 100, RecoveryTimeout: time.Minute},
	})
	for name, p := range providers {
		c.Register(name, p)
	}
	return c
}

func TestTaskReturnsAnalysisValue(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "checked", ConfidenceScore: 0.9}}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		Primary: "openai",
	})

	work := svc.Task("some claim", provider.ModeBalanced)
	value, err := work(context.Background(), func(int) {})
	require.NoError(t, err)

	res, ok := value.(*provider.Analysis)
	require.True(t, ok)
	assert.Equal(t, "checked", res.Summary)
	assert.Equal(t, "openai", res.ProviderUsed)
}

func TestTaskAllProvidersFailedIsStillAValue(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Error: "down"}}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		Primary: "openai",
	})

	value, err := svc.Task("claim", provider.ModeBalanced)(context.Background(), func(int) {})
	require.NoError(t, err, "total provider failure is data, not a task error")

	res := value.(*provider.Analysis)
	assert.Equal(t, provider.AllProvidersFailed, res.Error)
	assert.Equal(t, []string{"openai"}, res.ProvidersTried)
}

func TestTaskCancelledContextReturnsError(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "late"}}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		Primary: "openai",
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.Task("claim", provider.ModeBalanced)(ctx, func(int) {})
	require.ErrorIs(t, err, context.Canceled)
}

func TestTaskUsesCacheOnSecondRun(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := cache.New(mr.Addr(), time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "fresh", ConfidenceScore: 0.9}}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		Cache:   c,
		Primary: "openai",
	})

	ctx := context.Background()
	_, err = svc.Task("same claim", provider.ModeBalanced)(ctx, func(int) {})
	require.NoError(t, err)
	require.Equal(t, 1, stub.calls)

	var lastProgress int
	value, err := svc.Task("same claim", provider.ModeBalanced)(ctx, func(p int) { lastProgress = p })
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls, "second run must be served from cache")
	assert.Equal(t, 100, lastProgress)
	assert.Equal(t, "fresh", value.(*provider.Analysis).Summary)

	// A different mode misses the cache.
	_, err = svc.Task("same claim", provider.ModeHelpful)(ctx, func(int) {})
	require.NoError(t, err)
	assert.Equal(t, 2, stub.calls)
}

func TestTaskSavesHistory(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "checked", ConfidenceScore: 0.9}}
	hist := &memoryHistory{}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		History: hist,
		Primary: "openai",
	})

	_, err := svc.Task("claim text", provider.ModeArgumentative)(context.Background(), func(int) {})
	require.NoError(t, err)

	require.Len(t, hist.saved, 1)
	rec := hist.saved[0]
	assert.Equal(t, cache.Key("claim text", provider.ModeArgumentative), rec.ContentHash)
	assert.Equal(t, "claim text", rec.OriginalText)
	assert.Equal(t, provider.ModeArgumentative, rec.AttitudeMode)
	assert.Equal(t, "openai", rec.Provider)
	assert.Equal(t, 0.9, rec.ConfidenceScore)
}

func TestTaskDoesNotStoreFailures(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Error: "down"}}
	hist := &memoryHistory{}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		History: hist,
		Primary: "openai",
	})

	_, err := svc.Task("claim", provider.ModeBalanced)(context.Background(), func(int) {})
	require.NoError(t, err)
	assert.Empty(t, hist.saved)
}

func TestTaskAutoSavesToDisk(t *testing.T) {
	dir := t.TempDir()
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "saved to disk", ConfidenceScore: 0.8}}
	svc := NewService(Options{
		Chain:    newChain(map[string]provider.Provider{"openai": stub}),
		DataDir:  dir,
		AutoSave: true,
		Primary:  "openai",
	})

	_, err := svc.Task("claim", provider.ModeBalanced)(context.Background(), func(int) {})
	require.NoError(t, err)

	path := filepath.Join(dir, "analyses", cache.Key("claim", provider.ModeBalanced)+".json")
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var saved provider.Analysis
	require.NoError(t, json.Unmarshal(raw, &saved))
	assert.Equal(t, "saved to disk", saved.Summary)
}

func TestTaskDefaultsMode(t *testing.T) {
	stub := &stubProvider{name: "openai", result: &provider.Analysis{Summary: "ok"}}
	hist := &memoryHistory{}
	svc := NewService(Options{
		Chain:   newChain(map[string]provider.Provider{"openai": stub}),
		History: hist,
		Primary: "openai",
	})

	_, err := svc.Task("claim", "")(context.Background(), func(int) {})
	require.NoError(t, err)
	require.Len(t, hist.saved, 1)
	assert.Equal(t, provider.ModeBalanced, hist.saved[0].AttitudeMode)
}
