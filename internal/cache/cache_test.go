package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritas/internal/provider"
)

func newTestCache(t *testing.T, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(mr.Addr(), ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestKeyIsStableAndModeSensitive(t *testing.T) {
	assert.Equal(t, Key("some text", "balanced"), Key("some text", "balanced"))
	assert.NotEqual(t, Key("some text", "balanced"), Key("some text", "helpful"))
	assert.NotEqual(t, Key("some text", "balanced"), Key("other text", "balanced"))
	assert.Len(t, Key("some text", "balanced"), 64)
}

func TestSetAndGet(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)
	ctx := context.Background()

	want := &provider.Analysis{
		Summary:         "cached analysis",
		VerifiedFacts:   []string{"fact one"},
		ConfidenceScore: 0.9,
		ProviderUsed:    "openai",
	}
	key := Key("some text", "balanced")
	require.NoError(t, c.Set(ctx, key, want))

	got, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, want.Summary, got.Summary)
	assert.Equal(t, want.VerifiedFacts, got.VerifiedFacts)
	assert.Equal(t, want.ConfidenceScore, got.ConfidenceScore)
	assert.Equal(t, want.ProviderUsed, got.ProviderUsed)
}

func TestGetMissReturnsNoError(t *testing.T) {
	c, _ := newTestCache(t, time.Hour)

	got, hit, err := c.Get(context.Background(), Key("never stored", "balanced"))
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
}

func TestEntryExpiresAfterTTL(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	key := Key("short lived", "balanced")
	require.NoError(t, c.Set(ctx, key, &provider.Analysis{Summary: "soon gone"}))

	_, hit, err := c.Get(ctx, key)
	require.NoError(t, err)
	require.True(t, hit)

	mr.FastForward(2 * time.Minute)

	_, hit, err = c.Get(ctx, key)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	_, err := New("127.0.0.1:1", time.Hour)
	require.Error(t, err)
}
