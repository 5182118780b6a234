package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"veritas/internal/metrics"
	"veritas/internal/resilience"
)

// AllProvidersFailed is the in-band error value the chain returns when no
// provider produced a usable result. It is data, not a thrown error: the
// caller always receives something renderable.
const AllProvidersFailed = "all providers failed"

type ChainOptions struct {
	Breaker resilience.BreakerOptions
	// Retry, when non-nil, wraps each provider call inside its breaker so a
	// transient blip recovered on retry does not count against the breaker.
	Retry *resilience.RetryPolicy
}

// Chain resolves provider names against a registry, trying the primary first
// and then each fallback in order. One long-lived circuit breaker per
// provider name is shared across all requests, so a backend that is down is
// skipped cheaply instead of re-incurring its timeout on every attempt.
type Chain struct {
	mu        sync.RWMutex
	providers map[string]Provider
	breakers  map[string]*resilience.Breaker
	opts      ChainOptions
}

func NewChain(opts ChainOptions) *Chain {
	return &Chain{
		providers: make(map[string]Provider),
		breakers:  make(map[string]*resilience.Breaker),
		opts:      opts,
	}
}

// Register binds a provider under name, creating its breaker on first use.
// Re-registering a name keeps the existing breaker state.
func (c *Chain) Register(name string, p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers[name] = p
	if _, ok := c.breakers[name]; !ok {
		c.breakers[name] = resilience.NewBreaker(name, c.opts.Breaker)
	}
}

// Remove unbinds a provider; its breaker is kept in case it comes back.
func (c *Chain) Remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.providers, name)
}

// Names returns the registered provider names.
func (c *Chain) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.providers))
	for name := range c.providers {
		names = append(names, name)
	}
	return names
}

// AnalyzeWithFallback tries primary, then each fallback in order, returning
// the first result without an in-band error marker. Success is defined by the
// payload, not by the absence of a transport error: a well-formed result that
// encodes failure moves the chain along. When everything fails, the returned
// value lists every provider name that was tried.
func (c *Chain) AnalyzeWithFallback(ctx context.Context, text, mode, primary string, fallbacks []string, report Reporter) *Analysis {
	tried := []string{primary}
	if res := c.attempt(ctx, primary, text, mode, report); !res.Failed() {
		res.ProviderUsed = primary
		return res
	}

	for _, name := range fallbacks {
		if ctx.Err() != nil {
			break
		}
		tried = append(tried, name)
		res := c.attempt(ctx, name, text, mode, report)
		if !res.Failed() {
			res.ProviderUsed = name
			res.FallbackUsed = true
			metrics.RecordFallbackUsed()
			log.Info().Str("provider", name).Msg("analysis served by fallback provider")
			return res
		}
	}

	log.Warn().Str("primary", primary).Strs("tried", tried).Msg("all providers failed")
	return &Analysis{
		Error:          AllProvidersFailed,
		ProvidersTried: tried,
	}
}

// attempt invokes one named provider through its breaker. A nil return from
// the registry (unknown name) and every failure mode come back as a failed
// Analysis so the caller has one branch.
func (c *Chain) attempt(ctx context.Context, name, text, mode string, report Reporter) *Analysis {
	c.mu.RLock()
	p, ok := c.providers[name]
	br := c.breakers[name]
	c.mu.RUnlock()
	if !ok {
		return &Analysis{Error: fmt.Sprintf("provider %q is not registered", name)}
	}

	var res *Analysis
	call := func(ctx context.Context) error {
		res = p.Analyze(ctx, text, mode, report)
		if res.Failed() {
			// Surface the context error itself so a breaker failure class
			// can tell a caller-side cancellation from a provider fault.
			if err := ctx.Err(); err != nil {
				return err
			}
			return fmt.Errorf("provider %s: %s", name, res.Error)
		}
		return nil
	}

	err := br.Do(ctx, func(ctx context.Context) error {
		if c.opts.Retry != nil {
			return c.opts.Retry.Execute(ctx, call)
		}
		return call(ctx)
	})
	metrics.SetBreakerState(name, int(br.State()))

	switch {
	case err == nil:
		metrics.RecordProviderAttempt(name, "success")
		return res
	case errors.Is(err, resilience.ErrCircuitOpen):
		metrics.RecordProviderAttempt(name, "circuit_open")
		log.Debug().Str("provider", name).Msg("skipping provider, circuit open")
		return &Analysis{Error: err.Error(), ProviderUsed: name}
	default:
		metrics.RecordProviderAttempt(name, "failure")
		if res.Failed() {
			return res
		}
		return &Analysis{Error: err.Error(), ProviderUsed: name}
	}
}
