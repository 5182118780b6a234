// Package resilience provides fault-tolerance primitives used around provider
// calls: a circuit breaker per dependency and a deterministic retry policy.
package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrCircuitOpen is returned without invoking the wrapped call while the
// breaker cools down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type BreakerOptions struct {
	// FailureThreshold is the failure count at which the breaker opens.
	FailureThreshold int
	// RecoveryTimeout is the cooldown before a single trial call is allowed.
	RecoveryTimeout time.Duration
	// FailureClass decides which errors count against the breaker. Errors
	// outside the class pass through without touching breaker state. Nil
	// means every non-nil error counts.
	FailureClass func(error) bool
}

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 60 * time.Second
)

// Breaker guards one dependency. State transitions are serialized by a single
// mutex so concurrent calls through the same instance observe them atomically.
type Breaker struct {
	name      string
	threshold int
	recovery  time.Duration
	isFailure func(error) bool

	mu            sync.Mutex
	state         State
	failureCount  int
	lastFailure   time.Time
	trialInFlight bool
}

func NewBreaker(name string, opts BreakerOptions) *Breaker {
	if opts.FailureThreshold <= 0 {
		opts.FailureThreshold = defaultFailureThreshold
	}
	if opts.RecoveryTimeout <= 0 {
		opts.RecoveryTimeout = defaultRecoveryTimeout
	}
	if opts.FailureClass == nil {
		opts.FailureClass = func(err error) bool { return err != nil }
	}
	return &Breaker{
		name:      name,
		threshold: opts.FailureThreshold,
		recovery:  opts.RecoveryTimeout,
		isFailure: opts.FailureClass,
	}
}

func (b *Breaker) Name() string { return b.name }

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do invokes fn unless the breaker is open. A successful call in half-open
// state closes the breaker and resets the failure count; a failing one
// reopens it. Errors outside the configured failure class are returned
// unchanged without affecting state.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if time.Since(b.lastFailure) >= b.recovery {
			b.state = StateHalfOpen
			b.trialInFlight = true
			log.Info().Str("breaker", b.name).Msg("circuit breaker half-open, allowing trial call")
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		// one trial call at a time
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false

	if err != nil && b.isFailure(err) {
		b.failureCount++
		b.lastFailure = time.Now()
		if b.state == StateHalfOpen || b.failureCount >= b.threshold {
			if b.state != StateOpen {
				log.Warn().Str("breaker", b.name).Int("failures", b.failureCount).Msg("circuit breaker opened")
			}
			b.state = StateOpen
		}
		return
	}

	if err == nil && b.state == StateHalfOpen {
		b.state = StateClosed
		b.failureCount = 0
		log.Info().Str("breaker", b.name).Msg("circuit breaker closed after successful trial")
	}
}
