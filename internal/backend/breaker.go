package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"batchloader/internal/lookup"
)

// ErrBreakerOpen is returned while the breaker rejects fetches
var ErrBreakerOpen = errors.New("backend circuit breaker is open")

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	HalfOpenMaxRequests int
}

// Breaker is a Backend that stops calling next after consecutive
// failures and lets a few probes through once the recovery timeout passed
type Breaker struct {
	next            Backend
	cfg             BreakerConfig
	state           breakerState
	failures        int
	halfOpenSuccess int
	lastFailureAt   time.Time
	mu              sync.Mutex
}

// NewBreaker wraps next with a circuit breaker
func NewBreaker(next Backend, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = 2
	}
	return &Breaker{
		next:  next,
		cfg:   cfg,
		state: breakerClosed,
	}
}

// FetchMany implements Backend
func (b *Breaker) FetchMany(ctx context.Context, batch lookup.Batch) (map[any]lookup.Record, error) {
	if !b.allow() {
		return nil, ErrBreakerOpen
	}
	records, err := b.next.FetchMany(ctx, batch)
	b.record(err)
	return records, err
}

// FindMany implements Backend
func (b *Breaker) FindMany(ctx context.Context, q lookup.RangeQuery) ([]lookup.Record, error) {
	if !b.allow() {
		return nil, ErrBreakerOpen
	}
	records, err := b.next.FindMany(ctx, q)
	b.record(err)
	return records, err
}

// Close implements Backend
func (b *Breaker) Close() error {
	return b.next.Close()
}

// Open reports whether fetches are currently rejected
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerHalfOpen:
		return b.halfOpenSuccess < b.cfg.HalfOpenMaxRequests
	case breakerOpen:
		if time.Since(b.lastFailureAt) >= b.cfg.RecoveryTimeout {
			b.state = breakerHalfOpen
			b.halfOpenSuccess = 0
			return true
		}
		return false
	default:
		return true
	}
}

// record updates the state after a call. A caller cancelling its own
// request is not a backend failure.
func (b *Breaker) record(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case breakerHalfOpen:
			b.halfOpenSuccess++
			if b.halfOpenSuccess >= b.cfg.HalfOpenMaxRequests {
				b.state = breakerClosed
				b.failures = 0
			}
		case breakerClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailureAt = time.Now()

	switch b.state {
	case breakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.state = breakerOpen
		}
	case breakerHalfOpen:
		b.state = breakerOpen
		b.halfOpenSuccess = 0
	}
}
