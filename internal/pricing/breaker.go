package pricing

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case breakerClosed:
		return "closed"
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var ErrScorerUnavailable = errors.New("pricing scorer temporarily unavailable")

// Breaker isolates the external scorer: after maxFailures consecutive
// failures calls are rejected outright until cooldown passes, then a
// single probe decides whether to close again. A stalled scorer therefore
// costs at most maxFailures timeouts before requests stop reaching it.
type Breaker struct {
	maxFailures int
	cooldown    time.Duration

	mu           sync.Mutex
	state        breakerState
	failures     int
	probing      bool
	lastFailTime time.Time

	logger *logrus.Logger
}

func NewBreaker(maxFailures int, cooldown time.Duration, logger *logrus.Logger) *Breaker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		state:       breakerClosed,
		logger:      logger,
	}
}

func (b *Breaker) Execute(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if time.Since(b.lastFailTime) < b.cooldown {
			return ErrScorerUnavailable
		}
		b.setState(breakerHalfOpen)
		b.probing = false
		fallthrough
	case breakerHalfOpen:
		if b.probing {
			return ErrScorerUnavailable
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.failures = 0
		if b.state != breakerClosed {
			b.setState(breakerClosed)
		}
		return
	}

	b.failures++
	b.lastFailTime = time.Now()
	if b.state == breakerHalfOpen || b.failures >= b.maxFailures {
		b.setState(breakerOpen)
	}
}

func (b *Breaker) setState(next breakerState) {
	prev := b.state
	b.state = next
	b.logger.WithFields(logrus.Fields{
		"from": prev.String(),
		"to":   next.String(),
	}).Info("Scorer breaker state changed")
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.String()
}
