package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrCircuitOpen     = errors.New("circuit breaker is open")
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

type Config struct {
	HalfOpenRequests uint32
	OpenTimeout      time.Duration
	FailureThreshold uint32
	SuccessThreshold uint32
	Logger           *zap.Logger
}

type CircuitBreaker struct {
	name             string
	halfOpenRequests uint32
	openTimeout      time.Duration
	failureThreshold uint32
	successThreshold uint32
	logger           *zap.Logger

	mu        sync.Mutex
	state     State
	inFlight  uint32
	failures  uint32
	successes uint32
	openedAt  time.Time
}

func New(name string, cfg Config) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		halfOpenRequests: cfg.HalfOpenRequests,
		openTimeout:      cfg.OpenTimeout,
		failureThreshold: cfg.FailureThreshold,
		successThreshold: cfg.SuccessThreshold,
		logger:           cfg.Logger,
	}

	if cb.halfOpenRequests == 0 {
		cb.halfOpenRequests = 1
	}
	if cb.openTimeout == 0 {
		cb.openTimeout = 30 * time.Second
	}
	if cb.failureThreshold == 0 {
		cb.failureThreshold = 5
	}
	if cb.successThreshold == 0 {
		cb.successThreshold = 2
	}

	return cb
}

func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.beforeRequest(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			cb.afterRequest(false)
			panic(r)
		}
	}()

	err := fn()
	cb.afterRequest(err == nil)
	return err
}

func (cb *CircuitBreaker) beforeRequest() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.openedAt) < cb.openTimeout {
			return ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}

	if cb.state == StateHalfOpen && cb.inFlight >= cb.halfOpenRequests {
		return ErrTooManyRequests
	}

	cb.inFlight++
	return nil
}

func (cb *CircuitBreaker) afterRequest(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.inFlight > 0 {
		cb.inFlight--
	}

	if success {
		cb.failures = 0
		cb.successes++
		if cb.state == StateHalfOpen && cb.successes >= cb.successThreshold {
			cb.transition(StateClosed)
		}
		return
	}

	cb.successes = 0
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.failureThreshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(state State) {
	if cb.state == state {
		return
	}

	prev := cb.state
	cb.state = state
	cb.failures = 0
	cb.successes = 0

	if state == StateOpen {
		cb.openedAt = time.Now()
	}

	if cb.logger != nil {
		cb.logger.Info("Circuit breaker state changed",
			zap.String("name", cb.name),
			zap.String("from", prev.String()),
			zap.String("to", state.String()),
		)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.openedAt) >= cb.openTimeout {
		return StateHalfOpen
	}
	return cb.state
}
