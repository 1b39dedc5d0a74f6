package flowerrors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// ErrCircuitOpen is reported by CircuitBreaker.Err while it refuses retries.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Policy decides whether a failed element is tried again.
//
// Retry calls it with the 1-based number of the failed attempt, the error and
// the element that failed. Implementations perform any delay themselves and
// return false to give up; they must return promptly once ctx is done.
type Policy interface {
	Retry(ctx context.Context, attempt int, err error, value any) bool
}

// PolicyFunc adapts an ordinary function to a Policy.
type PolicyFunc func(ctx context.Context, attempt int, err error, value any) bool

func (f PolicyFunc) Retry(ctx context.Context, attempt int, err error, value any) bool {
	return f(ctx, attempt, err, value)
}

// Resetter is implemented by policies that keep state across elements.
// Retry calls Reset after every element that goes through successfully.
type Resetter interface {
	Reset()
}

// BackoffStrategy defines how to calculate delay between retries.
type BackoffStrategy func(attempt int) time.Duration

// ConstantBackoff returns a BackoffStrategy that always waits the same duration.
func ConstantBackoff(delay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		return delay
	}
}

// LinearBackoff returns a BackoffStrategy that increases delay linearly.
func LinearBackoff(initialDelay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		return time.Duration(attempt) * initialDelay
	}
}

// ExponentialBackoff returns a BackoffStrategy that doubles delay each attempt,
// starting at initialDelay for the first one.
// The delay is capped at maxDelay if provided (use 0 for no cap).
func ExponentialBackoff(initialDelay, maxDelay time.Duration) BackoffStrategy {
	return func(attempt int) time.Duration {
		delay := initialDelay * time.Duration(math.Pow(2, float64(max(attempt-1, 0))))
		if maxDelay > 0 && delay > maxDelay {
			return maxDelay
		}
		return delay
	}
}

// PowerBackoff waits attempt^exp units.
func PowerBackoff(unit time.Duration, exp float64) BackoffStrategy {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(float64(attempt), exp) * float64(unit))
	}
}

// CappedPowerBackoff waits min(base^attempt, base^capExp) units.
func CappedPowerBackoff(unit time.Duration, base float64, capExp int) BackoffStrategy {
	return func(attempt int) time.Duration {
		return time.Duration(math.Pow(base, float64(min(attempt, capExp))) * float64(unit))
	}
}

// DefaultLimit is the number of retries a Backoff with a zero Limit allows.
const DefaultLimit = 5

// Backoff is a Policy that sleeps Strategy(attempt), scaled by a random
// factor in [1-Jitter, 1+Jitter], and gives up once attempt exceeds Limit.
// A zero Limit means DefaultLimit; a negative one never gives up.
type Backoff struct {
	Strategy BackoffStrategy
	Jitter   float64
	Limit    int
}

// DefaultBackoff waits attempt^3 seconds with 30% jitter, five times.
func DefaultBackoff() *Backoff {
	return &Backoff{
		Strategy: PowerBackoff(time.Second, 3),
		Jitter:   0.3,
		Limit:    DefaultLimit,
	}
}

// ForegroundBackoff suits work a caller is waiting on: it waits 2, 4, 8, 8,
// ... seconds and never gives up.
func ForegroundBackoff() *Backoff {
	return &Backoff{
		Strategy: CappedPowerBackoff(time.Second, 2, 3),
		Limit:    -1,
	}
}

func (b *Backoff) Retry(ctx context.Context, attempt int, _ error, _ any) bool {
	limit := b.Limit
	if limit == 0 {
		limit = DefaultLimit
	}
	if limit > 0 && attempt > limit {
		return false
	}
	return sleep(ctx, b.Delay(attempt))
}

// Delay returns the jittered wait before retrying attempt.
func (b *Backoff) Delay(attempt int) time.Duration {
	if b.Strategy == nil {
		return 0
	}
	delay := float64(b.Strategy(attempt))
	if b.Jitter > 0 {
		delay *= 1 - b.Jitter + rand.Float64()*2*b.Jitter
	}
	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// BackoffConfig describes a Backoff in configuration files.
type BackoffConfig struct {
	// Strategy is one of "power", "exponential", "linear" or "constant".
	Strategy string        `mapstructure:"strategy"`
	Unit     time.Duration `mapstructure:"unit"`
	// Exponent is used by the power strategy.
	Exponent float64 `mapstructure:"exponent"`
	// MaxDelay caps the exponential strategy; zero means no cap.
	MaxDelay time.Duration `mapstructure:"max_delay"`
	Jitter   float64       `mapstructure:"jitter"`
	Limit    int           `mapstructure:"limit"`
}

// DefaultBackoffConfig mirrors DefaultBackoff.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		Strategy: "power",
		Unit:     time.Second,
		Exponent: 3,
		Jitter:   0.3,
		Limit:    DefaultLimit,
	}
}

// Validate reports configuration a Backoff cannot be built from.
func (c BackoffConfig) Validate() error {
	switch c.Strategy {
	case "", "power", "exponential", "linear", "constant":
	default:
		return fmt.Errorf("unknown backoff strategy %q", c.Strategy)
	}
	if c.Jitter < 0 || c.Jitter > 1 {
		return fmt.Errorf("backoff jitter %v out of range [0, 1]", c.Jitter)
	}
	if c.Unit < 0 {
		return fmt.Errorf("negative backoff unit %v", c.Unit)
	}
	return nil
}

// NewBackoff builds the Backoff described by cfg.
func NewBackoff(cfg BackoffConfig) (*Backoff, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var strategy BackoffStrategy
	switch cfg.Strategy {
	case "", "power":
		exp := cfg.Exponent
		if exp == 0 {
			exp = 3
		}
		strategy = PowerBackoff(cfg.Unit, exp)
	case "exponential":
		strategy = ExponentialBackoff(cfg.Unit, cfg.MaxDelay)
	case "linear":
		strategy = LinearBackoff(cfg.Unit)
	case "constant":
		strategy = ConstantBackoff(cfg.Unit)
	}

	return &Backoff{Strategy: strategy, Jitter: cfg.Jitter, Limit: cfg.Limit}, nil
}

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker wraps a Policy and stops retrying altogether once too many
// failures happen in a row.
//   - FailureThreshold consecutive failures open the circuit
//   - an open circuit refuses every retry until ResetTimeout has passed
//   - the first failure after that half-opens it and is retried once more;
//     another failure opens it again, a success (Reset) closes it
type CircuitBreaker struct {
	Policy           Policy
	FailureThreshold int
	ResetTimeout     time.Duration

	mu          sync.Mutex
	state       CircuitState
	failures    int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed circuit breaker around policy.
func NewCircuitBreaker(policy Policy, failureThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if resetTimeout <= 0 {
		resetTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		Policy:           policy,
		FailureThreshold: failureThreshold,
		ResetTimeout:     resetTimeout,
	}
}

func (cb *CircuitBreaker) Retry(ctx context.Context, attempt int, err error, value any) bool {
	if !cb.allow() {
		return false
	}
	return cb.Policy.Retry(ctx, attempt, err, value)
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	switch cb.state {
	case CircuitOpen:
		if now.Sub(cb.lastFailure) < cb.ResetTimeout {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.lastFailure = now
		return true
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.lastFailure = now
		return false
	}

	cb.failures++
	cb.lastFailure = now
	if cb.failures >= cb.FailureThreshold {
		cb.state = CircuitOpen
		return false
	}
	return true
}

// Reset closes the circuit and forgets past failures.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = CircuitClosed
	cb.failures = 0
	if r, ok := cb.Policy.(Resetter); ok {
		r.Reset()
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Err returns ErrCircuitOpen while the circuit refuses retries.
func (cb *CircuitBreaker) Err() error {
	if cb.State() == CircuitOpen {
		return ErrCircuitOpen
	}
	return nil
}
