package kubeapi

import (
	"math/rand"
	"time"
)

// BackoffKind selects how the retry iterator grows its delay between
// attempts.
type BackoffKind int

const (
	BackoffNone BackoffKind = iota
	BackoffFixed
	BackoffExponential
)

// Backoff computes the next delay from the current one. None always yields
// zero; FixedDelay adds a constant; Exponential multiplies and clamps at
// MaxDelay.
type Backoff struct {
	Kind       BackoffKind
	FixedDelay time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

func (b Backoff) computeNext(current time.Duration) time.Duration {
	switch b.Kind {
	case BackoffFixed:
		return current + b.FixedDelay
	case BackoffExponential:
		next := time.Duration(float64(current) * b.Multiplier)
		if next > b.MaxDelay {
			next = b.MaxDelay
		}
		return next
	default:
		return 0
	}
}

// RetryPolicyKind selects whether a WatchTask retries forever, never, or up
// to a fixed attempt count.
type RetryPolicyKind int

const (
	PolicyAlways RetryPolicyKind = iota
	PolicyNever
	PolicyMaxAttempts
)

type RetryPolicy struct {
	Kind        RetryPolicyKind
	MaxAttempts uint
}

func (p RetryPolicy) shouldRetry(attempt uint) bool {
	switch p.Kind {
	case PolicyAlways:
		return true
	case PolicyNever:
		return false
	case PolicyMaxAttempts:
		return attempt <= p.MaxAttempts
	default:
		return false
	}
}

// RetryStrategy is the policy+backoff pair governing a WatchTask's
// automatic reconnection.
type RetryStrategy struct {
	InitialDelay time.Duration
	Jitter       float64
	Policy       RetryPolicy
	Backoff      Backoff
}

// DefaultRetryStrategy matches spec §4.H's stated default: up to 10
// attempts, a fixed 5s backoff, a 1s initial delay and 20% jitter.
var DefaultRetryStrategy = RetryStrategy{
	InitialDelay: time.Second,
	Jitter:       0.2,
	Policy:       RetryPolicy{Kind: PolicyMaxAttempts, MaxAttempts: 10},
	Backoff:      Backoff{Kind: BackoffFixed, FixedDelay: 5 * time.Second},
}

// RetryAttempt is one emission of the retry iterator.
type RetryAttempt struct {
	Attempt uint
	Delay   time.Duration
}

// retryIterator is owned by exactly one WatchTask loop; it is never shared.
type retryIterator struct {
	strategy RetryStrategy
	started  bool
	attempt  uint
	current  time.Duration
}

func newRetryIterator(s RetryStrategy) *retryIterator {
	return &retryIterator{strategy: s}
}

// next returns the next (attempt, delay) pair, or ok=false when the policy
// is exhausted.
func (it *retryIterator) next() (RetryAttempt, bool) {
	if !it.started {
		it.started = true
		it.attempt = 1
		it.current = it.strategy.InitialDelay
		if !it.strategy.Policy.shouldRetry(it.attempt) {
			return RetryAttempt{}, false
		}
		return RetryAttempt{Attempt: it.attempt, Delay: it.current}, true
	}

	it.attempt++
	if !it.strategy.Policy.shouldRetry(it.attempt) {
		return RetryAttempt{}, false
	}
	it.current = it.strategy.Backoff.computeNext(it.current)
	delay := it.current
	if it.strategy.Jitter > 0 {
		delay = applyJitter(delay, it.strategy.Jitter)
	}
	return RetryAttempt{Attempt: it.attempt, Delay: delay}, true
}

// applyJitter perturbs d by uniform(-jitter*d, +jitter*d), floored at zero.
func applyJitter(d time.Duration, jitter float64) time.Duration {
	delta := float64(d) * jitter
	offset := (rand.Float64()*2 - 1) * delta
	result := d + time.Duration(offset)
	if result < 0 {
		return 0
	}
	return result
}
