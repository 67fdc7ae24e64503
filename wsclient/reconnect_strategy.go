package wsclient

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy is the reconnect portion of an EndpointConfig.
type RetryPolicy struct {
	Enabled     bool
	MaxAttempts int
	Delay       time.Duration
}

// PolicyFromConfig extracts the retry policy of cfg.
func PolicyFromConfig(cfg EndpointConfig) RetryPolicy {
	return RetryPolicy{Enabled: cfg.Reconnect, MaxAttempts: cfg.MaxAttempts, Delay: cfg.Delay}
}

// Unlimited reports whether the policy retries forever.
func (policy RetryPolicy) Unlimited() bool {
	return policy.Enabled && policy.MaxAttempts <= 0
}

// Allows reports whether another retry may follow attemptsMade retries.
func (policy RetryPolicy) Allows(attemptsMade int) bool {
	if !policy.Enabled {
		return false
	}
	return policy.Unlimited() || attemptsMade < policy.MaxAttempts
}

// DelayStrategy hands out the wait before each retry. NextDelay returns false
// once the strategy has no more retries to give.
type DelayStrategy interface {
	NextDelay() (time.Duration, bool)
	Reset()
}

// FixedDelayStrategy waits the same interval before every retry, optionally
// bounded to a number of retries. It never grows and never jitters.
type FixedDelayStrategy struct {
	lock    sync.Mutex
	Delay   time.Duration
	backOff backoff.BackOff
}

// NewFixedDelayStrategy returns a new FixedDelayStrategy. maxRetries of 0
// means unbounded.
func NewFixedDelayStrategy(delay time.Duration, maxRetries int) *FixedDelayStrategy {
	if delay < 0 {
		delay = 0
	}
	var policy backoff.BackOff = backoff.NewConstantBackOff(delay)
	if maxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, uint64(maxRetries))
	}
	return &FixedDelayStrategy{Delay: delay, backOff: policy}
}

// NextDelay returns the configured delay, or false when retries ran out.
func (strategy *FixedDelayStrategy) NextDelay() (time.Duration, bool) {
	if strategy == nil {
		return 0, false
	}
	strategy.lock.Lock()
	defer strategy.lock.Unlock()
	next := strategy.backOff.NextBackOff()
	if next == backoff.Stop {
		return 0, false
	}
	return next, true
}

// Reset makes the full retry budget available again.
func (strategy *FixedDelayStrategy) Reset() {
	if strategy == nil {
		return
	}
	strategy.lock.Lock()
	strategy.backOff.Reset()
	strategy.lock.Unlock()
}

// RetryScheduler decides whether a failed connection is retried and arms the
// retry timer. At most one retry is pending at a time.
type RetryScheduler struct {
	lock         sync.Mutex
	policy       RetryPolicy
	strategy     DelayStrategy
	clock        clockwork.Clock
	attemptsMade int
	timer        clockwork.Timer
	pendingID    uint64
}

// NewRetryScheduler returns a scheduler for policy. A nil clock uses real
// time.
func NewRetryScheduler(policy RetryPolicy, clock clockwork.Clock) *RetryScheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy.Delay < 0 {
		policy.Delay = 0
	}
	maxRetries := policy.MaxAttempts
	if policy.Unlimited() {
		maxRetries = 0
	}
	return &RetryScheduler{
		policy:   policy,
		strategy: NewFixedDelayStrategy(policy.Delay, maxRetries),
		clock:    clock,
	}
}

// Policy returns the scheduler's policy.
func (scheduler *RetryScheduler) Policy() RetryPolicy {
	return scheduler.policy
}

// Schedule authorizes and arms the next retry. On success the attempt counter
// has already been incremented and fire runs after exactly the configured
// delay. ok is false when reconnection is disabled, the attempts are
// exhausted, or a retry is already pending.
func (scheduler *RetryScheduler) Schedule(fire func()) (attempt int, ok bool) {
	scheduler.lock.Lock()
	defer scheduler.lock.Unlock()

	if scheduler.timer != nil || !scheduler.policy.Allows(scheduler.attemptsMade) {
		return scheduler.attemptsMade, false
	}
	delay, ok := scheduler.strategy.NextDelay()
	if !ok {
		return scheduler.attemptsMade, false
	}

	scheduler.attemptsMade++
	scheduler.pendingID++
	id := scheduler.pendingID
	scheduler.timer = scheduler.clock.AfterFunc(delay, func() {
		scheduler.lock.Lock()
		if scheduler.pendingID != id || scheduler.timer == nil {
			scheduler.lock.Unlock()
			return
		}
		scheduler.timer = nil
		scheduler.lock.Unlock()
		fire()
	})
	return scheduler.attemptsMade, true
}

// Cancel stops a pending retry. It reports whether one was pending.
func (scheduler *RetryScheduler) Cancel() bool {
	scheduler.lock.Lock()
	defer scheduler.lock.Unlock()
	if scheduler.timer == nil {
		return false
	}
	scheduler.timer.Stop()
	scheduler.timer = nil
	scheduler.pendingID++
	return true
}

// Pending reports whether a retry timer is armed.
func (scheduler *RetryScheduler) Pending() bool {
	scheduler.lock.Lock()
	defer scheduler.lock.Unlock()
	return scheduler.timer != nil
}

// Attempts returns the number of retries scheduled since the last reset.
func (scheduler *RetryScheduler) Attempts() int {
	scheduler.lock.Lock()
	defer scheduler.lock.Unlock()
	return scheduler.attemptsMade
}

// Reset zeroes the attempt counter. It does not cancel a pending retry.
func (scheduler *RetryScheduler) Reset() {
	scheduler.lock.Lock()
	scheduler.attemptsMade = 0
	scheduler.strategy.Reset()
	scheduler.lock.Unlock()
}
