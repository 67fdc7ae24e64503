package testutil

import (
	"sync"
	"testing"
	"time"
)

// Counter is a goroutine-safe integer counter for fakes that count calls.
type Counter struct {
	lock  sync.Mutex
	value int
}

// Next increments and returns counter value.
func (counter *Counter) Next() int {
	counter.lock.Lock()
	defer counter.lock.Unlock()
	counter.value++
	return counter.value
}

// Value returns the current count without incrementing it.
func (counter *Counter) Value() int {
	counter.lock.Lock()
	defer counter.lock.Unlock()
	return counter.value
}

// PollInterval is how often Eventually re-checks its condition.
const PollInterval = 2 * time.Millisecond

// Eventually polls condition until it holds or timeout elapses, then fails
// the test with the formatted message.
func Eventually(t testing.TB, timeout time.Duration, condition func() bool, format string, args ...interface{}) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf(format, args...)
			return
		}
		time.Sleep(PollInterval)
	}
}
