// Package poller implements a condition-polling helper for tests that wait
// on asynchronous background work, such as the garbage collector's epoch
// advancement and reclamation daemon.
package poller

import (
	"testing"
	"time"
)

// WaitFor continuously calls poll until check returns true. It then polls for
// a little longer to make sure that poll still returns a value v such that check(v)
// is true. If the condition never happens, or the condition becomes true
// and then false, it invokes t.Fatal.
//
// If poll returns an error, WaitFor calls Fatal.
//
// WaitFor returns the last value that poll returned.
func WaitFor[T any](t *testing.T, timeout time.Duration, poll func() (T, error), check func(T) bool) T {
	t.Helper()

	const (
		confirmDelay = 3
		pollInterval = 2 * time.Millisecond
	)
	deadline := time.Now().Add(timeout)
	confirmations := 0
	var last T
	for {
		v, err := poll()
		if err != nil {
			t.Fatalf("poller: poll returned error: %v", err)
		}
		last = v
		if check(v) {
			confirmations++
			if confirmations >= confirmDelay {
				return last
			}
		} else if confirmations > 0 {
			t.Fatalf("poller: condition became true then false again (value %v)", v)
		}
		if time.Now().After(deadline) {
			t.Fatalf("poller: condition never became true within %s (last value %v)", timeout, last)
		}
		time.Sleep(pollInterval)
	}
}
