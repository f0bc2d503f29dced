package core

import "time"

// TimedMutex is a mutex that can be acquired with a timeout instead of
// blocking forever (spec §5): the motion core and the service core touch
// shared state such as the live snapshot and pending config, and a stuck
// service-core caller must never stall a step-generation tick.
type TimedMutex struct {
	ch chan struct{}
}

// NewTimedMutex returns an unlocked TimedMutex.
func NewTimedMutex() *TimedMutex {
	m := &TimedMutex{ch: make(chan struct{}, 1)}
	m.ch <- struct{}{}
	return m
}

// TryLockTimeout attempts to acquire the mutex, giving up after timeout.
// It reports whether the lock was acquired.
func (m *TimedMutex) TryLockTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-m.ch:
			return true
		default:
			return false
		}
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-m.ch:
		return true
	case <-t.C:
		return false
	}
}

// Unlock releases the mutex. Unlocking an already-unlocked TimedMutex panics,
// same contract as sync.Mutex.
func (m *TimedMutex) Unlock() {
	select {
	case m.ch <- struct{}{}:
	default:
		panic("core: unlock of unlocked TimedMutex")
	}
}
