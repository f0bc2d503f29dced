//go:build !tinygo

package core

import "time"

// SystemClock is the regular-Go Clock backed by time.Now, used by the host
// harness and by tests. TinyGo targets use clock_tinygo.go instead.
type SystemClock struct {
	boot time.Time
}

// NewSystemClock creates a clock zeroed at the current wall-clock time.
func NewSystemClock() *SystemClock {
	return &SystemClock{boot: time.Now()}
}

func (c *SystemClock) MicroNow() uint64 {
	return uint64(time.Since(c.boot).Microseconds())
}

func (c *SystemClock) MilliNow() uint64 {
	return uint64(time.Since(c.boot).Milliseconds())
}
