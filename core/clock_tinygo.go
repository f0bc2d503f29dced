//go:build tinygo

package core

import "sync/atomic"

// TinyGoClock is the Clock backed by a free-running microsecond counter fed
// by a hardware timer interrupt on the target MCU. Advance is called from
// that interrupt handler; MicroNow/MilliNow are read from the motion loop
// and never touch the interrupt-disabled path themselves.
type TinyGoClock struct {
	micros uint64
}

// NewTinyGoClock creates a clock starting at zero. The caller wires a
// hardware timer to call Advance at a known interval before motion starts.
func NewTinyGoClock() *TinyGoClock {
	return &TinyGoClock{}
}

// Advance adds deltaMicros to the running counter. Safe to call from an
// interrupt handler.
func (c *TinyGoClock) Advance(deltaMicros uint64) {
	atomic.AddUint64(&c.micros, deltaMicros)
}

func (c *TinyGoClock) MicroNow() uint64 {
	return atomic.LoadUint64(&c.micros)
}

func (c *TinyGoClock) MilliNow() uint64 {
	return atomic.LoadUint64(&c.micros) / 1000
}
