//go:build rp2350

package main

import (
	"runtime/volatile"
	"unsafe"
)

// RP2350 TIMER0 peripheral: a free-running 64-bit microsecond counter.
// NOTE: RP2350's timer lives at a different address than RP2040's
// (0x400B0000 vs 0x40054000).
const (
	timerBase     = 0x400B0000
	timerTimeRawH = timerBase + 0x24 // raw (unlatched) high 32 bits
	timerTimeRawL = timerBase + 0x28 // raw (unlatched) low 32 bits
)

var (
	timerRawH = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawH)))
	timerRawL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTimeRawL)))
)

// RP2350Clock implements core.Clock directly against the hardware
// microsecond timer — no interrupt-driven Advance() is needed since the
// register is free-running and can be read at any time.
type RP2350Clock struct{}

// NewRP2350Clock creates a Clock backed by the hardware timer. Callers
// should read a few values immediately after boot and discard them, since
// the timer needs a moment to stabilize after TinyGo's clock init.
func NewRP2350Clock() *RP2350Clock {
	_ = timerRawL.Get()
	_ = timerRawL.Get()
	return &RP2350Clock{}
}

// hardwareMicros reads the full 64-bit counter, retrying if a rollover of
// the low word is caught mid-read.
func hardwareMicros() uint64 {
	for {
		high1 := timerRawH.Get()
		low := timerRawL.Get()
		high2 := timerRawH.Get()
		if high1 == high2 {
			return (uint64(high1) << 32) | uint64(low)
		}
	}
}

func (c *RP2350Clock) MicroNow() uint64 { return hardwareMicros() }
func (c *RP2350Clock) MilliNow() uint64 { return hardwareMicros() / 1000 }
