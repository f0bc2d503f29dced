// Package motor drives the STEP/DIR/ENABLE pins of the stepper driver.
// It knows nothing about movement modes or motion math — just how to pulse
// a step, hold a direction change for the driver's settle time, and gate
// the driver enable line.
package motor

import (
	"time"

	"motionctl/core"
)

// Timing is the stepper driver's electrical timing requirements. Defaults
// match an HSS86-class driver: minimum 2.5µs pulse width (3µs used for
// margin) and a settle delay after a direction change before the next step.
type Timing struct {
	StepPulse      time.Duration
	DirChangeDelay time.Duration
}

// DefaultTiming returns HSS86-class driver timing.
func DefaultTiming() Timing {
	return Timing{
		StepPulse:      3 * time.Microsecond,
		DirChangeDelay: 5 * time.Microsecond,
	}
}

// Sleeper abstracts the busy-wait used between pulse edges, so tests can
// run without real microsecond delays and TinyGo targets can use a tighter
// spin-wait than time.Sleep.
type Sleeper interface {
	Sleep(d time.Duration)
}

// realSleeper sleeps for real; used outside of tests.
type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// Backend abstracts step-pulse generation. Driver bit-bangs STEP/DIR over
// a GPIODriver by default; a hardware pulse generator (a PIO state
// machine, say) can be swapped in via SetBackend without changing how
// the movement controllers call Step/SetDirection.
type Backend interface {
	Step()
	SetDirection(forward bool)
}

// Driver pulses STEP, holds DIR, and gates ENABLE on a GPIODriver. Forward
// is HIGH on DIR and LOW (active) on ENABLE, matching the original HSS86
// wiring convention.
type Driver struct {
	gpio    core.GPIODriver
	timing  Timing
	sleep   Sleeper
	backend Backend

	pinStep, pinDir, pinEnable core.GPIOPin

	enabled    bool
	forward    bool
	pendingSteps int
}

// NewDriver creates a Driver over the given GPIO pins. It does not touch
// hardware until Init is called.
func NewDriver(gpio core.GPIODriver, pinStep, pinDir, pinEnable core.GPIOPin, timing Timing) *Driver {
	return &Driver{
		gpio:      gpio,
		timing:    timing,
		sleep:     realSleeper{},
		pinStep:   pinStep,
		pinDir:    pinDir,
		pinEnable: pinEnable,
		forward:   true,
	}
}

// SetSleeper overrides the busy-wait implementation; used by tests.
func (d *Driver) SetSleeper(s Sleeper) { d.sleep = s }

// SetBackend swaps in a hardware pulse generator. Once set, Step and
// SetDirection delegate to it instead of bit-banging pinStep/pinDir
// directly; ENABLE stays on the GPIODriver either way.
func (d *Driver) SetBackend(b Backend) { d.backend = b }

// Init configures the GPIO pins and leaves the motor disabled, facing
// forward, with the pulse line idle low.
func (d *Driver) Init() error {
	if err := d.gpio.ConfigureOutput(d.pinStep); err != nil {
		return err
	}
	if err := d.gpio.ConfigureOutput(d.pinDir); err != nil {
		return err
	}
	if err := d.gpio.ConfigureOutput(d.pinEnable); err != nil {
		return err
	}

	d.gpio.SetPin(d.pinEnable, true) // active LOW: true = disabled
	d.gpio.SetPin(d.pinDir, true)    // forward
	d.gpio.SetPin(d.pinStep, false)  // idle low
	d.enabled = false
	d.forward = true
	return nil
}

// Step emits one STEP pulse: HIGH, hold, LOW, hold. Blocking — callers on
// the motion core call this directly from their tick, never from a goroutine.
func (d *Driver) Step() {
	if d.backend != nil {
		d.backend.Step()
		d.pendingSteps++
		return
	}
	d.gpio.SetPin(d.pinStep, true)
	d.sleep.Sleep(d.timing.StepPulse)
	d.gpio.SetPin(d.pinStep, false)
	d.sleep.Sleep(d.timing.StepPulse)
	d.pendingSteps++
}

// SetDirection drives DIR, holding the driver's settle delay only when the
// direction actually changes.
func (d *Driver) SetDirection(forward bool) {
	if forward == d.forward {
		return
	}
	if d.backend != nil {
		d.backend.SetDirection(forward)
		d.forward = forward
		return
	}
	d.gpio.SetPin(d.pinDir, forward)
	d.sleep.Sleep(d.timing.DirChangeDelay)
	d.forward = forward
}

// Direction reports the last direction set.
func (d *Driver) Direction() bool { return d.forward }

// Enable drives ENABLE active (LOW).
func (d *Driver) Enable() {
	if d.enabled {
		return
	}
	d.gpio.SetPin(d.pinEnable, false)
	d.enabled = true
}

// Disable drives ENABLE inactive (HIGH).
func (d *Driver) Disable() {
	if !d.enabled {
		return
	}
	d.gpio.SetPin(d.pinEnable, true)
	d.enabled = false
}

// IsEnabled reports whether the driver is currently enabled.
func (d *Driver) IsEnabled() bool { return d.enabled }

// PendingSteps returns the step count accumulated since the last
// ResetPendTracking call, used by stats tracking to detect drift between
// the motor's own step count and the controller's currentStep bookkeeping.
func (d *Driver) PendingSteps() int { return d.pendingSteps }

// ResetPendTracking zeroes the pending-step counter. Called when a movement
// starts so a stale count from a previous run never contaminates drift
// stats for the new one.
func (d *Driver) ResetPendTracking() { d.pendingSteps = 0 }
