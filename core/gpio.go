// Package core defines the platform contracts the motion engine is built
// against: GPIO access, the microsecond/millisecond clock, a timed mutex
// for cross-core state, a pseudo-random source, and a cooperative timer
// scheduler for periodic maintenance work. Nothing in this package touches
// specific silicon — that lives under targets/.
package core

// GPIOPin identifies a hardware GPIO pin number.
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface the motion engine is built
// against. Platform-specific implementations under targets/ back it with
// real hardware; tests back it with an in-memory fake.
//
// The engine needs exactly the pins spec'd in §6: STEP, DIR, ENABLE for the
// motor, and two pulled-up inputs for the limit contacts.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output.
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with an
	// internal pull-up resistor (both limit contacts use this).
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin drives a pin high (true) or low (false).
	SetPin(pin GPIOPin, value bool) error

	// ReadPin reads the current pin state.
	ReadPin(pin GPIOPin) bool
}
