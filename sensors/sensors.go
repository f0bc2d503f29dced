// Package sensors reads the two limit contacts (start and end of travel)
// through a majority-voting debounce, and provides the soft/hard drift
// helpers the stepping routines consult on every step.
package sensors

import (
	"time"

	"motionctl/core"
)

// DefaultStartChecks and DefaultEndChecks are the default majority-vote
// sample counts: the start contact is checked less aggressively than the
// end contact, mirroring the asymmetric debounce budget of the original
// firmware.
const (
	DefaultStartChecks uint8 = 3
	DefaultEndChecks   uint8 = 5
)

// DefaultSampleDelay is the spacing between debounce samples.
const DefaultSampleDelay = 100 * time.Microsecond

// Contacts reads the start and end limit contacts. Both are wired
// active-low with an internal pull-up: open circuit reads HIGH (inactive),
// closed (engaged) reads LOW (active).
type Contacts struct {
	gpio              core.GPIODriver
	pinStart, pinEnd  core.GPIOPin
}

// NewContacts creates a Contacts reader over the given pins.
func NewContacts(gpio core.GPIODriver, pinStart, pinEnd core.GPIOPin) *Contacts {
	return &Contacts{gpio: gpio, pinStart: pinStart, pinEnd: pinEnd}
}

// Init configures both contact pins as pulled-up inputs.
func (c *Contacts) Init() error {
	if err := c.gpio.ConfigureInputPullUp(c.pinStart); err != nil {
		return err
	}
	return c.gpio.ConfigureInputPullUp(c.pinEnd)
}

// ReadStartRaw reads the start contact with no debounce.
func (c *Contacts) ReadStartRaw() bool { return !c.gpio.ReadPin(c.pinStart) }

// ReadEndRaw reads the end contact with no debounce.
func (c *Contacts) ReadEndRaw() bool { return !c.gpio.ReadPin(c.pinEnd) }

// IsStartActive debounces the start contact over checks samples, delayUs
// apart, using majority voting with early exit once a majority has agreed.
func (c *Contacts) IsStartActive(checks uint8, delay time.Duration) bool {
	return c.readDebounced(c.pinStart, checks, delay)
}

// IsEndActive debounces the end contact the same way as IsStartActive.
func (c *Contacts) IsEndActive(checks uint8, delay time.Duration) bool {
	return c.readDebounced(c.pinEnd, checks, delay)
}

// readDebounced requires (checks+1)/2 matching active reads (ceiling
// division for majority) and returns as soon as that majority is reached,
// so the common case — the contact clearly open or clearly closed —
// resolves in one or two samples rather than the full batch.
func (c *Contacts) readDebounced(pin core.GPIOPin, checks uint8, delay time.Duration) bool {
	validCount := 0
	requiredValid := int((checks + 1) / 2)

	for i := uint8(0); i < checks; i++ {
		if !c.gpio.ReadPin(pin) {
			validCount++
			if validCount >= requiredValid {
				return true
			}
		}
		if i < checks-1 {
			time.Sleep(delay)
		}
	}
	return false
}

// DriftConfig carries the platform-tuned soft/hard drift parameters
// (spec §9): the soft-drift buffer is a small step count tolerated beyond
// a logical limit before a correction kicks in, and the hard-drift test
// zone limits how close to a physical limit the (relatively slow,
// debounced) contact read is actually performed.
type DriftConfig struct {
	SoftDriftBufferSteps int64
	HardDriftZoneSteps   int64
}

// CheckAndCorrectDriftStart reports whether currentStep has overrun
// startStep by less than the soft-drift buffer, and if so returns the
// corrected step to reverse to. No error is raised for soft drift.
func CheckAndCorrectDriftStart(cfg DriftConfig, currentStep, startStep int64) (corrected int64, drifted bool) {
	overrun := startStep - currentStep
	if overrun > 0 && overrun <= cfg.SoftDriftBufferSteps {
		return startStep, true
	}
	return currentStep, false
}

// CheckAndCorrectDriftEnd is the end-side counterpart of
// CheckAndCorrectDriftStart.
func CheckAndCorrectDriftEnd(cfg DriftConfig, currentStep, targetStep int64) (corrected int64, drifted bool) {
	overrun := currentStep - targetStep
	if overrun > 0 && overrun <= cfg.SoftDriftBufferSteps {
		return targetStep, true
	}
	return currentStep, false
}

// CheckHardDriftStart checks the physical start contact, but only when
// currentStep is within the hard-drift test zone of startStep — outside
// that zone the debounced read is skipped entirely to keep the bulk of
// travel cheap.
func CheckHardDriftStart(c *Contacts, cfg DriftConfig, currentStep, startStep int64, checks uint8, delay time.Duration) bool {
	if currentStep-startStep > cfg.HardDriftZoneSteps {
		return false
	}
	return c.IsStartActive(checks, delay)
}

// CheckHardDriftEnd is the end-side counterpart of CheckHardDriftStart.
func CheckHardDriftEnd(c *Contacts, cfg DriftConfig, currentStep, targetStep int64, checks uint8, delay time.Duration) bool {
	if targetStep-currentStep > cfg.HardDriftZoneSteps {
		return false
	}
	return c.IsEndActive(checks, delay)
}
