package motor

import (
	"testing"
	"time"

	"motionctl/core"
)

type fakeGPIO struct {
	outputs map[core.GPIOPin]bool
	state   map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{outputs: map[core.GPIOPin]bool{}, state: map[core.GPIOPin]bool{}}
}

func (f *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error {
	f.outputs[pin] = true
	return nil
}
func (f *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error {
	f.outputs[pin] = false
	return nil
}
func (f *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	f.state[pin] = value
	return nil
}
func (f *fakeGPIO) ReadPin(pin core.GPIOPin) bool { return f.state[pin] }

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

func newTestDriver() (*Driver, *fakeGPIO) {
	gpio := newFakeGPIO()
	d := NewDriver(gpio, 0, 1, 2, DefaultTiming())
	d.SetSleeper(noSleep{})
	return d, gpio
}

func TestInitLeavesMotorDisabledAndForward(t *testing.T) {
	d, gpio := newTestDriver()
	if err := d.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if d.IsEnabled() {
		t.Error("expected disabled after Init")
	}
	if !d.Direction() {
		t.Error("expected forward after Init")
	}
	if gpio.state[2] != true {
		t.Error("expected ENABLE pin HIGH (inactive) after Init")
	}
}

func TestEnableDisableIdempotent(t *testing.T) {
	d, gpio := newTestDriver()
	d.Init()

	d.Enable()
	if !d.IsEnabled() || gpio.state[2] != false {
		t.Fatal("expected enabled and ENABLE pin LOW")
	}
	d.Enable() // second call is a no-op, should not panic or change state
	if !d.IsEnabled() {
		t.Fatal("expected still enabled")
	}

	d.Disable()
	if d.IsEnabled() || gpio.state[2] != true {
		t.Fatal("expected disabled and ENABLE pin HIGH")
	}
}

func TestSetDirectionOnlyTogglesOnChange(t *testing.T) {
	d, gpio := newTestDriver()
	d.Init()

	d.SetDirection(true) // already forward, no-op
	if gpio.state[1] != true {
		t.Fatal("expected DIR pin to remain HIGH")
	}

	d.SetDirection(false)
	if d.Direction() != false || gpio.state[1] != false {
		t.Fatal("expected direction flipped to backward")
	}
}

func TestStepPulsesAndCountsPending(t *testing.T) {
	d, _ := newTestDriver()
	d.Init()
	d.ResetPendTracking()

	for i := 0; i < 5; i++ {
		d.Step()
	}
	if got := d.PendingSteps(); got != 5 {
		t.Fatalf("PendingSteps() = %d, want 5", got)
	}

	d.ResetPendTracking()
	if got := d.PendingSteps(); got != 0 {
		t.Fatalf("PendingSteps() after reset = %d, want 0", got)
	}
}

type fakeBackend struct {
	steps     int
	lastDir   bool
	sawDirSet bool
}

func (b *fakeBackend) Step()                      { b.steps++ }
func (b *fakeBackend) SetDirection(forward bool)  { b.lastDir = forward; b.sawDirSet = true }

func TestSetBackendDelegatesStepAndDirection(t *testing.T) {
	d, gpio := newTestDriver()
	d.Init()
	backend := &fakeBackend{}
	d.SetBackend(backend)

	d.Step()
	d.Step()
	if backend.steps != 2 {
		t.Fatalf("backend.steps = %d, want 2", backend.steps)
	}
	if gpio.state[0] {
		t.Fatal("expected STEP pin untouched once a backend is set")
	}

	d.SetDirection(false)
	if !backend.sawDirSet || backend.lastDir != false {
		t.Fatal("expected SetDirection to delegate to the backend")
	}
	if d.Direction() != false {
		t.Fatal("expected Driver's own direction bookkeeping to still update")
	}
}
