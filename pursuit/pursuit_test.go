package pursuit

import (
	"testing"
	"time"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/sensors"
)

type fakeClock struct {
	micros uint64
}

func (c *fakeClock) MicroNow() uint64 { return c.micros }
func (c *fakeClock) MilliNow() uint64 { return c.micros / 1000 }
func (c *fakeClock) advance(d time.Duration) {
	c.micros += uint64(d / time.Microsecond)
}

type fakeGPIO struct {
	state map[core.GPIOPin]bool
}

func newFakeGPIO() *fakeGPIO {
	return &fakeGPIO{state: map[core.GPIOPin]bool{3: true, 4: true}}
}

func (g *fakeGPIO) ConfigureOutput(pin core.GPIOPin) error      { return nil }
func (g *fakeGPIO) ConfigureInputPullUp(pin core.GPIOPin) error { return nil }
func (g *fakeGPIO) SetPin(pin core.GPIOPin, value bool) error {
	g.state[pin] = value
	return nil
}
func (g *fakeGPIO) ReadPin(pin core.GPIOPin) bool {
	if v, ok := g.state[pin]; ok {
		return v
	}
	return true
}

type noSleep struct{}

func (noSleep) Sleep(time.Duration) {}

func newTestController() (*Controller, *fakeClock, *fakeGPIO) {
	clk := &fakeClock{}
	gpio := newFakeGPIO()
	m := motor.NewDriver(gpio, 0, 1, 2, motor.DefaultTiming())
	m.SetSleeper(noSleep{})
	m.Init()

	contacts := sensors.NewContacts(gpio, 3, 4)

	cfg := engine.DefaultConfig()
	cfg.TotalDistanceMM = 200.0
	cfg.MaxStep = motionmath.MMToSteps(cfg.Motion, 200.0)
	cfg.CurrentState = engine.StateReady

	pos := &engine.PositionState{CurrentStep: motionmath.MMToSteps(cfg.Motion, 50.0)}
	stats := &engine.StatsTracking{}

	c := New(m, contacts, clk, &cfg, pos, stats, engine.NopLogger{})
	return c, clk, gpio
}

func TestStartEntersRunningAtCurrentPosition(t *testing.T) {
	c, _, _ := newTestController()
	c.Start()

	if c.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected RUNNING, got %v", c.cfg.CurrentState)
	}
	if c.cfg.MovementType != engine.MovementPursuit {
		t.Fatalf("expected Start to claim MovementPursuit, got %v", c.cfg.MovementType)
	}
	if c.state.TargetStep != c.pos.CurrentStep {
		t.Fatal("expected the initial target to hold the current position")
	}
}

func TestSetTargetClampsToStepBounds(t *testing.T) {
	c, _, _ := newTestController()
	c.Start()

	c.SetTarget(1000.0, 10.0)
	if c.state.TargetStep != c.cfg.MaxStep {
		t.Fatalf("expected target clamped to MaxStep, got %d", c.state.TargetStep)
	}

	c.SetTarget(-1000.0, 10.0)
	if c.state.TargetStep != c.cfg.MinStep {
		t.Fatalf("expected target clamped to MinStep, got %d", c.state.TargetStep)
	}
}

func TestProcessMovesTowardTarget(t *testing.T) {
	c, clk, _ := newTestController()
	c.Start()
	c.SetTarget(70.0, 10.0)

	startStep := c.pos.CurrentStep
	for i := 0; i < 500; i++ {
		clk.advance(200 * time.Microsecond)
		c.Process()
	}

	if c.pos.CurrentStep <= startStep {
		t.Fatal("expected pursuit to move the carriage toward a larger target")
	}
}

func TestProcessStopsExactlyAtTarget(t *testing.T) {
	c, clk, _ := newTestController()
	c.Start()
	c.SetTarget(50.5, 10.0) // 40 steps past the 50mm start

	for i := 0; i < 500; i++ {
		clk.advance(50 * time.Microsecond)
		c.Process()
	}

	if c.pos.CurrentStep != c.state.TargetStep {
		t.Fatalf("expected carriage to settle exactly at target %d, got %d", c.state.TargetStep, c.pos.CurrentStep)
	}
	if c.state.IsMoving {
		t.Fatal("expected IsMoving to clear once the target is reached")
	}
}

func TestCheckSafetyContactsTripsOnEndContact(t *testing.T) {
	c, _, gpio := newTestController()
	c.Start()

	gpio.state[4] = false // end contact engaged (active-low)
	nextStep := c.cfg.MaxStep
	c.pos.CurrentStep = nextStep - 1 // within the hard-drift test zone

	if c.checkSafetyContacts(nextStep) {
		t.Fatal("expected checkSafetyContacts to report unsafe with end contact engaged")
	}
}

func TestTogglePauseFlipsRunningAndPaused(t *testing.T) {
	c, _, _ := newTestController()
	c.Start()

	c.TogglePause()
	if c.cfg.CurrentState != engine.StatePaused {
		t.Fatalf("expected PAUSED, got %v", c.cfg.CurrentState)
	}
	c.TogglePause()
	if c.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected RUNNING, got %v", c.cfg.CurrentState)
	}
}
