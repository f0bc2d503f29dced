package calibration

import (
	"testing"
	"time"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motor"
	"motionctl/sensors"
)

// fakeClock is manually advanced via advance() by most tests. Setting
// autoTick makes every MicroNow() call itself elapse that many
// microseconds, which lets a fully synchronous call chain (like
// ReturnToStart, which blocks until homing completes) make timing
// progress without a concurrent goroutine driving the clock.
type fakeClock struct {
	micros   uint64
	autoTick uint64
}

func (c *fakeClock) MicroNow() uint64 {
	c.micros += c.autoTick
	return c.micros
}
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

func newTestManager() (*Manager, *fakeClock, *fakeGPIO, *engine.Config, *engine.PositionState) {
	clk := &fakeClock{}
	gpio := newFakeGPIO()
	m := motor.NewDriver(gpio, 0, 1, 2, motor.DefaultTiming())
	m.SetSleeper(noSleep{})
	m.Init()

	cfg := engine.DefaultConfig()
	cfg.SafetyOffsetSteps = 5
	pos := &engine.PositionState{CurrentStep: 1000}
	contacts := sensors.NewContacts(gpio, 3, 4)

	mgr := New(m, contacts, clk, &cfg, pos, engine.NopLogger{})
	return mgr, clk, gpio, &cfg, pos
}

// runTicks drives Process in a loop, advancing the clock by the current
// step delay each iteration and letting a caller-supplied callback flip
// contact pins based on the manager's travel so far.
func runTicks(t *testing.T, mgr *Manager, clk *fakeClock, maxTicks int, beforeTick func()) {
	t.Helper()
	for i := 0; i < maxTicks; i++ {
		if mgr.CurrentState() == StateFinished || mgr.CurrentState() == StateFailed {
			return
		}
		clk.advance(time.Duration(mgr.stepDelay)*time.Microsecond + time.Microsecond)
		beforeTick()
		mgr.Process()
	}
}

func TestHomingDiscoversTotalTravel(t *testing.T) {
	mgr, clk, gpio, cfg, pos := newTestManager()
	mgr.state = StateMovingToStart
	mgr.stepDelay = 20
	mgr.lastStepMicros = clk.MicroNow()

	const stepsToStart = 50
	const stepsToEnd = 300

	runTicks(t, mgr, clk, 5000, func() {
		switch mgr.CurrentState() {
		case StateMovingToStart:
			if pos.CurrentStep <= 1000-stepsToStart {
				gpio.state[3] = false
			}
		case StateLeavingStart:
			gpio.state[3] = true
		case StateMovingToEnd:
			if pos.CurrentStep >= stepsToEnd {
				gpio.state[4] = false
			}
		case StateLeavingEnd:
			gpio.state[4] = true
		}
	})

	if mgr.CurrentState() != StateFinished {
		t.Fatalf("expected calibration to finish, stuck in %v", mgr.CurrentState())
	}
	if cfg.TotalDistanceMM <= 0 {
		t.Fatalf("expected positive total distance, got %.2f", cfg.TotalDistanceMM)
	}
	if cfg.CurrentState != engine.StateReady {
		t.Fatalf("expected READY after calibration, got %v", cfg.CurrentState)
	}
	if cfg.MinStep != 0 {
		t.Fatalf("expected min_step 0, got %d", cfg.MinStep)
	}
}

func TestWatchdogExpiresWhenContactNeverFound(t *testing.T) {
	mgr, clk, _, cfg, _ := newTestManager()
	mgr.watchdogSteps = 10
	mgr.state = StateMovingToStart
	mgr.stepDelay = 20
	mgr.lastStepMicros = clk.MicroNow()

	runTicks(t, mgr, clk, 1000, func() {})

	if mgr.CurrentState() != StateFailed {
		t.Fatalf("expected FAILED after watchdog expiry, got %v", mgr.CurrentState())
	}
	if cfg.CurrentState != engine.StateError {
		t.Fatalf("expected ERROR system state after watchdog expiry, got %v", cfg.CurrentState)
	}
}

// releasingGPIO reports the start contact as engaged for its first few
// reads, then as released — enough to drive ReturnToStart's approach and
// decontact phases to completion in a single-threaded, clock-independent
// test.
type releasingGPIO struct {
	*fakeGPIO
	startReadsUntilReleased int
}

func (g *releasingGPIO) ReadPin(pin core.GPIOPin) bool {
	if pin == 3 {
		if g.startReadsUntilReleased > 0 {
			g.startReadsUntilReleased--
			return false // engaged (active-low)
		}
		return true // released
	}
	return g.fakeGPIO.ReadPin(pin)
}

func TestReturnToStartHomesWithoutRediscoveringTravel(t *testing.T) {
	clk := &fakeClock{autoTick: 700}
	gpio := &releasingGPIO{fakeGPIO: newFakeGPIO(), startReadsUntilReleased: 4}
	m := motor.NewDriver(gpio, 0, 1, 2, motor.DefaultTiming())
	m.SetSleeper(noSleep{})
	m.Init()

	cfg := engine.DefaultConfig()
	cfg.SafetyOffsetSteps = 5
	cfg.TotalDistanceMM = 200
	cfg.MaxStep = 16000
	pos := &engine.PositionState{CurrentStep: 8000}
	contacts := sensors.NewContacts(gpio, 3, 4)
	mgr := New(m, contacts, clk, &cfg, pos, engine.NopLogger{})
	mgr.watchdogSteps = 1000

	if err := mgr.ReturnToStart(); err != nil {
		t.Fatalf("ReturnToStart returned error: %v", err)
	}

	if pos.CurrentStep != 0 {
		t.Fatalf("expected position reset to 0 after ReturnToStart, got %d", pos.CurrentStep)
	}
	if cfg.TotalDistanceMM != 200 {
		t.Fatalf("expected total distance untouched by ReturnToStart, got %.1f", cfg.TotalDistanceMM)
	}
	if cfg.CurrentState != engine.StateReady {
		t.Fatalf("expected READY after ReturnToStart, got %v", cfg.CurrentState)
	}
}
