package oscillation

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

type fakeRand struct{}

func (fakeRand) Seed(int64)              {}
func (fakeRand) Float64() float64        { return 0.5 }
func (fakeRand) IntRange(min, max int) int { return min }

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

	c := New(m, contacts, clk, fakeRand{}, &cfg, pos, stats, engine.NopLogger{})
	c.config.CenterMM = 50.0
	c.config.AmplitudeMM = 20.0
	c.config.FrequencyHz = 0.5
	return c, clk, gpio
}

func TestValidateAmplitudeRejectsBelowZero(t *testing.T) {
	c, _, _ := newTestController()
	if err := c.ValidateAmplitude(10.0, 20.0); err == nil {
		t.Fatal("expected error when center - amplitude < 0")
	}
}

func TestValidateAmplitudeRejectsAboveMax(t *testing.T) {
	c, _, _ := newTestController()
	if err := c.ValidateAmplitude(190.0, 20.0); err == nil {
		t.Fatal("expected error when center + amplitude exceeds effective max")
	}
}

func TestStartEntersRunning(t *testing.T) {
	c, _, _ := newTestController()
	if err := c.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if c.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected RUNNING, got %v", c.cfg.CurrentState)
	}
	if c.cfg.MovementType != engine.MovementOscillation {
		t.Fatalf("expected Start to claim MovementOscillation, got %v", c.cfg.MovementType)
	}
}

func TestStartRejectsInvalidAmplitude(t *testing.T) {
	c, _, _ := newTestController()
	c.config.CenterMM = 5.0
	c.config.AmplitudeMM = 20.0
	if err := c.Start(); err == nil {
		t.Fatal("expected Start to reject an out-of-range amplitude")
	}
}

func TestProcessAdvancesPositionTowardWaveform(t *testing.T) {
	c, clk, _ := newTestController()
	c.Start()

	startStep := c.pos.CurrentStep
	for i := 0; i < 200; i++ {
		clk.advance(500 * time.Microsecond)
		c.Process()
	}

	if c.pos.CurrentStep == startStep {
		t.Fatal("expected oscillation to move the carriage over time")
	}
}

func TestAdvancePhaseCountsCompletedCycles(t *testing.T) {
	c, clk, _ := newTestController()
	c.Start()
	c.state.IsInitialPositioning = false

	completions := 0
	c.OnCycleComplete(func() { completions++ })

	nowMs := c.clock.MilliNow()
	c.state.LastPhaseUpdateMs = nowMs
	clk.advance(2100 * time.Millisecond) // at 0.5Hz, just over one full cycle
	c.advancePhase(c.clock.MilliNow())

	if completions != 1 {
		t.Fatalf("expected exactly one cycle completion, got %d", completions)
	}
}

func TestEffectiveFrequencyCapsForLargeAmplitude(t *testing.T) {
	c, _, _ := newTestController()
	c.config.FrequencyHz = 100.0
	c.config.AmplitudeMM = 20.0

	capped := motionmath.EffectiveFrequency(c.consts, c.config.FrequencyHz, c.config.AmplitudeMM)
	if capped >= c.config.FrequencyHz {
		t.Fatal("expected large amplitude to cap the effective frequency downward")
	}
}

func TestCycleCountStopsAfterTarget(t *testing.T) {
	c, clk, _ := newTestController()
	c.config.CycleCount = 1
	c.Start()
	c.state.IsInitialPositioning = false

	stopped := false
	c.OnStopped(func() { stopped = true })

	for i := 0; i < 5000; i++ {
		clk.advance(1 * time.Millisecond)
		c.Process()
		if stopped {
			break
		}
	}

	if !stopped {
		t.Fatal("expected oscillation to stop after reaching its cycle count")
	}
	if c.cfg.CurrentState != engine.StateReady {
		t.Fatalf("expected READY after stopping, got %v", c.cfg.CurrentState)
	}
}

func TestCheckSafetyContactsTripsOnEndContact(t *testing.T) {
	c, _, gpio := newTestController()
	c.Start()

	gpio.state[4] = false // end contact engaged (active-low)
	targetStep := c.cfg.MaxStep
	c.pos.CurrentStep = targetStep - 1 // within the hard-drift test zone

	if c.checkSafetyContacts(targetStep) {
		t.Fatal("expected checkSafetyContacts to report unsafe with end contact engaged")
	}
}

func TestSetConfigStartsFrequencyTransitionMidRun(t *testing.T) {
	c, _, _ := newTestController()
	c.Start()

	if err := c.SetConfig(Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 2.0}); err != nil {
		t.Fatalf("SetConfig returned error: %v", err)
	}
	if !c.state.FreqTransition.active {
		t.Fatal("expected a frequency transition to start when running with a changed frequency")
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

func TestTogglePauseResumeAvoidsPhaseJerk(t *testing.T) {
	c, clk, _ := newTestController()
	c.Start()

	c.TogglePause()
	clk.advance(5 * time.Second)
	beforeResume := c.state.LastPhaseUpdateMs
	c.TogglePause()

	if c.state.LastPhaseUpdateMs == beforeResume {
		t.Fatal("expected resume to restamp LastPhaseUpdateMs past the pause duration")
	}
	if c.state.LastPhaseUpdateMs != c.clock.MilliNow() {
		t.Fatalf("expected LastPhaseUpdateMs to be restamped to now, got %d want %d",
			c.state.LastPhaseUpdateMs, c.clock.MilliNow())
	}
}
