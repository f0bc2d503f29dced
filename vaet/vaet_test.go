package vaet

import (
	"testing"
	"time"

	"motionctl/core"
	"motionctl/engine"
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

// newFakeGPIO defaults every pin to HIGH (open circuit, contact inactive)
// so a controller under test doesn't spuriously see an engaged limit
// contact before any pin has been explicitly driven.
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

// fakeRand is a deterministic, scriptable RandSource for turnback tests.
type fakeRand struct {
	ints   []int
	floats []float64
}

func (r *fakeRand) Seed(int64) {}
func (r *fakeRand) Float64() float64 {
	if len(r.floats) == 0 {
		return 0
	}
	v := r.floats[0]
	r.floats = r.floats[1:]
	return v
}
func (r *fakeRand) IntRange(min, max int) int {
	if len(r.ints) == 0 {
		return min
	}
	v := r.ints[0]
	r.ints = r.ints[1:]
	return v
}

type fakeCalibrator struct {
	calibrated bool
	distanceMM float64
}

func (c *fakeCalibrator) StartCalibration() error {
	c.calibrated = true
	return nil
}
func (c *fakeCalibrator) ReturnToStart() error { return nil }

func newTestController() (*Controller, *fakeClock, *fakeGPIO, *fakeRand, *fakeCalibrator) {
	clk := &fakeClock{}
	gpio := newFakeGPIO()
	m := motor.NewDriver(gpio, 0, 1, 2, motor.DefaultTiming())
	m.SetSleeper(noSleep{})
	m.Init()

	contacts := sensors.NewContacts(gpio, 3, 4)

	cfg := engine.DefaultConfig()
	cfg.TotalDistanceMM = 200.0
	cfg.CurrentState = engine.StateReady

	pos := &engine.PositionState{}
	stats := &engine.StatsTracking{}
	rnd := &fakeRand{}
	calib := &fakeCalibrator{}

	c := New(m, contacts, clk, rnd, &cfg, pos, stats, calib, engine.NopLogger{})
	return c, clk, gpio, rnd, calib
}

func TestStartEntersRunningAndStepsForward(t *testing.T) {
	c, clk, _, _, _ := newTestController()

	if err := c.Start(50.0, 5.0); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if c.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected RUNNING, got %v", c.cfg.CurrentState)
	}
	if c.cfg.MovementType != engine.MovementVAET {
		t.Fatalf("expected Start to claim MovementVAET, got %v", c.cfg.MovementType)
	}
	if !c.pos.MovingForward {
		t.Fatal("expected to start moving forward from position 0")
	}

	startStep := c.pos.CurrentStep
	clk.advance(1 * time.Second)
	c.Process()

	if c.pos.CurrentStep <= startStep {
		t.Fatalf("expected at least one forward step, stayed at %d", c.pos.CurrentStep)
	}
}

func TestStartAutoCalibratesWhenNotCalibrated(t *testing.T) {
	c, _, _, _, calib := newTestController()
	c.cfg.TotalDistanceMM = 0

	c.Start(50.0, 5.0)

	if !calib.calibrated {
		t.Fatal("expected Start to trigger auto-calibration when uncalibrated")
	}
}

func TestSetDistanceAppliesImmediatelyWhenNotRunning(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.SetDistance(75.0)

	if c.motion.TargetDistanceMM != 75.0 {
		t.Fatalf("expected immediate distance update, got %.1f", c.motion.TargetDistanceMM)
	}
}

func TestSetDistanceQueuesWhileRunning(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(50.0, 5.0)

	c.SetDistance(90.0)

	if c.motion.TargetDistanceMM != 50.0 {
		t.Fatalf("expected distance unchanged mid-run, got %.1f", c.motion.TargetDistanceMM)
	}
	if !c.pending.HasChanges || c.pending.DistanceMM != 90.0 {
		t.Fatalf("expected pending distance 90.0, got %+v", c.pending)
	}
}

func TestApplyPendingChangesAtPivot(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(50.0, 5.0)
	c.SetDistance(90.0)

	c.applyPendingChanges()

	if c.motion.TargetDistanceMM != 90.0 {
		t.Fatalf("expected pending distance applied, got %.1f", c.motion.TargetDistanceMM)
	}
	if c.pending.HasChanges {
		t.Fatal("expected HasChanges cleared after apply")
	}
}

func TestProcessCycleCompletionReversesAtStart(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(10.0, 5.0)

	c.pos.MovingForward = false
	c.hasReachedStartStep = true
	c.pos.CurrentStep = c.startStep + 1

	c.doStepBackward()

	if !c.pos.MovingForward {
		t.Fatal("expected processCycleCompletion to flip back to forward")
	}
}

func TestTogglePauseFlipsRunningAndPaused(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(50.0, 5.0)

	c.TogglePause()
	if c.cfg.CurrentState != engine.StatePaused {
		t.Fatalf("expected PAUSED after first toggle, got %v", c.cfg.CurrentState)
	}

	c.TogglePause()
	if c.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected RUNNING after second toggle, got %v", c.cfg.CurrentState)
	}
}

func TestStopReturnsToReady(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(50.0, 5.0)
	c.Stop()

	if c.cfg.CurrentState != engine.StateReady {
		t.Fatalf("expected READY after Stop, got %v", c.cfg.CurrentState)
	}
}

func TestZoneSpeedFactorSlowsNearEndZone(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.Start(50.0, 5.0)
	c.zone.Enabled = true
	c.zone.EnableEnd = true
	c.zone.EnableStart = false
	c.zone.ZoneMM = 10.0
	c.hasReachedStartStep = true

	c.pos.MovingForward = true
	c.pos.CurrentStep = c.targetStep - 4 // 0.05mm from target at 80 steps/mm... use coarser zone math

	base := c.delayForward
	adjusted := c.applyZoneEffects(base)

	if adjusted < base {
		t.Fatalf("expected DECEL zone to increase delay, base=%d adjusted=%d", base, adjusted)
	}
}

func TestRandomTurnbackTriggersOnFavorableRoll(t *testing.T) {
	c, _, _, rnd, _ := newTestController()
	c.Start(50.0, 5.0)
	c.zone.Enabled = true
	c.zone.EnableEnd = true
	c.zone.RandomTurnbackEnabled = true
	c.zone.TurnbackChancePercent = 100
	c.zone.ZoneMM = 10.0
	c.hasReachedStartStep = true

	rnd.ints = []int{0}    // always wins the roll
	rnd.floats = []float64{0.0} // turnback point at the minimum (10% of zone)

	c.pos.MovingForward = true
	c.checkAndTriggerRandomTurnback(1.0) // 1mm into the zone, triggers the roll

	if !c.zState.HasPendingTurnback {
		t.Fatal("expected a pending turnback after a winning roll")
	}
}

func TestEndPauseExpiresAfterDuration(t *testing.T) {
	c, clk, _, _, _ := newTestController()
	c.Start(50.0, 5.0)
	c.zone.EndPause.Enabled = true
	c.zone.EndPause.DurationSec = 1.0

	c.triggerEndPause()
	if !c.checkAndHandleEndPause() {
		t.Fatal("expected pause still active immediately after triggering")
	}

	clk.advance(2 * time.Second)
	if c.checkAndHandleEndPause() {
		t.Fatal("expected pause to have expired after 2s")
	}
}

func TestSetZoneEffectRejectsNarrowZone(t *testing.T) {
	c, _, _, _, _ := newTestController()
	err := c.SetZoneEffect(ZoneEffectConfig{Enabled: true, ZoneMM: 5.0})
	if err == nil {
		t.Fatal("expected error for zone narrower than 10mm")
	}
}

func TestSetZoneEffectRejectsOverlap(t *testing.T) {
	c, _, _, _, _ := newTestController()
	c.motion.TargetDistanceMM = 20.0
	err := c.SetZoneEffect(ZoneEffectConfig{Enabled: true, EnableStart: true, EnableEnd: true, ZoneMM: 15.0})
	if err == nil {
		t.Fatal("expected error when both zones would overlap")
	}
}

func TestDoStepForwardSetsErrorOnHardDriftContact(t *testing.T) {
	c, _, gpio, _, _ := newTestController()
	c.Start(10.0, 5.0)

	gpio.state[4] = false // end contact engaged (active-low)
	c.pos.CurrentStep = c.targetStep - 1
	c.hasReachedStartStep = true

	c.doStepForward()

	if c.cfg.CurrentState != engine.StateError {
		t.Fatalf("expected ERROR state on hard drift contact, got %v", c.cfg.CurrentState)
	}
}
