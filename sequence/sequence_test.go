package sequence

import (
	"testing"
	"time"

	"motionctl/chaos"
	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/oscillation"
	"motionctl/sensors"
	"motionctl/vaet"
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

func (fakeRand) Seed(int64)       {}
func (fakeRand) Float64() float64 { return 0.5 }
func (fakeRand) IntRange(min, max int) int {
	return min
}

type fakeCalibrator struct{}

func (fakeCalibrator) StartCalibration() error { return nil }
func (fakeCalibrator) ReturnToStart() error    { return nil }

func newTestExecutor() (*Executor, *fakeClock, *engine.PositionState) {
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

	pos := &engine.PositionState{CurrentStep: motionmath.MMToSteps(cfg.Motion, 0.0)}
	stats := &engine.StatsTracking{}

	vaetCtrl := vaet.New(m, contacts, clk, fakeRand{}, &cfg, pos, stats, fakeCalibrator{}, engine.NopLogger{})
	oscCtrl := oscillation.New(m, contacts, clk, fakeRand{}, &cfg, pos, stats, engine.NopLogger{})
	chaosCtrl := chaos.New(m, contacts, clk, fakeRand{}, &cfg, pos, stats, engine.NopLogger{})

	e := New(m, clk, &cfg, pos, vaetCtrl, oscCtrl, chaosCtrl)
	return e, clk, pos
}

func TestStartRejectsEmptyProgram(t *testing.T) {
	e, _, _ := newTestExecutor()
	if err := e.Start(); err == nil {
		t.Fatal("expected Start to reject an empty program")
	}
}

func TestStartBeginsPositioningForFirstLine(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
	}, false)

	if err := e.Start(); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	if !e.isPositioning {
		t.Fatal("expected Start to enter the positioning preamble")
	}
	if e.cfg.ExecutionContext != engine.ContextSequencer {
		t.Fatalf("expected ContextSequencer, got %v", e.cfg.ExecutionContext)
	}
}

func TestPositioningArrivesAndStartsController(t *testing.T) {
	e, clk, pos := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
	}, false)
	e.Start()

	for i := 0; i < 5000 && e.isPositioning; i++ {
		clk.advance(200 * time.Microsecond)
		e.Process()
	}

	if e.isPositioning {
		t.Fatal("expected positioning to complete within the tick budget")
	}
	wantStep := motionmath.MMToSteps(e.consts, 30.0) // center 50 - amplitude 20
	diff := pos.CurrentStep - wantStep
	if diff < 0 {
		diff = -diff
	}
	if diff > 2 {
		t.Fatalf("expected carriage near %d steps, got %d", wantStep, pos.CurrentStep)
	}
	if e.cfg.CurrentState != engine.StateRunning {
		t.Fatalf("expected oscillation controller to have started, state = %v", e.cfg.CurrentState)
	}
}

func TestLineCycleCompletionAdvancesToNextLine(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
		{Movement: engine.MovementChaos, Chaos: chaos.Config{CenterMM: 50.0, AmplitudeMM: 20.0, CrazinessPercent: 50.0}, CycleCount: 1},
	}, false)
	e.Start()
	e.isPositioning = false
	e.state.CurrentLineIndex = 0

	e.onLineCycleComplete()

	if e.state.CurrentLineIndex != 1 {
		t.Fatalf("expected advance to line 1, got %d", e.state.CurrentLineIndex)
	}
}

func TestLineCycleCompletionHoldsDuringPauseGap(t *testing.T) {
	e, clk, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1, PauseAfterMs: 500},
		{Movement: engine.MovementChaos, Chaos: chaos.Config{CenterMM: 50.0, AmplitudeMM: 20.0, CrazinessPercent: 50.0}, CycleCount: 1},
	}, false)
	e.Start()
	e.isPositioning = false
	e.state.CurrentLineIndex = 0

	e.onLineCycleComplete()

	if e.state.CurrentLineIndex != 0 {
		t.Fatalf("expected line index to stay at 0 during the pause gap, got %d", e.state.CurrentLineIndex)
	}
	if e.cfg.MovementType != engine.MovementOscillation {
		t.Fatalf("expected MovementType to still report the finished line during the pause, got %v", e.cfg.MovementType)
	}

	clk.advance(499 * time.Millisecond)
	e.Process()
	if e.state.CurrentLineIndex != 0 {
		t.Fatal("expected line index to still not have advanced just before the pause elapses")
	}

	clk.advance(2 * time.Millisecond)
	e.Process()
	if e.state.CurrentLineIndex != 1 {
		t.Fatalf("expected advance to line 1 once the pause elapses, got %d", e.state.CurrentLineIndex)
	}
}

func TestProgramEndsAndFiresOnStoppedWithoutLoop(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
	}, false)
	e.Start()
	e.isPositioning = false

	stopped := false
	e.OnStopped(func() { stopped = true })

	e.onLineCycleComplete()

	if !stopped {
		t.Fatal("expected the program to signal completion after its only line finished")
	}
	if e.state.Active {
		t.Fatal("expected the executor to go inactive at program end")
	}
}

func TestProgramLoopsWhenLoopModeEnabled(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
	}, true)
	e.Start()
	e.isPositioning = false

	e.onLineCycleComplete()

	if !e.state.Active {
		t.Fatal("expected the executor to remain active in loop mode")
	}
	if e.state.LoopCount != 1 {
		t.Fatalf("expected LoopCount incremented to 1, got %d", e.state.LoopCount)
	}
}

func TestStopClearsContext(t *testing.T) {
	e, _, _ := newTestExecutor()
	e.SetProgram([]SequenceLine{
		{Movement: engine.MovementOscillation, Osc: oscillation.Config{CenterMM: 50.0, AmplitudeMM: 20.0, FrequencyHz: 0.5}, CycleCount: 1},
	}, false)
	e.Start()

	e.Stop()

	if e.state.Active {
		t.Fatal("expected Stop to deactivate the executor")
	}
	if e.cfg.ExecutionContext != engine.ContextStandalone {
		t.Fatalf("expected ContextStandalone after Stop, got %v", e.cfg.ExecutionContext)
	}
}
