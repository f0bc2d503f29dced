// Package sequence runs a stored, line-by-line motion program: each line
// names a movement type and its parameters, and the executor positions the
// carriage for the line, delegates to the matching controller, and advances
// on that controller's completion callback (spec §4.9).
package sequence

import (
	"errors"

	"motionctl/chaos"
	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/oscillation"
	"motionctl/vaet"
)

// VAETLineConfig is a sequence line's VAET parameters.
type VAETLineConfig struct {
	DistanceMM    float64
	SpeedForward  float64
	SpeedBackward float64
}

// SequenceLine is one line of a stored program: a movement type, its
// mode-specific config, how many cycles to run before advancing, and the
// pause to hold before the next line starts.
type SequenceLine struct {
	Movement     engine.MovementType
	VAET         VAETLineConfig
	Osc          oscillation.Config
	Chaos        chaos.Config
	CycleCount   uint64 // 0 = run until externally stopped
	PauseAfterMs uint64
}

// ExecutionState is the sequencer's runtime position within its program,
// exposed for telemetry (spec §6 "sequence state").
type ExecutionState struct {
	CurrentLineIndex   int
	CurrentCycleInLine uint64
	LoopCount          uint64
	IsLoopMode         bool
	Active             bool
}

var errEmptyProgram = errors.New("sequence: program has no lines")

// Executor drives the stored program, delegating each line to the matching
// controller and reacting to its completion callback.
type Executor struct {
	motor  *motor.Driver
	clock  core.Clock
	consts motionmath.Constants

	cfg *engine.Config
	pos *engine.PositionState

	vaetCtrl  *vaet.Controller
	oscCtrl   *oscillation.Controller
	chaosCtrl *chaos.Controller

	lines []SequenceLine
	state ExecutionState

	isPositioning  bool
	positionTarget int64
	lastStepMicros uint64

	pauseUntilMs    uint64
	pausing         bool
	pendingNextLine int

	onStopped func()
}

// New creates a sequence Executor wired to the three controllers it can
// dispatch a line to. Each controller's completion callback is registered
// here, once; onLineCycleComplete ignores them while the executor is
// inactive, so a standalone start() after Stop() on the executor (spec
// §4.9's "user override") never advances the program.
func New(m *motor.Driver, clock core.Clock, cfg *engine.Config, pos *engine.PositionState,
	vaetCtrl *vaet.Controller, oscCtrl *oscillation.Controller, chaosCtrl *chaos.Controller) *Executor {
	e := &Executor{
		motor:     m,
		clock:     clock,
		consts:    cfg.Motion,
		cfg:       cfg,
		pos:       pos,
		vaetCtrl:  vaetCtrl,
		oscCtrl:   oscCtrl,
		chaosCtrl: chaosCtrl,
	}
	vaetCtrl.OnCycleComplete(e.onLineCycleComplete)
	oscCtrl.OnCycleComplete(e.onLineCycleComplete)
	oscCtrl.OnStopped(e.onLineCycleComplete)
	chaosCtrl.OnStopped(e.onLineCycleComplete)
	return e
}

// OnStopped registers a callback fired when the whole program finishes
// (non-loop mode, last line's cycles exhausted).
func (e *Executor) OnStopped(cb func()) { e.onStopped = cb }

// SetProgram installs the stored line list.
func (e *Executor) SetProgram(lines []SequenceLine, loop bool) {
	e.lines = lines
	e.state.IsLoopMode = loop
}

// Start begins the program at line 0 (spec §4.9).
func (e *Executor) Start() error {
	if len(e.lines) == 0 {
		return errEmptyProgram
	}
	e.cfg.ExecutionContext = engine.ContextSequencer
	e.state = ExecutionState{IsLoopMode: e.state.IsLoopMode, Active: true}
	e.lastStepMicros = e.clock.MicroNow()
	e.beginLine(0)
	return nil
}

// Stop stops whichever controller is active and clears the sequencer
// context (spec §4.9's "user override": any standalone start() elsewhere
// calls this first).
func (e *Executor) Stop() {
	if !e.state.Active {
		return
	}
	e.stopCurrentController()
	e.state.Active = false
	e.isPositioning = false
	e.pausing = false
	e.cfg.ExecutionContext = engine.ContextStandalone
}

func (e *Executor) stopCurrentController() {
	if e.state.CurrentLineIndex >= len(e.lines) {
		return
	}
	switch e.lines[e.state.CurrentLineIndex].Movement {
	case engine.MovementVAET:
		e.vaetCtrl.Stop()
	case engine.MovementOscillation:
		e.oscCtrl.Stop()
	case engine.MovementChaos:
		e.chaosCtrl.Stop()
	}
}

// beginLine transitions to lineIndex: stops the previous controller if
// any, sets MovementType, and runs the positioning preamble before
// starting the new controller (spec §4.9's heterogeneous-line transition).
func (e *Executor) beginLine(lineIndex int) {
	if lineIndex < 0 || lineIndex >= len(e.lines) {
		return
	}
	e.stopCurrentController()

	line := e.lines[lineIndex]
	e.state.CurrentLineIndex = lineIndex
	e.state.CurrentCycleInLine = 0
	e.cfg.MovementType = line.Movement

	switch line.Movement {
	case engine.MovementVAET:
		e.positionTarget = e.pos.CurrentStep // VAET establishes its own start via SetStartPosition/Start
	case engine.MovementOscillation:
		e.positionTarget = motionmath.MMToSteps(e.consts, line.Osc.CenterMM-line.Osc.AmplitudeMM)
	case engine.MovementChaos:
		e.positionTarget = motionmath.MMToSteps(e.consts, line.Chaos.CenterMM)
	}

	e.isPositioning = true
}

// Process runs one engine tick. While positioning, it drives the carriage
// to the line's required start; once arrived, it starts the target
// controller and steps aside — that controller's own Process() (dispatched
// by the movement-type switch elsewhere) drives the motor from then on.
func (e *Executor) Process() {
	if !e.state.Active {
		return
	}

	nowMs := e.clock.MilliNow()
	if e.pausing {
		if nowMs < e.pauseUntilMs {
			return
		}
		e.pausing = false
		e.advanceToLine(e.pendingNextLine)
		return
	}

	if e.isPositioning {
		e.stepPositioning()
		return
	}
}

func (e *Executor) stepPositioning() {
	const toleranceSteps = 2
	diff := e.positionTarget - e.pos.CurrentStep
	if diff < 0 {
		diff = -diff
	}
	if diff <= toleranceSteps {
		e.isPositioning = false
		e.startCurrentLine()
		return
	}

	now := e.clock.MicroNow()
	const positioningDelay = 200
	if core.ElapsedMicros(now, e.lastStepMicros) < positioningDelay {
		return
	}
	e.lastStepMicros = now

	forward := e.positionTarget > e.pos.CurrentStep
	e.motor.SetDirection(forward)
	e.motor.Step()
	if forward {
		e.pos.CurrentStep++
	} else {
		e.pos.CurrentStep--
	}
}

func (e *Executor) startCurrentLine() {
	line := e.lines[e.state.CurrentLineIndex]
	switch line.Movement {
	case engine.MovementVAET:
		e.vaetCtrl.SetSpeedForward(line.VAET.SpeedForward)
		e.vaetCtrl.SetSpeedBackward(line.VAET.SpeedBackward)
		e.vaetCtrl.Start(line.VAET.DistanceMM, line.VAET.SpeedForward)
	case engine.MovementOscillation:
		e.oscCtrl.SetConfig(line.Osc)
		e.oscCtrl.Start()
	case engine.MovementChaos:
		e.chaosCtrl.SetConfig(line.Chaos)
		e.chaosCtrl.Start()
	}
}

// onLineCycleComplete is the completion callback wired to every controller
// (spec §4.9): it advances the current line's cycle count, and either
// re-invokes the same line, pauses then advances to the next, or ends the
// program.
func (e *Executor) onLineCycleComplete() {
	if !e.state.Active {
		return
	}

	line := e.lines[e.state.CurrentLineIndex]
	e.state.CurrentCycleInLine++

	if line.CycleCount == 0 || e.state.CurrentCycleInLine < line.CycleCount {
		e.startCurrentLine()
		return
	}

	nextIndex := e.state.CurrentLineIndex + 1

	if line.PauseAfterMs > 0 {
		e.pausing = true
		e.pauseUntilMs = e.clock.MilliNow() + line.PauseAfterMs
		e.pendingNextLine = nextIndex
		return
	}

	e.advanceToLine(nextIndex)
}

// advanceToLine moves the sequencer past the line that just finished: to
// nextIndex if one exists, back to line 0 in loop mode once the program's
// run off the end, or to a full stop otherwise. Called either immediately
// from onLineCycleComplete (no pause configured) or once Process() clears
// a pending pause (spec §4.9: wait pause_after_ms, then advance).
func (e *Executor) advanceToLine(nextIndex int) {
	if nextIndex >= len(e.lines) {
		e.state.LoopCount++
		if e.state.IsLoopMode {
			e.beginLine(0)
			return
		}
		e.state.Active = false
		e.cfg.ExecutionContext = engine.ContextStandalone
		if e.onStopped != nil {
			e.onStopped()
		}
		return
	}

	e.beginLine(nextIndex)
}

// State returns the current execution state for telemetry.
func (e *Executor) State() ExecutionState { return e.state }
