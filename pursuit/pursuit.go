// Package pursuit drives the carriage toward a live stream of target
// positions fed in from the command interface, ramping speed by tracking
// error and with no cycle logic of its own (spec §4.8).
package pursuit

import (
	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/sensors"
)

// State mirrors spec §3's PursuitState: the last commanded target, the
// speed ceiling it was issued with, and the controller's own derived
// step-timing fields.
type State struct {
	TargetStep      int64
	LastTargetStep  int64
	MaxSpeedLevel   float64
	LastMaxSpeed    float64
	StepDelayMicros uint64
	IsMoving        bool
	MovingForward   bool
}

// Controller is the pursuit movement controller.
type Controller struct {
	motor    *motor.Driver
	contacts *sensors.Contacts
	clock    core.Clock
	consts   motionmath.Constants
	drift    sensors.DriftConfig
	logger   engine.Logger

	cfg   *engine.Config
	pos   *engine.PositionState
	stats *engine.StatsTracking

	state State

	lastStepMicros uint64
}

// New creates a pursuit Controller.
func New(m *motor.Driver, contacts *sensors.Contacts, clock core.Clock,
	cfg *engine.Config, pos *engine.PositionState, stats *engine.StatsTracking, logger engine.Logger) *Controller {
	return &Controller{
		motor:    m,
		contacts: contacts,
		clock:    clock,
		consts:   cfg.Motion,
		drift:    cfg.Drift,
		logger:   logger,
		cfg:      cfg,
		pos:      pos,
		stats:    stats,
	}
}

// Start enters RUNNING with no target set yet; the carriage holds position
// until SetTarget delivers the first command.
func (c *Controller) Start() {
	c.state = State{
		TargetStep:    c.pos.CurrentStep,
		MaxSpeedLevel: c.consts.MaxSpeedLevel,
	}
	c.lastStepMicros = c.clock.MicroNow()
	c.cfg.CurrentState = engine.StateRunning
	c.cfg.MovementType = engine.MovementPursuit
	c.stats.SyncPosition(c.pos.CurrentStep)
	c.motor.ResetPendTracking()
}

// Stop halts pursuit and returns to READY.
func (c *Controller) Stop() {
	c.state.IsMoving = false
	if c.cfg.CurrentState == engine.StateRunning || c.cfg.CurrentState == engine.StatePaused {
		c.cfg.CurrentState = engine.StateReady
		c.stats.MarkSaved()
	}
}

// TogglePause flips between RUNNING and PAUSED.
func (c *Controller) TogglePause() {
	switch c.cfg.CurrentState {
	case engine.StateRunning:
		c.cfg.CurrentState = engine.StatePaused
		c.stats.MarkSaved()
	case engine.StatePaused:
		c.cfg.CurrentState = engine.StateRunning
	}
}

// SetTarget installs a new PURSUIT_MOVE command: a target in mm (clamped to
// [min_step, max_step]) and a speed ceiling.
func (c *Controller) SetTarget(targetMM, maxSpeedLevel float64) {
	c.state.LastTargetStep = c.state.TargetStep
	c.state.LastMaxSpeed = c.state.MaxSpeedLevel

	targetStep := motionmath.MMToSteps(c.consts, targetMM)
	if targetStep < c.cfg.MinStep {
		targetStep = c.cfg.MinStep
	}
	if targetStep > c.cfg.MaxStep {
		targetStep = c.cfg.MaxStep
	}
	c.state.TargetStep = targetStep
	c.state.MaxSpeedLevel = maxSpeedLevel
}

// Process runs one engine tick (spec §4.8).
func (c *Controller) Process() {
	if c.cfg.CurrentState != engine.StateRunning {
		return
	}

	diff := c.state.TargetStep - c.pos.CurrentStep
	if diff == 0 {
		c.state.IsMoving = false
		return
	}

	errorMM := motionmath.StepsToMM(c.consts, diff)
	if errorMM < 0 {
		errorMM = -errorMM
	}
	delay := motionmath.PursuitStepDelay(c.consts, errorMM, c.state.MaxSpeedLevel)
	c.state.StepDelayMicros = delay

	now := c.clock.MicroNow()
	if core.ElapsedMicros(now, c.lastStepMicros) < delay {
		c.state.IsMoving = true
		return
	}
	c.lastStepMicros = now

	forward := diff > 0
	nextStep := c.pos.CurrentStep
	if forward {
		nextStep++
	} else {
		nextStep--
	}

	if !c.checkSafetyContacts(nextStep) {
		c.cfg.CurrentState = engine.StateError
		return
	}

	c.state.MovingForward = forward
	c.state.IsMoving = true
	c.motor.SetDirection(forward)
	c.motor.Step()
	c.pos.CurrentStep = nextStep
	c.pos.MovingForward = forward
	c.stats.TrackDelta(c.pos.CurrentStep)
}

// checkSafetyContacts applies the §4.2 drift checks near either physical
// limit, reporting false (unsafe) when a hard-drift contact fires.
func (c *Controller) checkSafetyContacts(nextStep int64) bool {
	if sensors.CheckHardDriftStart(c.contacts, c.drift, nextStep, c.cfg.MinStep, sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		return false
	}
	if sensors.CheckHardDriftEnd(c.contacts, c.drift, nextStep, c.cfg.MaxStep, sensors.DefaultEndChecks, sensors.DefaultSampleDelay) {
		return false
	}
	return true
}
