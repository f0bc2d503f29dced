// Package calibration implements the homing state machine: discovering
// total travel by driving the axis to each limit contact in turn, and
// the precise return-to-zero routine every other controller depends on
// for a drift-free reference position (spec §4.4).
package calibration

import (
	"errors"
	"time"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/sensors"
)

// State is the calibration manager's own sub-state machine, active only
// while engine.SystemState == StateCalibrating.
type State int

const (
	StateIdle State = iota
	StateMovingToStart
	StateLeavingStart
	StateMovingToEnd
	StateLeavingEnd
	StateFinished
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateMovingToStart:
		return "MOVING_TO_START"
	case StateLeavingStart:
		return "LEAVING_START"
	case StateMovingToEnd:
		return "MOVING_TO_END"
	case StateLeavingEnd:
		return "LEAVING_END"
	case StateFinished:
		return "FINISHED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// ErrWatchdogExpired is returned when a contact isn't found within the
// configured step watchdog.
var ErrWatchdogExpired = errors.New("calibration: contact not found within watchdog step count")

// ApproachSpeedLevel is the slow, fixed speed level calibration drives at
// — always below Constants.MaxSpeedLevel so a hard limit is never struck
// at full speed.
const ApproachSpeedLevel = 2.0

// DefaultWatchdogSteps bounds how far calibration will travel looking for
// a contact before giving up.
const DefaultWatchdogSteps int64 = 200000

// Manager runs the homing state machine described in spec §4.4: approach
// a contact at reduced speed, reverse off it until it releases
// ("decontact"), then step away by a fixed safety offset — this defines
// the zero (or max) reference point independent of how hard the approach
// overshot the physical switch.
type Manager struct {
	motor    *motor.Driver
	contacts *sensors.Contacts
	clock    core.Clock
	consts   motionmath.Constants
	logger   engine.Logger

	cfg *engine.Config
	pos *engine.PositionState

	state         State
	watchdogSteps int64
	stepsTraveled int64
	lastStepMicros uint64
	stepDelay     uint64

	startStep, endStep int64

	onComplete func()
}

// New creates a calibration Manager over the given subsystems.
func New(m *motor.Driver, contacts *sensors.Contacts, clock core.Clock, cfg *engine.Config, pos *engine.PositionState, logger engine.Logger) *Manager {
	return &Manager{
		motor:         m,
		contacts:      contacts,
		clock:         clock,
		consts:        cfg.Motion,
		logger:        logger,
		cfg:           cfg,
		pos:           pos,
		watchdogSteps: DefaultWatchdogSteps,
		state:         StateIdle,
	}
}

// OnComplete registers the supervisor's sequencer-advancement callback,
// fired when calibration reaches FINISHED.
func (m *Manager) OnComplete(cb func()) { m.onComplete = cb }

// StartCalibration begins homing: disables every other controller by
// setting SystemState = CALIBRATING and resetting the sub-state machine.
func (m *Manager) StartCalibration() error {
	m.cfg.CurrentState = engine.StateCalibrating
	m.state = StateMovingToStart
	m.stepsTraveled = 0
	m.stepDelay = motionmath.ChaosStepDelay(m.consts, ApproachSpeedLevel)
	m.lastStepMicros = m.clock.MicroNow()
	m.logger.Infof("calibration: homing started")
	return m.runToCompletion()
}

// runToCompletion drives Process synchronously until the state machine
// reaches FINISHED or FAILED. StartCalibration always uses this blocking
// form, both for the CALIBRATE command and for vaet's auto-calibration
// path, so the caller gets the result on return; Process stays safe to
// call per tick but has nothing left to do afterwards.
func (m *Manager) runToCompletion() error {
	for m.state != StateFinished && m.state != StateFailed {
		m.Process()
	}
	if m.state == StateFailed {
		return ErrWatchdogExpired
	}
	return nil
}

// Process advances the calibration state machine by one step, honoring
// the controller's own step delay. Safe to call every engine tick; it is
// a no-op once FINISHED or FAILED.
func (m *Manager) Process() {
	switch m.state {
	case StateMovingToStart:
		// Approach the start contact moving backward.
		m.driveToward(false, m.contacts.IsStartActive, m.finishApproachStart)
	case StateLeavingStart:
		// Decontact by reversing off the start contact, moving forward.
		m.decontact(true, m.contacts.IsStartActive, m.finishLeaveStart)
	case StateMovingToEnd:
		// Approach the end contact moving forward.
		m.driveToward(true, m.contacts.IsEndActive, m.finishApproachEnd)
	case StateLeavingEnd:
		// Decontact by reversing off the end contact, moving backward.
		m.decontact(false, m.contacts.IsEndActive, m.finishLeaveEnd)
	}
}

func (m *Manager) driveToward(forward bool, contactActive func(uint8, time.Duration) bool, onContact func()) {
	if contactActive(sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		onContact()
		return
	}
	if m.stepsTraveled >= m.watchdogSteps {
		m.logger.Errorf("calibration: watchdog expired seeking contact")
		m.state = StateFailed
		m.cfg.CurrentState = engine.StateError
		return
	}
	m.takeStep(forward)
}

func (m *Manager) decontact(forward bool, contactActive func(uint8, time.Duration) bool, onReleased func()) {
	if !contactActive(sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		onReleased()
		return
	}
	m.takeStep(forward)
}

func (m *Manager) takeStep(forward bool) {
	now := m.clock.MicroNow()
	if core.ElapsedMicros(now, m.lastStepMicros) < m.stepDelay {
		return
	}
	m.lastStepMicros = now
	m.motor.SetDirection(forward)
	m.motor.Step()
	m.stepsTraveled++
	if forward {
		m.pos.CurrentStep++
	} else {
		m.pos.CurrentStep--
	}
}

func (m *Manager) finishApproachStart() {
	m.state = StateLeavingStart
	m.stepsTraveled = 0
}

// finishLeaveStart steps off the released start contact by the safety
// offset, then defines that position as step 0.
func (m *Manager) finishLeaveStart() {
	for i := int64(0); i < m.cfg.SafetyOffsetSteps; i++ {
		m.motor.SetDirection(true)
		m.motor.Step()
	}
	m.pos.CurrentStep = 0
	m.startStep = 0
	m.pos.HasReachedStart = true
	m.state = StateMovingToEnd
	m.stepsTraveled = 0
}

func (m *Manager) finishApproachEnd() {
	m.state = StateLeavingEnd
	m.stepsTraveled = 0
}

func (m *Manager) finishLeaveEnd() {
	for i := int64(0); i < m.cfg.SafetyOffsetSteps; i++ {
		m.motor.SetDirection(false)
		m.motor.Step()
		m.pos.CurrentStep--
	}
	m.endStep = m.pos.CurrentStep

	m.cfg.TotalDistanceMM = motionmath.StepsToMM(m.consts, m.endStep-m.startStep)
	m.cfg.MinStep = 0
	m.cfg.MaxStep = m.endStep - m.startStep
	m.pos.CurrentStep = m.cfg.MaxStep
	m.pos.HasReachedStart = false

	m.state = StateFinished
	m.cfg.CurrentState = engine.StateReady
	m.logger.Infof("calibration: complete, total_distance=%.1fmm", m.cfg.TotalDistanceMM)

	if m.onComplete != nil {
		m.onComplete()
	}
}

// ReturnToStart reuses the same contact/decontact/offset logic as
// calibration so that position 0 is bit-identical to calibration zero,
// regardless of accumulated drift (spec §4.4). Unlike StartCalibration,
// it only homes the start side and does not rediscover total_distance_mm.
func (m *Manager) ReturnToStart() error {
	m.cfg.CurrentState = engine.StateCalibrating
	m.state = StateMovingToStart
	m.stepsTraveled = 0
	m.stepDelay = motionmath.ChaosStepDelay(m.consts, ApproachSpeedLevel)
	m.lastStepMicros = m.clock.MicroNow()

	for m.state != StateFailed {
		m.driveToward(false, m.contacts.IsStartActive, func() { m.state = StateLeavingStart })
		if m.state == StateLeavingStart {
			break
		}
	}
	if m.state == StateFailed {
		return ErrWatchdogExpired
	}

	m.stepsTraveled = 0
	for {
		if !m.contacts.IsStartActive(sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
			break
		}
		m.takeStep(true)
	}

	for i := int64(0); i < m.cfg.SafetyOffsetSteps; i++ {
		m.motor.SetDirection(true)
		m.motor.Step()
	}
	m.pos.CurrentStep = 0
	m.pos.HasReachedStart = true
	m.cfg.CurrentState = engine.StateReady
	return nil
}

// CurrentState reports the calibration sub-state machine's position.
func (m *Manager) CurrentState() State { return m.state }
