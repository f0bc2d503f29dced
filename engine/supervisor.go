package engine

import (
	"time"

	"motionctl/core"
	"motionctl/motionmath"
)

// Processor is the one method every movement controller's tick driver
// shares. The Supervisor dispatches to exactly one Processor per tick,
// selected by cfg.MovementType (spec §3, §5: "at most one movement
// controller is active").
type Processor interface {
	Process()
}

// Haltable is implemented by controllers with a user-facing stop. Not every
// MovementType has one — calibration runs its homing sequence to completion
// or failure and has no meaningful mid-run stop, so for a processor that
// doesn't implement Haltable, Supervisor.Stop() forces READY directly
// rather than returning an error.
type Haltable interface {
	Stop()
}

// Pausable is implemented by controllers with a RUNNING/PAUSED toggle.
// Calibration again has no pause concept of its own.
type Pausable interface {
	TogglePause()
}

// SnapshotProvider returns a movement-specific telemetry summary for the
// currently active MovementType. Its concrete return type (e.g.
// oscillation.Summary) lives in the owning package; Supervisor only ever
// carries it as an opaque value, which is how it avoids importing the
// controller packages and creating a cycle with them.
type SnapshotProvider func() any

// Snapshot is the telemetry read model returned by Supervisor.Snapshot
// (spec §6 "Telemetry Snapshot"). It is assembled under the Supervisor's
// mutex so every field reflects a single consistent instant.
type Snapshot struct {
	SystemState            SystemState
	MovementType           MovementType
	ExecutionContext       ExecutionContext
	CurrentPositionMM      float64
	EffectiveMaxDistanceMM float64
	TotalDistanceMM        float64
	TotalDistanceSteps     uint64
	ActiveModeSummary      any
	DeviceIP                string
}

// Supervisor owns the cross-cutting dispatch, command routing, and global
// stop/pause for whichever movement is active (spec §4.10). It never
// imports a controller package directly: controllers register themselves
// against the small Processor/Haltable/Pausable interfaces above, and the
// command table's tag-specific payloads stay opaque all the way through to
// the handler that was registered for that tag.
type Supervisor struct {
	mu          *core.TimedMutex
	lockTimeout time.Duration

	cfg    *Config
	pos    *PositionState
	stats  *StatsTracking
	logger Logger

	commands *CommandRegistry

	processors        map[MovementType]Processor
	snapshotProviders map[MovementType]SnapshotProvider

	deviceIP string
}

// NewSupervisor creates a Supervisor over the shared Config/PositionState/
// StatsTracking that every controller was constructed against.
func NewSupervisor(cfg *Config, pos *PositionState, stats *StatsTracking, logger Logger) *Supervisor {
	if logger == nil {
		logger = NopLogger{}
	}
	return &Supervisor{
		mu:                core.NewTimedMutex(),
		lockTimeout:        50 * time.Millisecond,
		cfg:               cfg,
		pos:               pos,
		stats:             stats,
		logger:            logger,
		commands:          NewCommandRegistry(),
		processors:        make(map[MovementType]Processor),
		snapshotProviders: make(map[MovementType]SnapshotProvider),
	}
}

// RegisterController wires mt's Processor. Call once per MovementType at
// startup, after the concrete controller (vaet.Controller,
// oscillation.Controller, ...) has been constructed.
func (s *Supervisor) RegisterController(mt MovementType, p Processor) {
	s.processors[mt] = p
}

// RegisterSnapshotProvider wires mt's telemetry summary source.
func (s *Supervisor) RegisterSnapshotProvider(mt MovementType, fn SnapshotProvider) {
	s.snapshotProviders[mt] = fn
}

// RegisterHandler installs the handler for one command tag.
func (s *Supervisor) RegisterHandler(tag CommandTag, handler CommandHandler) {
	s.commands.Register(tag, handler)
}

// SetDeviceIP records the address reported in telemetry snapshots.
func (s *Supervisor) SetDeviceIP(ip string) { s.deviceIP = ip }

// Dispatch runs one engine tick: it steps whichever MovementType is
// currently authorized, and only while RUNNING (a controller reads
// StatePaused itself and holds position). CALIBRATING dispatches to
// MovementCalibration the same way every other state does — calibration's
// own Process() owns its internal homing sub-state machine.
func (s *Supervisor) Dispatch() {
	if s.cfg.CurrentState != StateRunning && s.cfg.CurrentState != StateCalibrating {
		return
	}
	p, ok := s.processors[s.cfg.MovementType]
	if !ok {
		return
	}
	p.Process()
}

// Stop implements the spec's global stop(): it resolves the active
// controller and calls its Stop() if it has one, then falls back to
// forcing READY directly so a controller with no Haltable (calibration)
// still leaves RUNNING/PAUSED.
func (s *Supervisor) Stop() {
	if !s.mu.TryLockTimeout(s.lockTimeout) {
		s.logger.Warnf("engine: Stop() could not acquire the motion lock within %s", s.lockTimeout)
		return
	}
	defer s.mu.Unlock()

	p := s.processors[s.cfg.MovementType]
	if h, ok := p.(Haltable); ok {
		h.Stop()
		return
	}
	if s.cfg.CurrentState == StateRunning || s.cfg.CurrentState == StatePaused {
		s.cfg.CurrentState = StateReady
	}
}

// TogglePause implements the spec's global toggle_pause(). A MovementType
// with no Pausable (calibration) silently ignores the request.
func (s *Supervisor) TogglePause() {
	if !s.mu.TryLockTimeout(s.lockTimeout) {
		s.logger.Warnf("engine: TogglePause() could not acquire the motion lock within %s", s.lockTimeout)
		return
	}
	defer s.mu.Unlock()

	p := s.processors[s.cfg.MovementType]
	if pz, ok := p.(Pausable); ok {
		pz.TogglePause()
	}
}

// HandleCommand routes cmd to its registered handler, taking the motion
// lock first (spec §5: "a pending_motion edit takes effect exactly at a
// safe point", enforced here by serializing every command against whatever
// tick is in flight). STOP and PAUSE are handled inline rather than through
// a registered handler, since they're Supervisor built-ins that apply to
// every MovementType uniformly.
func (s *Supervisor) HandleCommand(cmd Command) error {
	switch cmd.Tag {
	case CmdStop, CmdStopOscillation, CmdStopChaos, CmdSeqStop:
		s.Stop()
		return nil
	case CmdPause, CmdPauseOscillation:
		s.TogglePause()
		return nil
	}

	if !s.mu.TryLockTimeout(s.lockTimeout) {
		return errCommandLockTimeout
	}
	defer s.mu.Unlock()
	return s.commands.Dispatch(cmd)
}

// Snapshot assembles the telemetry read model under the motion lock, so
// every field reflects the state at one instant (spec §5 "Telemetry is a
// snapshot").
func (s *Supervisor) Snapshot() Snapshot {
	if !s.mu.TryLockTimeout(s.lockTimeout) {
		s.logger.Warnf("engine: Snapshot() could not acquire the motion lock within %s", s.lockTimeout)
	} else {
		defer s.mu.Unlock()
	}

	snap := Snapshot{
		SystemState:            s.cfg.CurrentState,
		MovementType:           s.cfg.MovementType,
		ExecutionContext:       s.cfg.ExecutionContext,
		CurrentPositionMM:      motionmath.StepsToMM(s.cfg.Motion, s.pos.CurrentStep),
		EffectiveMaxDistanceMM: s.cfg.EffectiveMaxDistanceMM(),
		TotalDistanceMM:        motionmath.StepsToMM(s.cfg.Motion, int64(s.stats.TotalDistanceSteps)),
		TotalDistanceSteps:     s.stats.TotalDistanceSteps,
		DeviceIP:               s.deviceIP,
	}
	if fn, ok := s.snapshotProviders[s.cfg.MovementType]; ok {
		snap.ActiveModeSummary = fn()
	}
	return snap
}
