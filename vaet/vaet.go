// Package vaet implements the va-et-vient ("back-and-forth") controller:
// the default movement mode, driving the carriage between a start position
// and start+distance at independently configurable forward/backward
// speeds, with optional zone effects (speed curves, random turnback,
// end-pause) near either extremity.
package vaet

import (
	"errors"
	"time"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motor"
	"motionctl/motionmath"
	"motionctl/sensors"
)

// errNotRecoverable is returned by Start when the system is latched in
// ERROR and needs an explicit reset before any movement can begin.
var errNotRecoverable = errors.New("vaet: system is in ERROR state, reset required")

// errStartExceedsMax is returned by Start when the configured start
// position already consumes the full travel range.
var errStartExceedsMax = errors.New("vaet: start position already at or beyond maximum travel")

// errZoneTooNarrow and errZonesOverlap are returned by SetZoneEffect when
// the requested zone geometry can't fit within the current travel.
var (
	errZoneTooNarrow = errors.New("vaet: zone width must be at least 10mm")
	errZonesOverlap  = errors.New("vaet: start and end zones would overlap on this distance")
)

// MotionConfig is the user-facing VAET configuration (spec §3).
type MotionConfig struct {
	StartPositionMM    float64
	TargetDistanceMM   float64
	SpeedLevelForward  float64
	SpeedLevelBackward float64
	CyclePause         engine.CyclePauseConfig
}

// PendingMotionConfig shadows MotionConfig with queued edits, applied
// atomically at the next backward-to-forward pivot (spec §5).
type PendingMotionConfig struct {
	StartPositionMM    float64
	DistanceMM         float64
	SpeedLevelForward  float64
	SpeedLevelBackward float64
	HasChanges         bool
}

// ZoneEffectConfig configures the optional speed-curve/turnback/end-pause
// behavior near a movement extremity.
type ZoneEffectConfig struct {
	Enabled               bool
	EnableStart           bool
	EnableEnd             bool
	MirrorOnReturn        bool
	ZoneMM                float64
	SpeedEffect           motionmath.SpeedEffect
	SpeedCurve            motionmath.SpeedCurve
	SpeedIntensity        float64
	RandomTurnbackEnabled bool
	TurnbackChancePercent int
	EndPause              engine.CyclePauseConfig
}

// DefaultZoneEffectConfig matches the firmware's bench defaults.
func DefaultZoneEffectConfig() ZoneEffectConfig {
	return ZoneEffectConfig{
		EnableStart:           true,
		EnableEnd:             true,
		ZoneMM:                50.0,
		SpeedEffect:           motionmath.SpeedDecel,
		SpeedCurve:            motionmath.CurveSine,
		SpeedIntensity:        75.0,
		TurnbackChancePercent: 30,
		EndPause:              engine.CyclePauseConfig{DurationSec: 1.0, MinSec: 0.5, MaxSec: 2.0},
	}
}

// ZoneEffectState is the runtime counterpart of ZoneEffectConfig: per-pass
// decisions that reset at cycle completion.
type ZoneEffectState struct {
	HasPendingTurnback   bool
	HasRolledForTurnback bool
	TurnbackPointMM      float64
	IsPausing            bool
	PauseStart           time.Time
	PauseDuration        time.Duration
}

// Calibrator is the subset of the calibration manager VAET depends on:
// auto-calibration when a movement is requested before homing, and precise
// re-homing for ReturnToStart.
type Calibrator interface {
	StartCalibration() error
	ReturnToStart() error
}

// Controller is the va-et-vient movement controller.
type Controller struct {
	motor    *motor.Driver
	contacts *sensors.Contacts
	clock    core.Clock
	rand     core.RandSource
	consts   motionmath.Constants
	drift    sensors.DriftConfig
	logger   engine.Logger
	calib    Calibrator

	cfg      *engine.Config
	pos      *engine.PositionState
	stats    *engine.StatsTracking
	mu       *core.TimedMutex
	lockWait time.Duration

	motion  MotionConfig
	pending PendingMotionConfig
	zone    ZoneEffectConfig
	zState  ZoneEffectState
	pause   engine.CyclePauseState

	startStep, targetStep int64

	delayForward, delayBackward uint64
	lastStepMicros              uint64

	hasReachedStartStep bool
	wasAtStart          bool
	lastStartContactMs  uint64
	cycleTimeMs         uint64
	measuredCPM         float64

	onCycleComplete func()
}

// New creates a Controller over the given subsystems and shared engine
// state.
func New(m *motor.Driver, contacts *sensors.Contacts, clock core.Clock, rand core.RandSource,
	cfg *engine.Config, pos *engine.PositionState, stats *engine.StatsTracking, calib Calibrator, logger engine.Logger) *Controller {
	return &Controller{
		motor:    m,
		contacts: contacts,
		clock:    clock,
		rand:     rand,
		consts:   cfg.Motion,
		drift:    cfg.Drift,
		logger:   logger,
		calib:    calib,
		cfg:      cfg,
		pos:      pos,
		stats:    stats,
		mu:       core.NewTimedMutex(),
		lockWait: 5 * time.Millisecond,
		motion: MotionConfig{
			TargetDistanceMM:   50.0,
			SpeedLevelForward:  5.0,
			SpeedLevelBackward: 5.0,
		},
		zone: DefaultZoneEffectConfig(),
	}
}

// OnCycleComplete registers the sequencer's completion callback.
func (c *Controller) OnCycleComplete(cb func()) { c.onCycleComplete = cb }

func (c *Controller) recalcStepPositions() {
	c.startStep = motionmath.MMToSteps(c.consts, c.motion.StartPositionMM)
	c.targetStep = motionmath.MMToSteps(c.consts, c.motion.StartPositionMM+c.motion.TargetDistanceMM)
}

func (c *Controller) calculateStepDelay() {
	c.delayForward = motionmath.VAETStepDelay(c.consts, c.motion.SpeedLevelForward, c.motion.TargetDistanceMM)
	c.delayBackward = motionmath.VAETStepDelay(c.consts, c.motion.SpeedLevelBackward, c.motion.TargetDistanceMM)
}

func (c *Controller) initPendingFromCurrent() {
	c.pending = PendingMotionConfig{
		StartPositionMM:    c.motion.StartPositionMM,
		DistanceMM:         c.motion.TargetDistanceMM,
		SpeedLevelForward:  c.motion.SpeedLevelForward,
		SpeedLevelBackward: c.motion.SpeedLevelBackward,
	}
}

// SetDistance queues or applies a new target distance (spec §4.5.4).
func (c *Controller) SetDistance(distMM float64) {
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: SetDistance mutex timeout")
		return
	}
	defer c.mu.Unlock()

	if c.motion.StartPositionMM+distMM > c.cfg.TotalDistanceMM {
		distMM = c.cfg.TotalDistanceMM - c.motion.StartPositionMM
	}

	if c.cfg.CurrentState == engine.StateRunning {
		if !c.pending.HasChanges {
			c.initPendingFromCurrent()
		}
		c.pending.DistanceMM = distMM
		c.pending.HasChanges = true
		return
	}

	c.motion.TargetDistanceMM = distMM
	c.recalcStepPositions()
	c.calculateStepDelay()
}

// SetStartPosition queues or applies a new start position, auto-reducing
// distance if needed to stay within total travel.
func (c *Controller) SetStartPosition(startMM float64) {
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: SetStartPosition mutex timeout")
		return
	}
	defer c.mu.Unlock()

	if startMM < 0 {
		startMM = 0
	}
	if startMM > c.cfg.TotalDistanceMM {
		startMM = c.cfg.TotalDistanceMM
		c.logger.Warnf("vaet: start position limited to %.1f mm (maximum)", startMM)
	}

	wasRunning := c.cfg.CurrentState == engine.StateRunning
	distance := c.motion.TargetDistanceMM
	distanceAdjusted := false
	if startMM+distance > c.cfg.TotalDistanceMM {
		distance = c.cfg.TotalDistanceMM - startMM
		distanceAdjusted = true
		c.logger.Warnf("vaet: distance auto-adjusted to %.1f mm to fit within maximum", distance)
	}

	if wasRunning {
		if !c.pending.HasChanges {
			c.initPendingFromCurrent()
		}
		c.pending.StartPositionMM = startMM
		c.pending.DistanceMM = distance
		c.pending.HasChanges = true
		return
	}

	if distanceAdjusted {
		c.motion.TargetDistanceMM = distance
	}
	c.motion.StartPositionMM = startMM
	c.recalcStepPositions()
	c.calculateStepDelay()
}

// SetSpeedForward queues or applies a new forward speed level.
func (c *Controller) SetSpeedForward(level float64) { c.setSpeedInternal(level, true) }

// SetSpeedBackward queues or applies a new backward speed level.
func (c *Controller) SetSpeedBackward(level float64) { c.setSpeedInternal(level, false) }

func (c *Controller) setSpeedInternal(level float64, forward bool) {
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: setSpeedInternal mutex timeout")
		return
	}
	defer c.mu.Unlock()

	wasRunning := c.cfg.CurrentState == engine.StateRunning
	if wasRunning {
		if !c.pending.HasChanges {
			c.initPendingFromCurrent()
		}
		if forward {
			c.pending.SpeedLevelForward = level
		} else {
			c.pending.SpeedLevelBackward = level
		}
		c.pending.HasChanges = true
		return
	}

	if forward {
		c.motion.SpeedLevelForward = level
	} else {
		c.motion.SpeedLevelBackward = level
	}
	c.calculateStepDelay()
}

// applyPendingChanges overwrites motion from the pending shadow and
// recomputes delays/endpoints. Called at the backward→forward pivot.
func (c *Controller) applyPendingChanges() {
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: applyPendingChanges mutex timeout")
		return
	}
	defer c.mu.Unlock()

	if !c.pending.HasChanges {
		return
	}
	c.motion.StartPositionMM = c.pending.StartPositionMM
	c.motion.TargetDistanceMM = c.pending.DistanceMM
	c.motion.SpeedLevelForward = c.pending.SpeedLevelForward
	c.motion.SpeedLevelBackward = c.pending.SpeedLevelBackward
	c.pending.HasChanges = false

	c.calculateStepDelay()
	c.recalcStepPositions()
}

// SetZoneEffect validates and installs a new zone effect configuration.
// A zone must be at least 10mm wide, and if both zones are enabled each
// may consume at most half the travel distance so they cannot overlap.
func (c *Controller) SetZoneEffect(cfg ZoneEffectConfig) error {
	if err := c.validateZoneEffect(cfg); err != nil {
		return err
	}
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: SetZoneEffect mutex timeout")
		return nil
	}
	defer c.mu.Unlock()
	c.zone = cfg
	c.zState = ZoneEffectState{}
	return nil
}

func (c *Controller) validateZoneEffect(cfg ZoneEffectConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.ZoneMM < 10.0 {
		return errZoneTooNarrow
	}
	if cfg.EnableStart && cfg.EnableEnd && cfg.ZoneMM > c.motion.TargetDistanceMM*0.5 {
		return errZonesOverlap
	}
	return nil
}

func (c *Controller) resetCycleTiming() {
	c.lastStartContactMs = 0
	c.cycleTimeMs = 0
	c.measuredCPM = 0
	c.wasAtStart = false
}

// Start begins a new VAET movement, auto-calibrating if needed and
// choosing the starting direction from the current position.
func (c *Controller) Start(distMM, speedLevel float64) error {
	if !c.mu.TryLockTimeout(c.lockWait) {
		c.logger.Warnf("vaet: start mutex timeout")
		return nil
	}
	defer c.mu.Unlock()

	if c.cfg.TotalDistanceMM == 0 {
		c.logger.Warnf("vaet: not calibrated, auto-calibrating")
		if err := c.calib.StartCalibration(); err != nil {
			return err
		}
		if c.cfg.TotalDistanceMM == 0 {
			return nil
		}
	}

	if c.cfg.CurrentState == engine.StateError {
		return errNotRecoverable
	}
	if c.cfg.CurrentState != engine.StateReady && c.cfg.CurrentState != engine.StatePaused && c.cfg.CurrentState != engine.StateRunning {
		return nil
	}

	if c.motion.StartPositionMM+distMM > c.cfg.TotalDistanceMM {
		if c.motion.StartPositionMM >= c.cfg.TotalDistanceMM {
			return errStartExceedsMax
		}
		distMM = c.cfg.TotalDistanceMM - c.motion.StartPositionMM
	}

	if c.cfg.CurrentState == engine.StateRunning {
		c.pending = PendingMotionConfig{
			StartPositionMM:    c.motion.StartPositionMM,
			DistanceMM:         distMM,
			SpeedLevelForward:  speedLevel,
			SpeedLevelBackward: speedLevel,
			HasChanges:         true,
		}
		return nil
	}

	c.motion.TargetDistanceMM = distMM
	c.motion.SpeedLevelForward = speedLevel
	c.motion.SpeedLevelBackward = speedLevel

	c.logger.Infof("vaet: start %.1f mm @ speed %.1f (%.0f c/min)", distMM, speedLevel, motionmath.SpeedLevelToCPM(c.consts, speedLevel))

	c.calculateStepDelay()
	c.lastStepMicros = c.clock.MicroNow()
	c.recalcStepPositions()

	c.cfg.CurrentState = engine.StateRunning
	c.cfg.MovementType = engine.MovementVAET

	switch {
	case c.pos.CurrentStep <= c.startStep:
		c.pos.MovingForward = true
	case c.pos.CurrentStep >= c.targetStep:
		c.pos.MovingForward = false
	default:
		c.pos.MovingForward = true
	}

	c.motor.SetDirection(c.pos.MovingForward)
	c.stats.SyncPosition(c.pos.CurrentStep)
	c.resetCycleTiming()
	c.motor.ResetPendTracking()

	c.hasReachedStartStep = c.pos.CurrentStep >= c.startStep
	return nil
}

// TogglePause flips between RUNNING and PAUSED (spec §4.5.4). Entering
// PAUSED freezes nothing here — oscillation's own controller handles the
// phase-freeze for its mode.
func (c *Controller) TogglePause() {
	if c.cfg.CurrentState != engine.StateRunning && c.cfg.CurrentState != engine.StatePaused {
		return
	}
	wasPaused := c.cfg.CurrentState == engine.StatePaused
	c.cfg.CurrentState = engine.StateRunning
	if !wasPaused {
		c.cfg.CurrentState = engine.StatePaused
		c.stats.MarkSaved()
	}
}

// Stop drops to READY, clears pause state, and keeps the motor enabled.
func (c *Controller) Stop() {
	c.pause.IsPausing = false
	c.zState.IsPausing = false

	if c.cfg.CurrentState == engine.StateRunning || c.cfg.CurrentState == engine.StatePaused {
		c.cfg.CurrentState = engine.StateReady
		c.pending.HasChanges = false
		c.stats.MarkSaved()
	}
}

// ReturnToStart stops, then delegates to the calibration manager's homing
// subroutine so position zero is bit-identical to calibration zero.
func (c *Controller) ReturnToStart() error {
	if c.cfg.CurrentState == engine.StateRunning || c.cfg.CurrentState == engine.StatePaused {
		c.Stop()
	}
	c.cfg.CurrentState = engine.StateCalibrating
	if err := c.calib.ReturnToStart(); err != nil {
		return err
	}
	c.pos.CurrentStep = 0
	c.cfg.MinStep = 0
	c.cfg.CurrentState = engine.StateReady
	return nil
}

// applyZoneEffects applies the mirror-on-return swap, checks random
// turnback, and returns the speed-adjusted delay.
func (c *Controller) applyZoneEffects(baseDelay uint64) uint64 {
	currentPositionMM := motionmath.StepsToMM(c.consts, c.pos.CurrentStep-c.startStep)

	effectiveEnableStart := c.zone.EnableStart
	effectiveEnableEnd := c.zone.EnableEnd
	if c.zone.MirrorOnReturn && !c.pos.MovingForward {
		effectiveEnableStart = c.zone.EnableEnd
		effectiveEnableEnd = c.zone.EnableStart
	}

	var movementStartMM, movementEndMM float64
	if c.pos.MovingForward {
		movementStartMM, movementEndMM = 0, c.motion.TargetDistanceMM
	} else {
		movementStartMM, movementEndMM = c.motion.TargetDistanceMM, 0
	}

	distanceFromEnd := abs(movementEndMM - currentPositionMM)

	if !c.pos.MovingForward && effectiveEnableStart && distanceFromEnd <= c.zone.ZoneMM {
		c.checkAndTriggerRandomTurnback(c.zone.ZoneMM - distanceFromEnd)
		if c.zState.IsPausing {
			return baseDelay
		}
	}
	if c.pos.MovingForward && effectiveEnableEnd && distanceFromEnd <= c.zone.ZoneMM {
		c.checkAndTriggerRandomTurnback(c.zone.ZoneMM - distanceFromEnd)
		if c.zState.IsPausing {
			return baseDelay
		}
	}

	return c.calculateAdjustedDelay(currentPositionMM, movementStartMM, movementEndMM, baseDelay, effectiveEnableStart, effectiveEnableEnd)
}

func (c *Controller) calculateAdjustedDelay(currentPositionMM, movementStartMM, movementEndMM float64, baseDelay uint64, enableStart, enableEnd bool) uint64 {
	if !c.zone.Enabled || c.zone.SpeedEffect == motionmath.SpeedNone {
		return baseDelay
	}
	if c.zone.ZoneMM <= 0 {
		return baseDelay
	}

	distanceFromStart := abs(currentPositionMM - movementStartMM)
	distanceFromEnd := abs(movementEndMM - currentPositionMM)

	speedFactor := 1.0
	if enableStart && distanceFromStart <= c.zone.ZoneMM {
		progress := distanceFromStart / c.zone.ZoneMM
		speedFactor = motionmath.ZoneSpeedFactor(c.zone.SpeedEffect, c.zone.SpeedCurve, c.zone.SpeedIntensity, progress)
	}
	if enableEnd && distanceFromEnd <= c.zone.ZoneMM {
		progress := distanceFromEnd / c.zone.ZoneMM
		endFactor := motionmath.ZoneSpeedFactor(c.zone.SpeedEffect, c.zone.SpeedCurve, c.zone.SpeedIntensity, progress)
		if c.zone.SpeedEffect == motionmath.SpeedDecel {
			if endFactor > speedFactor {
				speedFactor = endFactor
			}
		} else if endFactor < speedFactor {
			speedFactor = endFactor
		}
	}

	return uint64(float64(baseDelay) * speedFactor)
}

func (c *Controller) checkAndTriggerRandomTurnback(distanceIntoZone float64) {
	if !c.zone.RandomTurnbackEnabled || c.zState.IsPausing {
		return
	}
	if c.zState.HasPendingTurnback {
		c.executePendingTurnback(distanceIntoZone)
		return
	}
	if c.zState.HasRolledForTurnback {
		return
	}
	if distanceIntoZone < 2.0 {
		c.rollTurnbackDice()
	}
}

func (c *Controller) executePendingTurnback(distanceIntoZone float64) {
	if distanceIntoZone < c.zState.TurnbackPointMM {
		return
	}
	if c.zone.EndPause.Enabled {
		c.triggerEndPause()
	}
	c.pos.MovingForward = !c.pos.MovingForward
	c.zState.HasPendingTurnback = false
}

func (c *Controller) rollTurnbackDice() {
	c.zState.HasRolledForTurnback = true
	roll := c.rand.IntRange(0, 99)
	if roll < c.zone.TurnbackChancePercent {
		minTurnback := c.zone.ZoneMM * 0.1
		maxTurnback := c.zone.ZoneMM * 0.9
		c.zState.TurnbackPointMM = minTurnback + c.rand.Float64()*(maxTurnback-minTurnback)
		c.zState.HasPendingTurnback = true
	}
}

func (c *Controller) resetRandomTurnback() {
	c.zState.HasPendingTurnback = false
	c.zState.HasRolledForTurnback = false
	c.zState.TurnbackPointMM = 0
}

func (c *Controller) checkAndHandleEndPause() bool {
	if !c.zState.IsPausing {
		return false
	}
	if core.ElapsedMillis(c.clock.MilliNow(), msOf(c.zState.PauseStart)) >= uint64(c.zState.PauseDuration/time.Millisecond) {
		c.zState.IsPausing = false
		return false
	}
	return true
}

func (c *Controller) triggerEndPause() {
	if !c.zone.EndPause.Enabled {
		return
	}
	c.zState.PauseDuration = c.zone.EndPause.CalculateDuration(c.rand.Float64)
	c.zState.IsPausing = true
	c.zState.PauseStart = epochFromMillis(c.clock.MilliNow())
}

// Process runs one engine tick of the VAET controller (spec §4.5).
func (c *Controller) Process() {
	if c.cfg.CurrentState != engine.StateRunning {
		return
	}

	if c.pause.IsPausing {
		if core.ElapsedMillis(c.clock.MilliNow(), msOf(c.pause.PauseStart)) >= uint64(c.pause.CurrentDuration/time.Millisecond) {
			c.pause.IsPausing = false
			c.pos.MovingForward = true
		}
		return
	}

	if c.checkAndHandleEndPause() {
		return
	}

	now := c.clock.MicroNow()
	delay := c.delayForward
	if !c.pos.MovingForward {
		delay = c.delayBackward
	}

	if c.zone.Enabled && c.hasReachedStartStep {
		delay = c.applyZoneEffects(delay)
		if c.zState.IsPausing {
			return
		}
	}

	if core.ElapsedMicros(now, c.lastStepMicros) >= delay {
		c.lastStepMicros = now
		c.doStep()
	}
}

func (c *Controller) doStep() {
	c.motor.SetDirection(c.pos.MovingForward)
	if c.pos.MovingForward {
		c.doStepForward()
	} else {
		c.doStepBackward()
	}
}

func (c *Controller) doStepForward() {
	if corrected, drifted := sensors.CheckAndCorrectDriftEnd(c.drift, c.pos.CurrentStep, c.targetStep); drifted {
		c.pos.CurrentStep = corrected
		c.pos.MovingForward = false
		c.resetRandomTurnback()
		return
	}
	if sensors.CheckHardDriftEnd(c.contacts, c.drift, c.pos.CurrentStep, c.targetStep, sensors.DefaultEndChecks, sensors.DefaultSampleDelay) {
		c.cfg.CurrentState = engine.StateError
		return
	}

	if c.pos.CurrentStep+1 > c.targetStep {
		if c.zone.Enabled && c.zone.EndPause.Enabled && c.zone.EnableEnd {
			c.triggerEndPause()
		}
		c.pos.MovingForward = false
		c.resetRandomTurnback()
		return
	}

	if !c.hasReachedStartStep && c.pos.CurrentStep >= c.startStep {
		c.hasReachedStartStep = true
	}

	c.motor.Step()
	c.pos.CurrentStep++
	c.stats.TrackDelta(c.pos.CurrentStep)
}

func (c *Controller) doStepBackward() {
	if corrected, drifted := sensors.CheckAndCorrectDriftStart(c.drift, c.pos.CurrentStep, c.startStep); drifted {
		c.pos.CurrentStep = corrected
		return
	}
	if sensors.CheckHardDriftStart(c.contacts, c.drift, c.pos.CurrentStep, c.startStep, sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		c.cfg.CurrentState = engine.StateError
		return
	}

	if c.pos.CurrentStep > c.cfg.MinStep+c.cfg.WasAtStartThresholdSteps {
		c.wasAtStart = false
	}

	c.motor.Step()
	c.pos.CurrentStep--
	c.stats.TrackDelta(c.pos.CurrentStep)

	if c.pos.CurrentStep <= c.startStep && c.hasReachedStartStep {
		if c.zone.Enabled && c.zone.EndPause.Enabled && c.zone.EnableStart {
			c.triggerEndPause()
		}
		c.resetRandomTurnback()
		c.processCycleCompletion()
	}
}

func (c *Controller) processCycleCompletion() {
	c.applyPendingChanges()

	if c.handleCyclePause() {
		return
	}

	c.pos.MovingForward = true

	if c.cfg.ExecutionContext == engine.ContextSequencer && c.onCycleComplete != nil {
		c.onCycleComplete()
	}

	c.measureCycleTime()
	c.motor.SetDirection(true)
}

func (c *Controller) handleCyclePause() bool {
	if !c.motion.CyclePause.Enabled {
		return false
	}
	c.pause.CurrentDuration = c.motion.CyclePause.CalculateDuration(c.rand.Float64)
	c.pause.IsPausing = true
	c.pause.PauseStart = epochFromMillis(c.clock.MilliNow())
	return true
}

// measureCycleTime logs a diagnostic comparison between measured and
// target cycles-per-minute when they diverge by more than 15%.
func (c *Controller) measureCycleTime() {
	if c.wasAtStart {
		return
	}
	nowMs := c.clock.MilliNow()

	if c.lastStartContactMs > 0 {
		c.cycleTimeMs = core.ElapsedMillis(nowMs, c.lastStartContactMs)
		if c.cycleTimeMs > 0 {
			c.measuredCPM = 60000.0 / float64(c.cycleTimeMs)
			avgTargetCPM := (motionmath.SpeedLevelToCPM(c.consts, c.motion.SpeedLevelForward) + motionmath.SpeedLevelToCPM(c.consts, c.motion.SpeedLevelBackward)) / 2.0
			if avgTargetCPM > 0 {
				diffPercent := ((c.measuredCPM - avgTargetCPM) / avgTargetCPM) * 100.0
				if abs(diffPercent) > 15.0 {
					c.logger.Debugf("vaet: cycle timing %dms, target %.0f c/min, measured %.1f c/min, diff %.1f%%",
						c.cycleTimeMs, avgTargetCPM, c.measuredCPM, diffPercent)
				}
			}
		}
	}
	c.lastStartContactMs = nowMs
	c.wasAtStart = true
}

// MeasuredCPM reports the last measured cycles-per-minute, for telemetry.
func (c *Controller) MeasuredCPM() float64 { return c.measuredCPM }

// CurrentPositionMM reports the current position relative to start.
func (c *Controller) CurrentPositionMM() float64 {
	return motionmath.StepsToMM(c.consts, c.pos.CurrentStep-c.startStep)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// msOf/epochFromMillis convert between time.Time and a raw millisecond
// counter so ZoneEffectState/CyclePauseState can store a platform
// millisecond timestamp without pulling engine.Clock into every struct.
func msOf(t time.Time) uint64             { return uint64(t.UnixMilli()) }
func epochFromMillis(ms uint64) time.Time { return time.UnixMilli(int64(ms)) }
