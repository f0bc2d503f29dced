// Package oscillation drives a continuous sinusoidal, triangular, or
// square waveform position and steps the carriage toward it every tick,
// with independent smoothed transitions of frequency, center, and
// amplitude, ramp in/out, and cycle counting (spec §4.6).
package oscillation

import (
	"errors"
	"time"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/sensors"
)

// Config is the user-facing oscillation configuration.
type Config struct {
	Waveform           motionmath.OscillationWaveform
	FrequencyHz        float64
	CenterMM           float64
	AmplitudeMM        float64
	CycleCount         uint64 // 0 = run indefinitely
	ReturnToCenter     bool
	RampInDurationMs   uint64
	RampOutDurationMs  uint64
	InitialPositioning bool
	CyclePause         engine.CyclePauseConfig
}

// transition tracks a linear old→target interpolation over a fixed
// duration, used identically for frequency, center, and amplitude.
type transition struct {
	active    bool
	old       float64
	target    float64
	startMs   uint64
	durationMs uint64
}

func (t *transition) value(nowMs uint64, fallback float64) float64 {
	if !t.active {
		return fallback
	}
	elapsed := core.ElapsedMillis(nowMs, t.startMs)
	if elapsed >= t.durationMs {
		t.active = false
		return t.target
	}
	progress := float64(elapsed) / float64(t.durationMs)
	return t.old + (t.target-t.old)*progress
}

func (t *transition) start(from, to float64, nowMs, durationMs uint64) {
	if durationMs == 0 {
		t.active = false
		return
	}
	t.active = true
	t.old = from
	t.target = to
	t.startMs = nowMs
	t.durationMs = durationMs
}

// State is the oscillation controller's runtime state, reset at Start.
type State struct {
	AccumulatedPhase float64
	LastPhase        float64
	CompletedCycles  uint64

	FreqTransition   transition
	CenterTransition transition
	AmpTransition    transition

	IsRampingIn         bool
	IsRampingOut        bool
	IsInitialPositioning bool
	IsReturning         bool

	StartTimeMs       uint64
	LastPhaseUpdateMs uint64
	RampOutStartMs    uint64

	CurrentFreq float64
}

var errCenterBelowZero = errors.New("oscillation: center - amplitude is below the travel minimum")
var errAmplitudeExceedsMax = errors.New("oscillation: center + amplitude exceeds effective maximum distance")

// Controller is the oscillation movement controller.
type Controller struct {
	motor    *motor.Driver
	contacts *sensors.Contacts
	clock    core.Clock
	rand     core.RandSource
	consts   motionmath.Constants
	drift    sensors.DriftConfig
	logger   engine.Logger

	cfg   *engine.Config
	pos   *engine.PositionState
	stats *engine.StatsTracking

	config Config
	state  State
	pause  engine.CyclePauseState

	lastStepMicros uint64

	catchUpLogged     bool
	lastSpeedCapLogMs uint64

	onCycleComplete func()
	onStopped       func()
}

// New creates an oscillation Controller.
func New(m *motor.Driver, contacts *sensors.Contacts, clock core.Clock, rand core.RandSource,
	cfg *engine.Config, pos *engine.PositionState, stats *engine.StatsTracking, logger engine.Logger) *Controller {
	return &Controller{
		motor:    m,
		contacts: contacts,
		clock:    clock,
		rand:     rand,
		consts:   cfg.Motion,
		drift:    cfg.Drift,
		logger:   logger,
		cfg:      cfg,
		pos:      pos,
		stats:    stats,
		config: Config{
			Waveform:    motionmath.OscSine,
			FrequencyHz: 0.5,
			AmplitudeMM: 20.0,
		},
	}
}

// OnCycleComplete registers the sequencer's cycle-completion callback.
func (c *Controller) OnCycleComplete(cb func()) { c.onCycleComplete = cb }

// OnStopped registers a callback fired when oscillation stops on its own
// after reaching its cycle count (after the return to center, when that
// is enabled).
func (c *Controller) OnStopped(cb func()) { c.onStopped = cb }

// ValidateAmplitude rejects a center/amplitude pair that would carry the
// carriage outside the travel range (spec §4.6).
func (c *Controller) ValidateAmplitude(centerMM, amplitudeMM float64) error {
	if centerMM-amplitudeMM < 0 {
		return errCenterBelowZero
	}
	if centerMM+amplitudeMM > c.cfg.EffectiveMaxDistanceMM() {
		return errAmplitudeExceedsMax
	}
	return nil
}

// SetConfig validates and installs a new oscillation configuration. Safe
// to call before Start, or mid-run to trigger smooth transitions for
// frequency/center/amplitude.
func (c *Controller) SetConfig(cfg Config) error {
	if err := c.ValidateAmplitude(cfg.CenterMM, cfg.AmplitudeMM); err != nil {
		return err
	}

	if c.cfg.CurrentState == engine.StateRunning {
		nowMs := c.clock.MilliNow()
		if cfg.FrequencyHz != c.config.FrequencyHz {
			c.state.FreqTransition.start(c.state.CurrentFreq, cfg.FrequencyHz, nowMs, 500)
		}
		if cfg.CenterMM != c.config.CenterMM {
			c.state.CenterTransition.start(c.config.CenterMM, cfg.CenterMM, nowMs, 500)
		}
		if cfg.AmplitudeMM != c.config.AmplitudeMM {
			c.state.AmpTransition.start(c.config.AmplitudeMM, cfg.AmplitudeMM, nowMs, 500)
		}
	}

	c.config = cfg
	return nil
}

// Start begins oscillation, optionally traversing to the initial
// positioning point first (spec §4.6).
func (c *Controller) Start() error {
	if c.cfg.CurrentState != engine.StateReady && c.cfg.CurrentState != engine.StatePaused {
		return nil
	}
	if err := c.ValidateAmplitude(c.config.CenterMM, c.config.AmplitudeMM); err != nil {
		return err
	}

	c.state = State{CurrentFreq: c.config.FrequencyHz}
	if c.config.RampInDurationMs > 0 {
		c.state.IsRampingIn = true
	}

	nowMs := c.clock.MilliNow()
	if c.config.InitialPositioning {
		c.state.IsInitialPositioning = true
	} else {
		c.state.StartTimeMs = nowMs
		c.state.LastPhaseUpdateMs = nowMs
	}

	c.lastStepMicros = c.clock.MicroNow()
	c.cfg.CurrentState = engine.StateRunning
	c.cfg.MovementType = engine.MovementOscillation
	c.stats.SyncPosition(c.pos.CurrentStep)
	c.motor.ResetPendTracking()
	return nil
}

// Stop halts oscillation and returns to READY.
func (c *Controller) Stop() {
	c.pause.IsPausing = false
	if c.cfg.CurrentState == engine.StateRunning || c.cfg.CurrentState == engine.StatePaused {
		c.cfg.CurrentState = engine.StateReady
		c.stats.MarkSaved()
	}
}

// TogglePause flips between RUNNING and PAUSED. Resuming restamps
// LastPhaseUpdateMs to now so advancePhase's next delta excludes the pause
// duration itself, avoiding the phase jerk a frozen clock would produce.
func (c *Controller) TogglePause() {
	switch c.cfg.CurrentState {
	case engine.StateRunning:
		c.cfg.CurrentState = engine.StatePaused
		c.stats.MarkSaved()
	case engine.StatePaused:
		c.cfg.CurrentState = engine.StateRunning
		c.state.LastPhaseUpdateMs = c.clock.MilliNow()
	}
}

// Process runs one engine tick (spec §4.6).
func (c *Controller) Process() {
	if c.cfg.CurrentState != engine.StateRunning {
		return
	}

	if c.handleCyclePause() {
		return
	}

	if c.state.IsInitialPositioning {
		if c.handleInitialPositioning() {
			return
		}
	}

	if c.state.IsReturning {
		c.handleReturning()
		return
	}

	targetMM := c.calculatePosition()
	targetStep := motionmath.MMToSteps(c.consts, targetMM)

	if !c.checkSafetyContacts(targetStep) {
		c.cfg.CurrentState = engine.StateError
		return
	}

	c.executeSteps(targetStep)
}

// advancePhase advances accumulated_phase, honoring an active frequency
// transition, and detects a completed-cycle crossing.
func (c *Controller) advancePhase(nowMs uint64) float64 {
	deltaMs := core.ElapsedMillis(nowMs, c.state.LastPhaseUpdateMs)
	c.state.LastPhaseUpdateMs = nowMs

	requestedHz := c.config.FrequencyHz
	if c.state.FreqTransition.active {
		requestedHz = c.state.FreqTransition.value(nowMs, c.state.CurrentFreq)
	}
	instantHz := motionmath.EffectiveFrequency(c.consts, requestedHz, c.effectiveAmplitude(nowMs))
	c.state.CurrentFreq = instantHz

	if instantHz != requestedHz {
		if core.ElapsedMillis(nowMs, c.lastSpeedCapLogMs) >= 1000 {
			c.logger.Warnf("oscillation: frequency capped to %.2fHz for amplitude", instantHz)
			c.lastSpeedCapLogMs = nowMs
		}
	}

	c.state.LastPhase = c.state.AccumulatedPhase
	c.state.AccumulatedPhase += instantHz * float64(deltaMs) / 1000.0

	if int(c.state.AccumulatedPhase) > int(c.state.LastPhase) {
		c.state.CompletedCycles++
		c.onCycleCrossed()
	}

	frac := c.state.AccumulatedPhase - float64(int64(c.state.AccumulatedPhase))
	return frac
}

func (c *Controller) onCycleCrossed() {
	if c.config.CycleCount == 0 || c.state.CompletedCycles < c.config.CycleCount {
		if c.config.CyclePause.Enabled {
			c.triggerCyclePause()
		}
		if c.onCycleComplete != nil {
			c.onCycleComplete()
		}
		return
	}

	switch {
	case c.config.RampOutDurationMs > 0:
		c.state.IsRampingOut = true
		c.state.RampOutStartMs = c.clock.MilliNow()
	case c.config.ReturnToCenter:
		c.state.IsReturning = true
	default:
		c.Stop()
		if c.onStopped != nil {
			c.onStopped()
		}
	}
}

// effectiveAmplitude applies ramp-in/out and any active amplitude
// transition on top of the configured amplitude.
func (c *Controller) effectiveAmplitude(nowMs uint64) float64 {
	amplitude := c.config.AmplitudeMM
	if c.state.AmpTransition.active {
		amplitude = c.state.AmpTransition.value(nowMs, amplitude)
	}

	if c.state.IsRampingIn {
		elapsed := core.ElapsedMillis(nowMs, c.state.StartTimeMs)
		if elapsed >= c.config.RampInDurationMs {
			c.state.IsRampingIn = false
			return amplitude
		}
		return amplitude * float64(elapsed) / float64(c.config.RampInDurationMs)
	}

	if c.state.IsRampingOut {
		elapsed := core.ElapsedMillis(nowMs, c.state.RampOutStartMs)
		if elapsed >= c.config.RampOutDurationMs {
			c.state.IsRampingOut = false
			if c.config.ReturnToCenter {
				c.state.IsReturning = true
			} else {
				c.Stop()
				if c.onStopped != nil {
					c.onStopped()
				}
			}
			return 0
		}
		remaining := 1.0 - float64(elapsed)/float64(c.config.RampOutDurationMs)
		return amplitude * remaining
	}

	return amplitude
}

// effectiveCenter applies any active center transition.
func (c *Controller) effectiveCenter(nowMs uint64) float64 {
	if c.state.CenterTransition.active {
		return c.state.CenterTransition.value(nowMs, c.config.CenterMM)
	}
	return c.config.CenterMM
}

// calculatePosition computes the current target position in mm (spec §4.6).
func (c *Controller) calculatePosition() float64 {
	nowMs := c.clock.MilliNow()
	phase := c.advancePhase(nowMs)
	center := c.effectiveCenter(nowMs)
	amplitude := c.effectiveAmplitude(nowMs)
	return center + amplitude*motionmath.WaveformValue(c.config.Waveform, phase)
}

// handleInitialPositioning drives toward center-amplitude at max cadence
// before oscillation begins. Returns true while still positioning.
func (c *Controller) handleInitialPositioning() bool {
	targetMM := c.config.CenterMM - c.config.AmplitudeMM
	targetStep := motionmath.MMToSteps(c.consts, targetMM)

	const toleranceSteps = 2
	if abs64(c.pos.CurrentStep-targetStep) <= toleranceSteps {
		c.state.IsInitialPositioning = false
		nowMs := c.clock.MilliNow()
		c.state.StartTimeMs = nowMs
		c.state.LastPhaseUpdateMs = nowMs
		c.state.AccumulatedPhase = 0
		return false
	}

	now := c.clock.MicroNow()
	const positioningDelay = 200 // µs, near max cadence
	if core.ElapsedMicros(now, c.lastStepMicros) < positioningDelay {
		return true
	}
	c.lastStepMicros = now

	forward := targetStep > c.pos.CurrentStep
	c.motor.SetDirection(forward)
	c.motor.Step()
	if forward {
		c.pos.CurrentStep++
	} else {
		c.pos.CurrentStep--
	}
	c.stats.TrackDelta(c.pos.CurrentStep)
	return true
}

// handleReturning drives toward center at near-max cadence after a
// cycle-count completion (with or without ramp-out), then stops.
func (c *Controller) handleReturning() {
	targetStep := motionmath.MMToSteps(c.consts, c.config.CenterMM)

	const toleranceSteps = 2
	if abs64(c.pos.CurrentStep-targetStep) <= toleranceSteps {
		c.state.IsReturning = false
		c.Stop()
		if c.onStopped != nil {
			c.onStopped()
		}
		return
	}

	now := c.clock.MicroNow()
	const positioningDelay = 200
	if core.ElapsedMicros(now, c.lastStepMicros) < positioningDelay {
		return
	}
	c.lastStepMicros = now

	forward := targetStep > c.pos.CurrentStep
	c.motor.SetDirection(forward)
	c.motor.Step()
	if forward {
		c.pos.CurrentStep++
	} else {
		c.pos.CurrentStep--
	}
	c.stats.TrackDelta(c.pos.CurrentStep)
}

func (c *Controller) triggerCyclePause() {
	c.pause.CurrentDuration = c.config.CyclePause.CalculateDuration(c.rand.Float64)
	c.pause.IsPausing = true
	c.pause.PauseStart = epochFromMillis(c.clock.MilliNow())
}

func (c *Controller) handleCyclePause() bool {
	if !c.pause.IsPausing {
		return false
	}
	if core.ElapsedMillis(c.clock.MilliNow(), msOf(c.pause.PauseStart)) >= uint64(c.pause.CurrentDuration/time.Millisecond) {
		c.pause.IsPausing = false
		return false
	}
	return true
}

// checkSafetyContacts applies the §4.2 drift checks near either physical
// limit, reporting false (unsafe) when a hard-drift contact fires.
func (c *Controller) checkSafetyContacts(targetStep int64) bool {
	if sensors.CheckHardDriftStart(c.contacts, c.drift, targetStep, c.cfg.MinStep, sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		return false
	}
	if sensors.CheckHardDriftEnd(c.contacts, c.drift, targetStep, c.cfg.MaxStep, sensors.DefaultEndChecks, sensors.DefaultSampleDelay) {
		return false
	}
	return true
}

// executeSteps drives current_step one step at a time toward targetStep,
// allowing a bounded catch-up burst if oscillation has fallen behind
// schedule, and logging a throttled warning when it does.
func (c *Controller) executeSteps(targetStep int64) {
	const maxCatchUpSteps = 8

	diff := targetStep - c.pos.CurrentStep
	if diff == 0 {
		return
	}

	now := c.clock.MicroNow()
	delay := motionmath.PursuitStepDelay(c.consts, 0, c.consts.MaxSpeedLevel)
	if core.ElapsedMicros(now, c.lastStepMicros) < delay {
		return
	}
	c.lastStepMicros = now

	steps := diff
	isCatchUp := false
	if steps > maxCatchUpSteps {
		steps = maxCatchUpSteps
		isCatchUp = true
	} else if steps < -maxCatchUpSteps {
		steps = -maxCatchUpSteps
		isCatchUp = true
	}

	if isCatchUp && !c.catchUpLogged {
		c.logger.Warnf("oscillation: catching up %d steps behind schedule", diff)
		c.catchUpLogged = true
	} else if !isCatchUp {
		c.catchUpLogged = false
	}

	forward := steps > 0
	c.motor.SetDirection(forward)
	n := steps
	if n < 0 {
		n = -n
	}
	for i := int64(0); i < n; i++ {
		c.motor.Step()
		if forward {
			c.pos.CurrentStep++
		} else {
			c.pos.CurrentStep--
		}
	}
	c.stats.TrackDelta(c.pos.CurrentStep)
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func msOf(t time.Time) uint64             { return uint64(t.UnixMilli()) }
func epochFromMillis(ms uint64) time.Time { return time.UnixMilli(int64(ms)) }

// Summary is the oscillation-specific slice of a telemetry snapshot
// (spec §6 "osc_state summary").
type Summary struct {
	CompletedCycles uint64
	CurrentFreq     float64
	IsRampingIn     bool
	IsRampingOut    bool
	IsPausing       bool
}

// Summary returns the current osc_state summary.
func (c *Controller) Summary() Summary {
	return Summary{
		CompletedCycles: c.state.CompletedCycles,
		CurrentFreq:     c.state.CurrentFreq,
		IsRampingIn:     c.state.IsRampingIn,
		IsRampingOut:    c.state.IsRampingOut,
		IsPausing:       c.pause.IsPausing,
	}
}
