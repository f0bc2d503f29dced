package chaos

import (
	"errors"

	"motionctl/core"
	"motionctl/engine"
	"motionctl/motionmath"
	"motionctl/motor"
	"motionctl/sensors"
)

// errNoPatternsEnabled is returned by Start when EnabledPatterns has been
// set to an explicitly empty list, leaving nothing to pick from (spec §4.7
// boundary: chaos with every pattern disabled refuses to start).
var errNoPatternsEnabled = errors.New("chaos: no patterns enabled")

// Config is the user-facing chaos configuration.
type Config struct {
	// EnabledPatterns restricts which of the eleven patterns Start draws
	// from. nil (the zero value) means unset and enables all eleven;
	// a non-nil slice is taken literally, including the empty slice, which
	// enables none and makes Start refuse to run.
	EnabledPatterns   []PatternID
	CrazinessPercent  float64 // 0..100
	CenterMM          float64
	AmplitudeMM       float64
	OverallDurationMs uint64 // 0 = run indefinitely
	Seed              int64  // 0 = derive from the clock
}

// runtimeState holds the active pattern's draw results and in-progress
// trajectory bookkeeping. Reset every time selectPattern runs.
type runtimeState struct {
	pattern *PatternDef

	patternStartMs  uint64
	patternDuration uint64

	speedLevel float64

	targetMM float64

	// WAVE/CALM
	freqHz      float64
	phase       float64
	lastPhaseMs uint64
	calmPaused  bool

	// SPIRAL
	spiralGrowing bool

	// PULSE/SWEEP/PENDULUM
	phaseOut bool

	// BRUTE_FORCE/LIBERATOR
	multiPhase    int // 0 = fast/slow leg, 1 = mirrored leg, 2 = pause
	forwardBiased bool
}

// Controller schedules and steps the active chaos pattern (spec §4.7).
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
	state  runtimeState

	overallStartMs uint64
	lastStepMicros uint64
	pauseUntilMs   uint64

	patternsExecuted uint64
	minReachedMM     float64
	maxReachedMM     float64
	haveReached      bool

	onStopped func()
}

// New creates a chaos Controller.
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
			CrazinessPercent: 50.0,
			AmplitudeMM:      20.0,
		},
	}
}

// OnStopped registers a callback fired when the overall chaos duration
// elapses.
func (c *Controller) OnStopped(cb func()) { c.onStopped = cb }

// SetConfig installs a new chaos configuration. Safe before or during a run;
// a mid-run change takes effect on the next pattern selection.
func (c *Controller) SetConfig(cfg Config) { c.config = cfg }

// Start seeds the RNG and picks the first pattern (spec §4.7). It does not
// move the carriage to center first: the run begins from the carriage's
// current position. Refuses to run if EnabledPatterns resolves to an
// empty set.
func (c *Controller) Start() error {
	if len(c.enabledPatterns()) == 0 {
		return errNoPatternsEnabled
	}

	if c.config.Seed != 0 {
		c.rand.Seed(c.config.Seed)
	} else {
		c.rand.Seed(int64(c.clock.MicroNow()))
	}

	c.state = runtimeState{}
	c.overallStartMs = c.clock.MilliNow()
	c.pauseUntilMs = 0
	c.lastStepMicros = c.clock.MicroNow()

	c.cfg.CurrentState = engine.StateRunning
	c.cfg.MovementType = engine.MovementChaos
	c.stats.SyncPosition(c.pos.CurrentStep)
	c.motor.ResetPendTracking()

	c.patternsExecuted = 0
	c.haveReached = false

	c.selectPattern()
	return nil
}

// Stop halts chaos and returns to READY.
func (c *Controller) Stop() {
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

// enabledPatterns returns the configured pattern set. An unset
// (nil) EnabledPatterns defaults to all eleven; an explicitly empty or
// non-matching slice yields an empty result, which Start refuses to run on.
func (c *Controller) enabledPatterns() []PatternDef {
	if c.config.EnabledPatterns == nil {
		return AllPatterns
	}
	var out []PatternDef
	for _, def := range AllPatterns {
		for _, id := range c.config.EnabledPatterns {
			if def.ID == id {
				out = append(out, def)
				break
			}
		}
	}
	return out
}

// pickWeightedPattern draws one pattern with probability proportional to
// its Weight.
func (c *Controller) pickWeightedPattern(patterns []PatternDef) *PatternDef {
	total := 0.0
	for _, p := range patterns {
		total += p.Weight
	}
	roll := c.rand.Float64() * total
	acc := 0.0
	for i := range patterns {
		acc += patterns[i].Weight
		if roll < acc {
			return &patterns[i]
		}
	}
	return &patterns[len(patterns)-1]
}

// selectPattern chooses a new pattern and draws its duration, speed level,
// and initial sub-target (spec §4.7).
func (c *Controller) selectPattern() {
	craziness := c.config.CrazinessPercent / 100.0
	def := c.pickWeightedPattern(c.enabledPatterns())

	durMin, durMax := motionmath.SafeDurationCalc(def.Base, craziness, 1.0)
	duration := durMin
	if durMax > durMin {
		duration = durMin + uint64(c.rand.Float64()*float64(durMax-durMin))
	}

	speedLevel := motionmath.ChaosSpeedLevel(def.Base, c.consts.MaxSpeedLevel, c.config.CrazinessPercent, c.rand.Float64())

	c.patternsExecuted++

	c.state = runtimeState{
		pattern:         def,
		patternStartMs:  c.clock.MilliNow(),
		patternDuration: duration,
		speedLevel:      speedLevel,
		targetMM:        motionmath.StepsToMM(c.consts, c.pos.CurrentStep),
	}

	c.initPatternRuntime()
}

// initPatternRuntime sets up the fields specific to the newly selected
// pattern's trajectory generator.
func (c *Controller) initPatternRuntime() {
	p := c.state.pattern
	switch p.ID {
	case PatternWave:
		if p.Sin.CyclesOverDuration > 0 {
			c.state.freqHz = float64(p.Sin.CyclesOverDuration) / (float64(c.state.patternDuration) / 1000.0)
		} else {
			c.state.freqHz = p.Sin.FrequencyMin + c.rand.Float64()*(p.Sin.FrequencyMax-p.Sin.FrequencyMin)
		}
		c.state.lastPhaseMs = c.state.patternStartMs
	case PatternCalm:
		c.state.freqHz = p.Sin.FrequencyMin + c.rand.Float64()*(p.Sin.FrequencyMax-p.Sin.FrequencyMin)
		c.state.lastPhaseMs = c.state.patternStartMs
		c.state.calmPaused = false
	case PatternSpiral:
		c.state.spiralGrowing = true
	case PatternPulse, PatternSweep, PatternPendulum:
		c.state.phaseOut = true
		c.state.targetMM = c.drawJumpMM()
	case PatternBruteForce, PatternLiberator:
		c.state.multiPhase = 0
		c.state.forwardBiased = c.pickMultiPhaseDirection()
		c.state.targetMM = c.drawBiasedJumpMM()
	default:
		c.state.targetMM = c.randomTargetInRange()
	}
}

// pickMultiPhaseDirection rolls the craziness-scaled forward-direction bias
// for BRUTE_FORCE/LIBERATOR's first phase.
func (c *Controller) pickMultiPhaseDirection() bool {
	dir := c.state.pattern.Dir
	craziness := c.config.CrazinessPercent / 100.0
	chancePercent := float64(dir.ForwardChanceMin) + (float64(dir.ForwardChanceMax)-float64(dir.ForwardChanceMin))*craziness
	return c.rand.Float64()*100.0 < chancePercent
}

// randomTargetInRange draws a uniform target within [center-A, center+A].
func (c *Controller) randomTargetInRange() float64 {
	lo := c.config.CenterMM - c.config.AmplitudeMM
	hi := c.config.CenterMM + c.config.AmplitudeMM
	return lo + c.rand.Float64()*(hi-lo)
}

// drawJumpMM draws a signed jump amplitude scaled by the pattern's jump
// range, applied from CenterMM toward a random extreme.
func (c *Controller) drawJumpMM() float64 {
	frac := c.state.pattern.Base.JumpMin + c.rand.Float64()*(c.state.pattern.Base.JumpMax-c.state.pattern.Base.JumpMin)
	if c.rand.IntRange(0, 2) == 0 {
		return c.config.CenterMM - c.config.AmplitudeMM*frac
	}
	return c.config.CenterMM + c.config.AmplitudeMM*frac
}

// drawBiasedJumpMM is drawJumpMM's BRUTE_FORCE/LIBERATOR variant: the
// outward direction follows the drawn forward bias instead of an even
// coin flip.
func (c *Controller) drawBiasedJumpMM() float64 {
	frac := c.state.pattern.Base.JumpMin + c.rand.Float64()*(c.state.pattern.Base.JumpMax-c.state.pattern.Base.JumpMin)
	if c.state.forwardBiased {
		return c.config.CenterMM + c.config.AmplitudeMM*frac
	}
	return c.config.CenterMM - c.config.AmplitudeMM*frac
}

// Process runs one engine tick (spec §4.7).
func (c *Controller) Process() {
	if c.cfg.CurrentState != engine.StateRunning {
		return
	}

	nowMs := c.clock.MilliNow()

	if c.config.OverallDurationMs > 0 && core.ElapsedMillis(nowMs, c.overallStartMs) >= c.config.OverallDurationMs {
		c.Stop()
		if c.onStopped != nil {
			c.onStopped()
		}
		return
	}

	if c.pauseUntilMs > 0 {
		if nowMs < c.pauseUntilMs {
			return
		}
		c.pauseUntilMs = 0
	}

	if core.ElapsedMillis(nowMs, c.state.patternStartMs) >= c.state.patternDuration {
		c.selectPattern()
		nowMs = c.clock.MilliNow()
	}

	c.computeTargetMM(nowMs)

	targetMM := c.clampToBounds(c.state.targetMM)
	targetStep := motionmath.MMToSteps(c.consts, targetMM)

	if !c.checkSafetyContacts(targetStep) {
		c.cfg.CurrentState = engine.StateError
		return
	}

	c.stepToward(targetStep)
}

// computeTargetMM updates state.targetMM for the active pattern: continuous
// generators (WAVE, CALM, SPIRAL) recompute every tick; discrete generators
// keep their target until reached, at which point advanceDiscreteTarget
// picks the next one.
func (c *Controller) computeTargetMM(nowMs uint64) {
	switch c.state.pattern.ID {
	case PatternWave:
		c.state.targetMM = c.waveTargetMM(nowMs)
	case PatternCalm:
		c.state.targetMM = c.calmTargetMM(nowMs)
	case PatternSpiral:
		c.state.targetMM = c.spiralTargetMM(nowMs)
	case PatternDrift:
		c.advanceDriftTarget()
	default:
		if c.reachedTarget() {
			c.advanceDiscreteTarget()
		}
	}
}

func (c *Controller) reachedTarget() bool {
	targetStep := motionmath.MMToSteps(c.consts, c.clampToBounds(c.state.targetMM))
	const tolerance = 2
	diff := targetStep - c.pos.CurrentStep
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

func (c *Controller) waveTargetMM(nowMs uint64) float64 {
	deltaMs := core.ElapsedMillis(nowMs, c.state.lastPhaseMs)
	c.state.lastPhaseMs = nowMs
	c.state.phase += c.state.freqHz * float64(deltaMs) / 1000.0
	return c.config.CenterMM + c.config.AmplitudeMM*motionmath.WaveformValue(motionmath.OscSine, c.state.phase-float64(int64(c.state.phase)))
}

// calmTargetMM advances CALM's slow sinusoid, and at a |sin| extreme rolls
// a one-shot chance to enter a pattern-internal pause.
func (c *Controller) calmTargetMM(nowMs uint64) float64 {
	deltaMs := core.ElapsedMillis(nowMs, c.state.lastPhaseMs)
	c.state.lastPhaseMs = nowMs
	c.state.phase += c.state.freqHz * float64(deltaMs) / 1000.0
	frac := c.state.phase - float64(int64(c.state.phase))
	value := motionmath.WaveformValue(motionmath.OscSine, frac)

	pause := c.state.pattern.Pause
	if !c.state.calmPaused && value > pause.PauseTrigger || (!c.state.calmPaused && value < -pause.PauseTrigger) {
		c.state.calmPaused = true
		if c.rand.Float64()*100.0 < pause.PauseChancePercent {
			span := pause.PauseMax - pause.PauseMin
			d := pause.PauseMin
			if span > 0 {
				d += uint64(c.rand.Float64() * float64(span))
			}
			c.pauseUntilMs = nowMs + d
		}
	} else if c.state.calmPaused && -pause.PauseTrigger+0.1 < value && value < pause.PauseTrigger-0.1 {
		c.state.calmPaused = false
	}

	return c.config.CenterMM + c.config.AmplitudeMM*value
}

// spiralTargetMM grows (or shrinks) the oscillation amplitude fraction
// linearly from 10% to 100% of the configured AmplitudeMM over the
// pattern's duration, at a fixed one-cycle-per-duration frequency since the
// source material leaves the spiral's exact oscillation rate unspecified.
func (c *Controller) spiralTargetMM(nowMs uint64) float64 {
	elapsed := core.ElapsedMillis(nowMs, c.state.patternStartMs)
	progress := 0.0
	if c.state.patternDuration > 0 {
		progress = float64(elapsed) / float64(c.state.patternDuration)
	}
	if progress > 1.0 {
		progress = 1.0
	}

	frac := 0.10 + 0.90*progress
	if !c.state.spiralGrowing {
		frac = 1.0 - 0.90*progress
	}

	cyclePhase := progress - float64(int64(progress))
	return c.config.CenterMM + c.config.AmplitudeMM*frac*motionmath.WaveformValue(motionmath.OscSine, cyclePhase)
}

// advanceDriftTarget nudges the target by a small bounded random delta,
// implementing DRIFT's slow random walk.
func (c *Controller) advanceDriftTarget() {
	if !c.reachedTarget() {
		return
	}
	jump := c.drawJumpMM() - c.config.CenterMM
	c.state.targetMM = c.state.targetMM + jump*0.1
}

// advanceDiscreteTarget picks the next sub-target once the current one is
// reached, per the active pattern's trajectory shape.
func (c *Controller) advanceDiscreteTarget() {
	p := c.state.pattern
	switch p.ID {
	case PatternZigZag, PatternBurst:
		c.state.targetMM = c.randomTargetInRange()
	case PatternSweep, PatternPendulum:
		c.state.phaseOut = !c.state.phaseOut
		c.state.targetMM = c.mirrorExtreme()
	case PatternPulse:
		c.state.phaseOut = !c.state.phaseOut
		if c.state.phaseOut {
			c.state.targetMM = c.drawJumpMM()
		} else {
			c.state.targetMM = c.config.CenterMM
		}
	case PatternBruteForce, PatternLiberator:
		c.advanceMultiPhase()
	}
}

// mirrorExtreme returns the opposite travel extreme from the current
// target, for SWEEP/PENDULUM's endpoint-to-endpoint motion.
func (c *Controller) mirrorExtreme() float64 {
	lo := c.config.CenterMM - c.config.AmplitudeMM
	hi := c.config.CenterMM + c.config.AmplitudeMM
	if c.state.targetMM <= c.config.CenterMM {
		return hi
	}
	return lo
}

// advanceMultiPhase drives BRUTE_FORCE's fast-outward/slow-return/pause
// cycle (and LIBERATOR's mirror of it): phase 0 is the fast/slow first leg
// at the base speed and drawn direction, phase 1 re-targets center at the
// phase-2 speed band, phase 2 is the inter-phase pause.
func (c *Controller) advanceMultiPhase() {
	multi := c.state.pattern.Multi
	craziness := c.config.CrazinessPercent

	switch c.state.multiPhase {
	case 0:
		c.state.multiPhase = 1
		c.state.targetMM = c.config.CenterMM
		phase2Base := motionmath.ChaosBaseConfig{
			SpeedMin: multi.Phase2SpeedMin, SpeedMax: multi.Phase2SpeedMax,
			SpeedCrazinessBoost: multi.Phase2SpeedCrazinessBoost,
		}
		c.state.speedLevel = motionmath.ChaosSpeedLevel(phase2Base, c.consts.MaxSpeedLevel, craziness, c.rand.Float64())
	case 1:
		c.state.multiPhase = 2
		span := multi.PauseMax - multi.PauseMin
		d := multi.PauseMin
		if span > 0 {
			d += uint64(c.rand.Float64() * float64(span))
		}
		c.pauseUntilMs = c.clock.MilliNow() + d
	default:
		c.state.multiPhase = 0
		c.state.forwardBiased = c.pickMultiPhaseDirection()
		c.state.targetMM = c.drawBiasedJumpMM()
		c.state.speedLevel = motionmath.ChaosSpeedLevel(c.state.pattern.Base, c.consts.MaxSpeedLevel, craziness, c.rand.Float64())
	}
}

// clampToBounds restricts a target to [center-A, center+A] and then to the
// travel's absolute [0, total] bounds.
func (c *Controller) clampToBounds(targetMM float64) float64 {
	lo := c.config.CenterMM - c.config.AmplitudeMM
	hi := c.config.CenterMM + c.config.AmplitudeMM
	if targetMM < lo {
		targetMM = lo
	}
	if targetMM > hi {
		targetMM = hi
	}

	minMM := motionmath.StepsToMM(c.consts, c.cfg.MinStep)
	maxMM := motionmath.StepsToMM(c.consts, c.cfg.MaxStep)
	if targetMM < minMM {
		targetMM = minMM
	}
	if targetMM > maxMM {
		targetMM = maxMM
	}
	return targetMM
}

// checkSafetyContacts applies the conditional hard-drift check, active only
// near either physical limit (spec §4.7).
func (c *Controller) checkSafetyContacts(targetStep int64) bool {
	if sensors.CheckHardDriftStart(c.contacts, c.drift, targetStep, c.cfg.MinStep, sensors.DefaultStartChecks, sensors.DefaultSampleDelay) {
		return false
	}
	if sensors.CheckHardDriftEnd(c.contacts, c.drift, targetStep, c.cfg.MaxStep, sensors.DefaultEndChecks, sensors.DefaultSampleDelay) {
		return false
	}
	return true
}

// stepToward advances current_step one step toward targetStep, gated by the
// active pattern's drawn speed level.
func (c *Controller) stepToward(targetStep int64) {
	diff := targetStep - c.pos.CurrentStep
	if diff == 0 {
		return
	}

	now := c.clock.MicroNow()
	delay := motionmath.ChaosStepDelay(c.consts, c.state.speedLevel)
	if core.ElapsedMicros(now, c.lastStepMicros) < delay {
		return
	}
	c.lastStepMicros = now

	forward := diff > 0
	c.motor.SetDirection(forward)
	c.motor.Step()
	if forward {
		c.pos.CurrentStep++
	} else {
		c.pos.CurrentStep--
	}
	c.stats.TrackDelta(c.pos.CurrentStep)
	c.trackReach()
}

// trackReach updates the min/max mm reached so far, for telemetry.
func (c *Controller) trackReach() {
	mm := motionmath.StepsToMM(c.consts, c.pos.CurrentStep)
	if !c.haveReached {
		c.minReachedMM = mm
		c.maxReachedMM = mm
		c.haveReached = true
		return
	}
	if mm < c.minReachedMM {
		c.minReachedMM = mm
	}
	if mm > c.maxReachedMM {
		c.maxReachedMM = mm
	}
}

// Summary is the chaos-specific slice of a telemetry snapshot
// (spec §6 "chaos_state summary").
type Summary struct {
	CurrentPattern   string
	PatternsExecuted uint64
	MinReachedMM     float64
	MaxReachedMM     float64
}

// Summary returns the current chaos_state summary.
func (c *Controller) Summary() Summary {
	name := ""
	if c.state.pattern != nil {
		name = c.state.pattern.ID.String()
	}
	return Summary{
		CurrentPattern:   name,
		PatternsExecuted: c.patternsExecuted,
		MinReachedMM:     c.minReachedMM,
		MaxReachedMM:     c.maxReachedMM,
	}
}
