// Package motionmath holds the pure, testable math the motion controllers
// are built on: unit conversion, speed-to-delay formulas for each movement
// mode, zone speed-adjustment curves, chaos duration clamping, and
// oscillation waveform/frequency math. Nothing here touches a GPIO pin or a
// clock — every function takes its inputs as arguments and returns a value,
// so the controllers stay trivially testable against the real formulas
// instead of a local mirror of them.
package motionmath

import "math"

// Constants are the platform-tuned values the formulas below are closed
// over: belt pitch and microstepping (StepsPerMM), the UI's speed-level
// ceiling, and the hardware timing margins a real stepper driver needs.
// A deployment supplies its own via Config; DefaultConstants is a sane
// bench default (GT2 belt, 20-tooth pulley, 1.8° motor at 16 microsteps).
type Constants struct {
	StepsPerMM              float64
	MaxSpeedLevel           float64
	StepExecutionTimeUS     float64
	SpeedCompensationFactor float64
	ChaosMaxStepDelayUS     uint64
	OscMaxSpeedMMS          float64
}

// DefaultConstants returns the bench-default Constants.
func DefaultConstants() Constants {
	return Constants{
		StepsPerMM:              80.0,
		MaxSpeedLevel:           10.0,
		StepExecutionTimeUS:     3.0,
		SpeedCompensationFactor: 1.0,
		ChaosMaxStepDelayUS:     20000,
		OscMaxSpeedMMS:          150.0,
	}
}

// MMToSteps converts a millimeter distance to a whole step count, rounding
// to the nearest step rather than truncating.
func MMToSteps(c Constants, mm float64) int64 {
	return int64(math.Round(mm * c.StepsPerMM))
}

// StepsToMM converts a step count to millimeters.
func StepsToMM(c Constants, steps int64) float64 {
	return float64(steps) / c.StepsPerMM
}

// SpeedLevelToCPM converts a 0..MaxSpeedLevel speed level into cycles per
// minute, clamped to the valid range.
func SpeedLevelToCPM(c Constants, speedLevel float64) float64 {
	cpm := speedLevel * 10.0
	if cpm < 0 {
		cpm = 0
	}
	if max := c.MaxSpeedLevel * 10.0; cpm > max {
		cpm = max
	}
	return cpm
}

// VAETStepDelay returns the inter-step delay in microseconds for a va-et-vient
// move of distanceMM at speedLevel. Returns 1000µs on invalid input, and
// never returns less than 20µs.
func VAETStepDelay(c Constants, speedLevel, distanceMM float64) uint64 {
	if distanceMM <= 0 || speedLevel <= 0 {
		return 1000
	}
	cpm := SpeedLevelToCPM(c, speedLevel)
	if cpm <= 0.1 {
		cpm = 0.1
	}
	stepsPerDirection := MMToSteps(c, distanceMM)
	if stepsPerDirection <= 0 {
		return 1000
	}
	halfCycleMs := (60000.0 / cpm) / 2.0
	rawDelay := (halfCycleMs * 1000.0) / float64(stepsPerDirection)
	delay := (rawDelay - c.StepExecutionTimeUS) / c.SpeedCompensationFactor
	if delay < 20 {
		delay = 20
	}
	return uint64(delay)
}

// ChaosStepDelay returns the inter-step delay in microseconds for a chaos
// pattern moving at speedLevel, clamped to [20, Constants.ChaosMaxStepDelayUS].
func ChaosStepDelay(c Constants, speedLevel float64) uint64 {
	mmPerSecond := speedLevel * 10.0
	stepsPerSecond := mmPerSecond * c.StepsPerMM

	var delay uint64
	if stepsPerSecond > 0 {
		delay = uint64((1000000.0 / stepsPerSecond) / c.SpeedCompensationFactor)
	} else {
		delay = 10000
	}
	if delay < 20 {
		delay = 20
	}
	if delay > c.ChaosMaxStepDelayUS {
		delay = c.ChaosMaxStepDelayUS
	}
	return delay
}

// PursuitStepDelay returns the inter-step delay in microseconds for pursuit
// mode given the current tracking error and the configured max speed level.
// Speed ramps in three bands by error magnitude.
func PursuitStepDelay(c Constants, errorMM, maxSpeedLevel float64) uint64 {
	var speedLevel float64
	switch {
	case errorMM > 5.0:
		speedLevel = maxSpeedLevel
	case errorMM > 1.0:
		ratio := (errorMM - 1.0) / (5.0 - 1.0)
		speedLevel = maxSpeedLevel * (0.6 + ratio*0.4)
	default:
		speedLevel = maxSpeedLevel * 0.6
	}

	mmPerSecond := speedLevel * 10.0
	stepsPerSecond := mmPerSecond * c.StepsPerMM
	if stepsPerSecond < 30 {
		stepsPerSecond = 30
	}
	if stepsPerSecond > 6000 {
		stepsPerSecond = 6000
	}

	delay := ((1000000.0 / stepsPerSecond) - c.StepExecutionTimeUS) / c.SpeedCompensationFactor
	if delay < 20 {
		delay = 20
	}
	return uint64(delay)
}

// SpeedEffect names the direction a zone pushes the step rate.
type SpeedEffect int

const (
	SpeedNone SpeedEffect = iota
	SpeedDecel
	SpeedAccel
)

// SpeedCurve names the shape of a zone's intensity ramp across its width.
type SpeedCurve int

const (
	CurveLinear SpeedCurve = iota
	CurveSine
	CurveTriangleInv
	CurveSineInv
)

// ZoneSpeedFactor returns the step-delay multiplier for a position at
// zoneProgress (0 = zone edge, 1 = zone's deepest point) through a zone of
// the given effect/curve/intensity. 1.0 means no change; >1 slows a DECEL
// zone, <1 speeds up an ACCEL zone.
func ZoneSpeedFactor(effect SpeedEffect, curve SpeedCurve, intensity, zoneProgress float64) float64 {
	if effect == SpeedNone {
		return 1.0
	}

	maxIntensity := 1.0 + (intensity/100.0)*9.0

	var curveValue float64
	switch curve {
	case CurveLinear:
		curveValue = 1.0 - zoneProgress
	case CurveSine:
		sp := (1.0 - math.Cos(zoneProgress*math.Pi)) / 2.0
		curveValue = 1.0 - sp
	case CurveTriangleInv:
		inv := 1.0 - zoneProgress
		curveValue = inv * inv
	case CurveSineInv:
		inv := 1.0 - zoneProgress
		curveValue = math.Sin(inv * math.Pi / 2.0)
	default:
		curveValue = 1.0 - zoneProgress
	}

	if effect == SpeedDecel {
		return 1.0 + curveValue*(maxIntensity-1.0)
	}
	accelCurve := 1.0 - curveValue
	minFactor := 1.0 / maxIntensity
	return 1.0 - accelCurve*(1.0-minFactor)
}

// ChaosBaseConfig is the duration/speed/amplitude envelope shared by every
// chaos pattern, independent of the pattern's own trajectory shape.
type ChaosBaseConfig struct {
	SpeedMin                 float64
	SpeedMax                 float64
	SpeedCrazinessBoost      float64
	DurationMin              uint64
	DurationMax              uint64
	DurationCrazinessReducer uint64
	JumpMin                  float64
	JumpMax                  float64
}

// ChaosSpeedLevel draws a speed level from cfg's [SpeedMin, SpeedMax] band
// scaled to maxSpeedLevel, then applies craziness's per-pattern speed boost,
// clamped to maxSpeedLevel.
func ChaosSpeedLevel(cfg ChaosBaseConfig, maxSpeedLevel, craziness, draw01 float64) float64 {
	level := (cfg.SpeedMin + draw01*(cfg.SpeedMax-cfg.SpeedMin)) * maxSpeedLevel
	level += cfg.SpeedCrazinessBoost * (craziness / 100.0) * maxSpeedLevel
	if level > maxSpeedLevel {
		level = maxSpeedLevel
	}
	if level < 0 {
		level = 0
	}
	return level
}

// SafeDurationCalc narrows a pattern's [DurationMin, DurationMax) window by
// craziness, guarding against unsigned underflow and against the window
// collapsing to empty.
func SafeDurationCalc(cfg ChaosBaseConfig, craziness, maxFactor float64) (outMin, outMax uint64) {
	minVal := int64(cfg.DurationMin) - int64(float64(cfg.DurationCrazinessReducer)*craziness)
	maxVal := int64(cfg.DurationMax) - int64(float64(cfg.DurationMax-cfg.DurationMin)*craziness*maxFactor)

	if minVal < 100 {
		minVal = 100
	}
	if maxVal < 100 {
		maxVal = 100
	}
	if minVal >= maxVal {
		maxVal = minVal + 100
	}
	return uint64(minVal), uint64(maxVal)
}

// OscillationWaveform names the periodic shape driving oscillation position.
type OscillationWaveform int

const (
	OscSine OscillationWaveform = iota
	OscTriangle
	OscSquare
)

// WaveformValue returns the waveform's value in [-1, 1] at the given phase
// (0..1, one full cycle). Sine uses the -cos convention so phase 0 starts at
// the trough, matching the oscillator's rest position.
func WaveformValue(waveform OscillationWaveform, phase float64) float64 {
	switch waveform {
	case OscSine:
		return -math.Cos(phase * 2.0 * math.Pi)
	case OscTriangle:
		if phase < 0.5 {
			return 1.0 - (phase * 4.0)
		}
		return -3.0 + (phase * 4.0)
	case OscSquare:
		if phase < 0.5 {
			return 1.0
		}
		return -1.0
	default:
		return 0.0
	}
}

// EffectiveFrequency caps requestedHz so the oscillator's peak velocity
// (2π·f·amplitude) never exceeds Constants.OscMaxSpeedMMS.
func EffectiveFrequency(c Constants, requestedHz, amplitudeMM float64) float64 {
	if amplitudeMM > 0.0 {
		maxAllowedFreq := c.OscMaxSpeedMMS / (2.0 * math.Pi * amplitudeMM)
		if requestedHz > maxAllowedFreq {
			return maxAllowedFreq
		}
	}
	return requestedHz
}
