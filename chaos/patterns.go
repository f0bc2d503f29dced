// Package chaos schedules the eleven named chaos trajectory generators,
// each drawing its speed/duration/amplitude envelope from a fixed base
// config, and re-selecting a new pattern whenever the current one's
// duration elapses (spec §4.7).
package chaos

import "motionctl/motionmath"

// PatternID names one of the eleven chaos trajectory generators.
type PatternID int

const (
	PatternZigZag PatternID = iota
	PatternSweep
	PatternPulse
	PatternDrift
	PatternBurst
	PatternWave
	PatternPendulum
	PatternSpiral
	PatternCalm
	PatternBruteForce
	PatternLiberator
)

func (p PatternID) String() string {
	switch p {
	case PatternZigZag:
		return "ZIGZAG"
	case PatternSweep:
		return "SWEEP"
	case PatternPulse:
		return "PULSE"
	case PatternDrift:
		return "DRIFT"
	case PatternBurst:
		return "BURST"
	case PatternWave:
		return "WAVE"
	case PatternPendulum:
		return "PENDULUM"
	case PatternSpiral:
		return "SPIRAL"
	case PatternCalm:
		return "CALM"
	case PatternBruteForce:
		return "BRUTE_FORCE"
	case PatternLiberator:
		return "LIBERATOR"
	default:
		return "UNKNOWN"
	}
}

// SinusoidalExt extends WAVE and CALM with frequency behavior.
type SinusoidalExt struct {
	FrequencyMin       float64
	FrequencyMax       float64
	CyclesOverDuration int // 0 = draw a random frequency instead
}

// MultiPhaseExt extends BRUTE_FORCE and LIBERATOR with a second-phase speed
// band and an inter-phase pause window.
type MultiPhaseExt struct {
	Phase2SpeedMin            float64
	Phase2SpeedMax            float64
	Phase2SpeedCrazinessBoost float64
	PauseMin                  uint64
	PauseMax                  uint64
}

// PauseExt extends CALM with a probabilistic pattern-internal pause
// triggered near the sinusoid's extremes.
type PauseExt struct {
	PauseMin           uint64
	PauseMax           uint64
	PauseChancePercent float64
	PauseTrigger       float64
}

// DirectionExt extends BRUTE_FORCE and LIBERATOR with a craziness-scaled
// forward-direction bias.
type DirectionExt struct {
	ForwardChanceMin int
	ForwardChanceMax int
}

// PatternDef is one named pattern's complete configuration.
type PatternDef struct {
	ID     PatternID
	Weight float64
	Base   motionmath.ChaosBaseConfig
	Sin    *SinusoidalExt
	Multi  *MultiPhaseExt
	Pause  *PauseExt
	Dir    *DirectionExt
}

// AllPatterns holds the eleven pattern definitions, ported constant-for-
// constant from the firmware's pattern table. CALM's selection weight is
// fixed at 10 (per spec §4.7); the remaining ten patterns split the other
// 90 evenly at weight 9 each, since the glossary names only CALM's share
// explicitly.
var AllPatterns = []PatternDef{
	{
		ID: PatternZigZag, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.40, SpeedMax: 0.70, SpeedCrazinessBoost: 0.30,
			DurationMin: 2000, DurationMax: 4000, DurationCrazinessReducer: 600,
			JumpMin: 0.60, JumpMax: 1.00,
		},
	},
	{
		ID: PatternSweep, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.30, SpeedMax: 0.60, SpeedCrazinessBoost: 0.40,
			DurationMin: 3000, DurationMax: 5000, DurationCrazinessReducer: 1400,
			JumpMin: 0.75, JumpMax: 1.00,
		},
	},
	{
		ID: PatternPulse, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.50, SpeedMax: 0.80, SpeedCrazinessBoost: 0.20,
			DurationMin: 800, DurationMax: 1500, DurationCrazinessReducer: 400,
			JumpMin: 0.40, JumpMax: 1.00,
		},
	},
	{
		ID: PatternDrift, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.20, SpeedMax: 0.40, SpeedCrazinessBoost: 0.30,
			DurationMin: 4000, DurationMax: 9000, DurationCrazinessReducer: 1500,
			JumpMin: 0.25, JumpMax: 0.75,
		},
	},
	{
		ID: PatternBurst, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.60, SpeedMax: 0.90, SpeedCrazinessBoost: 0.10,
			DurationMin: 600, DurationMax: 1200, DurationCrazinessReducer: 300,
			JumpMin: 0.70, JumpMax: 1.00,
		},
	},
	{
		ID: PatternWave, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.25, SpeedMax: 0.50, SpeedCrazinessBoost: 0.25,
			DurationMin: 6000, DurationMax: 12000, DurationCrazinessReducer: 2000,
			JumpMin: 0.50, JumpMax: 1.00,
		},
		Sin: &SinusoidalExt{CyclesOverDuration: 3},
	},
	{
		ID: PatternPendulum, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.30, SpeedMax: 0.60, SpeedCrazinessBoost: 0.30,
			DurationMin: 5000, DurationMax: 8000, DurationCrazinessReducer: 1200,
			JumpMin: 0.60, JumpMax: 1.00,
		},
	},
	{
		ID: PatternSpiral, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.20, SpeedMax: 0.45, SpeedCrazinessBoost: 0.30,
			DurationMin: 5000, DurationMax: 10000, DurationCrazinessReducer: 2500,
			JumpMin: 0.10, JumpMax: 1.00,
		},
	},
	{
		ID: PatternCalm, Weight: 10,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.05, SpeedMax: 0.10, SpeedCrazinessBoost: 0.10,
			DurationMin: 5000, DurationMax: 8000, DurationCrazinessReducer: 800,
			JumpMin: 0.10, JumpMax: 0.30,
		},
		Sin:   &SinusoidalExt{FrequencyMin: 0.2, FrequencyMax: 1.0},
		Pause: &PauseExt{PauseMin: 500, PauseMax: 2000, PauseChancePercent: 20.0, PauseTrigger: 0.95},
	},
	{
		ID: PatternBruteForce, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.70, SpeedMax: 1.00, SpeedCrazinessBoost: 0.30,
			DurationMin: 3000, DurationMax: 5000, DurationCrazinessReducer: 750,
			JumpMin: 0.60, JumpMax: 0.90,
		},
		Multi: &MultiPhaseExt{Phase2SpeedMin: 0.01, Phase2SpeedMax: 0.10, Phase2SpeedCrazinessBoost: 0.09, PauseMin: 500, PauseMax: 2000},
		Dir:   &DirectionExt{ForwardChanceMin: 90, ForwardChanceMax: 60},
	},
	{
		ID: PatternLiberator, Weight: 9,
		Base: motionmath.ChaosBaseConfig{
			SpeedMin: 0.05, SpeedMax: 0.15, SpeedCrazinessBoost: 0.10,
			DurationMin: 3000, DurationMax: 5000, DurationCrazinessReducer: 750,
			JumpMin: 0.60, JumpMax: 0.90,
		},
		Multi: &MultiPhaseExt{Phase2SpeedMin: 0.70, Phase2SpeedMax: 1.00, Phase2SpeedCrazinessBoost: 0.30, PauseMin: 500, PauseMax: 2000},
		Dir:   &DirectionExt{ForwardChanceMin: 90, ForwardChanceMax: 60},
	},
}
