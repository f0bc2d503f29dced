// Package engine owns the motion engine's global state: the system state
// machine, the active movement type, per-mode configuration structs, stats
// tracking, and the Supervisor that dispatches one controller per tick and
// enforces the safety and command-queueing rules the rest of the engine
// depends on.
package engine

import "time"

// SystemState is the top-level state machine (spec §3). Only RUNNING
// permits step emission outside of CALIBRATING's own homing moves.
type SystemState int

const (
	StateInit SystemState = iota
	StateCalibrating
	StateReady
	StateRunning
	StatePaused
	StateError
)

func (s SystemState) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateCalibrating:
		return "CALIBRATING"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StatePaused:
		return "PAUSED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ExecutionContext distinguishes a manually-started move from one driven by
// the sequencer: a completion event only reaches the sequencer in the
// latter case.
type ExecutionContext int

const (
	ContextStandalone ExecutionContext = iota
	ContextSequencer
)

// MovementType names the family of motion currently authorized to drive
// the motor. At most one is active; the Supervisor dispatches to exactly
// one controller's process() per tick.
type MovementType int

const (
	MovementVAET MovementType = iota
	MovementOscillation
	MovementChaos
	MovementPursuit
	MovementCalibration
)

func (m MovementType) String() string {
	switch m {
	case MovementVAET:
		return "VAET"
	case MovementOscillation:
		return "OSCILLATION"
	case MovementChaos:
		return "CHAOS"
	case MovementPursuit:
		return "PURSUIT"
	case MovementCalibration:
		return "CALIBRATION"
	default:
		return "UNKNOWN"
	}
}

// CyclePauseConfig describes an inter-cycle pause: fixed duration, or
// uniform-random within [MinSec, MaxSec].
type CyclePauseConfig struct {
	Enabled      bool
	DurationSec  float64
	IsRandom     bool
	MinSec       float64
	MaxSec       float64
}

// DefaultCyclePauseConfig matches the firmware's bench defaults.
func DefaultCyclePauseConfig() CyclePauseConfig {
	return CyclePauseConfig{DurationSec: 1.5, MinSec: 0.5, MaxSec: 5.0}
}

// CalculateDuration returns the pause duration, drawing from rng when
// IsRandom is set.
func (c CyclePauseConfig) CalculateDuration(rng func() float64) time.Duration {
	if !c.IsRandom {
		return time.Duration(c.DurationSec * float64(time.Second))
	}
	min, max := c.MinSec, c.MaxSec
	if min > max {
		min, max = max, min
	}
	offset := rng()
	return time.Duration((min + offset*(max-min)) * float64(time.Second))
}

// CyclePauseState is the runtime counterpart of CyclePauseConfig.
type CyclePauseState struct {
	IsPausing       bool
	PauseStart      time.Time
	CurrentDuration time.Duration
}

// StatsTracking accumulates total distance traveled in steps. TrackDelta is
// the lock-free hot-path call from the motion core; Reset and MarkSaved are
// compound operations the caller must serialize (spec §5) — by convention
// through the Supervisor's TimedMutex, not internally here.
type StatsTracking struct {
	TotalDistanceSteps  uint64
	LastSavedSteps      uint64
	lastStepForDistance int64
}

// Reset zeroes the accumulated counters.
func (s *StatsTracking) Reset() {
	s.TotalDistanceSteps = 0
	s.LastSavedSteps = 0
}

// AddDistance adds a non-negative delta to the running total.
func (s *StatsTracking) AddDistance(delta int64) {
	if delta > 0 {
		s.TotalDistanceSteps += uint64(delta)
	}
}

// IncrementSteps returns the distance accumulated since the last MarkSaved.
func (s *StatsTracking) IncrementSteps() uint64 {
	return s.TotalDistanceSteps - s.LastSavedSteps
}

// MarkSaved watermarks the current total as persisted.
func (s *StatsTracking) MarkSaved() {
	s.LastSavedSteps = s.TotalDistanceSteps
}

// SyncPosition resets the delta-tracking baseline without touching totals;
// called once when a movement starts, so the first TrackDelta call doesn't
// report a spurious jump from wherever tracking last left off.
func (s *StatsTracking) SyncPosition(currentStep int64) {
	s.lastStepForDistance = currentStep
}

// TrackDelta adds the absolute step delta since the last call (or last
// SyncPosition) to the running total. Safe to call every tick from the
// motion core without a mutex — it's the sole writer of this path.
func (s *StatsTracking) TrackDelta(currentStep int64) {
	delta := currentStep - s.lastStepForDistance
	if delta < 0 {
		delta = -delta
	}
	s.AddDistance(delta)
	s.lastStepForDistance = currentStep
}

// PositionState is the carriage's physical position, shared across every
// controller (spec §3): only the currently-dispatched controller may write
// it in a given tick, but calibration, VAET, oscillation, chaos, and
// pursuit all read and advance the same underlying step count as the
// Supervisor switches MovementType between them.
type PositionState struct {
	CurrentStep     int64
	MovingForward   bool
	HasReachedStart bool
}

// PlaylistMode names which movement family a persisted preset belongs to.
type PlaylistMode int

const (
	PlaylistSimple PlaylistMode = iota
	PlaylistOscillation
	PlaylistChaos
)

// PlaylistPreset is the persisted shape of one saved configuration preset
// (spec §6 "filesystem-backed persistence of ... user presets"). ConfigJSON
// carries the mode-specific config verbatim so the schema stays
// forward-compatible with fields this engine doesn't know about yet.
type PlaylistPreset struct {
	ID         int
	Name       string
	Timestamp  int64
	Mode       PlaylistMode
	ConfigJSON string
}
