package engine

import (
	"encoding/json"
	"os"

	"motionctl/motionmath"
	"motionctl/sensors"
)

// Config is the engine's cross-core, mutex-guarded configuration (spec §3):
// travel bounds discovered by calibration, the safety limit percentage
// applied to them, and the currently active state/context tags.
type Config struct {
	TotalDistanceMM        float64 `json:"totalDistanceMM"`
	MinStep                int64   `json:"minStep"`
	MaxStep                int64   `json:"maxStep"`
	LimitPercent            float64 `json:"limitPercent"`
	CurrentState            SystemState      `json:"-"`
	ExecutionContext        ExecutionContext `json:"-"`
	MovementType            MovementType     `json:"-"`

	Motion    motionmath.Constants  `json:"motionConstants"`
	Drift     sensors.DriftConfig   `json:"driftConfig"`
	SafetyOffsetSteps       int64   `json:"safetyOffsetSteps"`
	WasAtStartThresholdSteps int64  `json:"wasAtStartThresholdSteps"`
}

// EffectiveMaxDistanceMM is total_distance_mm scaled by the configured
// safety-limit percentage (spec §3).
func (c *Config) EffectiveMaxDistanceMM() float64 {
	return c.TotalDistanceMM * c.LimitPercent
}

// DefaultConfig returns a Config with safe bench defaults, matching the
// firmware's boot-time constructor defaults.
func DefaultConfig() Config {
	return Config{
		LimitPercent: 1.0,
		CurrentState: StateInit,
		Motion:       motionmath.DefaultConstants(),
		Drift: sensors.DriftConfig{
			SoftDriftBufferSteps: 20,
			HardDriftZoneSteps:   1600, // 20mm at 80 steps/mm
		},
		SafetyOffsetSteps:        40,
		WasAtStartThresholdSteps: 10,
	}
}

// applyDefaults fills in zero-valued fields with DefaultConfig's values,
// so a config file that only overrides a couple of fields still yields a
// fully-populated Config.
func applyDefaults(c *Config) {
	def := DefaultConfig()
	if c.LimitPercent == 0 {
		c.LimitPercent = def.LimitPercent
	}
	if c.Motion.StepsPerMM == 0 {
		c.Motion = def.Motion
	}
	if c.Drift.SoftDriftBufferSteps == 0 && c.Drift.HardDriftZoneSteps == 0 {
		c.Drift = def.Drift
	}
	if c.SafetyOffsetSteps == 0 {
		c.SafetyOffsetSteps = def.SafetyOffsetSteps
	}
	if c.WasAtStartThresholdSteps == 0 {
		c.WasAtStartThresholdSteps = def.WasAtStartThresholdSteps
	}
}

// LoadConfig reads a JSON config file, applying defaults for any field the
// file leaves at its zero value. A missing file is not an error — it
// yields DefaultConfig().
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Store is the platform's key/value persistence interface (spec §6): the
// core only reads and writes named byte blobs through it. Concrete
// implementations (filesystem, flash) live outside this module.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
}

// Logger is the engine's injected diagnostic sink, mirroring the firmware's
// debug()/info()/warn()/error() calls gated by an enabled flag. The default
// NopLogger discards everything.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards all log calls.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
