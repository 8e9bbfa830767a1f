package params

import (
	"time"

	"github.com/rotblauer/dashcat/common"
)

// MotionConfig tunes the magnitude filter and the moving/stationary gate.
type MotionConfig struct {
	// MotionThreshold separates moving from stationary, m/s^2.
	MotionThreshold float64
	// NoiseThreshold bounds believable filtered magnitudes; a raw magnitude
	// above 5x this is an impulse (door slam, pothole) and is dropped.
	NoiseThreshold float64
	// MagnitudeWindow is how many magnitudes the filter ring holds.
	MagnitudeWindow int
	// FilterSpan is how many recent magnitudes feed the trimmed mean.
	FilterSpan int
	// StationaryDebounce is how many consecutive quiet samples flip
	// Moving back to Stationary. ~0.5s at 100Hz.
	StationaryDebounce int
}

var DefaultMotionConfig = MotionConfig{
	MotionThreshold:    0.5,
	NoiseThreshold:     2.0,
	MagnitudeWindow:    20,
	FilterSpan:         10,
	StationaryDebounce: 50,
}

// ReliabilityConfig tunes GPS trust scoring.
type ReliabilityConfig struct {
	// Window is how many recent fixes are scored.
	Window int
	// MaxFixAge is the oldest a fix can be and still count as live.
	MaxFixAge time.Duration
	// MinReliableScore is the score above which the fusion core treats GPS
	// as reliable on accelerometer ticks. The fix-time Kalman update runs at
	// any score, weighted by it.
	MinReliableScore float64
	// StartFixes / StartWindow bound the moving-start evaluation: evaluate
	// after StartFixes fixes or StartWindow since the first, whichever first.
	StartFixes  int
	StartWindow time.Duration
	// StartAccuracyMax filters fixes considered for moving-start.
	StartAccuracyMax float64
	// StartMovingSpeed is the mean fix speed above which a run begins
	// already in motion.
	StartMovingSpeed float64
}

var DefaultReliabilityConfig = ReliabilityConfig{
	Window:           10,
	MaxFixAge:        2 * time.Second,
	MinReliableScore: 0.3,
	StartFixes:       3,
	StartWindow:      2 * time.Second,
	StartAccuracyMax: 30,
	StartMovingSpeed: 2.0,
}

// FusionConfig tunes the fusion core.
type FusionConfig struct {
	// DriftRate grows speed uncertainty per second of dead reckoning, m/s/s.
	DriftRate float64
	// SigmaMin floors the uncertainty, m/s.
	SigmaMin float64
	// SigmaStart is the stationary-start uncertainty, m/s.
	SigmaStart float64
	// GapInterval is the inter-tick gap above which the app was
	// backgrounded and the tick is discarded.
	GapInterval time.Duration
	// TickCap clamps dt for integration stability.
	TickCap time.Duration
	// MaxSpeed is the sanity cap, m/s.
	MaxSpeed float64
	// StationaryForcedZero is how long confirmed stillness holds before the
	// hard zero anchor engages.
	StationaryForcedZero time.Duration
	// ConsecutiveZeroGps is how many near-zero GPS speeds in a row force zero.
	ConsecutiveZeroGps int
	// TiltRejectSpeed is the fused speed below which apparent motion is
	// assumed to be gravity leaking through device tilt, m/s. ~2 mph.
	TiltRejectSpeed float64
	// CalibrationWindow is the initial stationary bias-collection span.
	CalibrationWindow time.Duration
	// CalibrationMinSamples gates whether the collected window is usable.
	CalibrationMinSamples int
	// RecalibrationBlend nudges bias toward the stationary residual.
	RecalibrationBlend float64
	// ReconcileInterval is how often accel distance is checked against
	// GPS distance.
	ReconcileInterval time.Duration
	// ReconcileRelError is the relative disagreement that triggers a snap.
	ReconcileRelError float64
	// DistanceJumpMax drops any single great-circle step at least this
	// large as an outlier, meters.
	DistanceJumpMax float64
	// MinIntegrateSpeed suppresses odometer creep below this speed.
	MinIntegrateSpeed float64
	// DisplayWindow is the read-side speed median span.
	DisplayWindow int
}

var DefaultFusionConfig = FusionConfig{
	DriftRate:             0.5,
	SigmaMin:              0.1,
	SigmaStart:            10,
	GapInterval:           500 * time.Millisecond,
	TickCap:               100 * time.Millisecond,
	MaxSpeed:              100,
	StationaryForcedZero:  3 * time.Second,
	ConsecutiveZeroGps:    3,
	TiltRejectSpeed:       0.89,
	CalibrationWindow:     3 * time.Second,
	CalibrationMinSamples: 10,
	RecalibrationBlend:    0.1,
	ReconcileInterval:     2 * time.Second,
	ReconcileRelError:     0.2,
	DistanceJumpMax:       100,
	MinIntegrateSpeed:     0.5,
	DisplayWindow:         5,
}

// SpeedTarget is one checkpoint interval, in m/s. From gates the crossing:
// a nonzero From arms only after the run has dipped below it.
type SpeedTarget struct {
	ID   string
	From float64
	To   float64
}

// DistanceTarget is one milestone, in meters.
type DistanceTarget struct {
	ID     string
	Meters float64
}

// EventConfig tunes launch detection and names the interval targets.
type EventConfig struct {
	// LaunchWindow is the nominal span of the launch sample buffer. The
	// detector does not read it: its buffer is a fixed ring of 256 samples.
	LaunchWindow time.Duration
	// LaunchMagnitude must hold over the most recent LaunchSamples samples.
	LaunchMagnitude float64
	LaunchSamples   int
	// LaunchMinSpeed is the fused speed floor for a launch call.
	LaunchMinSpeed float64
	// LaunchSustainWindow/LaunchSustainMinSamples/LaunchSustainRatio/
	// LaunchSustainMagnitude demand recent sustained acceleration:
	// over the sustain window, at least MinSamples samples exist and
	// Ratio of them exceed SustainMagnitude while moving.
	LaunchSustainWindow     time.Duration
	LaunchSustainMinSamples int
	LaunchSustainRatio      float64
	LaunchSustainMagnitude  float64

	SpeedTargets    []SpeedTarget
	DistanceTargets []DistanceTarget
}

var DefaultEventConfig = EventConfig{
	LaunchWindow:            2 * time.Second,
	LaunchMagnitude:         1.5,
	LaunchSamples:           10,
	LaunchMinSpeed:          2.0,
	LaunchSustainWindow:     500 * time.Millisecond,
	LaunchSustainMinSamples: 25,
	LaunchSustainRatio:      0.8,
	LaunchSustainMagnitude:  1.0,

	SpeedTargets: []SpeedTarget{
		{ID: "0-60mph", From: 0, To: common.SpeedOf60MPH},
		{ID: "0-100kmh", From: 0, To: common.SpeedOf100KMH},
		{ID: "0-100mph", From: 0, To: common.SpeedOf100MPH},
		{ID: "60-100mph", From: common.SpeedOf60MPH, To: common.SpeedOf100MPH},
	},
	DistanceTargets: []DistanceTarget{
		{ID: "1/8mile", Meters: common.DistanceOfEighthMile},
		{ID: "1/4mile", Meters: common.DistanceOfQuarterMile},
		{ID: "1km", Meters: common.DistanceOfKilometer},
		{ID: "1mile", Meters: common.DistanceOfMile},
	},
}

// EngineConfig aggregates everything the engine needs.
type EngineConfig struct {
	Motion      MotionConfig
	Reliability ReliabilityConfig
	Fusion      FusionConfig
	Events      EventConfig
}

func DefaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Motion:      DefaultMotionConfig,
		Reliability: DefaultReliabilityConfig,
		Fusion:      DefaultFusionConfig,
		Events:      DefaultEventConfig,
	}
}
