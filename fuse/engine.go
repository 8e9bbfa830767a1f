/*
Package fuse is the sensor fusion engine: it eats an accelerometer stream
and a GPS stream from a commodity phone and produces one fused ground-speed
and distance estimate, plus the timing events (launch, speed checkpoints,
distance milestones) a performance timer is for.

Neither sensor is trustworthy alone. Integrated accelerometer speed drifts
without bound; GPS is lagged, noisy, and periodically gone. The engine
leans on whichever is currently believable and anchors hard to zero when
everything says the car is parked, because a speedometer that reads 3 mph
at a stoplight is worse than useless.
*/
package fuse

import (
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/rotblauer/dashcat/common"
	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/types/sensor"
	"github.com/paulmach/orb"
)

// Snapshot is the engine's published state, polled by display/persistence
// collaborators at their own cadence. Speed is the display-smoothed fused
// speed; Sigma is its raw uncertainty.
type Snapshot struct {
	Speed          float64   `json:"speed"`
	Distance       float64   `json:"distance"`
	Moving         bool      `json:"moving"`
	Launched       bool      `json:"launched"`
	Calibrated     bool      `json:"calibrated"`
	GpsReliable    bool      `json:"gpsReliable"`
	GpsReliability float64   `json:"gpsReliability"`
	Sigma          float64   `json:"sigma"`
	Time           time.Time `json:"time"`
}

// Engine is the single owning value for all fusion state. It is
// single-threaded and cooperative: drive it from one goroutine via
// PushAccel/PushGps/StartRun/StopRun/Reset, poll Snapshot and DrainEvents
// whenever. It holds no locks of its own and never blocks.
type Engine struct {
	cfg *params.EngineConfig

	cal  *Calibrator
	gate *MotionGate
	gps  *GpsMonitor
	det  *EventDetector

	running     bool
	startupDone bool
	runStartSec float64

	vFused float64
	vAccel float64
	sigma  float64

	distAccel float64
	distGps   float64

	stationaryDur float64

	lastTickSec      float64
	haveTick         bool
	lastFusionSec    float64
	lastReconcileSec float64

	lastFixPoint orb.Point
	haveFixPoint bool

	display *common.RingBuffer[float64]

	queue        []events.RunEvent
	feedSnapshot event.FeedOf[Snapshot]
}

func NewEngine(cfg *params.EngineConfig) *Engine {
	if cfg == nil {
		cfg = params.DefaultEngineConfig()
	}
	e := &Engine{
		cfg:     cfg,
		cal:     NewCalibrator(cfg.Fusion),
		gate:    NewMotionGate(cfg.Motion),
		gps:     NewGpsMonitor(cfg.Reliability),
		display: common.NewRingBuffer[float64](cfg.Fusion.DisplayWindow),
		sigma:   cfg.Fusion.SigmaStart,
	}
	e.det = NewEventDetector(cfg.Events, e.emit)
	return e
}

func (e *Engine) emit(ev events.RunEvent) {
	e.queue = append(e.queue, ev)
	events.RunEventFeed.Send(ev)
}

// StartRun begins a run at the given wall-clock instant. Fused state resets;
// bias and the calibrated mark survive from prior runs. Whether the run
// starts from rest is not yet known: the startup question resolves on the
// first few GPS fixes (or their absence).
func (e *Engine) StartRun(nowMillis int64) {
	nowSec := float64(nowMillis) / 1000.0

	e.running = true
	e.startupDone = false
	e.runStartSec = nowSec

	e.vFused = 0
	e.vAccel = 0
	e.sigma = e.cfg.Fusion.SigmaStart
	e.distAccel = 0
	e.distGps = 0
	e.stationaryDur = 0
	e.haveTick = false
	e.lastFusionSec = nowSec
	e.lastReconcileSec = nowSec
	e.haveFixPoint = false

	e.gate.Reset()
	e.gps.Reset()
	e.display.Reset()
	e.det.StartRun(nowSec)
	e.queue = e.queue[:0]
}

// StopRun ends the run and publishes a final snapshot.
func (e *Engine) StopRun(nowMillis int64) {
	if !e.running {
		return
	}
	e.running = false
	e.feedSnapshot.Send(e.Snapshot())
}

// Reset returns the engine to its constructed state, bias included. A reset
// engine with no inputs snapshots identically to a fresh one. Snapshot
// subscriptions survive a reset.
func (e *Engine) Reset() {
	e.running = false
	e.startupDone = false
	e.runStartSec = 0
	e.vFused = 0
	e.vAccel = 0
	e.sigma = e.cfg.Fusion.SigmaStart
	e.distAccel = 0
	e.distGps = 0
	e.stationaryDur = 0
	e.lastTickSec = 0
	e.haveTick = false
	e.lastFusionSec = 0
	e.lastReconcileSec = 0
	e.haveFixPoint = false
	e.lastFixPoint = orb.Point{}

	e.cal.Reset()
	e.gate.Reset()
	e.gps.Reset()
	e.display.Reset()
	e.det.StartRun(0)
	e.queue = nil
}

// PushAccel ingests one raw accelerometer callback.
func (e *Engine) PushAccel(ax, ay, az float64, tMillis int64, linear bool) {
	e.PushAccelSample(sensor.AccelSample{
		X: ax, Y: ay, Z: az, UnixMillis: tMillis, Linear: linear,
	})
}

// PushGps ingests one raw location callback.
func (e *Engine) PushGps(lat, lon float64, speed *float64, accuracy float64, tMillis int64) {
	if accuracy <= 0 {
		accuracy = sensor.DefaultFixAccuracy
	}
	if speed != nil && *speed < 0 {
		speed = nil
	}
	e.PushGpsFix(sensor.GpsFix{
		Lat: lat, Lon: lon, Speed: speed, Accuracy: accuracy, UnixMillis: tMillis,
	})
}

// DrainEvents returns and clears the queued run events, in emission order.
func (e *Engine) DrainEvents() []events.RunEvent {
	out := e.queue
	e.queue = nil
	return out
}

// SubscribeSnapshots delivers a snapshot per processed accelerometer tick
// (and a final one on StopRun) for push-style collaborators.
func (e *Engine) SubscribeSnapshots(ch chan<- Snapshot) event.Subscription {
	return e.feedSnapshot.Subscribe(ch)
}

// Snapshot returns the engine's published state. The exposed speed is the
// display median once enough ticks have accumulated, the raw fused value
// before that.
func (e *Engine) Snapshot() Snapshot {
	nowSec := e.lastTickSec
	if !e.haveTick {
		nowSec = e.runStartSec
	}
	return Snapshot{
		Speed:          e.displaySpeed(),
		Distance:       e.distAccel,
		Moving:         e.gate.Moving,
		Launched:       e.det.Launched,
		Calibrated:     e.cal.Calibrated,
		GpsReliable:    e.gps.Reliable(nowSec),
		GpsReliability: e.gps.Score,
		Sigma:          e.sigma,
		Time:           secToTime(nowSec),
	}
}

// Bias exposes the current calibration estimate (read-only for callers).
func (e *Engine) Bias() Bias {
	return e.cal.Bias
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	return e.running
}
