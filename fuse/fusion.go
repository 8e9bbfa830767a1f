package fuse

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/paulmach/orb/geo"
	"github.com/rotblauer/dashcat/types/sensor"
)

// PushAccelSample processes one accelerometer tick through the full fusion
// pipeline. This is the engine's heartbeat: the fused state advances on
// every accepted tick, and a snapshot is published per tick.
func (e *Engine) PushAccelSample(s sensor.AccelSample) {
	if !e.running {
		return
	}
	nowSec := s.Seconds()
	cfg := e.cfg.Fusion

	// Preprocess: resolve gravity handling, then bias.
	rawX, rawY, rawZ := Preprocess(s)

	if !e.startupDone {
		e.maybeResolveStartup(nowSec)
	}
	if e.cal.Collecting() {
		e.cal.Collect(rawX, rawY, rawZ, nowSec)
	}

	bias := e.cal.Bias
	filtered := e.gate.Update(rawX-bias.X, rawY-bias.Y, rawZ-bias.Z)
	moving := e.gate.Moving

	if !e.haveTick {
		// First tick of the run: no dt yet, nothing to integrate.
		e.haveTick = true
		e.lastTickSec = nowSec
		e.lastFusionSec = nowSec
		e.feedSnapshot.Send(e.Snapshot())
		return
	}

	dt := nowSec - e.lastTickSec

	// Gap detection: the app was backgrounded or the screen locked and the
	// sensor stream stalled. Integrating across the hole would be fiction;
	// re-anchor to GPS (or zero) and start over from here.
	if dt > cfg.GapInterval.Seconds() {
		if e.gpsReliable(nowSec) {
			e.vFused = e.gps.LastSpeed
		} else {
			e.vFused = 0
		}
		e.vAccel = e.vFused
		e.sigma = 5
		e.display.Reset()
		e.lastTickSec = nowSec
		e.lastFusionSec = nowSec
		e.feedSnapshot.Send(e.Snapshot())
		return
	}

	if tickCap := cfg.TickCap.Seconds(); dt > tickCap {
		dt = tickCap
	}

	tau := e.cfg.Motion.MotionThreshold

	// Stationary accounting.
	if !moving && filtered < tau {
		e.stationaryDur += dt
	} else {
		e.stationaryDur = 0
	}

	gpsReliable := e.gpsReliable(nowSec)
	vGps := e.gps.LastSpeed
	hasGpsSpeed := e.gps.HasSpeed

	// Hard zero anchor: seconds of confirmed stillness, and GPS either
	// agrees or has nothing to say. Also the moment to absorb bias drift,
	// since the truth (zero) is known exactly.
	if e.stationaryDur > cfg.StationaryForcedZero.Seconds() &&
		(!gpsReliable || !hasGpsSpeed || vGps < 0.5) {
		e.vFused = 0
		e.vAccel = 0
		e.sigma = 0.5
		e.cal.Recalibrate(e.gate.Residuals(e.cfg.Motion.MagnitudeWindow))
		e.display.Add(0)
		e.lastTickSec = nowSec
		e.lastFusionSec = nowSec
		e.feedSnapshot.Send(e.Snapshot())
		return
	}

	// Dead-reckoning integration.
	integrating := moving && filtered > tau
	if integrating {
		e.vAccel += filtered * dt
	}
	// Uncertainty grows with every second the estimate coasts on the
	// accelerometer, whether integrating or GPS-dark.
	if integrating || !gpsReliable {
		e.sigma += cfg.DriftRate * dt
	}

	// Primary estimate.
	if gpsReliable && hasGpsSpeed {
		w := math.Min(0.8, 0.5+0.3*e.gps.Score)
		e.vFused = w*vGps + (1-w)*e.vAccel
		// The integrator wanders; when it disagrees badly with a trusted
		// GPS, drag it back so the next dead-reckoning stretch starts sane.
		if math.Abs(e.vAccel-vGps) > 2 {
			e.vAccel = 0.7*e.vAccel + 0.3*vGps
		}
	} else {
		e.vFused = e.vAccel
		if !moving || filtered < 0.5*tau {
			// Nothing corroborates this speed; bleed it off at ~2%/s.
			decay := math.Pow(0.98, dt)
			e.vFused *= decay
			e.vAccel = e.vFused
		}
	}

	// Soft zero anchors.
	if gpsReliable && hasGpsSpeed && vGps < 0.3 &&
		e.gps.ZeroStreak >= cfg.ConsecutiveZeroGps {
		e.forceZero()
	}
	if !moving && e.vFused < 2.0 {
		if (gpsReliable && hasGpsSpeed && vGps < 1.0) || e.vFused < cfg.TiltRejectSpeed {
			e.forceZero()
		}
	}

	// Distance reconciliation: periodically let the GPS odometer overrule
	// the integrated one when they diverge badly.
	if nowSec-e.lastReconcileSec >= cfg.ReconcileInterval.Seconds() {
		e.lastReconcileSec = nowSec
		if e.distAccel > 5 && e.distGps > 0 && gpsReliable {
			relErr := math.Abs(e.distAccel-e.distGps) / e.distAccel
			if relErr > cfg.ReconcileRelError {
				factor := e.distGps / e.distAccel
				e.distAccel = e.distGps
				if (factor < 0.8 || factor > 1.2) && hasGpsSpeed {
					e.vFused = vGps
					e.vAccel = vGps
				}
			}
		}
	}

	// Sanity cap.
	if math.Abs(e.vFused) > cfg.MaxSpeed {
		if gpsReliable && hasGpsSpeed {
			e.vFused = vGps
		} else {
			e.vFused = 0
		}
		e.vAccel = e.vFused
	}
	e.clampState()

	// Display smoothing is read-side only; the raw fused value keeps
	// feeding the integrator and the detector.
	e.display.Add(e.vFused)

	// Distance integration, with creep suppression at walking-noise speeds.
	if e.vFused > cfg.MinIntegrateSpeed {
		e.distAccel += e.vFused * dt
	}

	e.lastTickSec = nowSec
	if gpsReliable && hasGpsSpeed {
		// GPS corrected this tick; the dead-reckoning clock restarts.
		e.lastFusionSec = nowSec
	}

	if e.startupDone {
		e.det.OnTick(filtered, moving, e.vFused, e.distAccel, nowSec)
	}
	e.feedSnapshot.Send(e.Snapshot())
}

// PushGpsFix processes one location-provider fix: reliability scoring, the
// GPS odometer, startup resolution, and the scalar Kalman correction.
func (e *Engine) PushGpsFix(fix sensor.GpsFix) {
	if !e.running {
		return
	}
	nowSec := fix.Seconds()
	cfg := e.cfg.Fusion

	e.gps.Observe(fix)

	// GPS odometer: great-circle steps between successive fixes. A single
	// step of 100m or more is a teleport, not travel; the speed reading
	// survives, the distance contribution does not.
	pt := fix.Point()
	if e.haveFixPoint {
		if d := geo.DistanceHaversine(e.lastFixPoint, pt); d < cfg.DistanceJumpMax {
			e.distGps += d
		}
	}
	e.lastFixPoint = pt
	e.haveFixPoint = true

	if !e.startupDone {
		e.gps.AccumulateStart(fix)
		e.maybeResolveStartup(nowSec)
		return
	}

	if !fix.HasSpeed() {
		// Position-only fix: the odometer got its due; no speed update.
		return
	}
	vGps := *fix.Speed

	// Scalar Kalman-style correction.
	sigmaGps := math.Max(0.5, fix.Accuracy*0.05) / math.Max(e.gps.Score, 0.1)
	e.sigma += cfg.DriftRate * math.Max(0, nowSec-e.lastFusionSec)
	k := e.sigma / math.Max(e.sigma+sigmaGps, 0.1)
	e.vFused += k * (vGps - e.vFused)
	e.sigma = (1 - k) * e.sigma
	// Re-anchor the dead-reckoning integrator on the corrected estimate.
	e.vAccel = e.vFused
	e.lastFusionSec = nowSec
	e.clampState()

	if vGps < 0.3 && e.gps.ZeroStreak >= cfg.ConsecutiveZeroGps {
		e.forceZero()
		e.sigma = 0.5
	}
}

// maybeResolveStartup answers the moving-start question once it becomes
// answerable: enough fixes, enough time since the first fix, or enough time
// since run-start with no GPS at all.
func (e *Engine) maybeResolveStartup(nowSec float64) {
	decided := e.gps.StartDecided(nowSec)
	if !decided {
		// With GPS denied or silent, the startup window still has to close.
		if len(e.gps.startFixes) > 0 || nowSec-e.runStartSec < e.cfg.Reliability.StartWindow.Seconds() {
			return
		}
	}
	e.startupDone = true

	moving, meanSpeed, meanAccuracy := e.gps.EvaluateStart()
	if moving {
		// Already rolling: a stationary calibration window is impossible,
		// and zeroed state would be a lie. Seed speed from GPS and move on.
		e.vFused = meanSpeed
		e.vAccel = meanSpeed
		e.sigma = math.Max(e.cfg.Fusion.SigmaMin, 0.1*meanAccuracy)
		e.cal.MarkCalibrated()
		e.gate.Moving = true
		return
	}
	if !e.cal.Calibrated {
		e.cal.BeginWindow(nowSec)
	}
}

func (e *Engine) gpsReliable(nowSec float64) bool {
	return e.gps.Reliable(nowSec)
}

func (e *Engine) forceZero() {
	e.vFused = 0
	e.vAccel = 0
}

// clampState enforces the standing invariants: non-negative bounded speed,
// floored uncertainty.
func (e *Engine) clampState() {
	if e.vFused < 0 {
		e.vFused = 0
	}
	if e.vFused > e.cfg.Fusion.MaxSpeed {
		e.vFused = e.cfg.Fusion.MaxSpeed
	}
	if e.vAccel < 0 {
		e.vAccel = 0
	}
	if e.sigma < e.cfg.Fusion.SigmaMin {
		e.sigma = e.cfg.Fusion.SigmaMin
	}
}

func (e *Engine) displaySpeed() float64 {
	if e.display.Len() < 3 {
		return e.vFused
	}
	med, err := stats.Median(e.display.Get())
	if err != nil {
		return e.vFused
	}
	return med
}
