package fuse

import (
	"math"
	"reflect"
	"testing"

	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/testing/testdata"
	"github.com/rotblauer/dashcat/types/sensor"
)

func drive(e *Engine, recs []sensor.Record) {
	for _, r := range recs {
		switch {
		case r.Accel != nil:
			e.PushAccelSample(*r.Accel)
		case r.Gps != nil:
			e.PushGpsFix(*r.Gps)
		}
	}
}

// secsAfterStart converts an absolute event time to seconds since trace start.
func secsAfterStart(evAtMillis int64) float64 {
	return float64(evAtMillis-testdata.StartMillis) / 1000.0
}

func quiet(t float64) (float64, float64, float64) {
	return 0.03, 0.02, 0.03
}

// Static phone: five seconds of sensor noise, no GPS. The engine must not
// invent motion.
func TestScenario_StaticPhone(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(5, 100, 0, quiet, true, nil, 0).
		Records()
	drive(e, recs)

	snap := e.Snapshot()
	if snap.Speed != 0 {
		t.Errorf("static phone must read 0, got %v", snap.Speed)
	}
	if snap.Distance != 0 {
		t.Errorf("static phone must not accrue distance, got %v", snap.Distance)
	}
	if snap.Moving {
		t.Error("static phone must classify stationary")
	}
	if !snap.Calibrated {
		t.Error("the stationary window should have resolved calibration")
	}
	if snap.Sigma != 0.5 {
		t.Errorf("hard zero anchor pins sigma at 0.5, got %v", snap.Sigma)
	}
}

// Clean acceleration to ~60 mph over 9 seconds with trustworthy GPS.
func TestScenario_CleanAccelerationTo60(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(9, 100, 10,
			testdata.AccelVec(3, 0, 0), true,
			testdata.Ramp(3), 5).
		Records()
	drive(e, recs)

	evs := e.DrainEvents()
	cp := findEvent(evs, events.KindSpeedCheckpoint, "0-60mph")
	if cp == nil {
		t.Fatal("expected a 0-60mph checkpoint")
	}
	at := secsAfterStart(cp.At.UnixMilli())
	if at < 8.9 || at > 9.1 {
		t.Errorf("0-60 crossing at %.3fs, want within [8.9, 9.1]", at)
	}

	snap := e.Snapshot()
	if snap.Distance < 118 || snap.Distance > 125 {
		t.Errorf("distance at 9s = %.1fm, want within [118, 125]", snap.Distance)
	}
	if !snap.GpsReliable {
		t.Error("GPS should be reliable throughout")
	}
}

// GPS outage during cruise: speed bleeds off slowly, uncertainty balloons,
// and the first post-outage fix pulls the estimate straight back.
func TestScenario_GpsOutageDuringCruise(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	cruise := testdata.NewTrace().
		Phase(5, 100, 2, testdata.AccelVec(0.2, 0, 0), true, testdata.Constant(20), 5)
	drive(e, cruise.Records())

	if math.Abs(e.vFused-20) > 0.5 {
		t.Fatalf("cruise should settle near 20, got %v", e.vFused)
	}

	outage := testdata.NewTrace().Quiet(5).
		Phase(8, 100, 0, testdata.AccelVec(0.2, 0, 0), true, nil, 0)
	drive(e, outage.Records())

	// Decay is bounded: no worse than ~2% per second from outage onset.
	floor := 20 * math.Pow(0.98, 8)
	if e.vFused < floor-0.5 || e.vFused > 20 {
		t.Errorf("after 8s outage speed = %v, want within [%.2f, 20]", e.vFused, floor-0.5)
	}
	if e.sigma < 3 {
		t.Errorf("dead reckoning should have grown sigma past 3, got %v", e.sigma)
	}
	if e.Snapshot().GpsReliable {
		t.Error("GPS must read unreliable mid-outage")
	}

	// Resumption: one fix at 20 m/s, accuracy 5.
	v := 20.0
	e.PushGpsFix(sensor.GpsFix{
		Lat: testdata.StartLat, Lon: testdata.StartLon,
		Speed: &v, Accuracy: 5,
		UnixMillis: testdata.StartMillis + 13_000,
	})
	if math.Abs(e.vFused-20) > 1.0 {
		t.Errorf("first post-outage fusion should land within 1 of 20, got %v", e.vFused)
	}
	if e.sigma >= 3 {
		t.Errorf("the Kalman update should have collapsed sigma, got %v", e.sigma)
	}
}

// Moving start: GPS shows 15 m/s before any accelerometer data. No
// calibration window, no dip to zero.
func TestScenario_MovingStart(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(1.5, 0, 2, nil, true, testdata.Constant(15), 8).
		Phase(1, 100, 2, testdata.AccelVec(0.3, 0, 0), true, testdata.Constant(15), 8).
		Records()
	drive(e, recs)

	snap := e.Snapshot()
	if !snap.Calibrated {
		t.Error("a moving start marks the engine calibrated without a window")
	}
	if math.Abs(snap.Speed-15) > 1 {
		t.Errorf("speed should initialise near 15, got %v", snap.Speed)
	}
	if !snap.Moving {
		t.Error("a moving start classifies moving")
	}
	if snap.Speed == 0 {
		t.Error("ticks after a moving start must not drop speed to zero")
	}
}

// Screen-lock gap: the accelerometer stream stalls for 3s while GPS keeps
// reporting. The first post-gap tick is discarded and re-anchored.
func TestScenario_ScreenLockGap(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(5, 100, 2, testdata.AccelVec(0.2, 0, 0), true, testdata.Constant(20), 5).
		Phase(3, 0, 2, nil, true, testdata.Constant(20), 5).
		Records()
	drive(e, recs)

	// First tick after the 3s hole.
	e.PushAccel(0.2, 0, 0, testdata.StartMillis+8_010, true)

	if e.sigma != 5 {
		t.Errorf("post-gap tick must set sigma to 5, got %v", e.sigma)
	}
	snap := e.Snapshot()
	if math.Abs(snap.Speed-20) > 0.5 {
		t.Errorf("post-gap speed should re-anchor to GPS near 20, got %v", snap.Speed)
	}
	if snap.Distance == 0 {
		t.Error("cruise distance should have accrued before the gap")
	}
}

// A full drag run: stationary calibration, launch, checkpoints on the
// launch basis, distance milestones with crossing speeds.
func TestScenario_QuarterMileRun(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(5, 100, 2, quiet, true, testdata.Constant(0), 5).
		Phase(15, 100, 2, testdata.AccelVec(4, 0, 0), true, testdata.Ramp(4), 5).
		Records()
	drive(e, recs)

	evs := e.DrainEvents()

	launch := findEvent(evs, events.KindLaunch, "")
	if launch == nil {
		t.Fatal("expected a launch")
	}
	launchAt := secsAfterStart(launch.At.UnixMilli())
	if launchAt < 5.0 || launchAt > 6.5 {
		t.Errorf("launch at %.2fs, want shortly after onset at 5s", launchAt)
	}

	cp := findEvent(evs, events.KindSpeedCheckpoint, "0-60mph")
	if cp == nil {
		t.Fatal("expected a 0-60mph checkpoint")
	}
	cpAt := secsAfterStart(cp.At.UnixMilli())
	// v = 4t': the crossing lands near onset + 26.8/4.
	if cpAt < 11.2 || cpAt > 12.2 {
		t.Errorf("0-60 at %.2fs, want near 11.7", cpAt)
	}
	// Event time runs on the launch basis.
	wantElapsed := cpAt - launchAt
	if math.Abs(cp.Elapsed.Seconds()-wantElapsed) > 0.05 {
		t.Errorf("checkpoint elapsed %.2fs, want %.2fs since launch", cp.Elapsed.Seconds(), wantElapsed)
	}

	eighth := findEvent(evs, events.KindDistanceMilestone, "1/8mile")
	quarter := findEvent(evs, events.KindDistanceMilestone, "1/4mile")
	if eighth == nil || quarter == nil {
		t.Fatal("expected eighth- and quarter-mile milestones")
	}
	if quarter.Elapsed <= eighth.Elapsed {
		t.Error("the quarter must come after the eighth")
	}
	// distance ~ 2t'^2 crosses 402.3m near t'=14.2 at ~57 m/s.
	if quarter.Speed < 52 || quarter.Speed > 60 {
		t.Errorf("quarter-mile crossing speed %.1f, want near 57", quarter.Speed)
	}

	// The 60-100mph interval armed at rest and fired.
	if findEvent(evs, events.KindSpeedCheckpoint, "60-100mph") == nil {
		t.Error("expected a 60-100mph checkpoint on this run")
	}
}

// Invariants over a whole run: speed bounded, distance monotone.
func TestInvariants_BoundsAndMonotoneDistance(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(5, 100, 2, quiet, true, testdata.Constant(0), 5).
		Phase(10, 100, 2, testdata.AccelVec(4, 0, 0), true, testdata.Ramp(4), 5).
		Phase(3, 100, 0, testdata.AccelVec(0.2, 0, 0), true, nil, 0).
		Records()

	lastDist := 0.0
	for _, r := range recs {
		switch {
		case r.Accel != nil:
			e.PushAccelSample(*r.Accel)
		case r.Gps != nil:
			e.PushGpsFix(*r.Gps)
		}
		snap := e.Snapshot()
		if snap.Speed < 0 || snap.Speed > 100 {
			t.Fatalf("speed out of bounds: %v", snap.Speed)
		}
		if snap.Distance < lastDist {
			t.Fatalf("distance regressed: %v -> %v", lastDist, snap.Distance)
		}
		lastDist = snap.Distance
		if snap.Sigma < 0.1 {
			t.Fatalf("sigma under floor: %v", snap.Sigma)
		}
	}
}

// A reliable GPS fix always pulls the estimate toward itself.
func TestKalmanUpdatePullsTowardGps(t *testing.T) {
	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)

	recs := testdata.NewTrace().
		Phase(2, 0, 2, nil, true, testdata.Constant(15), 5).
		Phase(1, 100, 2, testdata.AccelVec(0.2, 0, 0), true, testdata.Constant(15), 5).
		Records()
	drive(e, recs)

	pre := math.Abs(e.vFused - 25.0)
	v := 25.0
	e.PushGpsFix(sensor.GpsFix{
		Lat: testdata.StartLat, Lon: testdata.StartLon,
		Speed: &v, Accuracy: 5,
		UnixMillis: testdata.StartMillis + 3_100,
	})
	post := math.Abs(e.vFused - 25.0)
	if post >= pre {
		t.Errorf("fix must pull fused toward GPS: pre %v post %v", pre, post)
	}
}

// reset() with no inputs snapshots identically to construction.
func TestResetIdempotence(t *testing.T) {
	fresh := NewEngine(nil).Snapshot()

	e := NewEngine(nil)
	e.StartRun(testdata.StartMillis)
	drive(e, testdata.NewTrace().
		Phase(3, 100, 2, testdata.AccelVec(2, 0, 0), true, testdata.Ramp(2), 5).
		Records())
	e.Reset()

	if !reflect.DeepEqual(fresh, e.Snapshot()) {
		t.Errorf("reset snapshot differs from construction:\nfresh %+v\nreset %+v", fresh, e.Snapshot())
	}
}

// Re-processing the same trace produces identical snapshots tick-for-tick.
func TestDeterministicReplay(t *testing.T) {
	recs := testdata.NewTrace().
		Phase(4, 100, 2, quiet, true, testdata.Constant(0), 5).
		Phase(8, 100, 2, testdata.AccelVec(3.5, 0, 0), true, testdata.Ramp(3.5), 5).
		Records()

	run := func() ([]Snapshot, []events.RunEvent) {
		e := NewEngine(nil)
		e.StartRun(testdata.StartMillis)
		snaps := make([]Snapshot, 0, len(recs))
		for _, r := range recs {
			switch {
			case r.Accel != nil:
				e.PushAccelSample(*r.Accel)
			case r.Gps != nil:
				e.PushGpsFix(*r.Gps)
			}
			snaps = append(snaps, e.Snapshot())
		}
		return snaps, e.DrainEvents()
	}

	snapsA, evsA := run()
	snapsB, evsB := run()
	if !reflect.DeepEqual(snapsA, snapsB) {
		t.Error("snapshot sequences diverged between identical replays")
	}
	if !reflect.DeepEqual(evsA, evsB) {
		t.Error("event sequences diverged between identical replays")
	}
}
