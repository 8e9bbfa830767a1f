package fuse

import (
	"time"

	"github.com/rotblauer/dashcat/common"
	"github.com/rotblauer/dashcat/events"
	"github.com/rotblauer/dashcat/params"
)

type launchSample struct {
	filtered float64
	moving   bool
	tSec     float64
}

type speedTargetState struct {
	target   params.SpeedTarget
	armed    bool
	achieved bool
}

type distanceTargetState struct {
	target   params.DistanceTarget
	achieved bool
}

// EventDetector watches the fused signal for the three event families:
// launch, speed checkpoints, and distance milestones. Each fires at most
// once per run. Event elapsed times switch basis when a launch is detected,
// so a staged drag run reads from the moment the car actually left.
type EventDetector struct {
	cfg params.EventConfig

	buf *common.RingBuffer[launchSample]

	Launched    bool
	launchSec   float64
	runStartSec float64

	speedTargets    []speedTargetState
	distanceTargets []distanceTargetState

	emit func(events.RunEvent)
}

// NewEventDetector builds a detector; emit receives each event exactly once.
func NewEventDetector(cfg params.EventConfig, emit func(events.RunEvent)) *EventDetector {
	d := &EventDetector{
		// Generous capacity: the launch window holds 2s of samples at up
		// to ~100Hz.
		buf:  common.NewRingBuffer[launchSample](256),
		cfg:  cfg,
		emit: emit,
	}
	d.installTargets()
	return d
}

func (d *EventDetector) installTargets() {
	d.speedTargets = d.speedTargets[:0]
	for _, t := range d.cfg.SpeedTargets {
		d.speedTargets = append(d.speedTargets, speedTargetState{
			target: t,
			// A zero lower bound is informational; the target is live from
			// the gun. Nonzero bounds arm only after the run has dipped
			// below them.
			armed: t.From <= 0,
		})
	}
	d.distanceTargets = d.distanceTargets[:0]
	for _, t := range d.cfg.DistanceTargets {
		d.distanceTargets = append(d.distanceTargets, distanceTargetState{target: t})
	}
}

// StartRun re-arms every target and pins the fallback time basis.
func (d *EventDetector) StartRun(nowSec float64) {
	d.buf.Reset()
	d.Launched = false
	d.launchSec = 0
	d.runStartSec = nowSec
	d.installTargets()
}

// elapsed returns the event time on the launch basis when launched,
// run-start basis otherwise.
func (d *EventDetector) elapsed(nowSec float64) time.Duration {
	basis := d.runStartSec
	if d.Launched {
		basis = d.launchSec
	}
	return time.Duration((nowSec - basis) * float64(time.Second))
}

// OnTick runs all three detections against the current fused state.
func (d *EventDetector) OnTick(filtered float64, moving bool, vFused, distAccel, nowSec float64) {
	d.buf.Add(launchSample{filtered: filtered, moving: moving, tSec: nowSec})

	d.detectLaunch(vFused, nowSec)
	d.detectSpeed(vFused, nowSec)
	d.detectDistance(vFused, distAccel, nowSec)
}

func (d *EventDetector) detectLaunch(vFused, nowSec float64) {
	if d.Launched {
		return
	}
	if vFused <= d.cfg.LaunchMinSpeed {
		return
	}

	// (a) The most recent samples must all show decisive acceleration.
	recent := d.buf.Tail(d.cfg.LaunchSamples)
	if len(recent) < d.cfg.LaunchSamples {
		return
	}
	for _, s := range recent {
		if s.filtered <= d.cfg.LaunchMagnitude || !s.moving {
			return
		}
	}

	// (c) And the acceleration must be sustained, not a single jolt: over
	// the sustain window, enough samples, and most of them accelerating.
	windowStart := nowSec - d.cfg.LaunchSustainWindow.Seconds()
	total, hot := 0, 0
	d.buf.Scan(func(s launchSample) bool {
		if s.tSec >= windowStart {
			total++
			if s.filtered > d.cfg.LaunchSustainMagnitude && s.moving {
				hot++
			}
		}
		return true
	})
	if total < d.cfg.LaunchSustainMinSamples {
		return
	}
	if float64(hot) < d.cfg.LaunchSustainRatio*float64(total) {
		return
	}

	d.Launched = true
	d.launchSec = nowSec
	d.emit(events.RunEvent{
		Kind:    events.KindLaunch,
		Elapsed: time.Duration((nowSec - d.runStartSec) * float64(time.Second)),
		At:      secToTime(nowSec),
	})
}

func (d *EventDetector) detectSpeed(vFused, nowSec float64) {
	for i := range d.speedTargets {
		st := &d.speedTargets[i]
		if st.achieved {
			continue
		}
		if !st.armed {
			if vFused < st.target.From {
				st.armed = true
			}
			continue
		}
		if vFused >= st.target.To {
			st.achieved = true
			d.emit(events.RunEvent{
				Kind:    events.KindSpeedCheckpoint,
				ID:      st.target.ID,
				Elapsed: d.elapsed(nowSec),
				At:      secToTime(nowSec),
			})
		}
	}
}

func (d *EventDetector) detectDistance(vFused, distAccel, nowSec float64) {
	for i := range d.distanceTargets {
		dt := &d.distanceTargets[i]
		if dt.achieved || distAccel < dt.target.Meters {
			continue
		}
		dt.achieved = true
		d.emit(events.RunEvent{
			Kind:    events.KindDistanceMilestone,
			ID:      dt.target.ID,
			Elapsed: d.elapsed(nowSec),
			Speed:   vFused,
			At:      secToTime(nowSec),
		})
	}
}

func secToTime(sec float64) time.Time {
	return time.UnixMilli(int64(sec * 1000))
}
