// Package testdata builds synthetic sensor traces for tests: interleaved
// accelerometer and GPS streams with physically consistent speeds and
// positions. No recorded traces here; every scenario is constructed.
package testdata

import (
	"encoding/json"
	"io"
	"math"
	"sort"

	"github.com/rotblauer/dashcat/types/sensor"
)

// StartMillis is a fixed, arbitrary epoch for trace starts.
const StartMillis int64 = 1_700_000_000_000

// StartLat / StartLon: Missoula, Montana.
const (
	StartLat = 46.8721
	StartLon = -113.9940
)

// metersPerDegreeLat is close enough for test-length traces.
const metersPerDegreeLat = 111320.0

// NoSpeed marks a GPS phase as position-only.
var NoSpeed = math.NaN()

// TraceBuilder accumulates phases of sensor activity and renders them as a
// single time-ordered record stream.
type TraceBuilder struct {
	recs      []sensor.Record
	cursorSec float64
	lat       float64
	lon       float64
}

func NewTrace() *TraceBuilder {
	return &TraceBuilder{
		cursorSec: float64(StartMillis) / 1000.0,
		lat:       StartLat,
		lon:       StartLon,
	}
}

// Now returns the builder's cursor in unix millis.
func (b *TraceBuilder) Now() int64 {
	return int64(math.Round(b.cursorSec * 1000))
}

// Elapsed returns seconds since trace start.
func (b *TraceBuilder) Elapsed() float64 {
	return b.cursorSec - float64(StartMillis)/1000.0
}

// Phase appends dur seconds of interleaved streams. accel is sampled at
// accelHz and receives phase-relative seconds; speed likewise at gpsHz,
// with accuracy attached to every fix. A NaN speed renders a position-only
// fix. Position advances north with the speed function. Either rate may be
// zero to silence that stream.
func (b *TraceBuilder) Phase(dur, accelHz, gpsHz float64,
	accel func(t float64) (x, y, z float64), linear bool,
	speed func(t float64) float64, accuracy float64,
) *TraceBuilder {
	start := b.cursorSec

	if accelHz > 0 && accel != nil {
		step := 1.0 / accelHz
		for t := step; t <= dur+1e-9; t += step {
			x, y, z := accel(t)
			b.recs = append(b.recs, sensor.Record{Accel: &sensor.AccelSample{
				X: x, Y: y, Z: z,
				UnixMillis: int64(math.Round((start + t) * 1000)),
				Linear:     linear,
			}})
		}
	}

	if gpsHz > 0 && speed != nil {
		step := 1.0 / gpsHz
		prevT := 0.0
		for t := step; t <= dur+1e-9; t += step {
			v := speed(t)
			fix := &sensor.GpsFix{
				Lat:        b.lat,
				Lon:        b.lon,
				Accuracy:   accuracy,
				UnixMillis: int64(math.Round((start + t) * 1000)),
			}
			if !math.IsNaN(v) && v >= 0 {
				vv := v
				fix.Speed = &vv
				b.lat += vv * (t - prevT) / metersPerDegreeLat
				fix.Lat = b.lat
			}
			prevT = t
			b.recs = append(b.recs, sensor.Record{Gps: fix})
		}
	}

	b.cursorSec += dur
	return b
}

// Quiet appends dur seconds with no records at all (a backgrounded app).
func (b *TraceBuilder) Quiet(dur float64) *TraceBuilder {
	b.cursorSec += dur
	return b
}

// Records renders the trace in arrival order. Ties between the two streams
// resolve accelerometer-first, matching how the phone's looper interleaves
// the faster stream ahead of the location callback.
func (b *TraceBuilder) Records() []sensor.Record {
	out := make([]sensor.Record, len(b.recs))
	copy(out, b.recs)
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].Time().UnixMilli(), out[j].Time().UnixMilli()
		if ti != tj {
			return ti < tj
		}
		return out[i].Accel != nil && out[j].Gps != nil
	})
	return out
}

// WriteNDJSON renders records one JSON object per line, in the wrapped
// trace form the decoder accepts.
func WriteNDJSON(w io.Writer, recs []sensor.Record) error {
	enc := json.NewEncoder(w)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}

// Constant is a convenience constant-valued signal.
func Constant(v float64) func(float64) float64 {
	return func(float64) float64 { return v }
}

// Ramp rises linearly from 0 at rate perSec.
func Ramp(perSec float64) func(float64) float64 {
	return func(t float64) float64 { return perSec * t }
}

// AccelVec is a convenience constant acceleration vector.
func AccelVec(x, y, z float64) func(float64) (float64, float64, float64) {
	return func(float64) (float64, float64, float64) { return x, y, z }
}
