// Package sensor defines the two raw input streams the fusion engine eats:
// accelerometer samples and GPS fixes, as a commodity phone reports them.
package sensor

import (
	"time"

	"github.com/paulmach/orb"
)

// AccelSample is one three-axis accelerometer reading in m/s^2.
// Linear distinguishes hardware linear acceleration (gravity already removed
// by the sensor stack) from a raw including-gravity reading, which needs
// gravity subtracted along the sensed down-axis before use. The raw path is
// tilt-sensitive; the filter only subtracts standard gravity from z.
type AccelSample struct {
	X          float64 `json:"ax"`
	Y          float64 `json:"ay"`
	Z          float64 `json:"az"`
	UnixMillis int64   `json:"t"`
	Linear     bool    `json:"linear"`
}

func (s AccelSample) Time() time.Time {
	return time.UnixMilli(s.UnixMillis)
}

// Seconds returns the monotonic sample time in seconds.
func (s AccelSample) Seconds() float64 {
	return float64(s.UnixMillis) / 1000.0
}

// DefaultFixAccuracy is assumed when a fix reports no accuracy radius.
const DefaultFixAccuracy = 20.0

// GpsFix is one location-provider report. Speed is nil when the receiver
// could not derive a ground speed (or reported a negative one, which decode
// discards). Accuracy is a radius in meters.
type GpsFix struct {
	Lat        float64  `json:"lat"`
	Lon        float64  `json:"lon"`
	Speed      *float64 `json:"speed,omitempty"`
	Accuracy   float64  `json:"accuracy"`
	UnixMillis int64    `json:"t"`
}

func (f GpsFix) Time() time.Time {
	return time.UnixMilli(f.UnixMillis)
}

func (f GpsFix) Seconds() float64 {
	return float64(f.UnixMillis) / 1000.0
}

func (f GpsFix) Point() orb.Point {
	return orb.Point{f.Lon, f.Lat}
}

// HasSpeed reports whether the receiver derived a usable ground speed.
func (f GpsFix) HasSpeed() bool {
	return f.Speed != nil && *f.Speed >= 0
}

// MustSpeed returns the reported speed, or fallback without one.
func (f GpsFix) MustSpeed(fallback float64) float64 {
	if f.HasSpeed() {
		return *f.Speed
	}
	return fallback
}

// Record is one line of a recorded sensor trace; exactly one of the
// pointers is set. Traces interleave both streams in arrival order.
type Record struct {
	Accel *AccelSample `json:"accel,omitempty"`
	Gps   *GpsFix      `json:"gps,omitempty"`
}

// Time returns the timestamp of whichever reading the record holds.
func (r Record) Time() time.Time {
	if r.Accel != nil {
		return r.Accel.Time()
	}
	if r.Gps != nil {
		return r.Gps.Time()
	}
	return time.Time{}
}

func (r Record) IsValid() bool {
	return (r.Accel != nil) != (r.Gps != nil)
}
