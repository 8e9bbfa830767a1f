// Package smooth runs recorded GPS fixes through a geodetic Kalman filter,
// for replay-side sanity checks of the fused estimate. The live engine never
// consults this; it is an offline second opinion.
package smooth

import (
	"fmt"
	"math"
	"time"

	rkalman "github.com/regnull/kalman"
	"github.com/rotblauer/dashcat/types/sensor"
)

// NewGeoFilter initializes a Kalman filter for a track starting at the
// given latitude and speed.
func NewGeoFilter(latitude, speed, acceleration float64) (*rkalman.GeoFilter, error) {
	// Estimate process noise.
	processNoise := &rkalman.GeoProcessNoise{
		// We assume the measurements will take place at the approximately the
		// same location, so that we can disregard the earth's curvature.
		BaseLat: latitude,
		// How much do we expect the user to move, meters per second.
		DistancePerSecond: speed,
		// How much do we expect the user's speed to change, meters per second squared.
		SpeedPerSecond: acceleration,
	}
	filter, err := rkalman.NewGeoFilter(processNoise)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Kalman filter: %w", err)
	}
	return filter, nil
}

// Smoother feeds fixes to the filter in order and exposes the filtered
// speed estimate per fix.
type Smoother struct {
	filter  *rkalman.GeoFilter
	last    time.Time
	started bool
}

func NewSmoother() *Smoother {
	return &Smoother{}
}

// Observe folds one fix in and returns the smoothed speed. ok is false
// until the filter has enough to estimate, and on filter errors.
func (s *Smoother) Observe(fix sensor.GpsFix) (speed float64, ok bool) {
	if !s.started {
		filter, err := NewGeoFilter(fix.Lat, fix.MustSpeed(1.0), 0.1)
		if err != nil {
			return 0, false
		}
		s.filter = filter
		s.last = fix.Time()
		s.started = true
	}

	span := fix.Time().Sub(s.last).Seconds()
	if span <= 0 {
		span = 1
	}
	s.last = fix.Time()

	err := s.filter.Observe(span, &rkalman.GeoObserved{
		Lat:                fix.Lat,
		Lng:                fix.Lon,
		Speed:              fix.MustSpeed(0),
		SpeedAccuracy:      0.2,
		HorizontalAccuracy: math.Max(1, fix.Accuracy),
		VerticalAccuracy:   2.0,
	})
	if err != nil {
		return 0, false
	}

	estimate := s.filter.Estimate()
	if estimate == nil || math.IsNaN(estimate.Speed) {
		return 0, false
	}
	return math.Max(0, estimate.Speed), true
}
