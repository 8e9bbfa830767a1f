package smooth

import (
	"testing"

	"github.com/rotblauer/dashcat/testing/testdata"
	"github.com/rotblauer/dashcat/types/sensor"
)

func TestSmoother_SteadyTrack(t *testing.T) {
	recs := testdata.NewTrace().
		Phase(30, 0, 1, nil, true, testdata.Constant(10), 5).
		Records()

	s := NewSmoother()
	var last float64
	estimated := 0
	for _, r := range recs {
		if r.Gps == nil {
			continue
		}
		speed, ok := s.Observe(*r.Gps)
		if !ok {
			continue
		}
		estimated++
		if speed < 0 {
			t.Fatalf("smoothed speed went negative: %v", speed)
		}
		last = speed
	}
	if estimated == 0 {
		t.Fatal("expected the filter to produce estimates")
	}
	// A long steady 10 m/s track should settle somewhere near 10.
	if last < 5 || last > 15 {
		t.Errorf("smoothed terminal speed %v, want near 10", last)
	}
}

func TestSmoother_PositionOnlyFixes(t *testing.T) {
	s := NewSmoother()
	for i := 0; i < 5; i++ {
		fix := sensor.GpsFix{
			Lat: 46.87, Lon: -113.99, Accuracy: 10,
			UnixMillis: int64(1000 * (i + 1)),
		}
		if speed, ok := s.Observe(fix); ok && speed < 0 {
			t.Fatalf("negative speed from stationary track: %v", speed)
		}
	}
}
