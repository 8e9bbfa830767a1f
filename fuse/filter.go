package fuse

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/dashcat/common"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/types/sensor"
)

// MotionGate converts raw accelerometer samples to a filtered scalar
// magnitude and classifies the device moving or stationary. The state is
// sticky: flipping to Moving takes a decisive magnitude, flipping back takes
// a sustained quiet stretch. Both outputs feed the fusion core.
type MotionGate struct {
	cfg params.MotionConfig

	mags         *common.RingBuffer[float64]
	residuals    *common.RingBuffer[[3]float64]
	lastAccepted float64
	haveAccepted bool

	Filtered float64
	Moving   bool

	quietStreak int
}

func NewMotionGate(cfg params.MotionConfig) *MotionGate {
	return &MotionGate{
		cfg:       cfg,
		mags:      common.NewRingBuffer[float64](cfg.MagnitudeWindow),
		residuals: common.NewRingBuffer[[3]float64](cfg.MagnitudeWindow),
	}
}

// Preprocess resolves the sample's gravity handling into a plain vector.
// Hardware linear acceleration passes through; the raw path subtracts
// standard gravity along z, which is the tilt-sensitive approximation the
// tilt-rejection anchor downstream exists to absorb.
func Preprocess(s sensor.AccelSample) (x, y, z float64) {
	if s.Linear {
		return s.X, s.Y, s.Z
	}
	return s.X, s.Y, s.Z - common.Gravity
}

// Update ingests one bias-subtracted vector and returns the filtered
// magnitude. Impulsive spikes (door slam, pothole) re-emit the last
// accepted value unchanged.
func (g *MotionGate) Update(x, y, z float64) float64 {
	g.residuals.Add([3]float64{x, y, z})

	m := math.Sqrt(x*x + y*y + z*z)
	if m > 5*g.cfg.NoiseThreshold && g.haveAccepted {
		g.classify(g.Filtered)
		return g.Filtered
	}

	g.mags.Add(m)
	g.lastAccepted = m
	g.haveAccepted = true

	if g.mags.Len() < 5 {
		g.Filtered = m
	} else {
		g.Filtered = trimmedMean(g.mags.Tail(g.cfg.FilterSpan), 0.05)
	}
	g.classify(g.Filtered)
	return g.Filtered
}

func (g *MotionGate) classify(filtered float64) {
	tau := g.cfg.MotionThreshold
	if !g.Moving {
		if filtered > 2*tau {
			g.Moving = true
			g.quietStreak = 0
		}
		return
	}
	// Sticky exit: any sample under half the threshold counts toward the
	// quiet streak, the flip itself demands a decisively quiet reading.
	if filtered < 0.5*tau {
		g.quietStreak++
	} else {
		g.quietStreak = 0
	}
	if g.quietStreak >= g.cfg.StationaryDebounce && filtered < 0.3*tau {
		g.Moving = false
		g.quietStreak = 0
	}
}

// Residuals returns the most recent bias-subtracted vectors, newest last.
// The calibrator consumes these during stationary re-calibration.
func (g *MotionGate) Residuals(n int) [][3]float64 {
	return g.residuals.Tail(n)
}

// Reset empties the filter and returns the gate to stationary.
func (g *MotionGate) Reset() {
	g.mags.Reset()
	g.residuals.Reset()
	g.lastAccepted = 0
	g.haveAccepted = false
	g.Filtered = 0
	g.Moving = false
	g.quietStreak = 0
}

// trimmedMean drops ceil(trim*n) values from each end of the sorted window
// before averaging. With the default 10-sample span that sheds exactly the
// min and max.
func trimmedMean(window []float64, trim float64) float64 {
	n := len(window)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, window)
	sort.Float64s(sorted)
	k := int(math.Ceil(trim * float64(n)))
	if 2*k >= n {
		k = 0
	}
	mean, _ := stats.Mean(sorted[k : n-k])
	return mean
}
