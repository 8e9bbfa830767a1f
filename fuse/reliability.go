package fuse

import (
	"math"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/dashcat/common"
	"github.com/rotblauer/dashcat/params"
	"github.com/rotblauer/dashcat/types/sensor"
)

// GpsMonitor scores each arriving fix for trustworthiness on [0.1, 1.0] and
// remembers the latest usable ground speed. The fusion core treats GPS as
// reliable exactly when a fix exists, it is fresh, and the score clears the
// floor. The monitor also owns run-start moving detection: it accumulates
// fixes until the startup question can be answered.
type GpsMonitor struct {
	cfg params.ReliabilityConfig

	window *common.RingBuffer[sensor.GpsFix]

	Score     float64
	LastSpeed float64
	HasSpeed  bool

	lastFixSec float64
	haveFix    bool

	// ZeroStreak counts consecutive near-zero reported speeds; the fusion
	// core's zero anchor consults it.
	ZeroStreak int

	startFixes    []sensor.GpsFix
	startFirstSec float64
}

func NewGpsMonitor(cfg params.ReliabilityConfig) *GpsMonitor {
	return &GpsMonitor{
		cfg:    cfg,
		window: common.NewRingBuffer[sensor.GpsFix](cfg.Window),
	}
}

// Observe scores a fix and folds it into the window. Returns the score.
func (m *GpsMonitor) Observe(fix sensor.GpsFix) float64 {
	prevFixSec, hadFix := m.lastFixSec, m.haveFix

	m.window.Add(fix)
	m.lastFixSec = fix.Seconds()
	m.haveFix = true

	if fix.HasSpeed() {
		m.LastSpeed = *fix.Speed
		m.HasSpeed = true
		if m.LastSpeed < 0.3 {
			m.ZeroStreak++
		} else {
			m.ZeroStreak = 0
		}
	}

	fixes := m.window.Get()
	if len(fixes) < 2 {
		m.Score = 0.3
		return m.Score
	}

	r := 1.0

	// Accuracy: a window that averages worse than a city block is barely
	// worth listening to.
	accuracies := make([]float64, 0, len(fixes))
	for _, f := range fixes {
		accuracies = append(accuracies, f.Accuracy)
	}
	meanAcc, _ := stats.Mean(accuracies)
	switch {
	case meanAcc > 50:
		r *= 0.3
	case meanAcc > 20:
		r *= 0.7
	case meanAcc > 10:
		r *= 0.9
	}

	// Jump penalty: physically implausible speed steps between fixes.
	speeds := make([]float64, 0, len(fixes))
	for _, f := range fixes {
		if f.HasSpeed() {
			speeds = append(speeds, *f.Speed)
		}
	}
	if len(speeds) >= 3 {
		maxJump := 0.0
		for i := 1; i < len(speeds); i++ {
			if j := math.Abs(speeds[i] - speeds[i-1]); j > maxJump {
				maxJump = j
			}
		}
		switch {
		case maxJump > 5:
			r *= 0.5
		case maxJump > 3:
			r *= 0.7
		}
	}

	// Staleness: penalize the gap this fix just closed.
	if hadFix {
		dt := fix.Seconds() - prevFixSec
		switch {
		case dt > 3:
			r *= 0.5
		case dt > 2:
			r *= 0.7
		}
	}

	m.Score = math.Max(0.1, math.Min(1.0, r))
	return m.Score
}

// Reliable reports whether the fusion core may lean on GPS right now.
func (m *GpsMonitor) Reliable(nowSec float64) bool {
	if !m.haveFix {
		return false
	}
	age := nowSec - m.lastFixSec
	return age < m.cfg.MaxFixAge.Seconds() && m.Score > m.cfg.MinReliableScore
}

// FixAge returns seconds since the newest fix, or +Inf without one.
func (m *GpsMonitor) FixAge(nowSec float64) float64 {
	if !m.haveFix {
		return math.Inf(1)
	}
	return nowSec - m.lastFixSec
}

// AccumulateStart collects fixes arriving before startup is resolved.
func (m *GpsMonitor) AccumulateStart(fix sensor.GpsFix) {
	if len(m.startFixes) == 0 {
		m.startFirstSec = fix.Seconds()
	}
	m.startFixes = append(m.startFixes, fix)
}

// StartDecided reports whether the moving-start question is answerable:
// enough fixes, or enough time since the first.
func (m *GpsMonitor) StartDecided(nowSec float64) bool {
	if len(m.startFixes) >= m.cfg.StartFixes {
		return true
	}
	return len(m.startFixes) > 0 && nowSec-m.startFirstSec >= m.cfg.StartWindow.Seconds()
}

// EvaluateStart answers the moving-start question from the accumulated
// fixes: only accurate fixes vote, and their mean speed must clear the
// threshold. meanSpeed and meanAccuracy are meaningful only when moving.
func (m *GpsMonitor) EvaluateStart() (moving bool, meanSpeed, meanAccuracy float64) {
	speeds := []float64{}
	accuracies := []float64{}
	for _, f := range m.startFixes {
		if f.Accuracy < m.cfg.StartAccuracyMax && f.HasSpeed() {
			speeds = append(speeds, *f.Speed)
			accuracies = append(accuracies, f.Accuracy)
		}
	}
	if len(speeds) == 0 {
		return false, 0, 0
	}
	meanSpeed, _ = stats.Mean(speeds)
	meanAccuracy, _ = stats.Mean(accuracies)
	return meanSpeed > m.cfg.StartMovingSpeed, meanSpeed, meanAccuracy
}

// Reset forgets everything, including startup accumulation.
func (m *GpsMonitor) Reset() {
	m.window.Reset()
	m.Score = 0
	m.LastSpeed = 0
	m.HasSpeed = false
	m.lastFixSec = 0
	m.haveFix = false
	m.ZeroStreak = 0
	m.startFixes = nil
	m.startFirstSec = 0
}
