package fuse

import (
	"log/slog"

	"github.com/montanaflynn/stats"
	"github.com/rotblauer/dashcat/params"
)

// Bias is the per-axis accelerometer offset subtracted from every
// gravity-adjusted sample. It is created once with the engine and never
// discarded; runs refine it, they don't replace it.
type Bias struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Calibrator owns the bias estimate. Initial calibration collects a short
// stationary window at run-start and takes per-axis medians; after that the
// bias is only nudged, during confirmed stationary intervals, toward the
// residual the motion gate still sees.
type Calibrator struct {
	cfg params.FusionConfig

	Bias       Bias
	Calibrated bool

	collecting bool
	deadline   float64 // seconds timestamp closing the collection window
	xs, ys, zs []float64
}

func NewCalibrator(cfg params.FusionConfig) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// BeginWindow opens the stationary collection window. Only called when the
// moving-start test concluded stationary; a moving start marks the engine
// calibrated without collecting anything.
func (c *Calibrator) BeginWindow(nowSec float64) {
	c.collecting = true
	c.deadline = nowSec + c.cfg.CalibrationWindow.Seconds()
	c.xs = c.xs[:0]
	c.ys = c.ys[:0]
	c.zs = c.zs[:0]
}

func (c *Calibrator) Collecting() bool {
	return c.collecting
}

// Collect feeds one gravity-adjusted (but not bias-subtracted) sample into
// the open window, closing and resolving it once the deadline passes.
func (c *Calibrator) Collect(x, y, z float64, nowSec float64) {
	if !c.collecting {
		return
	}
	if nowSec < c.deadline {
		c.xs = append(c.xs, x)
		c.ys = append(c.ys, y)
		c.zs = append(c.zs, z)
		return
	}
	c.resolveWindow()
}

func (c *Calibrator) resolveWindow() {
	c.collecting = false
	// An undersampled window leaves the prior bias standing. The engine is
	// marked calibrated either way; GPS carries more weight until a later
	// stationary interval bounds the bias.
	if len(c.xs) >= c.cfg.CalibrationMinSamples {
		mx, _ := stats.Median(c.xs)
		my, _ := stats.Median(c.ys)
		mz, _ := stats.Median(c.zs)
		c.Bias = Bias{X: mx, Y: my, Z: mz}
		slog.Debug("calibrated", "bias.x", mx, "bias.y", my, "bias.z", mz, "n", len(c.xs))
	} else {
		slog.Debug("calibration window undersampled", "n", len(c.xs))
	}
	c.Calibrated = true
}

// MarkCalibrated short-circuits calibration; used on moving starts.
func (c *Calibrator) MarkCalibrated() {
	c.collecting = false
	c.Calibrated = true
}

// Recalibrate nudges each axis toward the mean residual observed over the
// most recent stationary samples. Residuals are post-bias, so the nudge
// absorbs thermal drift without stepping on the median estimate.
func (c *Calibrator) Recalibrate(residuals [][3]float64) {
	if len(residuals) == 0 {
		return
	}
	var sx, sy, sz float64
	for _, r := range residuals {
		sx += r[0]
		sy += r[1]
		sz += r[2]
	}
	n := float64(len(residuals))
	blend := c.cfg.RecalibrationBlend
	c.Bias.X += blend * (sx / n)
	c.Bias.Y += blend * (sy / n)
	c.Bias.Z += blend * (sz / n)
}

// Reset returns the calibrator to its constructed state. Used by the
// engine's full reset; run-over-run lifecycle keeps bias and the
// calibrated mark.
func (c *Calibrator) Reset() {
	c.Bias = Bias{}
	c.Calibrated = false
	c.collecting = false
	c.deadline = 0
	c.xs, c.ys, c.zs = nil, nil, nil
}
