// Package crop turns the smoothed face estimate and the current zoom mode
// into stable crop rectangles. The controller is pure geometry: the render
// loop feeds it one estimate snapshot per tick and applies the returned
// rectangles to pixels and to the camera's hardware crop.
package crop

import (
	"fmt"
	"math"

	"github.com/dudu/mirrorcam/internal/tracker"
)

// Rect is a square crop region in pixel coordinates.
type Rect struct {
	X, Y int
	Size int
}

// Config holds the controller tuning parameters.
type Config struct {
	// Ratios maps zoom modes to crop-size multipliers of the face width.
	Ratios RatioTable

	// DeadzonePos and DeadzoneSize are the normalized movement thresholds
	// below which the current crop is held unchanged.
	DeadzonePos  float64
	DeadzoneSize float64

	// Smoothing is the fraction of the remaining distance to the target the
	// crop moves per render tick, in (0,1].
	Smoothing float64

	// TwoStage enables the coarse sensor crop that feeds the camera hardware
	// while the display crop stays tight. Keeping the sensor crop wide
	// preserves enough context for the detector to reacquire the face, which
	// breaks the runaway-zoom feedback loop.
	TwoStage bool

	// SensorMargin scales the sensor crop relative to the face width
	// (must be > 1 so the detector keeps context around the face).
	SensorMargin float64

	// SensorSmoothing is the interpolation factor for sensor crop movement.
	// It is separate from the display smoothing because the hardware crop
	// updates on a slower cadence.
	SensorSmoothing float64
}

// Controller maintains the current display and sensor crops across render
// ticks. It is not safe for concurrent use; the render loop is its only
// caller.
type Controller struct {
	cfg Config

	frameW, frameH float64

	hasDisplay                   bool
	dispX, dispY, dispSize       float64
	hasSensor                    bool
	sensorX, sensorY, sensorSize float64
}

// NewController validates cfg and returns a controller with no crop yet; the
// first estimate initializes the crop directly to its target.
func NewController(cfg Config) (*Controller, error) {
	if len(cfg.Ratios) == 0 {
		return nil, fmt.Errorf("crop: ratio table is required")
	}
	if cfg.Smoothing <= 0 || cfg.Smoothing > 1 {
		return nil, fmt.Errorf("crop: smoothing factor %v outside (0,1]", cfg.Smoothing)
	}
	if cfg.DeadzonePos < 0 || cfg.DeadzoneSize < 0 {
		return nil, fmt.Errorf("crop: deadzone thresholds must be non-negative")
	}
	if cfg.TwoStage {
		if cfg.SensorMargin <= 1 {
			return nil, fmt.Errorf("crop: sensor margin %v must exceed 1", cfg.SensorMargin)
		}
		if cfg.SensorSmoothing <= 0 || cfg.SensorSmoothing > 1 {
			return nil, fmt.Errorf("crop: sensor smoothing %v outside (0,1]", cfg.SensorSmoothing)
		}
	}
	return &Controller{cfg: cfg}, nil
}

// Tick advances the crop state for one render tick. ok is false when no face
// estimate exists (never tracked, or tracking lost); the crop then holds its
// last value so the image does not jump.
func (c *Controller) Tick(est tracker.Estimate, ok bool, mode ZoomMode, frameW, frameH int) {
	if !ok || frameW <= 0 || frameH <= 0 {
		return
	}
	if !mode.Valid() {
		mode = ModeFace
	}
	c.frameW = float64(frameW)
	c.frameH = float64(frameH)

	c.updateDisplay(est, mode)
	if c.cfg.TwoStage {
		c.updateSensor(est)
	}
}

// Display returns the current display crop in raw frame pixel space.
func (c *Controller) Display() (Rect, bool) {
	if !c.hasDisplay {
		return Rect{}, false
	}
	return c.round(c.dispX, c.dispY, c.dispSize), true
}

// Sensor returns the current coarse sensor crop, destined for the camera's
// hardware crop control.
func (c *Controller) Sensor() (Rect, bool) {
	if !c.hasSensor {
		return Rect{}, false
	}
	return c.round(c.sensorX, c.sensorY, c.sensorSize), true
}

// Relative re-expresses the display crop in the sensor crop's coordinate
// space, clamped into [0, sensorSize - displaySize]. This is the software
// crop applied to a frame the hardware has already cropped to the sensor
// rectangle.
func (c *Controller) Relative() (Rect, bool) {
	if !c.hasDisplay || !c.hasSensor {
		return Rect{}, false
	}
	d, _ := c.Display()
	s, _ := c.Sensor()

	size := d.Size
	if size > s.Size {
		size = s.Size
	}
	maxOff := s.Size - size
	return Rect{
		X:    clampInt(d.X-s.X, 0, maxOff),
		Y:    clampInt(d.Y-s.Y, 0, maxOff),
		Size: size,
	}, true
}

func (c *Controller) updateDisplay(est tracker.Estimate, mode ZoomMode) {
	tx, ty, ts := c.target(est, mode)

	if !c.hasDisplay || c.dispSize <= 0 {
		c.dispX, c.dispY, c.dispSize = tx, ty, ts
		c.hasDisplay = true
		return
	}

	dx := math.Abs(tx-c.dispX) / c.dispSize
	dy := math.Abs(ty-c.dispY) / c.dispSize
	ds := math.Abs(ts-c.dispSize) / c.dispSize
	if dx < c.cfg.DeadzonePos && dy < c.cfg.DeadzonePos && ds < c.cfg.DeadzoneSize {
		// Inside the deadzone: hold bit-identically to suppress detector
		// jitter.
		return
	}

	f := c.cfg.Smoothing
	c.dispX += (tx - c.dispX) * f
	c.dispY += (ty - c.dispY) * f
	c.dispSize += (ts - c.dispSize) * f
	c.dispX, c.dispY, c.dispSize = c.clampRect(c.dispX, c.dispY, c.dispSize)
}

// target computes the raw crop target for the estimate and mode, clamped to
// frame bounds.
func (c *Controller) target(est tracker.Estimate, mode ZoomMode) (float64, float64, float64) {
	px := est.Box.X * c.frameW
	py := est.Box.Y * c.frameH
	pw := est.Box.W * c.frameW

	var cx, cy float64
	switch {
	case mode == ModeEyes && len(est.Landmarks) >= 2:
		cx = (est.Landmarks[0].X + est.Landmarks[1].X) / 2 * c.frameW
		cy = (est.Landmarks[0].Y + est.Landmarks[1].Y) / 2 * c.frameH
	case mode == ModeLips && len(est.Landmarks) >= 4:
		cx = est.Landmarks[3].X * c.frameW
		cy = est.Landmarks[3].Y * c.frameH
	default:
		// Width-based vertical center: cy offsets by the face *width*, not
		// height. Load-bearing for existing calibration; do not "fix".
		cx = px + pw/2
		cy = py - pw/2
	}

	ts := evenSize(pw * c.cfg.Ratios[mode])
	tx := cx - ts/2
	ty := cy - ts/2
	return c.clampRect(tx, ty, ts)
}

func (c *Controller) updateSensor(est tracker.Estimate) {
	if len(est.Landmarks) < 3 {
		return
	}
	// Centered on the nose (landmark index 2): the most stable point while
	// the face rotates or the mouth moves.
	nose := est.Landmarks[2]
	pw := est.Box.W * c.frameW

	ts := pw * c.cfg.SensorMargin
	tx := nose.X*c.frameW - ts/2
	ty := nose.Y*c.frameH - ts/2
	tx, ty, ts = c.clampRect(tx, ty, ts)

	if !c.hasSensor || c.sensorSize <= 0 {
		c.sensorX, c.sensorY, c.sensorSize = tx, ty, ts
		c.hasSensor = true
		return
	}

	f := c.cfg.SensorSmoothing
	c.sensorX += (tx - c.sensorX) * f
	c.sensorY += (ty - c.sensorY) * f
	c.sensorSize += (ts - c.sensorSize) * f
	c.sensorX, c.sensorY, c.sensorSize = c.clampRect(c.sensorX, c.sensorY, c.sensorSize)
}

// clampRect keeps a square rectangle inside the frame: corner at least 0,
// corner plus size at most the frame edge.
func (c *Controller) clampRect(x, y, size float64) (float64, float64, float64) {
	maxSize := math.Min(c.frameW, c.frameH)
	if size > maxSize {
		size = maxSize
	}
	if size < 2 {
		size = 2
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x+size > c.frameW {
		x = c.frameW - size
	}
	if y+size > c.frameH {
		y = c.frameH - size
	}
	return x, y, size
}

// round converts float crop state to integer pixels, re-checking bounds
// because independent rounding of corner and size can overshoot by a pixel.
func (c *Controller) round(x, y, size float64) Rect {
	r := Rect{
		X:    int(math.Round(x)),
		Y:    int(math.Round(y)),
		Size: int(math.Round(size)),
	}
	w := int(c.frameW)
	h := int(c.frameH)
	if r.Size > min(w, h) {
		r.Size = min(w, h)
	}
	r.X = clampInt(r.X, 0, w-r.Size)
	r.Y = clampInt(r.Y, 0, h-r.Size)
	return r
}

// evenSize rounds a crop edge down to an integer and up to the next even
// value, so the crop center stays on a whole pixel.
func evenSize(v float64) float64 {
	n := int(v)
	n += n % 2
	return float64(n)
}

func clampInt(v, lo, hi int) int {
	if hi < lo {
		hi = lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
