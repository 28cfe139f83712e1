package crop

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dudu/mirrorcam/internal/tracker"
)

func testRatios(t *testing.T) RatioTable {
	t.Helper()
	ratios, err := NewRatioTable(0.4, 0.6, 1.0, 1.6)
	require.NoError(t, err)
	return ratios
}

func testConfig(t *testing.T) Config {
	t.Helper()
	return Config{
		Ratios:          testRatios(t),
		DeadzonePos:     0.10,
		DeadzoneSize:    0.10,
		Smoothing:       0.08,
		TwoStage:        true,
		SensorMargin:    1.5,
		SensorSmoothing: 0.15,
	}
}

// estimateAt builds an estimate with the given fractional bbox. Landmarks are
// laid out inside the box: eyes in the upper half, nose at the center, mouth
// corners in the lower half.
func estimateAt(x, y, w, h float64) tracker.Estimate {
	return tracker.Estimate{
		Box: tracker.Box{X: x, Y: y, W: w, H: h},
		Landmarks: []tracker.Point{
			{X: x + 0.3*w, Y: y + 0.35*h}, // left eye
			{X: x + 0.7*w, Y: y + 0.35*h}, // right eye
			{X: x + 0.5*w, Y: y + 0.55*h}, // nose
			{X: x + 0.35*w, Y: y + 0.8*h}, // left mouth
			{X: x + 0.65*w, Y: y + 0.8*h}, // right mouth
		},
		Confidence: 0.9,
	}
}

func TestFaceModeTargetGeometry(t *testing.T) {
	// 1000x1000 frame, bbox (0.4, 0.3, 0.2, 0.2), FACE ratio 1.0:
	// pw=200, center=(500, 300-100=200), size=200, corner=(400, 100).
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	ctrl.Tick(estimateAt(0.4, 0.3, 0.2, 0.2), true, ModeFace, 1000, 1000)

	r, ok := ctrl.Display()
	require.True(t, ok)
	assert.Equal(t, Rect{X: 400, Y: 100, Size: 200}, r)
}

func TestWidthBasedVerticalCenterClampsAtTop(t *testing.T) {
	// A face near the top of the frame: cy = py - pw/2 goes negative and the
	// corner clamps to zero.
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	ctrl.Tick(estimateAt(0.4, 0.02, 0.3, 0.3), true, ModeFace, 1000, 1000)

	r, ok := ctrl.Display()
	require.True(t, ok)
	assert.Equal(t, 0, r.Y)
}

func TestDeadzoneHoldsBitIdentical(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	ctrl.Tick(estimateAt(0.4, 0.3, 0.2, 0.2), true, ModeFace, 1000, 1000)
	before, ok := ctrl.Display()
	require.True(t, ok)

	// Nudge the face by well under the 10% deadzone: crop must not move.
	ctrl.Tick(estimateAt(0.405, 0.302, 0.201, 0.201), true, ModeFace, 1000, 1000)

	after, ok := ctrl.Display()
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestLargeMoveStepsBySmoothingFraction(t *testing.T) {
	cfg := testConfig(t)
	cfg.TwoStage = false
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	ctrl.Tick(estimateAt(0.4, 0.3, 0.2, 0.2), true, ModeFace, 1000, 1000)
	// Jump the face 300px right: the crop moves 8% of the gap, not all of it.
	ctrl.Tick(estimateAt(0.7, 0.3, 0.2, 0.2), true, ModeFace, 1000, 1000)

	r, ok := ctrl.Display()
	require.True(t, ok)
	assert.Equal(t, 400+24, r.X) // 400 + 300*0.08
	assert.Equal(t, 100, r.Y)
	assert.Equal(t, 200, r.Size)
}

func TestAbsentEstimateHoldsCrop(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	ctrl.Tick(estimateAt(0.4, 0.3, 0.2, 0.2), true, ModeFace, 1000, 1000)
	before, ok := ctrl.Display()
	require.True(t, ok)

	for i := 0; i < 10; i++ {
		ctrl.Tick(tracker.Estimate{}, false, ModeFace, 1000, 1000)
		r, ok := ctrl.Display()
		require.True(t, ok)
		assert.Equal(t, before, r, "tick %d moved a held crop", i)
	}
}

func TestNoCropBeforeFirstEstimate(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	ctrl.Tick(tracker.Estimate{}, false, ModeFace, 1000, 1000)

	_, ok := ctrl.Display()
	assert.False(t, ok)
	_, ok = ctrl.Sensor()
	assert.False(t, ok)
	_, ok = ctrl.Relative()
	assert.False(t, ok)
}

func TestZoomModeSwitchRetargetsNextTick(t *testing.T) {
	cfg := testConfig(t)
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	est := estimateAt(0.4, 0.3, 0.2, 0.2)
	ctrl.Tick(est, true, ModeEyes, 1000, 1000)
	eyes, ok := ctrl.Display()
	require.True(t, ok)
	assert.Equal(t, 80, eyes.Size) // pw 200 * 0.4

	// Same estimate, new mode: target size becomes 200*1.6=320 on the very
	// next tick and the crop moves toward it at the smoothing rate.
	ctrl.Tick(est, true, ModeWide, 1000, 1000)
	wide, ok := ctrl.Display()
	require.True(t, ok)

	expected := 80 + int(float64(320-80)*cfg.Smoothing+0.5)
	assert.Equal(t, expected, wide.Size)
	assert.NotEqual(t, 320, wide.Size, "zoom change must not snap instantly")
}

func TestEyesModeCentersOnEyeMidpoint(t *testing.T) {
	cfg := testConfig(t)
	cfg.TwoStage = false
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	est := estimateAt(0.4, 0.3, 0.2, 0.2)
	ctrl.Tick(est, true, ModeEyes, 1000, 1000)

	r, ok := ctrl.Display()
	require.True(t, ok)
	// Eye midpoint: x = 0.4+0.5*0.2 = 0.5 → 500px; y = 0.3+0.35*0.2 = 0.37 → 370px.
	// Size 80 → corner (460, 330).
	assert.Equal(t, Rect{X: 460, Y: 330, Size: 80}, r)
}

func TestLipsModeCentersOnMouthLandmark(t *testing.T) {
	cfg := testConfig(t)
	cfg.TwoStage = false
	ctrl, err := NewController(cfg)
	require.NoError(t, err)

	est := estimateAt(0.4, 0.3, 0.2, 0.2)
	ctrl.Tick(est, true, ModeLips, 1000, 1000)

	r, ok := ctrl.Display()
	require.True(t, ok)
	// Landmark 3: x = 0.4+0.35*0.2 = 0.47 → 470px; y = 0.3+0.8*0.2 = 0.46 → 460px.
	// Size 200*0.6=120 → corner (410, 400).
	assert.Equal(t, Rect{X: 410, Y: 400, Size: 120}, r)
}

func TestCropStaysInsideFrameUnderRandomInput(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	modes := []ZoomMode{ModeEyes, ModeLips, ModeFace, ModeWide}
	const frameW, frameH = 1280, 720

	for i := 0; i < 500; i++ {
		w := 0.05 + rng.Float64()*0.9
		h := 0.05 + rng.Float64()*0.9
		x := rng.Float64() * (1 - w)
		y := rng.Float64() * (1 - h)
		mode := modes[rng.Intn(len(modes))]

		ctrl.Tick(estimateAt(x, y, w, h), true, mode, frameW, frameH)

		for name, get := range map[string]func() (Rect, bool){
			"display":  ctrl.Display,
			"sensor":   ctrl.Sensor,
			"relative": ctrl.Relative,
		} {
			r, ok := get()
			if !ok {
				continue
			}
			assert.GreaterOrEqual(t, r.X, 0, "%s x at iteration %d", name, i)
			assert.GreaterOrEqual(t, r.Y, 0, "%s y at iteration %d", name, i)
			assert.Greater(t, r.Size, 0, "%s size at iteration %d", name, i)
			if name != "relative" {
				assert.LessOrEqual(t, r.X+r.Size, frameW, "%s right edge at iteration %d", name, i)
				assert.LessOrEqual(t, r.Y+r.Size, frameH, "%s bottom edge at iteration %d", name, i)
			}
		}
	}
}

func TestRelativeStaysInsideSensorCrop(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		w := 0.05 + rng.Float64()*0.5
		x := rng.Float64() * (1 - w)
		y := rng.Float64() * (1 - w)
		ctrl.Tick(estimateAt(x, y, w, w), true, ModeWide, 1920, 1080)

		rel, ok := ctrl.Relative()
		if !ok {
			continue
		}
		sensor, ok := ctrl.Sensor()
		require.True(t, ok)

		assert.GreaterOrEqual(t, rel.X, 0)
		assert.GreaterOrEqual(t, rel.Y, 0)
		assert.LessOrEqual(t, rel.X, sensor.Size-rel.Size)
		assert.LessOrEqual(t, rel.Y, sensor.Size-rel.Size)
		assert.LessOrEqual(t, rel.Size, sensor.Size)
	}
}

func TestRelativeMatchesDisplayMinusSensorOrigin(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	// A mid-frame face where neither crop clamps: the relative corner is the
	// plain difference of origins.
	for i := 0; i < 30; i++ {
		ctrl.Tick(estimateAt(0.4, 0.4, 0.2, 0.2), true, ModeEyes, 1920, 1080)
	}

	d, ok := ctrl.Display()
	require.True(t, ok)
	s, ok := ctrl.Sensor()
	require.True(t, ok)
	rel, ok := ctrl.Relative()
	require.True(t, ok)

	assert.Equal(t, d.X-s.X, rel.X)
	assert.Equal(t, d.Y-s.Y, rel.Y)
	assert.Equal(t, d.Size, rel.Size)
}

func TestSensorCropWiderThanDisplay(t *testing.T) {
	ctrl, err := NewController(testConfig(t))
	require.NoError(t, err)

	for i := 0; i < 30; i++ {
		ctrl.Tick(estimateAt(0.4, 0.4, 0.2, 0.2), true, ModeFace, 1920, 1080)
	}

	d, ok := ctrl.Display()
	require.True(t, ok)
	s, ok := ctrl.Sensor()
	require.True(t, ok)
	assert.Greater(t, s.Size, d.Size, "sensor crop must keep detection context")
}

func TestControllerConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "missing ratios", mutate: func(c *Config) { c.Ratios = nil }},
		{name: "zero smoothing", mutate: func(c *Config) { c.Smoothing = 0 }},
		{name: "smoothing above one", mutate: func(c *Config) { c.Smoothing = 1.5 }},
		{name: "negative deadzone", mutate: func(c *Config) { c.DeadzonePos = -0.1 }},
		{name: "sensor margin too small", mutate: func(c *Config) { c.SensorMargin = 1.0 }},
		{name: "sensor smoothing zero", mutate: func(c *Config) { c.SensorSmoothing = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(&cfg)
			_, err := NewController(cfg)
			assert.Error(t, err)
		})
	}
}

func TestRatioTableValidation(t *testing.T) {
	_, err := NewRatioTable(0.4, 0.6, 0, 1.6)
	assert.Error(t, err)
	_, err = NewRatioTable(0.4, -0.6, 1.0, 1.6)
	assert.Error(t, err)
}
