// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENV" default:"development"`

	// Camera
	CameraIndex int `envconfig:"CAMERA_INDEX" default:"0"`
	FrameWidth  int `envconfig:"FRAME_WIDTH" default:"1920"`
	FrameHeight int `envconfig:"FRAME_HEIGHT" default:"1080"`
	FrameRate   int `envconfig:"FRAME_RATE" default:"30"`

	// Frame buffer
	BufferCapacity int `envconfig:"BUFFER_CAPACITY" default:"3"`

	// Detector
	ModelPath       string  `envconfig:"MODEL_PATH" default:"models/scrfd_500m_kps.onnx"`
	OnnxLibraryPath string  `envconfig:"ONNX_LIBRARY_PATH" default:""`
	DetectionSize   int     `envconfig:"DETECTION_SIZE" default:"640"`
	ConfThreshold   float32 `envconfig:"CONF_THRESHOLD" default:"0.3"`
	NMSThreshold    float32 `envconfig:"NMS_THRESHOLD" default:"0.4"`

	// Tracker
	TrackerPeriod time.Duration `envconfig:"TRACKER_PERIOD" default:"200ms"`
	TrackerAlpha  float64       `envconfig:"TRACKER_ALPHA" default:"0.4"`
	MissLimit     int           `envconfig:"MISS_LIMIT" default:"10"`

	// Render
	RenderPeriod time.Duration `envconfig:"RENDER_PERIOD" default:"33ms"`
	DisplaySize  int           `envconfig:"DISPLAY_SIZE" default:"1500"`

	// Zoom ratios relative to the detected face width
	RatioEyes float64 `envconfig:"RATIO_EYES" default:"0.4"`
	RatioLips float64 `envconfig:"RATIO_LIPS" default:"0.6"`
	RatioFace float64 `envconfig:"RATIO_FACE" default:"1.0"`
	RatioWide float64 `envconfig:"RATIO_WIDE" default:"1.6"`

	// Crop controller
	DeadzonePos  float64 `envconfig:"DEADZONE_POS" default:"0.10"`
	DeadzoneSize float64 `envconfig:"DEADZONE_SIZE" default:"0.10"`
	Smoothing    float64 `envconfig:"SMOOTHING" default:"0.08"`

	// Two-stage sensor crop
	TwoStage         bool          `envconfig:"TWO_STAGE" default:"false"`
	SensorMargin     float64       `envconfig:"SENSOR_MARGIN" default:"1.5"`
	SensorSmoothing  float64       `envconfig:"SENSOR_SMOOTHING" default:"0.15"`
	SensorCropPeriod time.Duration `envconfig:"SENSOR_CROP_PERIOD" default:"200ms"`

	// Lens
	FocusMin float64 `envconfig:"FOCUS_MIN" default:"8.0"`
	FocusMax float64 `envconfig:"FOCUS_MAX" default:"12.5"`

	// Autofocus sweep
	FocusCoarseStep   float64       `envconfig:"FOCUS_COARSE_STEP" default:"0.1"`
	FocusCoarseSettle time.Duration `envconfig:"FOCUS_COARSE_SETTLE" default:"200ms"`
	FocusFineStep     float64       `envconfig:"FOCUS_FINE_STEP" default:"0.05"`
	FocusFineSettle   time.Duration `envconfig:"FOCUS_FINE_SETTLE" default:"300ms"`
	FocusFineRange    float64       `envconfig:"FOCUS_FINE_RANGE" default:"0.3"`
	FocusMaxDrops     int           `envconfig:"FOCUS_MAX_DROPS" default:"2"`

	// Refocus trigger
	FocusMinInterval   time.Duration `envconfig:"FOCUS_MIN_INTERVAL" default:"2s"`
	FocusSizeThreshold float64       `envconfig:"FOCUS_SIZE_THRESHOLD" default:"0.20"`

	// Distance sensor
	DistancePeriod time.Duration `envconfig:"DISTANCE_PERIOD" default:"200ms"`
	DistanceMin    float64       `envconfig:"DISTANCE_MIN" default:"20"`
	DistanceMax    float64       `envconfig:"DISTANCE_MAX" default:"150"`

	// Focus calibration, distance in cm -> lens position
	CalibNearDistance float64 `envconfig:"CALIB_NEAR_DISTANCE" default:"50"`
	CalibNearFocus    float64 `envconfig:"CALIB_NEAR_FOCUS" default:"12.0"`
	CalibFarDistance  float64 `envconfig:"CALIB_FAR_DISTANCE" default:"100"`
	CalibFarFocus     float64 `envconfig:"CALIB_FAR_FOCUS" default:"9.0"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("MIRRORCAM", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
