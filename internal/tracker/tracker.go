// Package tracker runs the slow face detection loop and maintains the
// temporally smoothed face estimate consumed by the crop controller.
package tracker

import (
	"context"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/buffer"
	"github.com/dudu/mirrorcam/internal/detector"
)

// State is the tracking state machine.
type State int

const (
	StateNoFace State = iota
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "no_face"
}

// Detector consumes a frame and returns zero or more face detections.
type Detector interface {
	Detect(img gocv.Mat) ([]detector.Face, error)
}

// Config holds tracker tuning parameters.
type Config struct {
	// Alpha is the exponential smoothing factor in (0,1]. Lower is smoother
	// but lags more.
	Alpha float64

	// Period is the detection cadence (200ms for the 5 Hz target).
	Period time.Duration

	// MissLimit is the number of consecutive cycles without a detection
	// before the state falls back to NoFace. The estimate is retained either
	// way so the crop holds instead of jumping.
	MissLimit int
}

// Tracker samples the frame buffer on a fixed period, runs detection and
// folds results into the shared estimate. All mutable tracking state is
// confined to the Run goroutine; the EstimateStore is the only output.
type Tracker struct {
	cfg   Config
	buf   *buffer.FrameBuffer
	det   Detector
	store *EstimateStore
	log   *slog.Logger

	state      State
	misses     int
	current    Estimate
	hasCurrent bool
}

// New creates a tracker publishing into store.
func New(cfg Config, buf *buffer.FrameBuffer, det Detector, store *EstimateStore, log *slog.Logger) *Tracker {
	return &Tracker{
		cfg:   cfg,
		buf:   buf,
		det:   det,
		store: store,
		log:   log,
	}
}

// Run drives Step on the configured period until ctx is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Step()
		}
	}
}

// Step executes one detection cycle. A missing frame is a no-op; a detector
// error or an empty result counts as a miss and leaves the estimate
// untouched. Nothing in here may terminate the loop.
func (t *Tracker) Step() {
	frame, ok := t.buf.Latest()
	if !ok {
		return
	}
	defer frame.Close()

	faces, err := t.det.Detect(frame.Mat)
	if err != nil {
		t.log.Debug("detection failed", "error", err)
		t.miss()
		return
	}

	face, ok := detector.Best(faces)
	if !ok {
		t.miss()
		return
	}

	t.absorb(observationFrom(face, frame.Width, frame.Height))
}

// State reports the current tracking state. Only meaningful from the Run
// goroutine or in single-threaded tests.
func (t *Tracker) State() State {
	return t.state
}

func (t *Tracker) miss() {
	t.misses++
	if t.state == StateTracking && t.misses >= t.cfg.MissLimit {
		t.state = StateNoFace
		t.log.Info("face lost", "misses", t.misses)
	}
}

// absorb folds a new observation into the smoothed estimate and publishes it.
func (t *Tracker) absorb(obs Estimate) {
	if t.state == StateNoFace {
		t.log.Info("face acquired", "confidence", obs.Confidence)
	}
	t.misses = 0
	t.state = StateTracking

	if !t.hasCurrent || len(obs.Landmarks) != len(t.current.Landmarks) {
		// First observation, or the landmark layout changed: no history to
		// blend with.
		t.current = obs.clone()
		t.hasCurrent = true
		t.store.Set(t.current)
		return
	}

	a := t.cfg.Alpha
	t.current.Box.X = a*obs.Box.X + (1-a)*t.current.Box.X
	t.current.Box.Y = a*obs.Box.Y + (1-a)*t.current.Box.Y
	t.current.Box.W = a*obs.Box.W + (1-a)*t.current.Box.W
	t.current.Box.H = a*obs.Box.H + (1-a)*t.current.Box.H

	for i := range obs.Landmarks {
		t.current.Landmarks[i].X = a*obs.Landmarks[i].X + (1-a)*t.current.Landmarks[i].X
		t.current.Landmarks[i].Y = a*obs.Landmarks[i].Y + (1-a)*t.current.Landmarks[i].Y
	}

	// Confidence reflects the latest accepted detection, not a running blend.
	t.current.Confidence = obs.Confidence

	t.store.Set(t.current)
}
