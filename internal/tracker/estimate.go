package tracker

import (
	"sync"

	"github.com/dudu/mirrorcam/internal/detector"
)

// Point is a 2D coordinate as fractions of the frame size, in [0,1].
type Point struct {
	X, Y float64
}

// Box is a bounding box as fractions of the frame size.
type Box struct {
	X, Y, W, H float64
}

// Estimate is the exponentially smoothed face state: fractional bounding box,
// fractional landmarks in detector index order (0/1 eyes, 2 nose, 3/4 mouth
// corners) and the confidence of the last accepted observation.
type Estimate struct {
	Box        Box
	Landmarks  []Point
	Confidence float64
}

// clone returns a deep copy so readers never share the landmark slice.
func (e Estimate) clone() Estimate {
	out := e
	out.Landmarks = make([]Point, len(e.Landmarks))
	copy(out.Landmarks, e.Landmarks)
	return out
}

// observationFrom converts a pixel-space detection into a fractional
// observation for the given frame dimensions.
func observationFrom(f detector.Face, frameWidth, frameHeight int) Estimate {
	fw := float64(frameWidth)
	fh := float64(frameHeight)

	pts := f.Landmarks.Points()
	landmarks := make([]Point, len(pts))
	for i, p := range pts {
		landmarks[i] = Point{X: float64(p.X) / fw, Y: float64(p.Y) / fh}
	}

	return Estimate{
		Box: Box{
			X: float64(f.BoundingBox.X1) / fw,
			Y: float64(f.BoundingBox.Y1) / fh,
			W: float64(f.BoundingBox.Width()) / fw,
			H: float64(f.BoundingBox.Height()) / fh,
		},
		Landmarks:  landmarks,
		Confidence: float64(f.Score),
	}
}

// EstimateStore is the synchronized handoff between the tracker (sole writer)
// and the crop controller (reader). Reads return a snapshot copy; writes
// replace the value atomically. The smoothing math itself runs outside the
// lock, on the tracker's private state.
type EstimateStore struct {
	mu    sync.RWMutex
	est   Estimate
	valid bool
}

// NewEstimateStore returns an empty store.
func NewEstimateStore() *EstimateStore {
	return &EstimateStore{}
}

// Snapshot returns a copy of the current estimate. ok is false until the
// first observation has ever been published.
func (s *EstimateStore) Snapshot() (Estimate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.valid {
		return Estimate{}, false
	}
	return s.est.clone(), true
}

// Set replaces the stored estimate.
func (s *EstimateStore) Set(e Estimate) {
	c := e.clone()
	s.mu.Lock()
	s.est = c
	s.valid = true
	s.mu.Unlock()
}
