// Package focus holds the lens focus logic: mapping distance-sensor readings
// to lens positions, the contrast-based autofocus sweep, and the policy for
// when a refocus is worth running.
package focus

import (
	"fmt"
	"sort"
)

// CalibrationPoint pairs a subject distance (cm) with the lens position that
// was measured sharp at that distance.
type CalibrationPoint struct {
	Distance float64
	Focus    float64
}

// Mapper converts a distance reading into a lens position by piecewise-linear
// interpolation over calibration points. Outside the calibrated range the
// nearest endpoint value is used.
type Mapper struct {
	points      []CalibrationPoint
	minDistance float64
	maxDistance float64
}

// NewMapper builds a mapper. points are sorted by distance; at least one is
// required. minDistance/maxDistance clamp raw sensor readings before lookup.
func NewMapper(points []CalibrationPoint, minDistance, maxDistance float64) (*Mapper, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("focus: at least one calibration point required")
	}
	if minDistance >= maxDistance {
		return nil, fmt.Errorf("focus: invalid distance range [%v, %v]", minDistance, maxDistance)
	}
	sorted := make([]CalibrationPoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Distance == sorted[i-1].Distance {
			return nil, fmt.Errorf("focus: duplicate calibration distance %v", sorted[i].Distance)
		}
	}

	return &Mapper{
		points:      sorted,
		minDistance: minDistance,
		maxDistance: maxDistance,
	}, nil
}

// Focus returns the lens position for a distance reading.
func (m *Mapper) Focus(distance float64) float64 {
	if distance < m.minDistance {
		distance = m.minDistance
	}
	if distance > m.maxDistance {
		distance = m.maxDistance
	}

	pts := m.points
	if distance <= pts[0].Distance {
		return pts[0].Focus
	}
	last := pts[len(pts)-1]
	if distance >= last.Distance {
		return last.Focus
	}

	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		if distance >= a.Distance && distance <= b.Distance {
			t := (distance - a.Distance) / (b.Distance - a.Distance)
			return a.Focus + (b.Focus-a.Focus)*t
		}
	}
	return pts[0].Focus
}
