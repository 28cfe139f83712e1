package crop

import (
	"fmt"
	"sync"
)

// ZoomMode selects the display framing target.
type ZoomMode int

const (
	ModeEyes ZoomMode = iota + 1
	ModeLips
	ModeFace
	ModeWide
)

func (m ZoomMode) String() string {
	switch m {
	case ModeEyes:
		return "eyes"
	case ModeLips:
		return "lips"
	case ModeFace:
		return "face"
	case ModeWide:
		return "wide"
	default:
		return fmt.Sprintf("zoom(%d)", int(m))
	}
}

// Valid reports whether m is one of the defined modes.
func (m ZoomMode) Valid() bool {
	return m >= ModeEyes && m <= ModeWide
}

// RatioTable maps each zoom mode to the crop-size multiplier applied to the
// face bounding-box width. Built once at startup, read-only afterwards.
type RatioTable map[ZoomMode]float64

// NewRatioTable builds the ratio mapping, validating the entries.
func NewRatioTable(eyes, lips, face, wide float64) (RatioTable, error) {
	t := RatioTable{
		ModeEyes: eyes,
		ModeLips: lips,
		ModeFace: face,
		ModeWide: wide,
	}
	for mode, r := range t {
		if r <= 0 {
			return nil, fmt.Errorf("zoom ratio for %s must be positive, got %v", mode, r)
		}
	}
	return t, nil
}

// ZoomState is the synchronized zoom-mode holder. It is written by command
// ingestion and read by the render loop; the latest accepted value is
// authoritative.
type ZoomState struct {
	mu   sync.Mutex
	mode ZoomMode
}

// NewZoomState returns a holder starting in the given mode. An invalid
// initial mode falls back to ModeFace.
func NewZoomState(initial ZoomMode) *ZoomState {
	if !initial.Valid() {
		initial = ModeFace
	}
	return &ZoomState{mode: initial}
}

// Set replaces the mode. Invalid values are rejected so they never reach the
// geometry path.
func (s *ZoomState) Set(m ZoomMode) error {
	if !m.Valid() {
		return fmt.Errorf("invalid zoom mode %d", int(m))
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

// Mode returns the current mode.
func (s *ZoomState) Mode() ZoomMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}
