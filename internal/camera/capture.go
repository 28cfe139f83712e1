// Package camera provides the frame source and the fire-and-forget hardware
// controls (crop, focus) the crop controller drives.
package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/crop"
)

// Source is the camera contract the rest of the system depends on. SetCrop
// and SetFocus are fire-and-forget: callers log errors and carry on, they are
// never fatal to a loop.
type Source interface {
	// Read captures the next frame into mat, blocking until one is ready.
	Read(mat *gocv.Mat) bool
	Width() int
	Height() int
	SetCrop(r crop.Rect) error
	SetFocus(position float64) error
	Close() error
}

// Capture manages a local webcam through gocv.
type Capture struct {
	webcam    *gocv.VideoCapture
	deviceID  int
	targetFPS int
	width     int
	height    int

	focusMin float64
	focusMax float64

	mu sync.Mutex
}

// NewCapture opens a camera with default 720p resolution.
func NewCapture(deviceID int, targetFPS int) (*Capture, error) {
	return NewCaptureWithResolution(deviceID, targetFPS, 1280, 720)
}

// NewCaptureWithResolution opens a camera requesting a specific resolution.
// The camera may negotiate different dimensions; Width/Height report the
// actual ones.
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("open camera %d: %w", deviceID, err)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	return &Capture{
		webcam:    webcam,
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
		focusMax:  255, // UVC absolute focus range; tightened via SetFocusRange
	}, nil
}

// SetFocusRange restricts SetFocus to the usable lens positions for the
// installed optics.
func (c *Capture) SetFocusRange(min, max float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if min < max {
		c.focusMin = min
		c.focusMax = max
	}
}

// Read captures a frame into the provided Mat.
func (c *Capture) Read(mat *gocv.Mat) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return false
	}
	return c.webcam.Read(mat)
}

// Width returns the negotiated frame width.
func (c *Capture) Width() int {
	return c.width
}

// Height returns the negotiated frame height.
func (c *Capture) Height() int {
	return c.height
}

// SetCrop forwards the coarse crop to the camera. UVC exposes no crop
// rectangle, so the crop size is approximated through the zoom control;
// cameras without a zoom control ignore the value.
func (c *Capture) SetCrop(r crop.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return fmt.Errorf("camera %d closed", c.deviceID)
	}
	if r.Size <= 0 {
		return fmt.Errorf("invalid crop size %d", r.Size)
	}
	zoom := float64(c.width) / float64(r.Size) * 100
	c.webcam.Set(gocv.VideoCaptureZoom, zoom)
	return nil
}

// SetFocus disables autofocus and drives the lens to an absolute position,
// clamped to the configured range.
func (c *Capture) SetFocus(position float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return fmt.Errorf("camera %d closed", c.deviceID)
	}
	if position < c.focusMin {
		position = c.focusMin
	}
	if position > c.focusMax {
		position = c.focusMax
	}
	c.webcam.Set(gocv.VideoCaptureAutoFocus, 0)
	c.webcam.Set(gocv.VideoCaptureFocus, position)
	return nil
}

// Close releases the camera.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		return err
	}
	return nil
}
