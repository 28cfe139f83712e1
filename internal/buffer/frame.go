package buffer

import (
	"time"

	"gocv.io/x/gocv"
)

// Frame is a captured camera frame. Once pushed into a FrameBuffer the pixel
// data is read-only; consumers receive their own clone and must Close it.
type Frame struct {
	Mat       gocv.Mat
	Width     int
	Height    int
	Timestamp time.Time

	// Seq is assigned by the buffer on push, monotonically increasing.
	Seq uint64
}

// NewFrame wraps a Mat that the caller hands over. The frame takes ownership
// of the Mat; it is released when the frame is evicted or closed.
func NewFrame(mat gocv.Mat) *Frame {
	return &Frame{
		Mat:       mat,
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: time.Now(),
	}
}

// Clone returns an independent deep copy of the frame.
func (f *Frame) Clone() *Frame {
	return &Frame{
		Mat:       f.Mat.Clone(),
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
		Seq:       f.Seq,
	}
}

// Close releases the underlying pixel data.
func (f *Frame) Close() error {
	return f.Mat.Close()
}
