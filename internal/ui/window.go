// Package ui implements the preview window output sink.
package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// Sink receives the final cropped frame each render tick. Publish is
// fire-and-forget; no acknowledgment flows back.
type Sink interface {
	Publish(frame *gocv.Mat)
	Close() error
}

// Window shows frames in a highgui window with an FPS overlay. Window calls
// must stay on the thread that created it (highgui constraint), which in
// practice is the render loop on the locked main thread.
type Window struct {
	window     *gocv.Window
	name       string
	lastFrame  time.Time
	frameCount int
	fps        float64
}

// NewWindow creates a preview window.
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		lastFrame: time.Now(),
	}
}

// Publish displays a frame and updates the FPS counter.
func (w *Window) Publish(frame *gocv.Mat) {
	w.frameCount++
	now := time.Now()

	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}

	fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
	gocv.PutText(frame, fpsText, image.Pt(10, 30),
		gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)

	w.window.IMShow(*frame)
}

// WaitKey pumps window events and returns the pressed key code, or -1.
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns the current display rate.
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window.
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
