// camtest opens a camera and reports the negotiated capture parameters.
// Useful for checking device indices and focus control before running the
// full pipeline.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/camera"
	"github.com/dudu/mirrorcam/internal/ui"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	cameraIndex := flag.Int("camera", 0, "Camera device index")
	fps := flag.Int("fps", 30, "Target frames per second")
	frames := flag.Int("frames", 100, "Number of frames to capture")
	preview := flag.Bool("preview", false, "Show preview window")
	focusPos := flag.Float64("focus", -1, "Manual focus position to apply (-1 to skip)")
	flag.Parse()

	if err := run(*cameraIndex, *fps, *frames, *preview, *focusPos); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cameraIndex, fps, frames int, preview bool, focusPos float64) error {
	fmt.Printf("Opening camera %d...\n", cameraIndex)
	cam, err := camera.NewCapture(cameraIndex, fps)
	if err != nil {
		return err
	}
	defer cam.Close()

	fmt.Printf("Camera opened: %dx%d\n", cam.Width(), cam.Height())

	if focusPos >= 0 {
		if err := cam.SetFocus(focusPos); err != nil {
			fmt.Printf("Focus control unavailable: %v\n", err)
		} else {
			fmt.Printf("Focus set to %.2f\n", focusPos)
		}
	}

	var window *ui.Window
	if preview {
		window = ui.NewWindow("camtest", cam.Width(), cam.Height())
		defer window.Close()
	}

	mat := gocv.NewMat()
	defer mat.Close()

	captured := 0
	dropped := 0
	start := time.Now()

	for captured < frames {
		if !cam.Read(&mat) || mat.Empty() {
			dropped++
			if dropped > frames {
				return fmt.Errorf("camera stopped delivering frames after %d reads", captured)
			}
			continue
		}
		captured++

		if window != nil {
			window.Publish(&mat)
			if key := window.WaitKey(1); key == 'q' || key == 27 {
				break
			}
		}
	}

	elapsed := time.Since(start)
	fmt.Printf("Captured %d frames in %v (%.1f FPS, %d dropped reads)\n",
		captured, elapsed.Round(time.Millisecond),
		float64(captured)/elapsed.Seconds(), dropped)

	return nil
}
