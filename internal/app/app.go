// Package app wires the capture, tracking, cropping and focus components
// into the running mirror.
package app

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/buffer"
	"github.com/dudu/mirrorcam/internal/camera"
	"github.com/dudu/mirrorcam/internal/config"
	"github.com/dudu/mirrorcam/internal/crop"
	"github.com/dudu/mirrorcam/internal/detector"
	"github.com/dudu/mirrorcam/internal/focus"
	"github.com/dudu/mirrorcam/internal/inference"
	"github.com/dudu/mirrorcam/internal/tracker"
	"github.com/dudu/mirrorcam/internal/ui"
	"github.com/dudu/mirrorcam/internal/voice"
)

// DistanceSensor reports the subject distance in centimeters.
type DistanceSensor interface {
	Measure(ctx context.Context) (float64, error)
}

// KeyPoller is implemented by sinks that own a window and must pump its
// event loop. The render loop polls it every tick.
type KeyPoller interface {
	WaitKey(delayMs int) int
}

// Options carries the optional peripherals. Nil fields disable the
// corresponding feature.
type Options struct {
	// Source overrides the default camera capture, mainly for tests.
	Source camera.Source

	// Recognizer feeds voice commands. Nil disables voice control.
	Recognizer voice.Recognizer

	// Distance drives continuous lens focus from subject distance.
	Distance DistanceSensor

	// Sink receives the final cropped frames. Nil disables output.
	Sink ui.Sink
}

// App owns the full mirror pipeline.
type App struct {
	cfg *config.Config
	log *slog.Logger

	cam      camera.Source
	buf      *buffer.FrameBuffer
	det      *detector.SCRFD
	store    *tracker.EstimateStore
	trk      *tracker.Tracker
	zoom     *crop.ZoomState
	ctrl     *crop.Controller
	mapper   *focus.Mapper
	searcher *focus.Searcher
	trigger  *focus.Trigger
	listener *voice.Listener
	distance DistanceSensor
	sink     ui.Sink
}

// New builds the pipeline. On partial failure it releases everything
// constructed so far.
func New(cfg *config.Config, log *slog.Logger, opts Options) (*App, error) {
	if err := inference.Initialize(cfg.OnnxLibraryPath); err != nil {
		return nil, fmt.Errorf("initialize inference: %w", err)
	}

	cam := opts.Source
	if cam == nil {
		capture, err := camera.NewCaptureWithResolution(
			cfg.CameraIndex, cfg.FrameRate, cfg.FrameWidth, cfg.FrameHeight)
		if err != nil {
			inference.Shutdown()
			return nil, fmt.Errorf("open camera: %w", err)
		}
		capture.SetFocusRange(cfg.FocusMin, cfg.FocusMax)
		cam = capture
	}

	det, err := detector.NewSCRFD(cfg.ModelPath, cfg.DetectionSize, cfg.ConfThreshold, cfg.NMSThreshold)
	if err != nil {
		cam.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("create detector: %w", err)
	}

	ratios, err := crop.NewRatioTable(cfg.RatioEyes, cfg.RatioLips, cfg.RatioFace, cfg.RatioWide)
	if err != nil {
		det.Close()
		cam.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("zoom ratios: %w", err)
	}

	ctrl, err := crop.NewController(crop.Config{
		Ratios:          ratios,
		DeadzonePos:     cfg.DeadzonePos,
		DeadzoneSize:    cfg.DeadzoneSize,
		Smoothing:       cfg.Smoothing,
		TwoStage:        cfg.TwoStage,
		SensorMargin:    cfg.SensorMargin,
		SensorSmoothing: cfg.SensorSmoothing,
	})
	if err != nil {
		det.Close()
		cam.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("crop controller: %w", err)
	}

	mapper, err := focus.NewMapper([]focus.CalibrationPoint{
		{Distance: cfg.CalibNearDistance, Focus: cfg.CalibNearFocus},
		{Distance: cfg.CalibFarDistance, Focus: cfg.CalibFarFocus},
	}, cfg.DistanceMin, cfg.DistanceMax)
	if err != nil {
		det.Close()
		cam.Close()
		inference.Shutdown()
		return nil, fmt.Errorf("focus calibration: %w", err)
	}

	buf := buffer.New(cfg.BufferCapacity)
	store := tracker.NewEstimateStore()
	trk := tracker.New(tracker.Config{
		Alpha:     cfg.TrackerAlpha,
		Period:    cfg.TrackerPeriod,
		MissLimit: cfg.MissLimit,
	}, buf, det, store, log)

	searcher := focus.NewSearcher(focus.SearchConfig{
		MinPosition:  cfg.FocusMin,
		MaxPosition:  cfg.FocusMax,
		CoarseStep:   cfg.FocusCoarseStep,
		CoarseSettle: cfg.FocusCoarseSettle,
		FineStep:     cfg.FocusFineStep,
		FineSettle:   cfg.FocusFineSettle,
		FineRange:    cfg.FocusFineRange,
		MaxDrops:     cfg.FocusMaxDrops,
	}, buf, cam, log)

	a := &App{
		cfg:      cfg,
		log:      log,
		cam:      cam,
		buf:      buf,
		det:      det,
		store:    store,
		trk:      trk,
		zoom:     crop.NewZoomState(crop.ModeFace),
		ctrl:     ctrl,
		mapper:   mapper,
		searcher: searcher,
		distance: opts.Distance,
		sink:     opts.Sink,
	}

	a.trigger = focus.NewTrigger(cfg.FocusMinInterval, cfg.FocusSizeThreshold, func(ctx context.Context) {
		if _, err := a.searcher.Search(ctx); err != nil {
			log.Warn("focus search aborted", "error", err)
		}
	}, log)

	if opts.Recognizer != nil {
		a.listener = voice.NewListener(opts.Recognizer, log)
	}

	return a, nil
}

// Run starts the background loops and executes the render loop on the
// calling goroutine until ctx is cancelled or the user quits. The render
// loop stays on the caller's thread because the preview window is bound
// to the thread that created it.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.captureLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.trk.Run(ctx)
	}()

	if a.listener != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.listener.Run(ctx)
		}()
	}

	if a.distance != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.distanceLoop(ctx)
		}()
	}

	err := a.renderLoop(ctx)

	cancel()
	wg.Wait()
	return err
}

// captureLoop reads frames from the camera into the buffer as fast as the
// device delivers them.
func (a *App) captureLoop(ctx context.Context) {
	mat := gocv.NewMat()
	defer mat.Close()

	for ctx.Err() == nil {
		if !a.cam.Read(&mat) || mat.Empty() {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		a.buf.Push(buffer.NewFrame(mat.Clone()))
	}
}

// distanceLoop samples the distance sensor and steers the lens through the
// calibration mapping.
func (a *App) distanceLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.DistancePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Skip while a sweep owns the lens.
		if a.trigger.Searching() {
			continue
		}

		d, err := a.distance.Measure(ctx)
		if err != nil {
			a.log.Warn("distance measurement failed", "error", err)
			continue
		}

		position := a.mapper.Focus(d)
		if err := a.cam.SetFocus(position); err != nil {
			a.log.Warn("set focus failed", "position", position, "error", err)
		}
	}
}

// renderLoop drives the crop controller and publishes output frames.
func (a *App) renderLoop(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.RenderPeriod)
	defer ticker.Stop()

	var (
		lastSensorPush time.Time
		lastFocusSize  float64
		haveFocusSize  bool
	)

	out := gocv.NewMat()
	defer out.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		a.drainCommands(ctx)

		est, ok := a.store.Snapshot()
		a.ctrl.Tick(est, ok, a.zoom.Mode(), a.cam.Width(), a.cam.Height())

		if ok {
			if !haveFocusSize {
				if a.trigger.Request(ctx) {
					lastFocusSize = est.Box.W
					haveFocusSize = true
				}
			} else if lastFocusSize > 0 {
				change := (est.Box.W - lastFocusSize) / lastFocusSize
				if change < 0 {
					change = -change
				}
				if a.trigger.OnSizeChange(ctx, change) {
					lastFocusSize = est.Box.W
				}
			}
		}

		if a.cfg.TwoStage && time.Since(lastSensorPush) >= a.cfg.SensorCropPeriod {
			if r, valid := a.ctrl.Sensor(); valid {
				if err := a.cam.SetCrop(r); err != nil {
					a.log.Warn("sensor crop failed", "error", err)
				}
				lastSensorPush = time.Now()
			}
		}

		frame, have := a.buf.Latest()
		if !have {
			if a.pollQuit() {
				return nil
			}
			continue
		}

		rect, valid := a.cropRect()
		a.publish(frame, rect, valid, &out)
		frame.Close()

		if a.pollQuit() {
			return nil
		}
	}
}

// cropRect picks the rectangle to cut from the incoming frame. In two-stage
// mode the camera already applied the sensor crop, so the display rectangle
// is expressed relative to it.
func (a *App) cropRect() (crop.Rect, bool) {
	if a.cfg.TwoStage {
		return a.ctrl.Relative()
	}
	return a.ctrl.Display()
}

// publish crops, resizes and hands the frame to the sink. Before the first
// face estimate the full frame is shown.
func (a *App) publish(frame *buffer.Frame, rect crop.Rect, valid bool, out *gocv.Mat) {
	if a.sink == nil {
		return
	}

	src := frame.Mat
	if valid {
		roi := image.Rect(rect.X, rect.Y, rect.X+rect.Size, rect.Y+rect.Size)
		bounds := image.Rect(0, 0, frame.Width, frame.Height)
		roi = roi.Intersect(bounds)
		if roi.Empty() {
			return
		}
		region := src.Region(roi)
		defer region.Close()
		gocv.Resize(region, out, image.Pt(a.cfg.DisplaySize, a.cfg.DisplaySize), 0, 0, gocv.InterpolationLinear)
	} else {
		gocv.Resize(src, out, image.Pt(a.cfg.DisplaySize, a.cfg.DisplaySize), 0, 0, gocv.InterpolationLinear)
	}

	a.sink.Publish(out)
}

// pollQuit pumps window events when the sink owns a window and reports
// whether the user asked to quit.
func (a *App) pollQuit() bool {
	kp, ok := a.sink.(KeyPoller)
	if !ok {
		return false
	}
	key := kp.WaitKey(1)
	return key == 'q' || key == 27
}

// drainCommands applies every pending voice command without blocking.
func (a *App) drainCommands(ctx context.Context) {
	if a.listener == nil {
		return
	}
	for {
		select {
		case cmd := <-a.listener.Commands():
			a.apply(ctx, cmd)
		default:
			return
		}
	}
}

func (a *App) apply(ctx context.Context, cmd voice.Command) {
	switch cmd.Kind {
	case voice.KindZoom:
		if err := a.zoom.Set(cmd.Mode); err != nil {
			a.log.Warn("zoom command rejected", "mode", cmd.Mode, "error", err)
			return
		}
		a.log.Info("zoom mode changed", "mode", cmd.Mode.String())
	case voice.KindFocus:
		if a.trigger.Request(ctx) {
			a.log.Info("focus sweep requested")
		} else {
			a.log.Debug("focus request suppressed")
		}
	}
}

// Close releases all pipeline resources.
func (a *App) Close() error {
	var errs []error

	if a.sink != nil {
		if err := a.sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.buf.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.det.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.cam.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := inference.Shutdown(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
