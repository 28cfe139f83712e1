package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/dudu/mirrorcam/internal/app"
	"github.com/dudu/mirrorcam/internal/config"
	"github.com/dudu/mirrorcam/internal/ui"
)

func init() {
	// Lock the main goroutine to the main OS thread.
	// Required for OpenCV's highgui (window creation and event pumping).
	runtime.LockOSThread()
}

type flags struct {
	CameraIndex int
	ModelPath   string
	OnnxLibrary string
	Preview     bool
	TwoStage    bool
}

func main() {
	f := parseFlags()

	if err := run(f); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() flags {
	f := flags{CameraIndex: -1}

	flag.IntVar(&f.CameraIndex, "camera", -1, "Camera device index (overrides env)")
	flag.IntVar(&f.CameraIndex, "c", -1, "Camera device index (shorthand)")
	flag.StringVar(&f.ModelPath, "model", "", "SCRFD model path (overrides env)")
	flag.StringVar(&f.OnnxLibrary, "onnxlib", "", "ONNX Runtime shared library path")
	flag.BoolVar(&f.Preview, "preview", true, "Show preview window")
	flag.BoolVar(&f.Preview, "p", true, "Show preview window (shorthand)")
	flag.BoolVar(&f.TwoStage, "twostage", false, "Enable two-stage sensor crop")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "MirrorCam - Face-tracking camera crop controller\n\n")
		fmt.Fprintf(os.Stderr, "Usage: mirrorcam [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfiguration is read from MIRRORCAM_* environment variables;\n")
		fmt.Fprintf(os.Stderr, "flags override the corresponding settings.\n")
	}

	flag.Parse()
	return f
}

func run(f flags) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if f.CameraIndex >= 0 {
		cfg.CameraIndex = f.CameraIndex
	}
	if f.ModelPath != "" {
		cfg.ModelPath = f.ModelPath
	}
	if f.OnnxLibrary != "" {
		cfg.OnnxLibraryPath = f.OnnxLibrary
	}
	if f.TwoStage {
		cfg.TwoStage = true
	}

	log := config.NewLogger(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := app.Options{}
	if f.Preview {
		opts.Sink = ui.NewWindow("MirrorCam", cfg.DisplaySize, cfg.DisplaySize)
	}

	log.Info("starting",
		"camera", cfg.CameraIndex,
		"model", cfg.ModelPath,
		"two_stage", cfg.TwoStage)

	a, err := app.New(cfg, log, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	log.Info("running, press q to quit")
	return a.Run(ctx)
}
