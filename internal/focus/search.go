package focus

import (
	"context"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/buffer"
)

// Lens is the camera focus control the searcher drives. Command errors are
// logged and the sweep continues.
type Lens interface {
	SetFocus(position float64) error
}

// SearchConfig tunes the contrast autofocus sweep.
type SearchConfig struct {
	// MinPosition and MaxPosition bound the usable lens range.
	MinPosition float64
	MaxPosition float64

	// CoarseStep/CoarseSettle drive the forward pass; FineStep/FineSettle the
	// backward refinement around the coarse optimum.
	CoarseStep   float64
	CoarseSettle time.Duration
	FineStep     float64
	FineSettle   time.Duration

	// FineRange is how far behind the coarse optimum the fine pass searches.
	FineRange float64

	// MaxDrops is the number of consecutive score decreases before the
	// coarse pass stops advancing.
	MaxDrops int
}

// Searcher sweeps the lens and scores sharpness by Laplacian variance on the
// newest buffered frame.
type Searcher struct {
	cfg  SearchConfig
	buf  *buffer.FrameBuffer
	lens Lens
	log  *slog.Logger

	position float64
}

// NewSearcher starts positioned at the middle of the lens range.
func NewSearcher(cfg SearchConfig, buf *buffer.FrameBuffer, lens Lens, log *slog.Logger) *Searcher {
	return &Searcher{
		cfg:      cfg,
		buf:      buf,
		lens:     lens,
		log:      log,
		position: (cfg.MinPosition + cfg.MaxPosition) / 2,
	}
}

// Search runs one full sweep: a coarse forward pass that stops after
// MaxDrops consecutive score decreases, then a fine backward pass around the
// best position. Returns the position left on the lens, or ctx.Err() when
// cancelled mid-sweep.
func (s *Searcher) Search(ctx context.Context) (float64, error) {
	bestPosition := s.position
	bestScore := s.measure()
	s.log.Info("focus search started", "position", s.position, "score", bestScore)

	drops := 0
	for position := s.position; position <= s.cfg.MaxPosition; position += s.cfg.CoarseStep {
		if err := s.moveAndSettle(ctx, position, s.cfg.CoarseSettle); err != nil {
			return bestPosition, err
		}
		score := s.measure()
		if score > bestScore {
			bestScore = score
			bestPosition = position
			drops = 0
		} else {
			drops++
			if drops >= s.cfg.MaxDrops {
				break
			}
		}
	}

	fineMax := bestPosition + s.cfg.CoarseStep
	fineMin := bestPosition - s.cfg.FineRange
	if fineMin < s.cfg.MinPosition {
		fineMin = s.cfg.MinPosition
	}
	for position := fineMax; position >= fineMin; position -= s.cfg.FineStep {
		if err := s.moveAndSettle(ctx, position, s.cfg.FineSettle); err != nil {
			return bestPosition, err
		}
		score := s.measure()
		if score > bestScore {
			bestScore = score
			bestPosition = position
		}
	}

	if err := s.lens.SetFocus(bestPosition); err != nil {
		s.log.Warn("set focus failed", "position", bestPosition, "error", err)
	}
	s.position = bestPosition
	s.log.Info("focus search finished", "position", bestPosition, "score", bestScore)
	return bestPosition, nil
}

func (s *Searcher) moveAndSettle(ctx context.Context, position float64, settle time.Duration) error {
	if err := s.lens.SetFocus(position); err != nil {
		s.log.Warn("set focus failed", "position", position, "error", err)
	}
	timer := time.NewTimer(settle)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// measure scores the newest frame's sharpness. An empty buffer scores zero so
// a sweep before the first frame is harmless.
func (s *Searcher) measure() float64 {
	frame, ok := s.buf.Latest()
	if !ok {
		return 0
	}
	defer frame.Close()
	return laplacianVariance(frame.Mat)
}

// laplacianVariance is the classic contrast focus measure: variance of the
// Laplacian over the grayscale image.
func laplacianVariance(img gocv.Mat) float64 {
	gray := gocv.NewMat()
	defer gray.Close()
	if img.Channels() > 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	lap := gocv.NewMat()
	defer lap.Close()
	gocv.Laplacian(gray, &lap, gocv.MatTypeCV64F, 1, 1, 0, gocv.BorderDefault)

	mean := gocv.NewMat()
	stddev := gocv.NewMat()
	defer mean.Close()
	defer stddev.Close()
	gocv.MeanStdDev(lap, &mean, &stddev)

	sd := stddev.GetDoubleAt(0, 0)
	return sd * sd
}
