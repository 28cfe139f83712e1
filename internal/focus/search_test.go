package focus

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/dudu/mirrorcam/internal/buffer"
)

type fakeLens struct {
	mu        sync.Mutex
	positions []float64
}

func (l *fakeLens) SetFocus(position float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.positions = append(l.positions, position)
	return nil
}

func (l *fakeLens) last() (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.positions) == 0 {
		return 0, false
	}
	return l.positions[len(l.positions)-1], true
}

func searchConfig() SearchConfig {
	return SearchConfig{
		MinPosition:  8.0,
		MaxPosition:  12.5,
		CoarseStep:   0.5,
		CoarseSettle: time.Millisecond,
		FineStep:     0.25,
		FineSettle:   time.Millisecond,
		FineRange:    0.5,
		MaxDrops:     2,
	}
}

func TestSearchStaysInLensRange(t *testing.T) {
	buf := buffer.New(2)
	defer buf.Close()
	buf.Push(buffer.NewFrame(gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)))

	lens := &fakeLens{}
	s := NewSearcher(searchConfig(), buf, lens, slog.Default())

	pos, err := s.Search(context.Background())
	require.NoError(t, err)

	assert.GreaterOrEqual(t, pos, 8.0)
	assert.LessOrEqual(t, pos, 12.5+0.5)

	final, ok := lens.last()
	require.True(t, ok)
	assert.InDelta(t, pos, final, 1e-9)
}

func TestSearchEmptyBufferStillCompletes(t *testing.T) {
	buf := buffer.New(2)
	defer buf.Close()

	lens := &fakeLens{}
	s := NewSearcher(searchConfig(), buf, lens, slog.Default())

	pos, err := s.Search(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, pos, 8.0)
}

func TestSearchObservesCancellation(t *testing.T) {
	buf := buffer.New(2)
	defer buf.Close()
	buf.Push(buffer.NewFrame(gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)))

	cfg := searchConfig()
	cfg.CoarseSettle = 50 * time.Millisecond

	lens := &fakeLens{}
	s := NewSearcher(cfg, buf, lens, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Search(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
