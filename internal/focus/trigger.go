package focus

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Trigger decides when a focus search is worth running and makes sure only
// one runs at a time: once on the first tracked face, afterwards only when
// the face size (a distance proxy) changes significantly, and never more
// often than MinInterval.
type Trigger struct {
	minInterval   time.Duration
	sizeThreshold float64
	search        func(ctx context.Context)
	log           *slog.Logger

	mu          sync.Mutex
	lastStart   time.Time
	searching   bool
	initialDone bool
}

// NewTrigger wires a trigger to a search function (typically
// Searcher.Search wrapped to discard the result).
func NewTrigger(minInterval time.Duration, sizeThreshold float64, search func(ctx context.Context), log *slog.Logger) *Trigger {
	return &Trigger{
		minInterval:   minInterval,
		sizeThreshold: sizeThreshold,
		search:        search,
		log:           log,
	}
}

// OnSizeChange reports a relative face-size change from the render loop.
// The first call always focuses (initial acquisition); later calls only when
// the change exceeds the threshold. Returns true when a search was started.
func (t *Trigger) OnSizeChange(ctx context.Context, change float64) bool {
	t.mu.Lock()
	if t.searching || time.Since(t.lastStart) < t.minInterval {
		t.mu.Unlock()
		return false
	}
	if t.initialDone && abs(change) <= t.sizeThreshold {
		t.mu.Unlock()
		return false
	}
	first := !t.initialDone
	t.initialDone = true
	t.begin()
	t.mu.Unlock()

	if first {
		t.log.Info("initial focus search")
	} else {
		t.log.Info("face distance changed, refocusing", "change", change)
	}
	go t.run(ctx)
	return true
}

// Request forces a search (voice command), still rate-limited and
// single-flight. Returns true when a search was started.
func (t *Trigger) Request(ctx context.Context) bool {
	t.mu.Lock()
	if t.searching || time.Since(t.lastStart) < t.minInterval {
		t.mu.Unlock()
		return false
	}
	t.initialDone = true
	t.begin()
	t.mu.Unlock()

	t.log.Info("focus search requested")
	go t.run(ctx)
	return true
}

// Searching reports whether a search is in flight.
func (t *Trigger) Searching() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searching
}

func (t *Trigger) begin() {
	t.searching = true
	t.lastStart = time.Now()
}

func (t *Trigger) run(ctx context.Context) {
	defer func() {
		t.mu.Lock()
		t.searching = false
		t.mu.Unlock()
	}()
	t.search(ctx)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
