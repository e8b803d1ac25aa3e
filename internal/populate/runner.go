package populate

import (
	"context"
	"log/slog"
	"sync"

	"github.com/schaermu/kvsyncd/internal/reconcile"
)

// Populator runs one populate pass
type Populator interface {
	Populate(ctx context.Context) (reconcile.Result, error)
}

// Runner serializes populate passes triggered by change notifications
type Runner struct {
	populator Populator
	logger    *slog.Logger

	mu      sync.Mutex // guards running and pending
	running bool       // whether a pass is in progress
	pending bool       // whether another pass is needed after the current one
}

// NewRunner creates a runner for p
func NewRunner(p Populator, logger *slog.Logger) *Runner {
	return &Runner{populator: p, logger: logger}
}

// Run executes a populate pass with single-flight semantics. If a pass is
// already in progress, at most one additional run is queued and Run returns
// immediately; further concurrent requests are folded into that one.
func (r *Runner) Run(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.pending = true
		r.mu.Unlock()
		r.logger.Info("populate already in progress, queuing pending re-run")
		return
	}
	r.running = true
	r.mu.Unlock()

	for {
		if _, err := r.populator.Populate(ctx); err != nil {
			r.logger.Error("populate failed", "error", err)
		}

		r.mu.Lock()
		if !r.pending {
			r.running = false
			r.mu.Unlock()
			break
		}
		r.pending = false
		r.mu.Unlock()

		r.logger.Info("re-running populate due to pending request")
	}
}
