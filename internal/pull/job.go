package pull

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Job pulls the repository at a fixed interval, starting immediately
type Job struct {
	puller   *Puller
	interval time.Duration
	logger   *slog.Logger

	mu       sync.Mutex // guards cancel and done
	cancel   context.CancelFunc
	done     chan struct{}
	stopping atomic.Bool
}

// NewJob creates a stopped job
func NewJob(puller *Puller, interval time.Duration, logger *slog.Logger) *Job {
	return &Job{
		puller:   puller,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the job unless a live job exists. It reports whether a
// new job was scheduled.
func (j *Job) Start() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startLocked()
}

// Stop requests cancellation of the scheduled job. An in-flight pull is
// allowed to finish. It reports whether a job was stopped.
func (j *Job) Stop() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopLocked()
}

// Toggle stops a running job or starts a stopped one and returns whether
// the job is running afterwards.
func (j *Job) Toggle() bool {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.runningLocked() {
		j.stopLocked()
		return false
	}
	return j.startLocked()
}

// Running reports whether the job is scheduled and not stopping
func (j *Job) Running() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runningLocked()
}

// Interval returns the delay between scheduled pulls
func (j *Job) Interval() time.Duration {
	return j.interval
}

func (j *Job) startLocked() bool {
	if j.runningLocked() {
		j.logger.Debug("pull job already running, ignoring start request")
		return false
	}
	if j.interval <= 0 {
		j.logger.Error("refusing to schedule pull job with non-positive interval", "interval", j.interval)
		return false
	}

	j.stopping.Store(false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	j.cancel = cancel
	j.done = done

	j.logger.Info("scheduling pull job", "interval", j.interval)
	go j.run(ctx, done)
	return true
}

func (j *Job) stopLocked() bool {
	if j.cancel == nil || j.stopping.Load() {
		j.logger.Debug("pull job already stopped, ignoring stop request")
		return false
	}

	j.logger.Info("stopping pull job")
	j.stopping.Store(true)
	j.cancel()
	return true
}

// runningLocked checks job liveness through its done channel
func (j *Job) runningLocked() bool {
	if j.done == nil || j.stopping.Load() {
		return false
	}
	select {
	case <-j.done:
		return false
	default:
		return true
	}
}

func (j *Job) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		j.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (j *Job) tick(ctx context.Context) {
	if ctx.Err() != nil || j.stopping.Load() {
		j.logger.Debug("pull job stopped, skipping pull")
		return
	}
	// cancellation stops scheduling, not a pull already under way
	j.puller.Pull(context.WithoutCancel(ctx), TriggerScheduled)
}
