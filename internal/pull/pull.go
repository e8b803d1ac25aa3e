// Package pull keeps the working copy up to date and records the outcome of
// the most recent pull.
package pull

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/schaermu/kvsyncd/internal/metrics"
)

// Trigger records why a pull happened
type Trigger string

const (
	TriggerStartup   Trigger = "STARTUP"
	TriggerScheduled Trigger = "SCHEDULED"
	TriggerWebhook   Trigger = "WEBHOOK"
	TriggerForced    Trigger = "FORCED"
)

// Outcome is the result of a pull
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeFailure Outcome = "FAILURE"
)

// Status describes the most recent pull. It is replaced as a whole so
// readers never observe fields from different pulls.
type Status struct {
	Trigger  Trigger
	Time     time.Time
	Duration time.Duration
	Outcome  Outcome
}

// Repository is the working copy being pulled
type Repository interface {
	Pull(ctx context.Context) error
}

// Puller runs pulls on the caller's goroutine. Pulls are not serialized
// against each other.
type Puller struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *slog.Logger
	now     func() time.Time
	last    atomic.Pointer[Status]
}

// NewPuller creates a Puller for repo. m may be nil.
func NewPuller(repo Repository, m *metrics.Metrics, logger *slog.Logger) *Puller {
	return &Puller{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Pull updates the working copy and records the outcome. Errors are logged
// and recorded as a failure, never returned.
func (p *Puller) Pull(ctx context.Context, trigger Trigger) {
	p.logger.Debug("pulling repository", "trigger", trigger)

	start := p.now()
	outcome := OutcomeSuccess
	if err := p.repo.Pull(ctx); err != nil {
		outcome = OutcomeFailure
		p.logger.Error("pull failed", "trigger", trigger, "error", err)
	}
	duration := p.now().Sub(start)

	p.last.Store(&Status{
		Trigger:  trigger,
		Time:     start,
		Duration: duration,
		Outcome:  outcome,
	})
	p.metrics.ObservePull(string(trigger), string(outcome), duration)
	p.logger.Debug("pull finished", "trigger", trigger, "outcome", outcome, "duration", duration)
}

// Last returns the status of the most recent pull, if any
func (p *Puller) Last() (Status, bool) {
	s := p.last.Load()
	if s == nil {
		return Status{}, false
	}
	return *s, true
}
