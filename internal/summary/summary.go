// Package summary assembles the read-only status view of the repository
// synchronization.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/schaermu/kvsyncd/internal/git"
	"github.com/schaermu/kvsyncd/internal/pull"
)

// Summary is the status document served by the management endpoint
type Summary struct {
	Repo  Repo  `json:"repo"`
	Pull  Pull  `json:"pull"`
	Files Files `json:"files"`
}

type Repo struct {
	URI       string `json:"uri"`
	Branch    string `json:"branch"`
	LocalPath string `json:"localPath"`
	Dirty     bool   `json:"dirty"`
	Head      *Head  `json:"head,omitempty"`
}

type Head struct {
	ID      string `json:"id"`
	ShortID string `json:"shortId"`
	Message string `json:"message"`
	Time    string `json:"time"`
}

type Pull struct {
	Scheduled        bool   `json:"scheduled"`
	Interval         string `json:"interval,omitempty"`
	Trigger          string `json:"trigger,omitempty"`
	LastPullTime     string `json:"lastPullTime,omitempty"`
	LastPullDuration string `json:"lastPullDuration,omitempty"`
	LastPullOutcome  string `json:"lastPullOutcome,omitempty"`
}

type Files struct {
	RootPath string `json:"rootPath"`
	Target   string `json:"target"`
	Format   string `json:"format"`
}

// Repository exposes the working copy state
type Repository interface {
	Head(ctx context.Context) (git.Commit, error)
	IsClean(ctx context.Context) (bool, error)
}

// Locator returns the working copy directory
type Locator interface {
	Dir() (string, error)
}

// PullStatus exposes the most recent pull
type PullStatus interface {
	Last() (pull.Status, bool)
}

// Schedule exposes the polling job state
type Schedule interface {
	Running() bool
	Interval() time.Duration
}

// Options holds the static part of the summary
type Options struct {
	URL    string
	Branch string
	Files  Files
}

// Provider builds summaries from the live components
type Provider struct {
	opts     Options
	locator  Locator
	repo     Repository
	puller   PullStatus
	schedule Schedule
	logger   *slog.Logger
}

// NewProvider creates a summary provider
func NewProvider(opts Options, locator Locator, repo Repository, puller PullStatus, schedule Schedule, logger *slog.Logger) *Provider {
	return &Provider{
		opts:     opts,
		locator:  locator,
		repo:     repo,
		puller:   puller,
		schedule: schedule,
		logger:   logger,
	}
}

// Generate assembles the current summary. Failures reading the working copy
// are logged and leave head empty and dirty false.
func (p *Provider) Generate(ctx context.Context) Summary {
	return Summary{
		Repo:  p.repoSummary(ctx),
		Pull:  p.pullSummary(),
		Files: p.opts.Files,
	}
}

func (p *Provider) repoSummary(ctx context.Context) Repo {
	r := Repo{
		URI:    MaskCredentials(p.opts.URL),
		Branch: p.opts.Branch,
	}

	if dir, err := p.locator.Dir(); err != nil {
		p.logger.Warn("failed to resolve repository directory", "error", err)
	} else {
		r.LocalPath = dir
	}

	commit, err := p.repo.Head(ctx)
	if err != nil {
		p.logger.Error("failed to read repository head", "error", err)
		return r
	}
	r.Head = &Head{
		ID:      commit.ID,
		ShortID: commit.ShortID,
		Message: commit.Message,
		Time:    FormatTime(commit.AuthorTime),
	}

	clean, err := p.repo.IsClean(ctx)
	if err != nil {
		p.logger.Error("failed to read repository status", "error", err)
		return r
	}
	r.Dirty = !clean
	return r
}

func (p *Provider) pullSummary() Pull {
	s := Pull{Scheduled: p.schedule.Running()}
	if s.Scheduled {
		s.Interval = FormatISODuration(p.schedule.Interval())
	}

	if last, ok := p.puller.Last(); ok {
		s.Trigger = string(last.Trigger)
		s.LastPullTime = FormatTime(last.Time)
		s.LastPullDuration = FormatPullDuration(last.Duration)
		s.LastPullOutcome = string(last.Outcome)
	}
	return s
}

// MaskCredentials strips user information from a repository URI. Values
// that do not parse as URLs are returned unchanged.
func MaskCredentials(uri string) string {
	if !strings.Contains(uri, "://") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	u.User = nil
	return u.String()
}

// FormatTime renders t as an RFC 3339 UTC timestamp
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// FormatPullDuration renders d as zero-padded seconds with milliseconds,
// e.g. "01.234s". Seconds are not wrapped into minutes.
func FormatPullDuration(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d.%03ds", ms/1000, ms%1000)
}

// FormatISODuration renders d as an ISO-8601 duration such as PT5M or
// PT1H30M15.5S
func FormatISODuration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}
	b.WriteString("PT")

	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute

	if hours > 0 {
		fmt.Fprintf(&b, "%dH", hours)
	}
	if minutes > 0 {
		fmt.Fprintf(&b, "%dM", minutes)
	}
	if d > 0 {
		secs := strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.9f", d.Seconds()), "0"), ".")
		fmt.Fprintf(&b, "%sS", secs)
	}
	return b.String()
}
