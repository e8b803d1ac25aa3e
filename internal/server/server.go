// Package server exposes the management HTTP surface: the git summary and
// actions, a health probe and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/schaermu/kvsyncd/internal/pull"
	"github.com/schaermu/kvsyncd/internal/summary"
	"github.com/schaermu/kvsyncd/internal/webhook"
)

// Git actions accepted on POST /git/{action}
const (
	ActionTogglePoll = "toggle-poll"
	ActionForcePull  = "force-pull"
	ActionWebhook    = "webhook"
)

const maxBodyBytes = 1 << 20

// SummaryProvider builds the status document
type SummaryProvider interface {
	Generate(ctx context.Context) summary.Summary
}

// Poller is the scheduled pull job
type Poller interface {
	Toggle() bool
}

// Puller runs a repository pull
type Puller interface {
	Pull(ctx context.Context, trigger pull.Trigger)
}

// WebhookHandler decides on webhook deliveries
type WebhookHandler interface {
	Handle(ctx context.Context, header http.Header, body []byte) webhook.Decision
}

// Git bundles the components behind the /git endpoints. A server without
// Git serves only /healthz and /metrics.
type Git struct {
	Summary SummaryProvider
	Poller  Poller
	Puller  Puller
	Webhook WebhookHandler
}

// Server is the management HTTP server
type Server struct {
	addr      string
	listeners []net.Listener
	git       *Git
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// New creates a server. When listeners is non-empty they are served instead
// of binding addr. gatherer may be nil to disable /metrics.
func New(addr string, listeners []net.Listener, git *Git, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		addr:      addr,
		listeners: listeners,
		git:       git,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Handler returns the routing table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.git != nil {
		mux.HandleFunc("GET /git", s.handleSummary)
		mux.HandleFunc("POST /git/{action}", s.handleAction)
	}
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listeners := s.listeners
	if len(listeners) == 0 {
		l, err := net.Listen("tcp", s.addr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		}
		listeners = []net.Listener{l}
	}

	server := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	errCh := make(chan error, len(listeners))
	for _, l := range listeners {
		go func(l net.Listener) {
			s.logger.Info("management server listening", "addr", l.Addr().String())
			if err := server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}(l)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down management server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		_ = server.Close()
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintln(w, "ok")
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.git.Summary.Generate(r.Context())); err != nil {
		s.logger.Error("failed to write summary", "error", err)
	}
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	switch action {
	case ActionTogglePoll:
		running := s.git.Poller.Toggle()
		s.logger.Info("toggled scheduled pull", "running", running)
		w.WriteHeader(http.StatusOK)

	case ActionForcePull:
		// a client disconnect must not abort the pull
		s.git.Puller.Pull(context.WithoutCancel(r.Context()), pull.TriggerForced)
		w.WriteHeader(http.StatusOK)

	case ActionWebhook:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
		if err != nil {
			s.logger.Error("failed to read request body", "error", err)
			http.Error(w, "Failed to read body", http.StatusBadRequest)
			return
		}
		decision := s.git.Webhook.Handle(context.WithoutCancel(r.Context()), r.Header, body)
		w.WriteHeader(decision.StatusCode())

	default:
		s.logger.Debug("unknown git action", "action", action)
		http.NotFound(w, r)
	}
}
