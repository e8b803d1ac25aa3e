// Package webhook decides whether a git provider push event should trigger a
// repository pull.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"log/slog"
	"net/http"
	"strings"

	"github.com/schaermu/kvsyncd/internal/metrics"
	"github.com/schaermu/kvsyncd/internal/pull"
)

// Decision is the outcome of handling a webhook delivery
type Decision int

const (
	Accepted Decision = iota
	Ignored
	BadRequest
	Unauthorized
	NotImplemented
)

// StatusCode maps the decision onto its HTTP status
func (d Decision) StatusCode() int {
	switch d {
	case Accepted:
		return http.StatusAccepted
	case Ignored:
		return http.StatusNotModified
	case BadRequest:
		return http.StatusBadRequest
	case Unauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusNotImplemented
	}
}

func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case Ignored:
		return "ignored"
	case BadRequest:
		return "bad_request"
	case Unauthorized:
		return "unauthorized"
	default:
		return "not_implemented"
	}
}

// Puller runs a repository pull
type Puller interface {
	Pull(ctx context.Context, trigger pull.Trigger)
}

// Handler validates webhook deliveries and triggers pulls for pushes to the
// tracked branch
type Handler struct {
	adapter PayloadAdapter
	secret  []byte
	branch  string
	puller  Puller
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates a webhook handler. A nil adapter means no webhook is
// configured; every delivery is then answered with NotImplemented. An empty
// secret disables signature verification. m may be nil.
func NewHandler(adapter PayloadAdapter, secret []byte, branch string, puller Puller, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		adapter: adapter,
		secret:  secret,
		branch:  branch,
		puller:  puller,
		metrics: m,
		logger:  logger,
	}
}

// Handle processes one delivery. The pull, when triggered, runs on the
// caller's goroutine before Handle returns.
func (h *Handler) Handle(ctx context.Context, header http.Header, body []byte) Decision {
	d := h.decide(ctx, header, body)
	h.metrics.ObserveWebhook(d.String())
	return d
}

func (h *Handler) decide(ctx context.Context, header http.Header, body []byte) Decision {
	if h.adapter == nil {
		h.logger.Warn("no webhook payload adapter configured")
		return NotImplemented
	}

	eventType := header.Get(h.adapter.EventHeader())
	if eventType != h.adapter.ExpectedEvent() {
		h.logger.Info("ignoring webhook event", "event", eventType)
		return Ignored
	}

	if len(body) == 0 {
		h.logger.Warn("rejecting webhook without body")
		return BadRequest
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil || payload == nil {
		h.logger.Warn("failed to parse webhook payload", "error", err)
		return BadRequest
	}

	if len(h.secret) > 0 {
		signature := header.Get(h.adapter.SignatureHeader())
		if signature == "" {
			h.logger.Warn("webhook secret is configured but no signature header was provided")
			return Unauthorized
		}
		if !verifySignature(h.secret, body, signature) {
			h.logger.Warn("rejecting webhook with invalid signature")
			return Unauthorized
		}
	}

	ref, ok := h.adapter.ExtractBranch(payload)
	if !ok {
		h.logger.Warn("could not extract branch from webhook payload, triggering pull anyway")
	} else {
		branch := strings.TrimPrefix(ref, "refs/heads/")
		if branch != h.branch {
			h.logger.Debug("webhook ignored, branch mismatch", "received", branch, "expected", h.branch)
			return Ignored
		}
	}

	h.puller.Pull(ctx, pull.TriggerWebhook)
	h.logger.Info("webhook triggered pull", "branch", h.branch)
	return Accepted
}

// verifySignature checks an HMAC signature of the form "<algo>=<hex>" where
// algo is sha1 or sha256
func verifySignature(secret, body []byte, signature string) bool {
	var newHash func() hash.Hash
	var prefix string
	switch {
	case strings.HasPrefix(signature, "sha256="):
		newHash, prefix = sha256.New, "sha256="
	case strings.HasPrefix(signature, "sha1="):
		newHash, prefix = sha1.New, "sha1="
	default:
		return false
	}

	mac := hmac.New(newHash, secret)
	mac.Write(body)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison
	return hmac.Equal([]byte(signature), []byte(expected))
}
