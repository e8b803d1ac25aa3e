// Package reconcile converges a KV store prefix to a desired state in one
// atomic transaction.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/schaermu/kvsyncd/internal/aggregate"
	"github.com/schaermu/kvsyncd/internal/kv"
)

// ErrStoreUnavailable is returned when the store fails its readiness probe
var ErrStoreUnavailable = errors.New("kv store is not reachable or not ready")

// Result summarizes a reconciliation pass
type Result struct {
	Sets      int
	Deletes   int
	Submitted int
	Succeeded int
	Failed    int
	Errors    []string
	// Partial is set when the store applied fewer operations than submitted
	Partial bool
	DryRun  bool
}

// Engine diffs desired state against the store and applies the delta
type Engine struct {
	store  kv.Store
	logger *slog.Logger
	dryRun bool
}

// NewEngine creates a new reconciliation engine
func NewEngine(store kv.Store, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		store:  store,
		logger: logger,
		dryRun: dryRun,
	}
}

// Reconcile converges every key under prefix to desired. Existing keys are
// read fresh on each call. A transaction applied only partially is reported
// through Result.Partial and a warning, not an error.
func (e *Engine) Reconcile(ctx context.Context, prefix string, desired *aggregate.DesiredState) (Result, error) {
	if err := e.store.Ready(ctx); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	existing, err := e.store.Keys(ctx, prefix)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read existing keys: %w", err)
	}

	plan := BuildPlan(prefix, desired, existing)
	result := Result{
		Sets:      len(plan.Set),
		Deletes:   len(plan.Delete),
		Submitted: plan.Len(),
		DryRun:    e.dryRun,
	}

	e.logger.Info("reconcile plan",
		"prefix", prefix,
		"set", result.Sets,
		"delete", result.Deletes,
		"existing", len(existing))

	if e.dryRun {
		e.logPlanDetails(plan)
		e.logger.Info("dry-run complete, no changes applied")
		return result, nil
	}

	if plan.Len() == 0 {
		e.logger.Info("nothing to reconcile", "prefix", prefix)
		return result, nil
	}

	if plan.Len() > kv.MaxTxnOps {
		e.logger.Error("transaction exceeds the store's operation limit and will likely be rejected",
			"operations", plan.Len(),
			"limit", kv.MaxTxnOps)
	}

	txn, err := e.store.Txn(ctx, plan.Ops())
	if err != nil {
		return result, fmt.Errorf("failed to apply transaction: %w", err)
	}

	result.Succeeded = txn.Succeeded
	result.Failed = txn.Failed
	result.Errors = txn.Errors

	e.logger.Info("transaction applied", "succeeded", txn.Succeeded, "failed", txn.Failed)
	for _, msg := range txn.Errors {
		e.logger.Error("transaction operation failed", "error", msg)
	}

	if txn.Succeeded != result.Submitted {
		result.Partial = true
		e.logger.Warn("partial application: store applied fewer operations than submitted",
			"submitted", result.Submitted,
			"succeeded", txn.Succeeded,
			"failed", txn.Failed)
	}

	return result, nil
}

// logPlanDetails logs every planned operation for dry-run
func (e *Engine) logPlanDetails(plan Plan) {
	for _, op := range plan.Set {
		e.logger.Info("[dry-run] would set", "key", op.Key, "bytes", len(op.Value))
	}
	for _, op := range plan.Delete {
		e.logger.Info("[dry-run] would delete", "key", op.Key)
	}
}
