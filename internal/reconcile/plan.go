package reconcile

import (
	"strings"

	"github.com/schaermu/kvsyncd/internal/aggregate"
	"github.com/schaermu/kvsyncd/internal/kv"
)

// Plan represents the operations converging a prefix to the desired state
type Plan struct {
	Set    []kv.Op
	Delete []kv.Op
}

// Ops returns all operations in submission order: sets first, then deletes
func (p Plan) Ops() []kv.Op {
	ops := make([]kv.Op, 0, len(p.Set)+len(p.Delete))
	ops = append(ops, p.Set...)
	ops = append(ops, p.Delete...)
	return ops
}

// Len returns the number of operations in the plan
func (p Plan) Len() int {
	return len(p.Set) + len(p.Delete)
}

// BuildPlan computes one set per desired entry, keyed by prefix + identity,
// and one delete per existing key under prefix that is not desired. Existing
// keys outside prefix are ignored.
func BuildPlan(prefix string, desired *aggregate.DesiredState, existing []string) Plan {
	plan := Plan{
		Set:    make([]kv.Op, 0, desired.Len()),
		Delete: make([]kv.Op, 0),
	}

	wanted := make(map[string]bool, desired.Len())
	for _, identity := range desired.Keys() {
		payload, _ := desired.Get(identity)
		key := prefix + identity
		wanted[key] = true
		plan.Set = append(plan.Set, kv.SetOp(key, payload))
	}

	for _, key := range existing {
		if !strings.HasPrefix(key, prefix) || wanted[key] {
			continue
		}
		plan.Delete = append(plan.Delete, kv.DeleteOp(key))
	}

	return plan
}
