// Package kv defines the key-value store operations used for reconciliation
// and provides a Consul-backed implementation.
package kv

import "context"

// Verb is the kind of a transaction operation
type Verb string

const (
	VerbSet    Verb = "set"
	VerbDelete Verb = "delete"
)

// MaxTxnOps is the largest number of operations Consul accepts in one
// transaction
const MaxTxnOps = 64

// Op is a single operation of an atomic transaction
type Op struct {
	Verb  Verb
	Key   string
	Value string
}

// SetOp returns an operation writing value under key
func SetOp(key, value string) Op {
	return Op{Verb: VerbSet, Key: key, Value: value}
}

// DeleteOp returns an operation removing key
func DeleteOp(key string) Op {
	return Op{Verb: VerbDelete, Key: key}
}

// TxnResult reports how a submitted transaction was applied
type TxnResult struct {
	Succeeded int
	Failed    int
	// Errors holds one message per failed operation
	Errors []string
}

// Store is the subset of KV store operations needed to converge a prefix
type Store interface {
	// Ready returns an error when the store cannot accept writes
	Ready(ctx context.Context) error
	// Keys lists every key under prefix
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Txn submits ops as one atomic transaction. A transaction rejected by
	// the store is reported through the result, not the error.
	Txn(ctx context.Context, ops []Op) (TxnResult, error)
}
