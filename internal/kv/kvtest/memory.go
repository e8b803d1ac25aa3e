// Package kvtest provides an in-memory kv.Store for tests.
package kvtest

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/schaermu/kvsyncd/internal/kv"
)

// Memory is a kv.Store holding its data in a map. Failure fields let tests
// simulate an unavailable or misbehaving store.
type Memory struct {
	mu   sync.Mutex
	data map[string]string
	txns [][]kv.Op

	ReadyErr error
	KeysErr  error
	TxnErr   error
	// Unreported drops this many operations from the reported result
	// while still applying them.
	Unreported int
}

// NewMemory returns a store seeded with data
func NewMemory(data map[string]string) *Memory {
	m := &Memory{data: make(map[string]string)}
	for k, v := range data {
		m.data[k] = v
	}
	return m
}

func (m *Memory) Ready(_ context.Context) error {
	return m.ReadyErr
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	if m.KeysErr != nil {
		return nil, m.KeysErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Txn(_ context.Context, ops []kv.Op) (kv.TxnResult, error) {
	if m.TxnErr != nil {
		return kv.TxnResult{}, m.TxnErr
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.txns = append(m.txns, append([]kv.Op(nil), ops...))
	for _, op := range ops {
		switch op.Verb {
		case kv.VerbSet:
			m.data[op.Key] = op.Value
		case kv.VerbDelete:
			delete(m.data, op.Key)
		}
	}

	reported := len(ops) - m.Unreported
	if reported < 0 {
		reported = 0
	}
	return kv.TxnResult{Succeeded: reported}, nil
}

// Get returns the value stored under key
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok
}

// Data returns a copy of the stored entries
func (m *Memory) Data() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

// Transactions returns every submitted transaction in order
func (m *Memory) Transactions() [][]kv.Op {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]kv.Op(nil), m.txns...)
}
