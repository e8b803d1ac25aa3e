package kv

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
)

// ConsulOptions configures the Consul client
type ConsulOptions struct {
	// Address is host:port or a URI; an https:// scheme enables TLS
	Address    string
	Token      string
	Datacenter string
	// Timeout bounds each request; zero leaves requests unbounded
	Timeout time.Duration
}

// ConsulStore implements Store on top of the Consul HTTP API
type ConsulStore struct {
	client  *api.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewConsulStore creates a store talking to the configured agent
func NewConsulStore(opts ConsulOptions, logger *slog.Logger) (*ConsulStore, error) {
	cfg := api.DefaultConfig()
	if opts.Address != "" {
		cfg.Address = opts.Address
	}
	if opts.Token != "" {
		cfg.Token = opts.Token
	}
	if opts.Datacenter != "" {
		cfg.Datacenter = opts.Datacenter
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return &ConsulStore{client: client, timeout: opts.Timeout, logger: logger}, nil
}

// Ready checks that the cluster has elected a raft leader
func (s *ConsulStore) Ready(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	leader, err := s.client.Status().LeaderWithQueryOptions(s.queryOptions(ctx))
	if err != nil {
		return fmt.Errorf("failed to query consul leader: %w", err)
	}
	if leader == "" {
		return errors.New("consul cluster has no leader")
	}
	s.logger.Debug("consul leader found", "leader", leader)
	return nil
}

func (s *ConsulStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	keys, _, err := s.client.KV().Keys(prefix, "", s.queryOptions(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to list keys under %q: %w", prefix, err)
	}
	return keys, nil
}

// Txn submits ops as a single Consul transaction. When Consul rolls the
// transaction back every operation is counted as failed.
func (s *ConsulStore) Txn(ctx context.Context, ops []Op) (TxnResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	txn := make(api.TxnOps, 0, len(ops))
	for _, op := range ops {
		kvOp := &api.KVTxnOp{Key: op.Key}
		switch op.Verb {
		case VerbSet:
			kvOp.Verb = api.KVSet
			kvOp.Value = []byte(op.Value)
		case VerbDelete:
			kvOp.Verb = api.KVDelete
		default:
			return TxnResult{}, fmt.Errorf("unsupported operation %q for key %s", op.Verb, op.Key)
		}
		txn = append(txn, &api.TxnOp{KV: kvOp})
	}

	ok, resp, _, err := s.client.Txn().Txn(txn, s.queryOptions(ctx))
	if err != nil {
		return TxnResult{}, fmt.Errorf("failed to submit transaction: %w", err)
	}

	var result TxnResult
	if resp != nil {
		for _, txnErr := range resp.Errors {
			result.Errors = append(result.Errors, fmt.Sprintf("operation %d: %s", txnErr.OpIndex, txnErr.What))
		}
	}
	if !ok {
		result.Failed = len(ops)
		return result, nil
	}
	if resp != nil {
		result.Succeeded = len(resp.Results)
		result.Failed = len(resp.Errors)
	}
	return result, nil
}

func (s *ConsulStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *ConsulStore) queryOptions(ctx context.Context) *api.QueryOptions {
	return (&api.QueryOptions{}).WithContext(ctx)
}
