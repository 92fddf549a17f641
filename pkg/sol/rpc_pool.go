package sol

import (
	"context"
	"fmt"
	"sync/atomic"
)

// RPCPool spreads requests over several endpoints, each with its own rate limit
type RPCPool struct {
	clients []*Client
	index   atomic.Uint64
}

// NewRPCPool creates a client per endpoint
func NewRPCPool(ctx context.Context, endpoints []string, reqLimitPerSecond int) (*RPCPool, error) {
	if len(endpoints) == 0 {
		return nil, fmt.Errorf("no RPC endpoints configured")
	}

	pool := &RPCPool{clients: make([]*Client, 0, len(endpoints))}
	for _, endpoint := range endpoints {
		client, err := NewClient(ctx, endpoint, reqLimitPerSecond)
		if err != nil {
			return nil, err
		}
		pool.clients = append(pool.clients, client)
	}
	return pool, nil
}

// GetClient returns the next client in round-robin order
func (p *RPCPool) GetClient() *Client {
	if len(p.clients) == 1 {
		return p.clients[0]
	}
	idx := (p.index.Add(1) - 1) % uint64(len(p.clients))
	return p.clients[idx]
}

// Size returns the number of clients in the pool
func (p *RPCPool) Size() int {
	return len(p.clients)
}
