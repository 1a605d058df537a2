package eth

import (
	"context"
	"fmt"
	"math/big"
)

// Registry holds one RPC client per chain. It backs the delegation manager's
// nonce source and the execution router's balance prober.
type Registry struct {
	clients map[int64]*Client
}

// NewRegistry dials every RPC URL and indexes the clients by their detected
// chain ID. Two endpoints on the same chain are a configuration error.
func NewRegistry(rpcURLs []string) (*Registry, error) {
	r := &Registry{clients: make(map[int64]*Client)}
	for _, url := range rpcURLs {
		client, err := NewClient(url)
		if err != nil {
			r.Close()
			return nil, err
		}
		if _, dup := r.clients[client.ChainID()]; dup {
			client.Close()
			r.Close()
			return nil, fmt.Errorf("duplicate RPC endpoint for chain %d", client.ChainID())
		}
		r.clients[client.ChainID()] = client
	}
	return r, nil
}

// Client returns the client for a chain, if one is configured.
func (r *Registry) Client(chainID int64) (*Client, bool) {
	c, ok := r.clients[chainID]
	return c, ok
}

// ChainIDs returns the configured chains.
func (r *Registry) ChainIDs() []int64 {
	ids := make([]int64, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	return ids
}

// PendingNonce returns the delegator's pending account nonce on a chain.
func (r *Registry) PendingNonce(ctx context.Context, chainID int64, address string) (uint64, error) {
	c, ok := r.clients[chainID]
	if !ok {
		return 0, fmt.Errorf("no RPC client configured for chain %d", chainID)
	}
	return c.PendingNonce(ctx, address)
}

// Balance returns an address's native balance on a chain.
func (r *Registry) Balance(ctx context.Context, chainID int64, address string) (*big.Int, error) {
	c, ok := r.clients[chainID]
	if !ok {
		return nil, fmt.Errorf("no RPC client configured for chain %d", chainID)
	}
	return c.GetBalance(ctx, address)
}

// Close closes every client.
func (r *Registry) Close() {
	for _, c := range r.clients {
		c.Close()
	}
}
