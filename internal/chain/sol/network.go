package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// RPCNetwork reads chain state from a Solana JSON-RPC endpoint
type RPCNetwork struct {
	client *rpc.Client
}

// NewRPCNetwork creates a client for endpoint
func NewRPCNetwork(endpoint string) (*RPCNetwork, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("solana RPC URL is required")
	}
	return &RPCNetwork{client: rpc.New(endpoint)}, nil
}

// LatestBlockhash returns the most recent blockhash at commitment
func (n *RPCNetwork) LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	out, err := n.client.GetLatestBlockhash(ctx, commitment)
	if err != nil {
		return solana.Hash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return solana.Hash{}, fmt.Errorf("empty blockhash response")
	}
	return out.Value.Blockhash, nil
}

// Close releases the underlying HTTP client
func (n *RPCNetwork) Close() error {
	return n.client.Close()
}
