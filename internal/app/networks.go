package app

import (
	"context"
	"fmt"

	"github.com/better-wallet/signing-gateway/internal/chain/aa"
	"github.com/better-wallet/signing-gateway/internal/chain/cosmos"
	"github.com/better-wallet/signing-gateway/internal/chain/evm"
	"github.com/better-wallet/signing-gateway/internal/chain/sol"
	"github.com/better-wallet/signing-gateway/internal/config"
	"github.com/better-wallet/signing-gateway/internal/eth"
)

// EVMNetwork is the node access shared by the EVM and account abstraction
// adapters. *eth.Client satisfies it.
type EVMNetwork interface {
	evm.Network
	aa.Network
}

// Networks opens chain collaborators for one request. Every returned close
// function must be called; none of them is nil when err is nil.
type Networks interface {
	EVM(ctx context.Context) (EVMNetwork, func(), error)
	Bundler(ctx context.Context) (aa.Bundler, func(), error)
	Cosmos(ctx context.Context) (cosmos.Network, func(), error)
	Solana(ctx context.Context) (sol.Network, func(), error)
}

// RPCNetworks dials the endpoints named in the configuration
type RPCNetworks struct {
	cfg *config.Config
}

// NewRPCNetworks creates a new RPCNetworks
func NewRPCNetworks(cfg *config.Config) *RPCNetworks {
	return &RPCNetworks{cfg: cfg}
}

// EVM dials the EVM JSON-RPC endpoint
func (n *RPCNetworks) EVM(ctx context.Context) (EVMNetwork, func(), error) {
	client, err := eth.Dial(ctx, n.cfg.EVMRPCURL, n.cfg.EVMChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("evm network: %w", err)
	}
	return client, client.Close, nil
}

// Bundler dials the bundler and gas manager endpoint
func (n *RPCNetworks) Bundler(ctx context.Context) (aa.Bundler, func(), error) {
	if err := n.cfg.RequireBundler(); err != nil {
		return nil, nil, err
	}
	b, err := aa.DialBundler(ctx, n.cfg.BundlerURL())
	if err != nil {
		return nil, nil, fmt.Errorf("bundler: %w", err)
	}
	return b, b.Close, nil
}

// Cosmos returns an LCD client. It holds no connection of its own.
func (n *RPCNetworks) Cosmos(ctx context.Context) (cosmos.Network, func(), error) {
	if n.cfg.CosmosLCDURL == "" {
		return nil, nil, fmt.Errorf("cosmos network: COSMOS_LCD_URL is not set")
	}
	return cosmos.NewLCDClient(n.cfg.CosmosLCDURL), func() {}, nil
}

// Solana returns a Solana JSON-RPC client
func (n *RPCNetworks) Solana(ctx context.Context) (sol.Network, func(), error) {
	client, err := sol.NewRPCNetwork(n.cfg.SolanaRPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("solana network: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}
