package app

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/better-wallet/signing-gateway/internal/chain/aa"
	"github.com/better-wallet/signing-gateway/internal/chain/cosmos"
	"github.com/better-wallet/signing-gateway/internal/chain/evm"
	"github.com/better-wallet/signing-gateway/internal/chain/sol"
)

// Fixed payloads for the signing routes. Every transaction is a self
// transfer so nothing leaves the wallet even if a client broadcasts it.
const (
	DemoMessage          = "Hello from the signing gateway"
	UserOperationMessage = "User operation sent"

	// DemoBatchSize is the number of changeX calls batched into one user operation
	DemoBatchSize = 5

	solanaDemoLamports = 1000
	cosmosDemoAmount   = "1"
	cosmosFeeAmount    = "2000"
	cosmosGasLimit     = "200000"
)

// ChangeXBatch returns changeX(1) through changeX(DemoBatchSize) against contract
func ChangeXBatch(contract common.Address) ([]aa.Call, error) {
	calls := make([]aa.Call, 0, DemoBatchSize)
	for x := int64(1); x <= DemoBatchSize; x++ {
		call, err := aa.ChangeXCall(contract, x)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, nil
}

// SelfTransferEVM returns a zero-value transfer to the adapter's own address
func SelfTransferEVM(ctx context.Context, a *evm.Adapter) (*evm.Transaction, error) {
	self, err := a.CommonAddress(ctx)
	if err != nil {
		return nil, fmt.Errorf("evm address: %w", err)
	}
	return &evm.Transaction{To: &self, Value: new(big.Int)}, nil
}

// SelfTransferCosmos returns a minimal bank send to the adapter's own address
func SelfTransferCosmos(ctx context.Context, a *cosmos.Adapter, denom string) (*cosmos.MsgSend, error) {
	self, err := a.Address(ctx)
	if err != nil {
		return nil, fmt.Errorf("cosmos address: %w", err)
	}
	return &cosmos.MsgSend{
		ToAddress: self,
		Amount:    []cosmos.Coin{{Amount: cosmosDemoAmount, Denom: denom}},
	}, nil
}

// SelfTransferSolana returns a small lamport transfer to the adapter's own key
func SelfTransferSolana(ctx context.Context, a *sol.Adapter) (*sol.Transfer, error) {
	self, err := a.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("solana address: %w", err)
	}
	return &sol.Transfer{To: self, Lamports: solanaDemoLamports}, nil
}
