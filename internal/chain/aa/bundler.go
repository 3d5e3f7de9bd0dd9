package aa

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-cleanhttp"
)

// SponsorshipRequest asks the gas manager to price and sponsor an operation
type SponsorshipRequest struct {
	PolicyID       string
	EntryPoint     common.Address
	DummySignature []byte
	Op             *UserOperation
}

// Sponsorship is the gas manager's answer
type Sponsorship struct {
	PaymasterAndData     []byte
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Bundler prices, sponsors and submits user operations
type Bundler interface {
	RequestGasAndPaymasterAndData(ctx context.Context, req *SponsorshipRequest) (*Sponsorship, error)
	SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error)
}

// RPCBundler talks to an Alchemy-compatible bundler over JSON-RPC
type RPCBundler struct {
	client *rpc.Client
}

// DialBundler connects to a bundler endpoint
func DialBundler(ctx context.Context, url string) (*RPCBundler, error) {
	if url == "" {
		return nil, fmt.Errorf("bundler URL is required")
	}
	client, err := rpc.DialOptions(ctx, url, rpc.WithHTTPClient(cleanhttp.DefaultPooledClient()))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to bundler: %w", err)
	}
	return &RPCBundler{client: client}, nil
}

// Close releases the underlying connection
func (b *RPCBundler) Close() {
	b.client.Close()
}

type partialUserOperation struct {
	Sender   common.Address `json:"sender"`
	Nonce    *hexutil.Big   `json:"nonce"`
	InitCode hexutil.Bytes  `json:"initCode"`
	CallData hexutil.Bytes  `json:"callData"`
}

type sponsorshipParams struct {
	PolicyID       string               `json:"policyId"`
	EntryPoint     common.Address       `json:"entryPoint"`
	DummySignature hexutil.Bytes        `json:"dummySignature"`
	UserOperation  partialUserOperation `json:"userOperation"`
}

type sponsorshipResult struct {
	PaymasterAndData     hexutil.Bytes `json:"paymasterAndData"`
	CallGasLimit         *hexutil.Big  `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big  `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big  `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big  `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big  `json:"maxPriorityFeePerGas"`
}

// RequestGasAndPaymasterAndData calls alchemy_requestGasAndPaymasterAndData
func (b *RPCBundler) RequestGasAndPaymasterAndData(ctx context.Context, req *SponsorshipRequest) (*Sponsorship, error) {
	params := sponsorshipParams{
		PolicyID:       req.PolicyID,
		EntryPoint:     req.EntryPoint,
		DummySignature: req.DummySignature,
		UserOperation: partialUserOperation{
			Sender:   req.Op.Sender,
			Nonce:    hexBig(req.Op.Nonce),
			InitCode: orEmpty(req.Op.InitCode),
			CallData: orEmpty(req.Op.CallData),
		},
	}

	var res sponsorshipResult
	if err := b.client.CallContext(ctx, &res, "alchemy_requestGasAndPaymasterAndData", params); err != nil {
		return nil, fmt.Errorf("gas manager request failed: %w", err)
	}

	return &Sponsorship{
		PaymasterAndData:     res.PaymasterAndData,
		CallGasLimit:         (*big.Int)(res.CallGasLimit),
		VerificationGasLimit: (*big.Int)(res.VerificationGasLimit),
		PreVerificationGas:   (*big.Int)(res.PreVerificationGas),
		MaxFeePerGas:         (*big.Int)(res.MaxFeePerGas),
		MaxPriorityFeePerGas: (*big.Int)(res.MaxPriorityFeePerGas),
	}, nil
}

// SendUserOperation calls eth_sendUserOperation and returns the op hash
func (b *RPCBundler) SendUserOperation(ctx context.Context, op *UserOperation, entryPoint common.Address) (common.Hash, error) {
	var hash common.Hash
	if err := b.client.CallContext(ctx, &hash, "eth_sendUserOperation", op, entryPoint); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send user operation: %w", err)
	}
	return hash, nil
}

var _ Bundler = (*RPCBundler)(nil)
