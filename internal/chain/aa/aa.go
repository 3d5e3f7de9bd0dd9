// Package aa builds, signs and submits ERC-4337 (EntryPoint v0.6) user
// operations for a LightAccount owned by a secp256k1 identity.
package aa

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/chain/evm"
	"github.com/better-wallet/signing-gateway/internal/signature"
)

// DummySignature is a well-formed owner signature used for gas estimation
var DummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

// Config configures an account abstraction adapter
type Config struct {
	ChainID     *big.Int
	EntryPoint  common.Address
	Factory     common.Address
	Salt        *big.Int
	GasPolicyID string
}

// Network is the read-only node access the adapter needs.
// *eth.Client satisfies it.
type Network interface {
	CodeAt(ctx context.Context, addr common.Address) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

// Request is an unsigned user operation. Unset fields are filled from the
// chain and the gas manager.
type Request struct {
	Calls []Call

	Nonce                *big.Int
	InitCode             []byte // nil derives it; empty means deployed
	CallGasLimit         *big.Int
	VerificationGasLimit *big.Int
	PreVerificationGas   *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
	PaymasterAndData     []byte
}

// Family implements chain.TransactionRequest
func (r *Request) Family() chain.Family { return chain.FamilyEVM }

// Result is a submitted user operation
type Result struct {
	Hash    common.Hash    `json:"hash"`
	Request *UserOperation `json:"request"`
}

// Adapter signs user operations for one smart account
type Adapter struct {
	cfg     Config
	owner   *evm.Adapter
	net     Network
	bundler Bundler

	sender *common.Address
}

// New creates an adapter; the identity is the smart account's owner
func New(cfg Config, signer chain.Signer, net Network, bundler Bundler) (*Adapter, error) {
	owner, err := evm.New(evm.Config{ChainID: cfg.ChainID}, signer, nil)
	if err != nil {
		return nil, err
	}
	if net == nil {
		return nil, fmt.Errorf("network client is required")
	}
	return &Adapter{cfg: cfg, owner: owner, net: net, bundler: bundler}, nil
}

// Owner returns the EOA that controls the account
func (a *Adapter) Owner(ctx context.Context) (common.Address, error) {
	return a.owner.CommonAddress(ctx)
}

// Address returns the counterfactual smart account address
func (a *Adapter) Address(ctx context.Context) (string, error) {
	addr, err := a.AccountAddress(ctx)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// AccountAddress asks the factory for the account address of (owner, salt)
func (a *Adapter) AccountAddress(ctx context.Context) (common.Address, error) {
	if a.sender != nil {
		return *a.sender, nil
	}
	owner, err := a.Owner(ctx)
	if err != nil {
		return common.Address{}, err
	}

	data, err := factoryABI.Pack("getAddress", owner, orZero(a.cfg.Salt))
	if err != nil {
		return common.Address{}, err
	}
	out, err := a.net.CallContract(ctx, ethereum.CallMsg{To: &a.cfg.Factory, Data: data})
	if err != nil {
		return common.Address{}, err
	}
	vals, err := factoryABI.Unpack("getAddress", out)
	if err != nil || len(vals) != 1 {
		return common.Address{}, fmt.Errorf("failed to decode account address: %v", err)
	}
	addr, ok := vals[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected account address type %T", vals[0])
	}
	a.sender = &addr
	return addr, nil
}

// SignMessage signs msg as the account owner with EIP-191 framing
func (a *Adapter) SignMessage(ctx context.Context, msg []byte) (signature.Result, error) {
	return a.owner.SignMessage(ctx, msg)
}

// SignTransaction builds and signs req and returns the user operation JSON.
// Nothing is submitted.
func (a *Adapter) SignTransaction(ctx context.Context, req chain.TransactionRequest) ([]byte, error) {
	r, ok := req.(*Request)
	if !ok {
		return nil, fmt.Errorf("%w: %T", chain.ErrUnsupportedTransaction, req)
	}
	op, err := a.BuildUserOperation(ctx, r)
	if err != nil {
		return nil, err
	}
	if err := a.SignUserOperation(ctx, op); err != nil {
		return nil, err
	}
	return json.Marshal(op)
}

// Send builds, signs and submits req through the bundler
func (a *Adapter) Send(ctx context.Context, req *Request) (*Result, error) {
	if a.bundler == nil {
		return nil, fmt.Errorf("bundler is required")
	}
	op, err := a.BuildUserOperation(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := a.SignUserOperation(ctx, op); err != nil {
		return nil, err
	}
	hash, err := a.bundler.SendUserOperation(ctx, op, a.cfg.EntryPoint)
	if err != nil {
		return nil, err
	}
	return &Result{Hash: hash, Request: op}, nil
}

// BuildUserOperation fills sender, nonce, initCode, calldata, gas and
// paymaster data. Fields set on req are kept.
func (a *Adapter) BuildUserOperation(ctx context.Context, req *Request) (*UserOperation, error) {
	sender, err := a.AccountAddress(ctx)
	if err != nil {
		return nil, err
	}

	callData, err := encodeCalls(req.Calls)
	if err != nil {
		return nil, fmt.Errorf("failed to encode calls: %w", err)
	}

	op := &UserOperation{
		Sender:               sender,
		Nonce:                req.Nonce,
		InitCode:             req.InitCode,
		CallData:             callData,
		CallGasLimit:         req.CallGasLimit,
		VerificationGasLimit: req.VerificationGasLimit,
		PreVerificationGas:   req.PreVerificationGas,
		MaxFeePerGas:         req.MaxFeePerGas,
		MaxPriorityFeePerGas: req.MaxPriorityFeePerGas,
		PaymasterAndData:     req.PaymasterAndData,
	}

	if op.Nonce == nil {
		if op.Nonce, err = a.accountNonce(ctx, sender); err != nil {
			return nil, err
		}
	}

	if op.InitCode == nil {
		if op.InitCode, err = a.deployCode(ctx, sender); err != nil {
			return nil, err
		}
	}

	if needsSponsorship(op) {
		if err := a.sponsor(ctx, op); err != nil {
			return nil, err
		}
	}
	return op, nil
}

// SignUserOperation sets op.Signature to the owner's EIP-191 signature over
// the user operation hash
func (a *Adapter) SignUserOperation(ctx context.Context, op *UserOperation) error {
	hash, err := op.Hash(a.cfg.EntryPoint, a.cfg.ChainID)
	if err != nil {
		return fmt.Errorf("failed to hash user operation: %w", err)
	}
	res, err := a.owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return err
	}
	op.Signature = res.Normalized
	return nil
}

func (a *Adapter) accountNonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := epABI.Pack("getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}
	out, err := a.net.CallContract(ctx, ethereum.CallMsg{To: &a.cfg.EntryPoint, Data: data})
	if err != nil {
		return nil, err
	}
	vals, err := epABI.Unpack("getNonce", out)
	if err != nil || len(vals) != 1 {
		return nil, fmt.Errorf("failed to decode account nonce: %v", err)
	}
	nonce, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected nonce type %T", vals[0])
	}
	return nonce, nil
}

// deployCode returns the factory initCode while the account is undeployed
func (a *Adapter) deployCode(ctx context.Context, sender common.Address) ([]byte, error) {
	code, err := a.net.CodeAt(ctx, sender)
	if err != nil {
		return nil, err
	}
	if len(code) > 0 {
		return []byte{}, nil
	}
	owner, err := a.Owner(ctx)
	if err != nil {
		return nil, err
	}
	return initCode(a.cfg.Factory, owner, a.cfg.Salt)
}

func needsSponsorship(op *UserOperation) bool {
	return op.PaymasterAndData == nil ||
		op.CallGasLimit == nil ||
		op.VerificationGasLimit == nil ||
		op.PreVerificationGas == nil ||
		op.MaxFeePerGas == nil ||
		op.MaxPriorityFeePerGas == nil
}

func (a *Adapter) sponsor(ctx context.Context, op *UserOperation) error {
	if a.bundler == nil {
		return fmt.Errorf("bundler is required to fill gas and paymaster fields")
	}
	if a.cfg.GasPolicyID == "" {
		return fmt.Errorf("gas policy id is required")
	}

	s, err := a.bundler.RequestGasAndPaymasterAndData(ctx, &SponsorshipRequest{
		PolicyID:       a.cfg.GasPolicyID,
		EntryPoint:     a.cfg.EntryPoint,
		DummySignature: DummySignature,
		Op:             op,
	})
	if err != nil {
		return err
	}

	if op.PaymasterAndData == nil {
		op.PaymasterAndData = s.PaymasterAndData
	}
	fill := func(dst **big.Int, v *big.Int) {
		if *dst == nil {
			*dst = v
		}
	}
	fill(&op.CallGasLimit, s.CallGasLimit)
	fill(&op.VerificationGasLimit, s.VerificationGasLimit)
	fill(&op.PreVerificationGas, s.PreVerificationGas)
	fill(&op.MaxFeePerGas, s.MaxFeePerGas)
	fill(&op.MaxPriorityFeePerGas, s.MaxPriorityFeePerGas)
	return nil
}

var _ chain.Adapter = (*Adapter)(nil)
