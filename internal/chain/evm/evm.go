// Package evm signs EIP-191 messages and EIP-155 / EIP-1559 transactions.
package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/signature"
	pkgtypes "github.com/better-wallet/signing-gateway/pkg/types"
)

// TxType selects the transaction envelope
type TxType int

const (
	// DynamicFee is an EIP-1559 type-2 transaction
	DynamicFee TxType = iota
	// Legacy is a pre-London EIP-155 transaction
	Legacy
)

// Config configures an EVM adapter
type Config struct {
	ChainID *big.Int
	TxType  TxType
}

// Network is the node access needed to fill unset transaction fields.
// *eth.Client satisfies it.
type Network interface {
	PendingNonce(ctx context.Context, addr common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	BaseFee(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// Transaction is an unsigned EVM transaction request
type Transaction struct {
	To    *common.Address
	Value *big.Int
	Data  []byte

	Nonce     *uint64
	Gas       *uint64
	GasPrice  *big.Int // legacy only
	GasTipCap *big.Int // dynamic fee only
	GasFeeCap *big.Int // dynamic fee only
}

// Family implements chain.TransactionRequest
func (t *Transaction) Family() chain.Family { return chain.FamilyEVM }

// Adapter signs for one secp256k1 identity on one EVM chain
type Adapter struct {
	cfg    Config
	signer chain.Signer
	net    Network

	addr *common.Address
}

// New creates an adapter. net may be nil when only messages are signed.
func New(cfg Config, signer chain.Signer, net Network) (*Adapter, error) {
	if err := chain.RequireScheme(signer, pkgtypes.SchemeSecp256k1); err != nil {
		return nil, err
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("chain id is required")
	}
	return &Adapter{cfg: cfg, signer: signer, net: net}, nil
}

// Address returns the checksummed address
func (a *Adapter) Address(ctx context.Context) (string, error) {
	addr, err := a.CommonAddress(ctx)
	if err != nil {
		return "", err
	}
	return addr.Hex(), nil
}

// CommonAddress returns the address derived from the identity's public key
func (a *Adapter) CommonAddress(ctx context.Context) (common.Address, error) {
	if a.addr != nil {
		return *a.addr, nil
	}
	pub, err := a.signer.PublicKey(ctx)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to get public key: %w", err)
	}
	addr, err := AddressFromPublicKey(pub)
	if err != nil {
		return common.Address{}, err
	}
	a.addr = &addr
	return addr, nil
}

// AddressFromPublicKey accepts compressed (33-byte) or uncompressed
// (65-byte) secp256k1 keys
func AddressFromPublicKey(pub []byte) (common.Address, error) {
	switch len(pub) {
	case 65:
		key, err := ethcrypto.UnmarshalPubkey(pub)
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid public key: %w", err)
		}
		return ethcrypto.PubkeyToAddress(*key), nil
	case 33:
		key, err := ethcrypto.DecompressPubkey(pub)
		if err != nil {
			return common.Address{}, fmt.Errorf("invalid public key: %w", err)
		}
		return ethcrypto.PubkeyToAddress(*key), nil
	default:
		return common.Address{}, fmt.Errorf("invalid public key length: %d", len(pub))
	}
}

// SignMessage signs msg with EIP-191 personal_sign framing
func (a *Adapter) SignMessage(ctx context.Context, msg []byte) (signature.Result, error) {
	return a.SignHash(ctx, accounts.TextHash(msg))
}

// SignHash signs a 32-byte digest as-is. The result's recovery byte is 27/28.
func (a *Adapter) SignHash(ctx context.Context, digest []byte) (signature.Result, error) {
	raw, err := a.signer.Sign(ctx, digest)
	if err != nil {
		return signature.Result{}, fmt.Errorf("failed to sign: %w", err)
	}
	if len(raw) != 65 {
		return signature.Result{}, fmt.Errorf("unexpected signature length: %d", len(raw))
	}
	return signature.New(raw, signature.RuleEVM), nil
}

// SignTransaction fills, signs and RLP/typed-envelope encodes tx
func (a *Adapter) SignTransaction(ctx context.Context, req chain.TransactionRequest) ([]byte, error) {
	t, ok := req.(*Transaction)
	if !ok {
		return nil, fmt.Errorf("%w: %T", chain.ErrUnsupportedTransaction, req)
	}

	tx, err := a.BuildTransaction(ctx, t)
	if err != nil {
		return nil, err
	}

	signed, err := a.SignTx(ctx, tx)
	if err != nil {
		return nil, err
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return raw, nil
}

// BuildTransaction fills unset fields from the network. Set fields are kept.
func (a *Adapter) BuildTransaction(ctx context.Context, t *Transaction) (*types.Transaction, error) {
	from, err := a.CommonAddress(ctx)
	if err != nil {
		return nil, err
	}

	needsNetwork := t.Nonce == nil || t.Gas == nil
	if a.cfg.TxType == Legacy {
		needsNetwork = needsNetwork || t.GasPrice == nil
	} else {
		needsNetwork = needsNetwork || t.GasTipCap == nil || t.GasFeeCap == nil
	}
	if needsNetwork && a.net == nil {
		return nil, fmt.Errorf("network client is required to fill transaction fields")
	}

	value := t.Value
	if value == nil {
		value = new(big.Int)
	}

	var nonce uint64
	if t.Nonce != nil {
		nonce = *t.Nonce
	} else if nonce, err = a.net.PendingNonce(ctx, from); err != nil {
		return nil, err
	}

	msg := ethereum.CallMsg{From: from, To: t.To, Value: value, Data: t.Data}

	var gasPrice, tipCap, feeCap *big.Int
	if a.cfg.TxType == Legacy {
		gasPrice = t.GasPrice
		if gasPrice == nil {
			if gasPrice, err = a.net.SuggestGasPrice(ctx); err != nil {
				return nil, err
			}
		}
		msg.GasPrice = gasPrice
	} else {
		if tipCap, feeCap, err = a.dynamicFees(ctx, t); err != nil {
			return nil, err
		}
		msg.GasTipCap, msg.GasFeeCap = tipCap, feeCap
	}

	var gas uint64
	if t.Gas != nil {
		gas = *t.Gas
	} else if gas, err = a.net.EstimateGas(ctx, msg); err != nil {
		return nil, err
	}

	if a.cfg.TxType == Legacy {
		return types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: gasPrice,
			Gas:      gas,
			To:       t.To,
			Value:    value,
			Data:     t.Data,
		}), nil
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   a.cfg.ChainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        t.To,
		Value:     value,
		Data:      t.Data,
	}), nil
}

// dynamicFees fills tip and fee cap; the cap defaults to 2*baseFee + tip
func (a *Adapter) dynamicFees(ctx context.Context, t *Transaction) (*big.Int, *big.Int, error) {
	tip, feeCap := t.GasTipCap, t.GasFeeCap
	var err error
	if tip == nil {
		if tip, err = a.net.SuggestGasTipCap(ctx); err != nil {
			return nil, nil, err
		}
	}
	if feeCap == nil {
		base, err := a.net.BaseFee(ctx)
		if err != nil {
			return nil, nil, err
		}
		if base == nil {
			if base, err = a.net.SuggestGasPrice(ctx); err != nil {
				return nil, nil, err
			}
		}
		feeCap = new(big.Int).Add(new(big.Int).Mul(base, big.NewInt(2)), tip)
	}
	return tip, feeCap, nil
}

// SignTx signs a fully populated transaction for the configured chain
func (a *Adapter) SignTx(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	signer := types.LatestSignerForChainID(a.cfg.ChainID)

	res, err := a.SignHash(ctx, signer.Hash(tx).Bytes())
	if err != nil {
		return nil, err
	}

	// WithSignature takes the bare parity, not the 27/28 form
	sig := append([]byte(nil), res.Normalized...)
	sig[64] -= 27

	signed, err := tx.WithSignature(signer, sig)
	if err != nil {
		return nil, fmt.Errorf("failed to attach signature: %w", err)
	}
	return signed, nil
}

var _ chain.Adapter = (*Adapter)(nil)
