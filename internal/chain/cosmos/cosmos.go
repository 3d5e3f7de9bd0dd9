// Package cosmos signs ADR-036 messages and legacy amino JSON transactions
// for Cosmos SDK chains.
package cosmos

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/signature"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Config configures a Cosmos adapter
type Config struct {
	ChainID string
	Prefix  string
	Denom   string

	// DefaultFee is used when a request carries no fee
	DefaultFee Fee
}

// Network reads account state. *LCDClient satisfies it.
type Network interface {
	Account(ctx context.Context, address string) (*Account, error)
}

// MsgSend is an unsigned bank send
type MsgSend struct {
	ToAddress string
	Amount    []Coin
	Memo      string

	Fee           *Fee
	AccountNumber *uint64
	Sequence      *uint64
}

// Family implements chain.TransactionRequest
func (m *MsgSend) Family() chain.Family { return chain.FamilyCosmos }

// Adapter signs for one secp256k1 identity on one Cosmos chain
type Adapter struct {
	cfg    Config
	signer chain.Signer
	net    Network

	pub  []byte
	addr string
}

// New creates an adapter. net may be nil when only messages are signed.
func New(cfg Config, signer chain.Signer, net Network) (*Adapter, error) {
	if err := chain.RequireScheme(signer, types.SchemeSecp256k1); err != nil {
		return nil, err
	}
	if cfg.Prefix == "" {
		return nil, fmt.Errorf("bech32 prefix is required")
	}
	return &Adapter{cfg: cfg, signer: signer, net: net}, nil
}

// AddressFromPublicKey returns bech32(prefix, ripemd160(sha256(compressed key)))
func AddressFromPublicKey(prefix string, compressed []byte) (string, error) {
	sha := sha256.Sum256(compressed)
	h := ripemd160.New()
	h.Write(sha[:])

	conv, err := bech32.ConvertBits(h.Sum(nil), 8, 5, true)
	if err != nil {
		return "", err
	}
	return bech32.Encode(prefix, conv)
}

// CompressedPublicKey returns the identity's 33-byte key
func (a *Adapter) CompressedPublicKey(ctx context.Context) ([]byte, error) {
	if a.pub != nil {
		return a.pub, nil
	}
	raw, err := a.signer.PublicKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	switch len(raw) {
	case 33:
		a.pub = raw
	case 65:
		key, err := ethcrypto.UnmarshalPubkey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid public key: %w", err)
		}
		a.pub = ethcrypto.CompressPubkey(key)
	default:
		return nil, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	return a.pub, nil
}

// Address returns the bech32 account address
func (a *Adapter) Address(ctx context.Context) (string, error) {
	if a.addr != "" {
		return a.addr, nil
	}
	pub, err := a.CompressedPublicKey(ctx)
	if err != nil {
		return "", err
	}
	addr, err := AddressFromPublicKey(a.cfg.Prefix, pub)
	if err != nil {
		return "", fmt.Errorf("failed to encode address: %w", err)
	}
	a.addr = addr
	return addr, nil
}

// SignMessage signs msg as an ADR-036 arbitrary-data sign document
func (a *Adapter) SignMessage(ctx context.Context, msg []byte) (signature.Result, error) {
	addr, err := a.Address(ctx)
	if err != nil {
		return signature.Result{}, err
	}
	return a.signDoc(ctx, arbitrarySignDoc(addr, msg))
}

func (a *Adapter) signDoc(ctx context.Context, doc StdSignDoc) (signature.Result, error) {
	bz, err := doc.Bytes()
	if err != nil {
		return signature.Result{}, fmt.Errorf("failed to encode sign doc: %w", err)
	}
	digest := sha256.Sum256(bz)

	raw, err := a.signer.Sign(ctx, digest[:])
	if err != nil {
		return signature.Result{}, fmt.Errorf("failed to sign: %w", err)
	}
	return signature.New(raw, signature.RuleCosmos), nil
}

// SignDoc builds the amino sign document for m, filling account number and
// sequence from the network when unset
func (a *Adapter) SignDoc(ctx context.Context, m *MsgSend) (StdSignDoc, error) {
	from, err := a.Address(ctx)
	if err != nil {
		return StdSignDoc{}, err
	}
	if m.ToAddress == "" {
		return StdSignDoc{}, fmt.Errorf("recipient is required")
	}

	accNum, seq := m.AccountNumber, m.Sequence
	if accNum == nil || seq == nil {
		if a.net == nil {
			return StdSignDoc{}, fmt.Errorf("network client is required to fill account fields")
		}
		acc, err := a.net.Account(ctx, from)
		if err != nil {
			return StdSignDoc{}, err
		}
		if accNum == nil {
			accNum = &acc.AccountNumber
		}
		if seq == nil {
			seq = &acc.Sequence
		}
	}

	fee := a.cfg.DefaultFee
	if m.Fee != nil {
		fee = *m.Fee
	}
	if fee.Amount == nil {
		fee.Amount = []Coin{}
	}

	return StdSignDoc{
		AccountNumber: u64(*accNum),
		ChainID:       a.cfg.ChainID,
		Fee:           fee,
		Memo:          m.Memo,
		Msgs:          []Msg{newMsgSend(from, m.ToAddress, m.Amount)},
		Sequence:      u64(*seq),
	}, nil
}

// SignTransaction signs a MsgSend and returns the StdTx JSON
func (a *Adapter) SignTransaction(ctx context.Context, req chain.TransactionRequest) ([]byte, error) {
	m, ok := req.(*MsgSend)
	if !ok {
		return nil, fmt.Errorf("%w: %T", chain.ErrUnsupportedTransaction, req)
	}

	doc, err := a.SignDoc(ctx, m)
	if err != nil {
		return nil, err
	}
	res, err := a.signDoc(ctx, doc)
	if err != nil {
		return nil, err
	}
	pub, err := a.CompressedPublicKey(ctx)
	if err != nil {
		return nil, err
	}

	tx := StdTx{
		Type: stdTxType,
		Value: StdTxValue{
			Msg: doc.Msgs,
			Fee: doc.Fee,
			Signatures: []StdSignature{{
				PubKey:    PubKey{Type: pubKeyType, Value: pub},
				Signature: res.Normalized,
			}},
			Memo: doc.Memo,
		},
	}
	return json.Marshal(tx)
}

var _ chain.Adapter = (*Adapter)(nil)
