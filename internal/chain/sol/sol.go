// Package sol signs raw messages and legacy system-transfer transactions for
// Solana.
package sol

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/signature"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Config configures a Solana adapter
type Config struct {
	// Commitment used for blockhash lookups; empty means finalized
	Commitment rpc.CommitmentType
}

// Network fetches a recent blockhash. *RPCNetwork satisfies it.
type Network interface {
	LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error)
}

// Transfer is an unsigned SOL transfer
type Transfer struct {
	To       solana.PublicKey
	Lamports uint64

	// RecentBlockhash is fetched when empty
	RecentBlockhash string
}

// Family implements chain.TransactionRequest
func (t *Transfer) Family() chain.Family { return chain.FamilySolana }

// Adapter signs for one ed25519 identity
type Adapter struct {
	cfg    Config
	signer chain.Signer
	net    Network

	pub *solana.PublicKey
}

// New creates an adapter. net may be nil when only messages are signed.
func New(cfg Config, signer chain.Signer, net Network) (*Adapter, error) {
	if err := chain.RequireScheme(signer, types.SchemeEd25519); err != nil {
		return nil, err
	}
	if cfg.Commitment == "" {
		cfg.Commitment = rpc.CommitmentFinalized
	}
	return &Adapter{cfg: cfg, signer: signer, net: net}, nil
}

// PublicKey returns the account key
func (a *Adapter) PublicKey(ctx context.Context) (solana.PublicKey, error) {
	if a.pub != nil {
		return *a.pub, nil
	}
	raw, err := a.signer.PublicKey(ctx)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to get public key: %w", err)
	}
	if len(raw) != solana.PublicKeyLength {
		return solana.PublicKey{}, fmt.Errorf("invalid public key length: %d", len(raw))
	}
	pk := solana.PublicKeyFromBytes(raw)
	a.pub = &pk
	return pk, nil
}

// Address returns the base58 account address
func (a *Adapter) Address(ctx context.Context) (string, error) {
	pk, err := a.PublicKey(ctx)
	if err != nil {
		return "", err
	}
	return pk.String(), nil
}

// SignMessage signs msg directly with ed25519
func (a *Adapter) SignMessage(ctx context.Context, msg []byte) (signature.Result, error) {
	raw, err := a.signer.Sign(ctx, msg)
	if err != nil {
		return signature.Result{}, fmt.Errorf("failed to sign: %w", err)
	}
	if len(raw) != solana.SignatureLength {
		return signature.Result{}, fmt.Errorf("unexpected signature length: %d", len(raw))
	}
	return signature.New(raw, signature.RuleNone), nil
}

// BuildTransaction assembles an unsigned legacy transaction paid by the
// identity
func (a *Adapter) BuildTransaction(ctx context.Context, t *Transfer) (*solana.Transaction, error) {
	from, err := a.PublicKey(ctx)
	if err != nil {
		return nil, err
	}

	var blockhash solana.Hash
	if t.RecentBlockhash != "" {
		if blockhash, err = solana.HashFromBase58(t.RecentBlockhash); err != nil {
			return nil, fmt.Errorf("invalid recent blockhash: %w", err)
		}
	} else {
		if a.net == nil {
			return nil, fmt.Errorf("network client is required to fetch a blockhash")
		}
		if blockhash, err = a.net.LatestBlockhash(ctx, a.cfg.Commitment); err != nil {
			return nil, err
		}
	}

	ix := system.NewTransferInstruction(t.Lamports, from, t.To).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, blockhash, solana.TransactionPayer(from))
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction: %w", err)
	}
	return tx, nil
}

// SignTransaction signs the message bytes and returns the wire-encoded
// transaction
func (a *Adapter) SignTransaction(ctx context.Context, req chain.TransactionRequest) ([]byte, error) {
	t, ok := req.(*Transfer)
	if !ok {
		return nil, fmt.Errorf("%w: %T", chain.ErrUnsupportedTransaction, req)
	}

	tx, err := a.BuildTransaction(ctx, t)
	if err != nil {
		return nil, err
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	res, err := a.SignMessage(ctx, msg)
	if err != nil {
		return nil, err
	}
	tx.Signatures = []solana.Signature{solana.SignatureFromBytes(res.Normalized)}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to encode transaction: %w", err)
	}
	return raw, nil
}

var _ chain.Adapter = (*Adapter)(nil)
