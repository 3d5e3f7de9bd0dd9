// Package chain defines the adapter contract shared by every supported chain
// family. Concrete adapters live in the evm, aa, cosmos and sol subpackages.
package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/signing-gateway/internal/signature"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

var (
	// ErrUnsupportedScheme is returned when an identity's key scheme cannot
	// sign for the adapter's chain.
	ErrUnsupportedScheme = errors.New("identity scheme not supported by chain")

	// ErrUnsupportedTransaction is returned when a transaction request was
	// built for a different chain family.
	ErrUnsupportedTransaction = errors.New("transaction type not supported by chain")
)

// Family groups chains that share an address format and transaction encoding
type Family string

// Chain families
const (
	FamilyEVM    Family = "evm"
	FamilyCosmos Family = "cosmos"
	FamilySolana Family = "solana"
)

// Variant selects a concrete adapter
type Variant string

// Adapter variants
const (
	VariantEVMViem   Variant = "evm-viem"
	VariantEVMEthers Variant = "evm-ethers"
	VariantEVMAA     Variant = "evm-aa"
	VariantCosmos    Variant = "cosmos"
	VariantSolana    Variant = "solana"
)

// Scheme returns the key scheme a variant signs with
func (v Variant) Scheme() types.Scheme {
	if v == VariantSolana {
		return types.SchemeEd25519
	}
	return types.SchemeSecp256k1
}

// Signer is the slice of a signing identity adapters need.
// identity.Identity satisfies it.
type Signer interface {
	Scheme() types.Scheme
	PublicKey(ctx context.Context) ([]byte, error)
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// TransactionRequest is an unsigned, chain-specific transaction. Optional
// fields are pointers so that unset can be told apart from zero; adapters
// fill only unset fields.
type TransactionRequest interface {
	Family() Family
}

// Adapter signs messages and transactions for one identity on one chain.
// An adapter lives for a single request.
type Adapter interface {
	// Address is derived from the identity's public key and cached
	Address(ctx context.Context) (string, error)

	// SignMessage applies the chain's message hashing convention, signs
	// and normalizes the signature.
	SignMessage(ctx context.Context, msg []byte) (signature.Result, error)

	// SignTransaction fills unset fields, signs, and returns the fully
	// encoded signed transaction. Nothing is broadcast.
	SignTransaction(ctx context.Context, tx TransactionRequest) ([]byte, error)
}

// RequireScheme checks that signer can produce signatures for want
func RequireScheme(signer Signer, want types.Scheme) error {
	if signer == nil {
		return fmt.Errorf("signer is required")
	}
	if got := signer.Scheme(); got != want {
		return fmt.Errorf("%w: have %s, need %s", ErrUnsupportedScheme, got, want)
	}
	return nil
}
