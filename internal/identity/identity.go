// Package identity resolves per-request signing identities, either from a
// session token or from a pregenerated wallet's stored key share.
package identity

import (
	"context"
	"errors"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Sentinel errors. Callers match them with errors.Is; backends wrap them with
// context using %w.
var (
	ErrInvalidSession  = errors.New("invalid session")
	ErrWalletNotFound  = errors.New("wallet does not exist")
	ErrDecryption      = errors.New("key share decryption failed")
	ErrIdentityBinding = errors.New("identity binding failed")
	ErrService         = errors.New("identity service failure")
)

// Identity can sign for exactly one wallet. It lives for one request.
type Identity interface {
	WalletID() string
	Scheme() types.Scheme

	// PublicKey returns the uncompressed secp256k1 key (65 bytes) or the
	// ed25519 key (32 bytes).
	PublicKey(ctx context.Context) ([]byte, error)

	// Sign signs a 32-byte digest (secp256k1) or a full message (ed25519)
	// and returns the raw signature, before any chain normalization.
	Sign(ctx context.Context, payload []byte) ([]byte, error)
}

// Service is a wallet-as-a-service backend.
type Service interface {
	// ImportSession turns an exported session into an identity. Rejected
	// tokens produce ErrInvalidSession.
	ImportSession(ctx context.Context, token string) (Identity, error)

	// WalletExists reports whether the backend knows a wallet for userID.
	WalletExists(ctx context.Context, userID string) (bool, error)

	// InstallShare binds a decrypted user share into a fresh signing
	// context. Rejections produce ErrIdentityBinding.
	InstallShare(ctx context.Context, rec *types.KeyShareRecord, share []byte) (Identity, error)
}

// KeyShareStore lists a user's stored key shares, oldest first.
type KeyShareStore interface {
	ListByUserID(ctx context.Context, userID string) ([]*types.KeyShareRecord, error)
}

// Decrypter opens sealed key shares. keyexec.KMSProvider satisfies it.
type Decrypter interface {
	Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error)
}
