package keyexec

import (
	"context"
	"fmt"

	"github.com/better-wallet/signing-gateway/internal/crypto"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Provisioned is the output of creating a new wallet: the plaintext user
// share (the caller seals or stores it) and the exec share sealed by the KMS.
type Provisioned struct {
	Scheme          types.Scheme
	PublicKey       []byte
	UserShare       []byte
	SealedExecShare []byte
}

// Executor rebuilds a wallet secret from its user share and sealed exec
// share for the duration of a single operation. Secrets never outlive the call.
type Executor struct {
	provider KMSProvider
}

// NewExecutor creates an executor on top of provider
func NewExecutor(provider KMSProvider) *Executor {
	return &Executor{provider: provider}
}

// Provider returns the KMS provider name
func (e *Executor) Provider() string {
	return e.provider.Provider()
}

// Seal encrypts data with the KMS provider
func (e *Executor) Seal(ctx context.Context, data []byte) ([]byte, error) {
	return e.provider.Encrypt(ctx, data)
}

// Open decrypts data with the KMS provider
func (e *Executor) Open(ctx context.Context, sealed []byte) ([]byte, error) {
	return e.provider.Decrypt(ctx, sealed)
}

// Provision generates a secret for scheme and splits it 2-of-2
func (e *Executor) Provision(ctx context.Context, scheme types.Scheme) (*Provisioned, error) {
	secret, err := crypto.GenerateSecret(scheme)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(secret)

	pub, err := crypto.PublicKey(scheme, secret)
	if err != nil {
		return nil, err
	}

	shares, err := crypto.SplitSecret(secret)
	if err != nil {
		return nil, err
	}

	sealed, err := e.provider.Encrypt(ctx, shares.ExecShare)
	crypto.Zero(shares.ExecShare)
	if err != nil {
		return nil, fmt.Errorf("failed to seal exec share: %w", err)
	}

	return &Provisioned{
		Scheme:          scheme,
		PublicKey:       pub,
		UserShare:       shares.UserShare,
		SealedExecShare: sealed,
	}, nil
}

// PublicKey rebuilds the secret only long enough to derive its public key
func (e *Executor) PublicKey(ctx context.Context, scheme types.Scheme, userShare, sealedExecShare []byte) ([]byte, error) {
	var pub []byte
	err := e.withSecret(ctx, userShare, sealedExecShare, func(secret []byte) error {
		var err error
		pub, err = crypto.PublicKey(scheme, secret)
		return err
	})
	return pub, err
}

// Sign signs payload with the rebuilt secret. secp256k1 payloads are 32-byte
// digests; ed25519 payloads are full messages.
func (e *Executor) Sign(ctx context.Context, scheme types.Scheme, userShare, sealedExecShare, payload []byte) ([]byte, error) {
	var sig []byte
	err := e.withSecret(ctx, userShare, sealedExecShare, func(secret []byte) error {
		var err error
		sig, err = crypto.Sign(scheme, secret, payload)
		return err
	})
	return sig, err
}

func (e *Executor) withSecret(ctx context.Context, userShare, sealedExecShare []byte, fn func(secret []byte) error) error {
	execShare, err := e.provider.Decrypt(ctx, sealedExecShare)
	if err != nil {
		return fmt.Errorf("failed to open exec share: %w", err)
	}
	defer crypto.Zero(execShare)

	secret, err := crypto.CombineShares(userShare, execShare)
	if err != nil {
		return fmt.Errorf("failed to rebuild key: %w", err)
	}
	defer crypto.Zero(secret)

	return fn(secret)
}
