package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/better-wallet/signing-gateway/internal/crypto"
	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// WalletStore persists a provisioned wallet. *storage.Store satisfies it.
type WalletStore interface {
	SaveWallet(ctx context.Context, exec *types.ExecShare, rec *types.KeyShareRecord) error
}

// Provisioner creates pregenerated wallets for the self-hosted identity
// backend: the user share is sealed into user_key_shares and the exec share
// into exec_shares, both under the KMS provider.
type Provisioner struct {
	exec  *keyexec.Executor
	store WalletStore
}

// NewProvisioner creates a new Provisioner
func NewProvisioner(exec *keyexec.Executor, store WalletStore) *Provisioner {
	return &Provisioner{exec: exec, store: store}
}

// Pregenerate creates a wallet of scheme for userID and returns its key
// share record and public key.
func (p *Provisioner) Pregenerate(ctx context.Context, userID string, scheme types.Scheme) (*types.KeyShareRecord, []byte, error) {
	if userID == "" {
		return nil, nil, fmt.Errorf("user id is required")
	}
	if !scheme.Valid() {
		return nil, nil, fmt.Errorf("unknown scheme %q", scheme)
	}

	prov, err := p.exec.Provision(ctx, scheme)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to provision wallet: %w", err)
	}

	sealedUser, err := p.exec.Seal(ctx, prov.UserShare)
	crypto.Zero(prov.UserShare)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to seal user share: %w", err)
	}

	walletID := uuid.NewString()
	exec := &types.ExecShare{
		WalletID:       walletID,
		UserID:         userID,
		Scheme:         scheme,
		PublicKey:      prov.PublicKey,
		EncryptedShare: prov.SealedExecShare,
	}
	rec := &types.KeyShareRecord{
		UserID:         userID,
		WalletID:       walletID,
		Scheme:         scheme,
		EncryptedShare: sealedUser,
	}

	if err := p.store.SaveWallet(ctx, exec, rec); err != nil {
		return nil, nil, fmt.Errorf("failed to save wallet: %w", err)
	}

	logger.Info(ctx, "wallet pregenerated",
		"user", logger.MaskEmail(userID),
		"wallet_id", walletID,
		"scheme", scheme,
	)
	return rec, prov.PublicKey, nil
}
