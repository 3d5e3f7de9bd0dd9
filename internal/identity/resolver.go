package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/better-wallet/signing-gateway/internal/crypto"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Resolver builds identities for pregenerated wallets from stored key shares.
type Resolver struct {
	service   Service
	store     KeyShareStore
	decrypter Decrypter
}

// NewResolver creates a new Resolver
func NewResolver(service Service, store KeyShareStore, decrypter Decrypter) *Resolver {
	return &Resolver{
		service:   service,
		store:     store,
		decrypter: decrypter,
	}
}

// ResolveByUserID returns an identity for the user's wallet of the given
// scheme. When several wallets match, the oldest wins.
func (r *Resolver) ResolveByUserID(ctx context.Context, userID string, scheme types.Scheme) (Identity, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user id", ErrWalletNotFound)
	}

	exists, err := r.service.WalletExists(ctx, userID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: wallet lookup: %w", ErrService, err)
	}
	if !exists {
		return nil, ErrWalletNotFound
	}

	records, err := r.store.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("key share lookup: %w", err)
	}

	rec, extra := selectRecord(records, scheme)
	if rec == nil {
		return nil, fmt.Errorf("%w: no %s key share", ErrWalletNotFound, scheme)
	}
	if extra > 0 {
		logger.Warn(ctx, "multiple key shares match, using oldest",
			"user", logger.MaskEmail(userID),
			"scheme", scheme,
			"wallet_id", rec.WalletID,
			"ignored", extra,
		)
	}

	share, err := r.decrypter.Decrypt(ctx, rec.EncryptedShare)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}
	defer crypto.Zero(share)

	id, err := r.service.InstallShare(ctx, rec, share)
	if err != nil {
		if errors.Is(err, ErrIdentityBinding) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrIdentityBinding, err)
	}
	return id, nil
}

// selectRecord picks the oldest record of scheme and counts the other matches.
func selectRecord(records []*types.KeyShareRecord, scheme types.Scheme) (*types.KeyShareRecord, int) {
	var chosen *types.KeyShareRecord
	matches := 0
	for _, rec := range records {
		if rec.Scheme != scheme {
			continue
		}
		matches++
		if chosen == nil || rec.CreatedAt.Before(chosen.CreatedAt) {
			chosen = rec
		}
	}
	if chosen == nil {
		return nil, 0
	}
	return chosen, matches - 1
}
