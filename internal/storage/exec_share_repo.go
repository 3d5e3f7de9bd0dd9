package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// ExecShareRepository handles the service-held half of locally managed wallets
type ExecShareRepository struct {
	db DBTX
}

// NewExecShareRepository creates a new ExecShareRepository
func NewExecShareRepository(store *Store) *ExecShareRepository {
	return &ExecShareRepository{db: store.pool}
}

// NewExecShareRepositoryWithDB creates a repository on an arbitrary connection
func NewExecShareRepositoryWithDB(db DBTX) *ExecShareRepository {
	return &ExecShareRepository{db: db}
}

// Create stores an exec share
func (r *ExecShareRepository) Create(ctx context.Context, share *types.ExecShare) error {
	return r.CreateTx(ctx, r.db, share)
}

// CreateTx stores an exec share using the provided transaction or connection
func (r *ExecShareRepository) CreateTx(ctx context.Context, db DBTX, share *types.ExecShare) error {
	query := `
		INSERT INTO exec_shares (wallet_id, user_id, scheme, public_key, encrypted_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := db.QueryRow(ctx, query,
		share.WalletID,
		share.UserID,
		string(share.Scheme),
		share.PublicKey,
		share.EncryptedShare,
	).Scan(&share.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create exec share: %w", err)
	}
	return nil
}

// GetByWalletID returns the exec share for a wallet or ErrNotFound
func (r *ExecShareRepository) GetByWalletID(ctx context.Context, walletID string) (*types.ExecShare, error) {
	query := `
		SELECT wallet_id, user_id, scheme, public_key, encrypted_share, created_at
		FROM exec_shares
		WHERE wallet_id = $1
	`

	var share types.ExecShare
	var scheme string
	err := r.db.QueryRow(ctx, query, walletID).Scan(
		&share.WalletID,
		&share.UserID,
		&scheme,
		&share.PublicKey,
		&share.EncryptedShare,
		&share.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get exec share: %w", err)
	}
	share.Scheme = types.Scheme(scheme)

	return &share, nil
}

// ExistsForUser reports whether any wallet is registered for userID
func (r *ExecShareRepository) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exec_shares WHERE user_id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check wallet existence: %w", err)
	}
	return exists, nil
}
