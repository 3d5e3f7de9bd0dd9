package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// KeyShareRepository handles pregenerated wallet user shares
type KeyShareRepository struct {
	db DBTX
}

// NewKeyShareRepository creates a new KeyShareRepository
func NewKeyShareRepository(store *Store) *KeyShareRepository {
	return &KeyShareRepository{db: store.pool}
}

// NewKeyShareRepositoryWithDB creates a repository on an arbitrary connection
func NewKeyShareRepositoryWithDB(db DBTX) *KeyShareRepository {
	return &KeyShareRepository{db: db}
}

// Create inserts a key share record, assigning an ID when unset
func (r *KeyShareRepository) Create(ctx context.Context, rec *types.KeyShareRecord) error {
	return r.CreateTx(ctx, r.db, rec)
}

// CreateTx inserts a key share record using the provided transaction or connection
func (r *KeyShareRepository) CreateTx(ctx context.Context, db DBTX, rec *types.KeyShareRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	query := `
		INSERT INTO user_key_shares (id, user_id, wallet_id, scheme, encrypted_share)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	err := db.QueryRow(ctx, query,
		rec.ID,
		rec.UserID,
		rec.WalletID,
		string(rec.Scheme),
		rec.EncryptedShare,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create key share: %w", err)
	}

	return nil
}

// ListByUserID returns every key share for a user, oldest first
func (r *KeyShareRepository) ListByUserID(ctx context.Context, userID string) ([]*types.KeyShareRecord, error) {
	query := `
		SELECT id, user_id, wallet_id, scheme, encrypted_share, created_at
		FROM user_key_shares
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list key shares: %w", err)
	}
	defer rows.Close()

	var records []*types.KeyShareRecord
	for rows.Next() {
		var rec types.KeyShareRecord
		var scheme string
		if err := rows.Scan(
			&rec.ID,
			&rec.UserID,
			&rec.WalletID,
			&scheme,
			&rec.EncryptedShare,
			&rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan key share: %w", err)
		}
		rec.Scheme = types.Scheme(scheme)
		records = append(records, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate key shares: %w", err)
	}

	return records, nil
}

// DeleteByWalletID removes the key share for a wallet
func (r *KeyShareRepository) DeleteByWalletID(ctx context.Context, walletID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_key_shares WHERE wallet_id = $1`, walletID)
	if err != nil {
		return fmt.Errorf("failed to delete key share: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
