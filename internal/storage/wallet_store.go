package storage

import (
	"context"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// SaveWallet stores both halves of a newly provisioned wallet atomically
func (s *Store) SaveWallet(ctx context.Context, exec *types.ExecShare, rec *types.KeyShareRecord) error {
	return s.WithTx(ctx, func(tx DBTX) error {
		if err := NewExecShareRepositoryWithDB(tx).CreateTx(ctx, tx, exec); err != nil {
			return err
		}
		return NewKeyShareRepositoryWithDB(tx).CreateTx(ctx, tx, rec)
	})
}
