package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

func TestParseSchemes(t *testing.T) {
	all, err := parseSchemes("all")
	require.NoError(t, err)
	assert.Equal(t, []types.Scheme{types.SchemeSecp256k1, types.SchemeEd25519}, all)

	one, err := parseSchemes("ed25519")
	require.NoError(t, err)
	assert.Equal(t, []types.Scheme{types.SchemeEd25519}, one)

	_, err = parseSchemes("rsa")
	assert.Error(t, err)
}

type execShares map[string]*types.ExecShare

func (e execShares) GetByWalletID(ctx context.Context, walletID string) (*types.ExecShare, error) {
	return e[walletID], nil
}

func (e execShares) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	return len(e) > 0, nil
}

func TestExportSession_RoundTrip(t *testing.T) {
	ctx := context.Background()
	provider, err := keyexec.NewLocalKMSProvider("pregen-test")
	require.NoError(t, err)
	exec := keyexec.NewExecutor(provider)

	prov, err := exec.Provision(ctx, types.SchemeSecp256k1)
	require.NoError(t, err)
	sealed, err := exec.Seal(ctx, prov.UserShare)
	require.NoError(t, err)

	shares := execShares{"wallet-1": {
		WalletID:       "wallet-1",
		UserID:         "a@b.com",
		Scheme:         types.SchemeSecp256k1,
		PublicKey:      prov.PublicKey,
		EncryptedShare: prov.SealedExecShare,
	}}
	svc := identity.NewLocalService(exec, shares)

	token, err := exportSession(ctx, svc, provider, &types.KeyShareRecord{
		UserID:         "a@b.com",
		WalletID:       "wallet-1",
		Scheme:         types.SchemeSecp256k1,
		EncryptedShare: sealed,
	}, time.Hour)
	require.NoError(t, err)

	id, err := identity.NewImporter(svc).ImportSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "wallet-1", id.WalletID())
	pub, err := id.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, prov.PublicKey, pub)
}
