package identity

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/internal/storage"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

type memExecShares struct {
	byWallet map[string]*types.ExecShare
}

func (m *memExecShares) GetByWalletID(ctx context.Context, walletID string) (*types.ExecShare, error) {
	if s, ok := m.byWallet[walletID]; ok {
		return s, nil
	}
	return nil, storage.ErrNotFound
}

func (m *memExecShares) ExistsForUser(ctx context.Context, userID string) (bool, error) {
	for _, s := range m.byWallet {
		if s.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

type localFixture struct {
	svc    *LocalService
	exec   *keyexec.Executor
	shares *memExecShares
}

func newLocalFixture(t *testing.T) *localFixture {
	t.Helper()
	provider, err := keyexec.NewLocalKMSProvider("local-identity-test")
	require.NoError(t, err)
	exec := keyexec.NewExecutor(provider)
	shares := &memExecShares{byWallet: map[string]*types.ExecShare{}}
	return &localFixture{svc: NewLocalService(exec, shares), exec: exec, shares: shares}
}

func (f *localFixture) provision(t *testing.T, walletID, userID string, scheme types.Scheme) *keyexec.Provisioned {
	t.Helper()
	p, err := f.exec.Provision(context.Background(), scheme)
	require.NoError(t, err)
	f.shares.byWallet[walletID] = &types.ExecShare{
		WalletID:       walletID,
		UserID:         userID,
		Scheme:         scheme,
		PublicKey:      p.PublicKey,
		EncryptedShare: p.SealedExecShare,
	}
	return p
}

func TestLocalService_SessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newLocalFixture(t)
	p := f.provision(t, "w1", "a@b.com", types.SchemeSecp256k1)

	token, err := f.svc.ExportSession(ctx, "w1", types.SchemeSecp256k1, p.UserShare, time.Hour)
	require.NoError(t, err)
	require.NoError(t, validateSessionToken(token))

	id, err := f.svc.ImportSession(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "w1", id.WalletID())
	assert.Equal(t, types.SchemeSecp256k1, id.Scheme())

	pub, err := id.PublicKey(ctx)
	require.NoError(t, err)
	assert.Equal(t, p.PublicKey, pub)

	digest := ethcrypto.Keccak256([]byte("hi"))
	sig, err := id.Sign(ctx, digest)
	require.NoError(t, err)
	recovered, err := ethcrypto.Ecrecover(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, p.PublicKey, recovered)
}

func TestLocalService_ImportSessionRejections(t *testing.T) {
	ctx := context.Background()
	f := newLocalFixture(t)
	p := f.provision(t, "w1", "a@b.com", types.SchemeSecp256k1)

	expired, err := f.svc.ExportSession(ctx, "w1", types.SchemeSecp256k1, p.UserShare, -time.Minute)
	require.NoError(t, err)

	unknown, err := f.svc.ExportSession(ctx, "w-missing", types.SchemeSecp256k1, p.UserShare, time.Hour)
	require.NoError(t, err)

	other := f.provision(t, "w2", "c@d.com", types.SchemeSecp256k1)
	mismatched, err := f.svc.ExportSession(ctx, "w1", types.SchemeSecp256k1, other.UserShare, time.Hour)
	require.NoError(t, err)

	sealedGarbage, err := f.exec.Seal(ctx, []byte(`{"nope":true}`))
	require.NoError(t, err)

	tests := map[string]string{
		"not base64":     "***",
		"not sealed":     "abc",
		"expired":        expired,
		"unknown wallet": unknown,
		"wrong share":    mismatched,
		"bad bundle":     base64.RawURLEncoding.EncodeToString(sealedGarbage),
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.ImportSession(ctx, token)
			assert.ErrorIs(t, err, ErrInvalidSession)
		})
	}
}

func TestLocalService_InstallShare(t *testing.T) {
	ctx := context.Background()
	f := newLocalFixture(t)
	p := f.provision(t, "sol-1", "a@b.com", types.SchemeEd25519)

	rec := &types.KeyShareRecord{WalletID: "sol-1", UserID: "a@b.com", Scheme: types.SchemeEd25519}
	share := append([]byte(nil), p.UserShare...)

	id, err := f.svc.InstallShare(ctx, rec, share)
	require.NoError(t, err)

	// caller zeroing its copy must not break the identity
	for i := range share {
		share[i] = 0
	}

	msg := []byte("solana message")
	sig, err := id.Sign(ctx, msg)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(p.PublicKey, msg, sig))

	t.Run("scheme mismatch", func(t *testing.T) {
		bad := &types.KeyShareRecord{WalletID: "sol-1", Scheme: types.SchemeSecp256k1}
		_, err := f.svc.InstallShare(ctx, bad, p.UserShare)
		assert.ErrorIs(t, err, ErrIdentityBinding)
	})

	t.Run("no exec share", func(t *testing.T) {
		bad := &types.KeyShareRecord{WalletID: "nope", Scheme: types.SchemeEd25519}
		_, err := f.svc.InstallShare(ctx, bad, p.UserShare)
		assert.ErrorIs(t, err, ErrIdentityBinding)
	})
}

func TestLocalService_WalletExists(t *testing.T) {
	f := newLocalFixture(t)
	f.provision(t, "w1", "a@b.com", types.SchemeSecp256k1)

	ok, err := f.svc.WalletExists(context.Background(), "a@b.com")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = f.svc.WalletExists(context.Background(), "x@y.com")
	require.NoError(t, err)
	assert.False(t, ok)
}
