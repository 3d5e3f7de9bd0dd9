package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/internal/storage"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// ExecShareStore holds the service half of locally managed wallets
type ExecShareStore interface {
	GetByWalletID(ctx context.Context, walletID string) (*types.ExecShare, error)
	ExistsForUser(ctx context.Context, userID string) (bool, error)
}

// LocalService is a self-hosted identity backend. A wallet secret is split
// 2-of-2: the user share travels in sealed session tokens or sits encrypted
// in user_key_shares, and the exec share stays in exec_shares.
type LocalService struct {
	exec   *keyexec.Executor
	shares ExecShareStore
	now    func() time.Time
}

// NewLocalService creates a new LocalService
func NewLocalService(exec *keyexec.Executor, shares ExecShareStore) *LocalService {
	return &LocalService{
		exec:   exec,
		shares: shares,
		now:    time.Now,
	}
}

// sessionBundle is the plaintext inside a sealed session token
type sessionBundle struct {
	SessionID uuid.UUID    `json:"sid"`
	WalletID  string       `json:"wallet_id"`
	Scheme    types.Scheme `json:"scheme"`
	Share     []byte       `json:"share"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// ExportSession seals a user share into a session token valid for ttl
func (s *LocalService) ExportSession(ctx context.Context, walletID string, scheme types.Scheme, userShare []byte, ttl time.Duration) (string, error) {
	plain, err := json.Marshal(sessionBundle{
		SessionID: uuid.New(),
		WalletID:  walletID,
		Scheme:    scheme,
		Share:     userShare,
		ExpiresAt: s.now().Add(ttl).UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode session: %w", err)
	}

	sealed, err := s.exec.Seal(ctx, plain)
	if err != nil {
		return "", fmt.Errorf("failed to seal session: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// ImportSession opens a token produced by ExportSession
func (s *LocalService) ImportSession(ctx context.Context, token string) (Identity, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: not base64url", ErrInvalidSession)
	}

	plain, err := s.exec.Open(ctx, sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot open token", ErrInvalidSession)
	}

	var bundle sessionBundle
	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: malformed bundle", ErrInvalidSession)
	}
	if !bundle.Scheme.Valid() || bundle.WalletID == "" || len(bundle.Share) == 0 {
		return nil, fmt.Errorf("%w: incomplete bundle", ErrInvalidSession)
	}
	if !s.now().Before(bundle.ExpiresAt) {
		return nil, fmt.Errorf("%w: session expired", ErrInvalidSession)
	}

	exec, err := s.shares.GetByWalletID(ctx, bundle.WalletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown wallet", ErrInvalidSession)
		}
		return nil, err
	}

	id, err := s.bind(ctx, bundle.WalletID, bundle.Scheme, bundle.Share, exec)
	if err != nil {
		return nil, fmt.Errorf("%w: share does not match wallet", ErrInvalidSession)
	}
	return id, nil
}

// WalletExists reports whether an exec share is registered for userID
func (s *LocalService) WalletExists(ctx context.Context, userID string) (bool, error) {
	return s.shares.ExistsForUser(ctx, userID)
}

// InstallShare pairs a decrypted user share with the wallet's exec share.
// The share is copied; callers may zero their slice afterwards.
func (s *LocalService) InstallShare(ctx context.Context, rec *types.KeyShareRecord, share []byte) (Identity, error) {
	exec, err := s.shares.GetByWalletID(ctx, rec.WalletID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: no exec share for wallet", ErrIdentityBinding)
		}
		return nil, err
	}
	if exec.Scheme != rec.Scheme {
		return nil, fmt.Errorf("%w: scheme mismatch", ErrIdentityBinding)
	}

	return s.bind(ctx, rec.WalletID, rec.Scheme, bytes.Clone(share), exec)
}

// bind checks the shares rebuild a valid key before handing out an identity
func (s *LocalService) bind(ctx context.Context, walletID string, scheme types.Scheme, userShare []byte, exec *types.ExecShare) (Identity, error) {
	pub, err := s.exec.PublicKey(ctx, scheme, userShare, exec.EncryptedShare)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIdentityBinding, err)
	}
	if !bytes.Equal(pub, exec.PublicKey) {
		return nil, fmt.Errorf("%w: user share belongs to another wallet", ErrIdentityBinding)
	}
	return &localIdentity{
		walletID:   walletID,
		scheme:     scheme,
		userShare:  userShare,
		sealedExec: exec.EncryptedShare,
		publicKey:  pub,
		exec:       s.exec,
	}, nil
}

type localIdentity struct {
	walletID   string
	scheme     types.Scheme
	userShare  []byte
	sealedExec []byte
	publicKey  []byte
	exec       *keyexec.Executor
}

func (i *localIdentity) WalletID() string     { return i.walletID }
func (i *localIdentity) Scheme() types.Scheme { return i.scheme }

func (i *localIdentity) PublicKey(ctx context.Context) ([]byte, error) {
	return bytes.Clone(i.publicKey), nil
}

func (i *localIdentity) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	return i.exec.Sign(ctx, i.scheme, i.userShare, i.sealedExec, payload)
}
