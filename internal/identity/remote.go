package identity

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/hashicorp/go-cleanhttp"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// apiKeyHeader carries the identity service API key
const apiKeyHeader = "X-API-Key"

// maxResponseBytes bounds identity service response bodies
const maxResponseBytes = 1 << 20

// RemoteService talks to a hosted wallet-as-a-service API over HTTPS.
// Key material never leaves the service except as the decrypted user share
// passed to InstallShare.
type RemoteService struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewRemoteService creates a client for the identity service at baseURL
func NewRemoteService(baseURL, apiKey string) *RemoteService {
	return &RemoteService{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  cleanhttp.DefaultPooledClient(),
	}
}

// signingContext is returned by session import and share installation
type signingContext struct {
	ContextID string       `json:"contextId"`
	WalletID  string       `json:"walletId"`
	Scheme    types.Scheme `json:"scheme"`
	PublicKey string       `json:"publicKey"`
}

// ImportSession asks the service to import an exported session
func (s *RemoteService) ImportSession(ctx context.Context, token string) (Identity, error) {
	var sc signingContext
	status, err := s.do(ctx, http.MethodPost, "/v1/sessions/import", map[string]string{"session": token}, &sc)
	if err != nil {
		if isRejection(status) {
			return nil, fmt.Errorf("%w: rejected by identity service (%d)", ErrInvalidSession, status)
		}
		return nil, err
	}
	return s.identityFrom(sc)
}

// WalletExists asks the service whether userID has a wallet
func (s *RemoteService) WalletExists(ctx context.Context, userID string) (bool, error) {
	var resp struct {
		Exists bool `json:"exists"`
	}
	path := "/v1/users/" + url.PathEscape(userID) + "/wallet-exists"
	if _, err := s.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

// InstallShare loads a decrypted user share into a fresh signing context
func (s *RemoteService) InstallShare(ctx context.Context, rec *types.KeyShareRecord, share []byte) (Identity, error) {
	body := map[string]string{
		"share":  base64.StdEncoding.EncodeToString(share),
		"scheme": string(rec.Scheme),
	}

	var sc signingContext
	path := "/v1/wallets/" + url.PathEscape(rec.WalletID) + "/shares/install"
	status, err := s.do(ctx, http.MethodPost, path, body, &sc)
	if err != nil {
		if isRejection(status) {
			return nil, fmt.Errorf("%w: rejected by identity service (%d)", ErrIdentityBinding, status)
		}
		return nil, err
	}
	if sc.WalletID == "" {
		sc.WalletID = rec.WalletID
	}
	return s.identityFrom(sc)
}

func (s *RemoteService) identityFrom(sc signingContext) (Identity, error) {
	if sc.ContextID == "" || !sc.Scheme.Valid() {
		return nil, fmt.Errorf("%w: incomplete signing context", ErrService)
	}
	pub, err := hex.DecodeString(strings.TrimPrefix(sc.PublicKey, "0x"))
	if err != nil || len(pub) == 0 {
		return nil, fmt.Errorf("%w: bad public key in signing context", ErrService)
	}
	return &remoteIdentity{
		service:   s,
		contextID: sc.ContextID,
		walletID:  sc.WalletID,
		scheme:    sc.Scheme,
		publicKey: pub,
	}, nil
}

// do sends a JSON request and decodes a JSON response into out. The status
// code is returned alongside errors so callers can classify rejections.
func (s *RemoteService) do(ctx context.Context, method, path string, in, out interface{}) (int, error) {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, s.apiKey)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("%w: %s %s: %w", ErrService, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("%w: read response: %w", ErrService, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %d", ErrService, method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decode response: %w", ErrService, err)
		}
	}
	return resp.StatusCode, nil
}

// isRejection reports statuses meaning the service refused the submitted
// session or share. Anything else, 401 and 403 included, stays ErrService.
func isRejection(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict,
		http.StatusGone, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

type remoteIdentity struct {
	service   *RemoteService
	contextID string
	walletID  string
	scheme    types.Scheme
	publicKey []byte
}

func (i *remoteIdentity) WalletID() string     { return i.walletID }
func (i *remoteIdentity) Scheme() types.Scheme { return i.scheme }

func (i *remoteIdentity) PublicKey(ctx context.Context) ([]byte, error) {
	return bytes.Clone(i.publicKey), nil
}

func (i *remoteIdentity) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	var resp struct {
		Signature string `json:"signature"`
	}
	path := "/v1/contexts/" + url.PathEscape(i.contextID) + "/sign"
	body := map[string]string{"payload": base64.StdEncoding.EncodeToString(payload)}
	if _, err := i.service.do(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(resp.Signature, "0x"))
	if err != nil || len(sig) == 0 {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrService)
	}
	return sig, nil
}
