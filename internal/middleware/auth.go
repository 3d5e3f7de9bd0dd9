package middleware

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/better-wallet/signing-gateway/internal/logger"
	apperrors "github.com/better-wallet/signing-gateway/pkg/errors"
)

// ContextKey is a type for context keys
type ContextKey string

const (
	// SubjectKey is the context key for the authenticated subject
	SubjectKey ContextKey = "subject"
)

// jwksTTL is how long fetched signing keys are trusted
const jwksTTL = time.Hour

// AuthSettings identifies the single trusted token issuer
type AuthSettings struct {
	JWKSURI  string
	Issuer   string
	Audience string
}

// Configured reports whether bearer tokens can be verified
func (s AuthSettings) Configured() bool {
	return s.JWKSURI != "" && s.Issuer != ""
}

// JWKSCache holds the issuer's keys by kid
type JWKSCache struct {
	Keys      map[string]interface{}
	ExpiresAt time.Time
	mu        sync.RWMutex
}

// AuthMiddleware verifies bearer JWTs against a JWKS endpoint
type AuthMiddleware struct {
	settings   AuthSettings
	jwksCache  *JWKSCache
	httpClient *http.Client
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(settings AuthSettings) *AuthMiddleware {
	return &AuthMiddleware{
		settings: settings,
		jwksCache: &JWKSCache{
			Keys: make(map[string]interface{}),
		},
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Authenticate requires a valid bearer token and stores its subject in the
// request context. The subject is the email claim when present, else sub.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.settings.Configured() {
			writeError(w, apperrors.Configuration("AUTH_JWKS_URI and AUTH_ISSUER must be set"))
			return
		}

		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
			writeError(w, apperrors.Authentication("missing bearer token"))
			return
		}

		subject, err := m.ValidateJWT(r.Context(), parts[1])
		if err != nil {
			logger.Warn(r.Context(), "bearer token rejected", "error", err)
			writeError(w, apperrors.Authentication("invalid bearer token"))
			return
		}

		// the credential is not needed downstream
		r.Header.Del("Authorization")

		ctx := context.WithValue(r.Context(), SubjectKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ValidateJWT validates tokenString and returns its subject
func (m *AuthMiddleware) ValidateJWT(ctx context.Context, tokenString string) (string, error) {
	token, err := m.parseToken(ctx, tokenString)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	iss, _ := claims["iss"].(string)
	if iss != m.settings.Issuer {
		return "", fmt.Errorf("invalid issuer: expected %s, got %s", m.settings.Issuer, iss)
	}

	if m.settings.Audience != "" && !m.validateAudience(claims, m.settings.Audience) {
		return "", fmt.Errorf("invalid audience: expected %s", m.settings.Audience)
	}

	if email, ok := claims["email"].(string); ok && email != "" {
		return email, nil
	}
	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", fmt.Errorf("missing or invalid subject claim")
	}
	return sub, nil
}

// parseToken parses and verifies a JWT signature
func (m *AuthMiddleware) parseToken(ctx context.Context, tokenString string) (*jwt.Token, error) {
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
		}

		kid, ok := token.Header["kid"].(string)
		if !ok {
			return nil, fmt.Errorf("missing kid in token header")
		}

		key, err := m.getPublicKey(ctx, kid)
		if err != nil {
			return nil, fmt.Errorf("failed to get public key: %w", err)
		}
		return key, nil
	})
}

// getPublicKey returns the key for kid, refreshing the JWKS when expired
func (m *AuthMiddleware) getPublicKey(ctx context.Context, kid string) (interface{}, error) {
	m.jwksCache.mu.RLock()
	if key, found := m.jwksCache.Keys[kid]; found && time.Now().Before(m.jwksCache.ExpiresAt) {
		m.jwksCache.mu.RUnlock()
		return key, nil
	}
	m.jwksCache.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.settings.JWKSURI, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch JWKS: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("JWKS endpoint returned status %d", resp.StatusCode)
	}

	var jwks struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&jwks); err != nil {
		return nil, fmt.Errorf("failed to decode JWKS: %w", err)
	}

	keys := make(map[string]interface{}, len(jwks.Keys))
	for _, jwk := range jwks.Keys {
		keyID, ok := jwk["kid"].(string)
		if !ok {
			continue
		}
		kty, _ := jwk["kty"].(string)

		var publicKey interface{}
		var parseErr error
		switch kty {
		case "RSA":
			publicKey, parseErr = m.parseRSAKey(jwk)
		case "EC":
			publicKey, parseErr = m.parseECKey(jwk)
		default:
			continue
		}
		if parseErr != nil {
			continue
		}
		keys[keyID] = publicKey
	}

	m.jwksCache.mu.Lock()
	m.jwksCache.Keys = keys
	m.jwksCache.ExpiresAt = time.Now().Add(jwksTTL)
	m.jwksCache.mu.Unlock()

	key, ok := keys[kid]
	if !ok {
		return nil, fmt.Errorf("key %s not found in JWKS", kid)
	}
	return key, nil
}

// parseRSAKey parses an RSA public key from JWK format
func (m *AuthMiddleware) parseRSAKey(jwk map[string]interface{}) (*rsa.PublicKey, error) {
	nStr, ok := jwk["n"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'n' parameter")
	}
	eStr, ok := jwk["e"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'e' parameter")
	}

	nBytes, err := base64.RawURLEncoding.DecodeString(nStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode n: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode e: %w", err)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: int(new(big.Int).SetBytes(eBytes).Int64()),
	}, nil
}

// parseECKey parses an EC public key from JWK format
func (m *AuthMiddleware) parseECKey(jwk map[string]interface{}) (*ecdsa.PublicKey, error) {
	crv, ok := jwk["crv"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'crv' parameter")
	}
	xStr, ok := jwk["x"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'x' parameter")
	}
	yStr, ok := jwk["y"].(string)
	if !ok {
		return nil, fmt.Errorf("missing 'y' parameter")
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode x: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode y: %w", err)
	}

	var c elliptic.Curve
	switch crv {
	case "P-256":
		c = elliptic.P256()
	case "P-384":
		c = elliptic.P384()
	case "P-521":
		c = elliptic.P521()
	default:
		return nil, fmt.Errorf("unsupported curve: %s", crv)
	}

	return &ecdsa.PublicKey{
		Curve: c,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// validateAudience checks if the token's audience matches the expected audience
func (m *AuthMiddleware) validateAudience(claims jwt.MapClaims, expectedAudience string) bool {
	aud, ok := claims["aud"]
	if !ok {
		return false
	}

	switch v := aud.(type) {
	case string:
		return v == expectedAudience
	case []interface{}:
		for _, a := range v {
			if str, ok := a.(string); ok && str == expectedAudience {
				return true
			}
		}
	}
	return false
}

// writeError writes an AppError as JSON
func writeError(w http.ResponseWriter, err *apperrors.AppError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	_ = json.NewEncoder(w).Encode(err)
}

// GetSubject extracts the authenticated subject from the request context
func GetSubject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(SubjectKey).(string)
	return sub, ok
}
