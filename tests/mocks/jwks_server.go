// Package mocks provides mock implementations for testing.
package mocks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const jwksPath = "/.well-known/jwks.json"

// MockJWKSServer is a token issuer for bearer auth tests. It serves its
// public keys at JWKSURI and mints tokens signed by them.
type MockJWKSServer struct {
	server *httptest.Server
	mu     sync.RWMutex

	rsaKeys map[string]*rsa.PrivateKey
	ecKeys  map[string]*ecdsa.PrivateKey
	// first key added signs tokens that do not name one
	keyOrder []string

	issuer   string
	audience string

	shouldFail    bool
	delayResponse time.Duration
	statusCode    int
}

// NewMockJWKSServer creates a new mock JWKS server.
func NewMockJWKSServer(issuer, audience string) *MockJWKSServer {
	m := &MockJWKSServer{
		rsaKeys:    make(map[string]*rsa.PrivateKey),
		ecKeys:     make(map[string]*ecdsa.PrivateKey),
		issuer:     issuer,
		audience:   audience,
		statusCode: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc(jwksPath, m.handleJWKS)
	m.server = httptest.NewServer(mux)
	return m
}

func (m *MockJWKSServer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	delay, fail, status := m.delayResponse, m.shouldFail, m.statusCode
	m.mu.RUnlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "mock server failure"}`))
		return
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error": "configured failure"}`))
		return
	}

	m.mu.RLock()
	jwks := m.buildJWKS()
	m.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(jwks)
}

// buildJWKS renders the public half of every key. Callers hold mu.
func (m *MockJWKSServer) buildJWKS() map[string]interface{} {
	keys := make([]map[string]interface{}, 0, len(m.keyOrder))
	for _, kid := range m.keyOrder {
		if key, ok := m.rsaKeys[kid]; ok {
			keys = append(keys, map[string]interface{}{
				"kty": "RSA",
				"kid": kid,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			})
			continue
		}
		key := m.ecKeys[kid]
		keys = append(keys, map[string]interface{}{
			"kty": "EC",
			"kid": kid,
			"use": "sig",
			"alg": "ES256",
			"crv": "P-256",
			"x":   base64.RawURLEncoding.EncodeToString(key.PublicKey.X.FillBytes(make([]byte, 32))),
			"y":   base64.RawURLEncoding.EncodeToString(key.PublicKey.Y.FillBytes(make([]byte, 32))),
		})
	}
	return map[string]interface{}{"keys": keys}
}

// AddRSAKey adds an RS256 signing key.
func (m *MockJWKSServer) AddRSAKey(kid string) (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.rsaKeys[kid] = key
	m.keyOrder = append(m.keyOrder, kid)
	return key, nil
}

// AddECKey adds an ES256 signing key.
func (m *MockJWKSServer) AddECKey(kid string) (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate EC key: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.ecKeys[kid] = key
	m.keyOrder = append(m.keyOrder, kid)
	return key, nil
}

// JWKSURI returns the key set endpoint for AUTH_JWKS_URI.
func (m *MockJWKSServer) JWKSURI() string {
	return m.server.URL + jwksPath
}

// Issuer returns the configured issuer.
func (m *MockJWKSServer) Issuer() string {
	return m.issuer
}

// Audience returns the configured audience.
func (m *MockJWKSServer) Audience() string {
	return m.audience
}

// SetShouldFail makes the key set endpoint answer 500.
func (m *MockJWKSServer) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

// SetStatusCode sets the status the key set endpoint answers with.
func (m *MockJWKSServer) SetStatusCode(code int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statusCode = code
}

// SetDelayResponse holds key set responses for delay, or until the caller
// gives up.
func (m *MockJWKSServer) SetDelayResponse(delay time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delayResponse = delay
}

// Close shuts down the test server.
func (m *MockJWKSServer) Close() {
	m.server.Close()
}

func (m *MockJWKSServer) claims(subject string, extra map[string]interface{}) jwt.MapClaims {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss": m.issuer,
		"aud": m.audience,
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}
	for k, v := range extra {
		claims[k] = v
	}
	return claims
}

// sign signs claims with kid, or with the first key when kid is empty.
// The kid header is set only when withKid is true.
func (m *MockJWKSServer) sign(kid string, claims jwt.MapClaims, withKid bool) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if kid == "" {
		if len(m.keyOrder) == 0 {
			return "", fmt.Errorf("no signing keys available")
		}
		kid = m.keyOrder[0]
	}

	var token *jwt.Token
	var key interface{}
	if rsaKey, ok := m.rsaKeys[kid]; ok {
		token, key = jwt.NewWithClaims(jwt.SigningMethodRS256, claims), rsaKey
	} else if ecKey, ok := m.ecKeys[kid]; ok {
		token, key = jwt.NewWithClaims(jwt.SigningMethodES256, claims), ecKey
	} else {
		return "", fmt.Errorf("key %s not found", kid)
	}
	if withKid {
		token.Header["kid"] = kid
	}
	return token.SignedString(key)
}

// CreateValidJWT creates a token for subject signed with the first key.
func (m *MockJWKSServer) CreateValidJWT(subject string, extraClaims map[string]interface{}) (string, error) {
	return m.sign("", m.claims(subject, extraClaims), true)
}

// CreateJWTForKey creates a token for subject signed with the key kid.
func (m *MockJWKSServer) CreateJWTForKey(kid, subject string, extraClaims map[string]interface{}) (string, error) {
	return m.sign(kid, m.claims(subject, extraClaims), true)
}

// CreateExpiredJWT creates an expired token.
func (m *MockJWKSServer) CreateExpiredJWT(subject string) (string, error) {
	return m.CreateValidJWT(subject, map[string]interface{}{
		"exp": time.Now().Add(-time.Hour).Unix(),
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
	})
}

// CreateJWTWithWrongIssuer creates a token from another issuer.
func (m *MockJWKSServer) CreateJWTWithWrongIssuer(subject string) (string, error) {
	return m.CreateValidJWT(subject, map[string]interface{}{
		"iss": "https://wrong-issuer.example.com",
	})
}

// CreateJWTWithWrongAudience creates a token for another audience.
func (m *MockJWKSServer) CreateJWTWithWrongAudience(subject string) (string, error) {
	return m.CreateValidJWT(subject, map[string]interface{}{
		"aud": "wrong-audience",
	})
}

// CreateJWTWithNoKid creates a token without a kid header.
func (m *MockJWKSServer) CreateJWTWithNoKid(subject string) (string, error) {
	return m.sign("", m.claims(subject, nil), false)
}

// CreateJWTSignedWithWrongKey creates a token signed by a key absent from
// the key set.
func (m *MockJWKSServer) CreateJWTSignedWithWrongKey(subject string) (string, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, m.claims(subject, nil))
	token.Header["kid"] = "unknown-kid"
	return token.SignedString(key)
}

// CreateNoneAlgorithmJWT creates an unsigned "alg": "none" token.
func (m *MockJWKSServer) CreateNoneAlgorithmJWT(subject string) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(
		`{"iss":"%s","aud":"%s","sub":"%s","iat":%d,"exp":%d}`,
		m.issuer, m.audience, subject,
		time.Now().Unix(), time.Now().Add(time.Hour).Unix(),
	)))
	return header + "." + payload + "."
}

// CreateHS256WithPublicKeyJWT creates an HS256 token keyed with the first
// RSA public modulus (algorithm confusion).
func (m *MockJWKSServer) CreateHS256WithPublicKeyJWT(subject string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, kid := range m.keyOrder {
		key, ok := m.rsaKeys[kid]
		if !ok {
			continue
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, m.claims(subject, nil))
		token.Header["kid"] = kid
		return token.SignedString(key.PublicKey.N.Bytes())
	}
	return "", fmt.Errorf("no RSA keys available")
}
