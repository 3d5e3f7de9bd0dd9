package mocks

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"sync"
)

// MockKMSProvider seals key shares with a random in-memory AES-GCM key and
// counts calls. It satisfies keyexec.KMSProvider and identity.Decrypter.
type MockKMSProvider struct {
	mu            sync.Mutex
	aead          cipher.AEAD
	encryptCalls  int
	decryptCalls  int
	shouldFail    bool
	failOnNthCall int
	callCount     int
}

// NewMockKMSProvider creates a new mock KMS provider
func NewMockKMSProvider() *MockKMSProvider {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		panic(err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	return &MockKMSProvider{aead: aead}
}

// failing counts a call and reports whether it should fail. Callers hold mu.
func (m *MockKMSProvider) failing() bool {
	m.callCount++
	return m.shouldFail || (m.failOnNthCall > 0 && m.callCount == m.failOnNthCall)
}

// Encrypt returns nonce||ciphertext
func (m *MockKMSProvider) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.encryptCalls++
	if m.failing() {
		return nil, fmt.Errorf("mock KMS encrypt failure")
	}

	nonce := make([]byte, m.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return m.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt
func (m *MockKMSProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.decryptCalls++
	if m.failing() {
		return nil, fmt.Errorf("mock KMS decrypt failure")
	}

	ns := m.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, fmt.Errorf("ciphertext too short")
	}
	plaintext, err := m.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (m *MockKMSProvider) Provider() string {
	return "mock"
}

// SetShouldFail makes every following call fail
func (m *MockKMSProvider) SetShouldFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = fail
}

// SetFailOnNthCall makes the nth call from now fail
func (m *MockKMSProvider) SetFailOnNthCall(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failOnNthCall = n
	m.callCount = 0
}

// GetEncryptCalls returns the number of encrypt calls
func (m *MockKMSProvider) GetEncryptCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.encryptCalls
}

// GetDecryptCalls returns the number of decrypt calls
func (m *MockKMSProvider) GetDecryptCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decryptCalls
}

// CorruptedKMSProvider encrypts normally but decrypts to random bytes, as a
// KMS key mix-up would.
type CorruptedKMSProvider struct {
	*MockKMSProvider
}

// NewCorruptedKMSProvider creates a provider that returns corrupted data
func NewCorruptedKMSProvider() *CorruptedKMSProvider {
	return &CorruptedKMSProvider{MockKMSProvider: NewMockKMSProvider()}
}

// Decrypt returns 32 random bytes
func (c *CorruptedKMSProvider) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	c.mu.Lock()
	c.decryptCalls++
	c.mu.Unlock()

	corrupted := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, corrupted); err != nil {
		return nil, err
	}
	return corrupted, nil
}
