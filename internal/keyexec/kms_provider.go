package keyexec

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"
)

// KMSProvider seals and opens key shares at rest.
type KMSProvider interface {
	Encrypt(ctx context.Context, data []byte) ([]byte, error)
	Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error)

	// Provider returns the provider name ("local", "aws-kms", "vault")
	Provider() string
}

// KMSProviderType represents supported KMS providers
type KMSProviderType string

const (
	// KMSProviderLocal uses a local master key with AES-256-GCM
	KMSProviderLocal KMSProviderType = "local"

	// KMSProviderAWSKMS uses AWS KMS
	KMSProviderAWSKMS KMSProviderType = "aws-kms"

	// KMSProviderVault uses the HashiCorp Vault Transit engine
	KMSProviderVault KMSProviderType = "vault"
)

// KMSConfig contains configuration for KMS providers
type KMSConfig struct {
	Provider string

	// LocalMasterKey is either 64 hex characters (used as-is) or any other
	// string, which is stretched to 32 bytes with SHA-256.
	LocalMasterKey string

	AWSKMSKeyID  string
	AWSKMSRegion string

	VaultAddress    string
	VaultToken      string
	VaultTransitKey string
}

// LocalKMSProvider implements KMSProvider with AES-256-GCM under a process-held key.
type LocalKMSProvider struct {
	aead cipher.AEAD
}

// NewLocalKMSProvider creates a new local KMS provider
func NewLocalKMSProvider(masterKey string) (*LocalKMSProvider, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key is required for local KMS provider")
	}

	block, err := aes.NewCipher(deriveMasterKey(masterKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &LocalKMSProvider{aead: aead}, nil
}

func deriveMasterKey(s string) []byte {
	if len(s) == 64 {
		if key, err := hex.DecodeString(s); err == nil {
			return key
		}
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

// Encrypt returns nonce||ciphertext
func (p *LocalKMSProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return p.aead.Seal(nonce, nonce, data, nil), nil
}

// Decrypt opens a nonce||ciphertext blob produced by Encrypt
func (p *LocalKMSProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	nonceSize := p.aead.NonceSize()
	if len(encryptedData) < nonceSize+p.aead.Overhead() {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := encryptedData[:nonceSize], encryptedData[nonceSize:]
	plaintext, err := p.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (p *LocalKMSProvider) Provider() string {
	return string(KMSProviderLocal)
}

// kmsAPI is the subset of the AWS KMS client used here
type kmsAPI interface {
	Encrypt(ctx context.Context, params *kms.EncryptInput, optFns ...func(*kms.Options)) (*kms.EncryptOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// AWSKMSProvider implements KMSProvider using AWS KMS
type AWSKMSProvider struct {
	keyID  string
	client kmsAPI
}

// NewAWSKMSProvider creates a provider using the default AWS credential chain
func NewAWSKMSProvider(ctx context.Context, keyID, region string) (*AWSKMSProvider, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &AWSKMSProvider{
		keyID:  keyID,
		client: kms.NewFromConfig(cfg),
	}, nil
}

// Encrypt encrypts data using AWS KMS
func (p *AWSKMSProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	output, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: data,
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms encrypt failed: %w", err)
	}
	return output.CiphertextBlob, nil
}

// Decrypt decrypts data using AWS KMS
func (p *AWSKMSProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	output, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: encryptedData,
	})
	if err != nil {
		return nil, fmt.Errorf("aws kms decrypt failed: %w", err)
	}
	return output.Plaintext, nil
}

// Provider returns the provider name
func (p *AWSKMSProvider) Provider() string {
	return string(KMSProviderAWSKMS)
}

// VaultProvider implements KMSProvider using the Vault Transit engine
type VaultProvider struct {
	transitKey string
	client     *vault.Client
}

// NewVaultProvider creates a new Vault provider
func NewVaultProvider(address, token, transitKey string) (*VaultProvider, error) {
	if address == "" {
		return nil, fmt.Errorf("vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address
	vaultConfig.MaxRetries = 0

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(token)

	return &VaultProvider{
		transitKey: transitKey,
		client:     client,
	}, nil
}

// Encrypt returns the vault:v1:... ciphertext string as bytes
func (p *VaultProvider) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(data),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit encrypt: ciphertext not found in response")
	}
	return []byte(ciphertext), nil
}

// Decrypt decrypts data using the Vault Transit engine
func (p *VaultProvider) Decrypt(ctx context.Context, encryptedData []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(encryptedData),
	})
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("vault transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("vault transit decrypt: plaintext not found in response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("vault transit decrypt: failed to decode plaintext: %w", err)
	}
	return plaintext, nil
}

// Provider returns the provider name
func (p *VaultProvider) Provider() string {
	return string(KMSProviderVault)
}

// NewKMSProvider creates a KMSProvider based on the configuration
func NewKMSProvider(ctx context.Context, cfg *KMSConfig) (KMSProvider, error) {
	provider := KMSProviderType(cfg.Provider)

	switch provider {
	case KMSProviderLocal, "":
		return NewLocalKMSProvider(cfg.LocalMasterKey)
	case KMSProviderAWSKMS:
		return NewAWSKMSProvider(ctx, cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case KMSProviderVault:
		return NewVaultProvider(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported KMS provider: %s (supported: %s, %s, %s)",
			provider, KMSProviderLocal, KMSProviderAWSKMS, KMSProviderVault)
	}
}

var (
	_ KMSProvider = (*LocalKMSProvider)(nil)
	_ KMSProvider = (*AWSKMSProvider)(nil)
	_ KMSProvider = (*VaultProvider)(nil)
)
