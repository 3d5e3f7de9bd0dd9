package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

// SecretSize is the length of a wallet secret for both schemes: a secp256k1
// private scalar or an ed25519 seed.
const SecretSize = 32

// GenerateSecret creates fresh key material for scheme
func GenerateSecret(scheme types.Scheme) ([]byte, error) {
	switch scheme {
	case types.SchemeSecp256k1:
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate secp256k1 key: %w", err)
		}
		return crypto.FromECDSA(key), nil
	case types.SchemeEd25519:
		seed := make([]byte, ed25519.SeedSize)
		if _, err := rand.Read(seed); err != nil {
			return nil, fmt.Errorf("failed to generate ed25519 seed: %w", err)
		}
		return seed, nil
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// PublicKey derives the public key for secret. secp256k1 keys are returned
// uncompressed (65 bytes, 0x04 prefix); ed25519 keys are 32 bytes.
func PublicKey(scheme types.Scheme, secret []byte) ([]byte, error) {
	switch scheme {
	case types.SchemeSecp256k1:
		key, err := crypto.ToECDSA(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
		}
		return crypto.FromECDSAPub(&key.PublicKey), nil
	case types.SchemeEd25519:
		if len(secret) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid ed25519 seed length: %d", len(secret))
		}
		return ed25519.NewKeyFromSeed(secret).Public().(ed25519.PublicKey), nil
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// Sign signs payload with secret. For secp256k1 payload must be a 32-byte
// digest and the result is r||s||v with v in {0,1}. For ed25519 payload is
// the full message.
func Sign(scheme types.Scheme, secret, payload []byte) ([]byte, error) {
	switch scheme {
	case types.SchemeSecp256k1:
		if len(payload) != 32 {
			return nil, fmt.Errorf("secp256k1 signing requires a 32-byte digest, got %d bytes", len(payload))
		}
		key, err := crypto.ToECDSA(secret)
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
		}
		sig, err := crypto.Sign(payload, key)
		if err != nil {
			return nil, fmt.Errorf("failed to sign digest: %w", err)
		}
		return sig, nil
	case types.SchemeEd25519:
		if len(secret) != ed25519.SeedSize {
			return nil, fmt.Errorf("invalid ed25519 seed length: %d", len(secret))
		}
		priv := ed25519.NewKeyFromSeed(secret)
		defer Zero(priv)
		return ed25519.Sign(priv, payload), nil
	default:
		return nil, fmt.Errorf("unsupported scheme: %s", scheme)
	}
}

// Zero overwrites b in place
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
