package crypto

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

func TestGenerateSecret(t *testing.T) {
	for _, scheme := range []types.Scheme{types.SchemeSecp256k1, types.SchemeEd25519} {
		t.Run(string(scheme), func(t *testing.T) {
			secret, err := GenerateSecret(scheme)
			if err != nil {
				t.Fatalf("GenerateSecret failed: %v", err)
			}
			if len(secret) != SecretSize {
				t.Errorf("secret length = %d, want %d", len(secret), SecretSize)
			}

			other, err := GenerateSecret(scheme)
			if err != nil {
				t.Fatalf("GenerateSecret failed: %v", err)
			}
			if bytes.Equal(secret, other) {
				t.Error("two generated secrets are identical")
			}
		})
	}

	if _, err := GenerateSecret("rsa"); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}

func TestPublicKey(t *testing.T) {
	t.Run("secp256k1 uncompressed", func(t *testing.T) {
		secret, _ := GenerateSecret(types.SchemeSecp256k1)
		pub, err := PublicKey(types.SchemeSecp256k1, secret)
		if err != nil {
			t.Fatalf("PublicKey failed: %v", err)
		}
		if len(pub) != 65 || pub[0] != 0x04 {
			t.Errorf("unexpected public key encoding: len=%d prefix=%x", len(pub), pub[0])
		}
	})

	t.Run("ed25519", func(t *testing.T) {
		secret, _ := GenerateSecret(types.SchemeEd25519)
		pub, err := PublicKey(types.SchemeEd25519, secret)
		if err != nil {
			t.Fatalf("PublicKey failed: %v", err)
		}
		if len(pub) != ed25519.PublicKeySize {
			t.Errorf("public key length = %d, want %d", len(pub), ed25519.PublicKeySize)
		}
	})

	t.Run("bad ed25519 seed", func(t *testing.T) {
		if _, err := PublicKey(types.SchemeEd25519, []byte{1, 2, 3}); err == nil {
			t.Error("expected error")
		}
	})
}

func TestSign_Secp256k1(t *testing.T) {
	secret, _ := GenerateSecret(types.SchemeSecp256k1)
	pub, _ := PublicKey(types.SchemeSecp256k1, secret)
	digest := crypto.Keccak256([]byte("payload"))

	sig, err := Sign(types.SchemeSecp256k1, secret, digest)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if len(sig) != 65 {
		t.Fatalf("signature length = %d, want 65", len(sig))
	}
	if sig[64] > 1 {
		t.Errorf("recovery id = %d, want 0 or 1", sig[64])
	}

	recovered, err := crypto.Ecrecover(digest, sig)
	if err != nil {
		t.Fatalf("Ecrecover failed: %v", err)
	}
	if !bytes.Equal(recovered, pub) {
		t.Error("recovered public key does not match")
	}

	if _, err := Sign(types.SchemeSecp256k1, secret, []byte("not a digest")); err == nil {
		t.Error("expected error for non-digest payload")
	}
}

func TestSign_Ed25519(t *testing.T) {
	secret, _ := GenerateSecret(types.SchemeEd25519)
	pub, _ := PublicKey(types.SchemeEd25519, secret)
	msg := []byte("any length message is fine for ed25519")

	sig, err := Sign(types.SchemeEd25519, secret, msg)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !ed25519.Verify(pub, msg, sig) {
		t.Error("signature does not verify")
	}
}

func TestZero(t *testing.T) {
	b := []byte{1, 2, 3}
	Zero(b)
	if !bytes.Equal(b, []byte{0, 0, 0}) {
		t.Errorf("Zero left %v", b)
	}
}
