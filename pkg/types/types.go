package types

import (
	"time"

	"github.com/google/uuid"
)

// Scheme identifies the signature scheme a wallet's key material belongs to
type Scheme string

// Scheme constants
const (
	SchemeSecp256k1 Scheme = "secp256k1"
	SchemeEd25519   Scheme = "ed25519"
)

// Valid reports whether s is a known scheme
func (s Scheme) Valid() bool {
	return s == SchemeSecp256k1 || s == SchemeEd25519
}

// IdentityBackend constants
const (
	IdentityBackendLocal  = "local"
	IdentityBackendRemote = "remote"
)

// KeyShareRecord is a pregenerated wallet's user share as held by the
// application. EncryptedShare is ciphertext produced by the KMS provider.
type KeyShareRecord struct {
	ID             uuid.UUID
	UserID         string
	WalletID       string
	Scheme         Scheme
	EncryptedShare []byte
	CreatedAt      time.Time
}

// ExecShare is the service-held counterpart of a user share, used by the
// self-hosted identity backend. PublicKey pins the wallet so a foreign user
// share cannot combine into a different key unnoticed.
type ExecShare struct {
	WalletID       string
	UserID         string
	Scheme         Scheme
	PublicKey      []byte
	EncryptedShare []byte
	CreatedAt      time.Time
}
