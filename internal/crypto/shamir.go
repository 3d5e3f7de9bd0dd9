package crypto

import (
	"fmt"

	"github.com/hashicorp/vault/shamir"
)

const (
	// Threshold is the number of shares needed to rebuild a wallet secret
	Threshold = 2
	// TotalShares is the number of shares a secret is split into
	TotalShares = 2
)

// ShareSet is a wallet secret split 2-of-2.
type ShareSet struct {
	// UserShare is held by the application: it is sealed into session
	// tokens or stored encrypted in user_key_shares.
	UserShare []byte

	// ExecShare is held by the signing service in exec_shares.
	ExecShare []byte
}

// SplitSecret splits secret so that both shares are required to rebuild it
func SplitSecret(secret []byte) (*ShareSet, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("secret cannot be empty")
	}

	shares, err := shamir.Split(secret, TotalShares, Threshold)
	if err != nil {
		return nil, fmt.Errorf("failed to split secret: %w", err)
	}

	return &ShareSet{
		UserShare: shares[0],
		ExecShare: shares[1],
	}, nil
}

// CombineShares rebuilds a wallet secret from its user and exec shares.
// Callers must Zero the result once signing is done.
func CombineShares(userShare, execShare []byte) ([]byte, error) {
	if err := ValidateShare(userShare); err != nil {
		return nil, fmt.Errorf("user share: %w", err)
	}
	if err := ValidateShare(execShare); err != nil {
		return nil, fmt.Errorf("exec share: %w", err)
	}

	secret, err := shamir.Combine([][]byte{userShare, execShare})
	if err != nil {
		return nil, fmt.Errorf("failed to combine shares: %w", err)
	}
	if len(secret) != SecretSize {
		Zero(secret)
		return nil, fmt.Errorf("combined secret has length %d, want %d", len(secret), SecretSize)
	}
	return secret, nil
}

// ValidateShare checks share framing only: a 32-byte secret yields shares of
// 33 bytes (secret length plus the x-coordinate tag).
func ValidateShare(share []byte) error {
	if len(share) == 0 {
		return fmt.Errorf("share cannot be empty")
	}
	if len(share) < SecretSize+1 {
		return fmt.Errorf("share too short: expected at least %d bytes, got %d", SecretSize+1, len(share))
	}
	return nil
}
