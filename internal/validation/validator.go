// Package validation checks request fields and chain settings before they
// reach an adapter.
package validation

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// MaxEmailLength bounds the email field of signing requests
const MaxEmailLength = 254

// EthereumAddressPattern is the regex pattern for Ethereum addresses
var EthereumAddressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// bech32PrefixPattern matches a human-readable part as used by Cosmos chains
var bech32PrefixPattern = regexp.MustCompile(`^[a-z][a-z0-9]{0,82}$`)

// ValidateEthereumAddress validates an Ethereum address format
func ValidateEthereumAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if !EthereumAddressPattern.MatchString(address) {
		return fmt.Errorf("invalid Ethereum address format: must be 0x followed by 40 hex characters")
	}

	if common.HexToAddress(address) == (common.Address{}) {
		return fmt.Errorf("zero address is not allowed")
	}

	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return fmt.Errorf("chain ID must be positive, got: %d", chainID)
	}
	return nil
}

// ValidateEmail accepts a bare addr-spec such as a@b.com. Display names and
// angle brackets are rejected.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return fmt.Errorf("email exceeds %d characters", MaxEmailLength)
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Name != "" || addr.Address != email {
		return fmt.Errorf("invalid email address")
	}
	return nil
}

// ValidateBech32Prefix validates the human-readable part of bech32 addresses
func ValidateBech32Prefix(prefix string) error {
	if !bech32PrefixPattern.MatchString(prefix) {
		return fmt.Errorf("invalid bech32 prefix %q: must be lowercase alphanumeric starting with a letter", prefix)
	}
	return nil
}

// ValidateDenom validates a Cosmos coin denomination
func ValidateDenom(denom string) error {
	if len(denom) < 2 || len(denom) > 128 {
		return fmt.Errorf("invalid denom %q: length must be 2-128", denom)
	}
	if c := denom[0]; c < 'a' || c > 'z' {
		return fmt.Errorf("invalid denom %q: must start with a lowercase letter", denom)
	}
	for _, c := range denom {
		if !(c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || strings.ContainsRune("/:._-", c)) {
			return fmt.Errorf("invalid denom %q: unexpected character %q", denom, c)
		}
	}
	return nil
}
