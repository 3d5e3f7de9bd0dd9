package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEthereumAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid lowercase address",
			address: "0x742d35cc6634c0532925a3b844bc454e4438f44e",
		},
		{
			name:    "valid checksummed entry point",
			address: "0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789",
		},
		{
			name:    "empty",
			address: "",
			wantErr: true,
			errMsg:  "cannot be empty",
		},
		{
			name:    "missing prefix",
			address: "742d35cc6634c0532925a3b844bc454e4438f44e",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "too short",
			address: "0x742d35cc",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "non-hex characters",
			address: "0x742d35cc6634c0532925a3b844bc454e4438f44g",
			wantErr: true,
			errMsg:  "invalid Ethereum address format",
		},
		{
			name:    "zero address",
			address: "0x0000000000000000000000000000000000000000",
			wantErr: true,
			errMsg:  "zero address",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEthereumAddress(tt.address)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateChainID(t *testing.T) {
	assert.NoError(t, ValidateChainID(1))
	assert.NoError(t, ValidateChainID(11155111))
	assert.Error(t, ValidateChainID(0))
	assert.Error(t, ValidateChainID(-5))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email   string
		wantErr bool
	}{
		{"a@b.com", false},
		{"first.last+tag@example.co.uk", false},
		{"", true},
		{"not-an-email", true},
		{"Alice <a@b.com>", true},
		{"<a@b.com>", true},
		{"a@b.com, c@d.com", true},
		{strings.Repeat("a", MaxEmailLength) + "@b.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.email, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateBech32Prefix(t *testing.T) {
	for _, ok := range []string{"cosmos", "osmo", "juno1"} {
		assert.NoError(t, ValidateBech32Prefix(ok), ok)
	}
	for _, bad := range []string{"", "Cosmos", "1cosmos", "cos-mos", strings.Repeat("a", 84)} {
		assert.Error(t, ValidateBech32Prefix(bad), bad)
	}
}

func TestValidateDenom(t *testing.T) {
	for _, ok := range []string{"uatom", "ibc/27394FB092D2ECCD56123C74F36E4C1F926001CEADA9CA97EA622B25F41E5EB2", "factory/osmo1abc/utoken"} {
		assert.NoError(t, ValidateDenom(ok), ok)
	}
	for _, bad := range []string{"", "u", "Uatom", "1atom", "u atom"} {
		assert.Error(t, ValidateDenom(bad), bad)
	}
}
