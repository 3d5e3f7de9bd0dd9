package chain

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/better-wallet/signing-gateway/pkg/types"
)

type schemeOnly types.Scheme

func (s schemeOnly) Scheme() types.Scheme { return types.Scheme(s) }
func (schemeOnly) PublicKey(context.Context) ([]byte, error) { return nil, nil }
func (schemeOnly) Sign(context.Context, []byte) ([]byte, error) { return nil, nil }

func TestVariantScheme(t *testing.T) {
	tests := map[Variant]types.Scheme{
		VariantEVMViem:   types.SchemeSecp256k1,
		VariantEVMEthers: types.SchemeSecp256k1,
		VariantEVMAA:     types.SchemeSecp256k1,
		VariantCosmos:    types.SchemeSecp256k1,
		VariantSolana:    types.SchemeEd25519,
	}
	for v, want := range tests {
		assert.Equal(t, want, v.Scheme(), string(v))
	}
}

func TestRequireScheme(t *testing.T) {
	assert.NoError(t, RequireScheme(schemeOnly(types.SchemeEd25519), types.SchemeEd25519))
	assert.ErrorIs(t, RequireScheme(schemeOnly(types.SchemeEd25519), types.SchemeSecp256k1), ErrUnsupportedScheme)
	assert.Error(t, RequireScheme(nil, types.SchemeSecp256k1))
}
