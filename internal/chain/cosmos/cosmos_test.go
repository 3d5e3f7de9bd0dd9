package cosmos

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/btcutil/bech32"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

type keySigner struct{ key *ecdsa.PrivateKey }

func (s keySigner) Scheme() types.Scheme { return types.SchemeSecp256k1 }
func (s keySigner) PublicKey(ctx context.Context) ([]byte, error) {
	return ethcrypto.FromECDSAPub(&s.key.PublicKey), nil
}
func (s keySigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, s.key)
}

type fakeNetwork struct {
	acc   Account
	calls int
}

func (f *fakeNetwork) Account(ctx context.Context, address string) (*Account, error) {
	f.calls++
	acc := f.acc
	return &acc, nil
}

var testConfig = Config{
	ChainID: "theta-testnet-001",
	Prefix:  "cosmos",
	Denom:   "uatom",
	DefaultFee: Fee{
		Amount: []Coin{{Amount: "2000", Denom: "uatom"}},
		Gas:    "200000",
	},
}

func newAdapter(t *testing.T, net Network) (*Adapter, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	a, err := New(testConfig, keySigner{key}, net)
	require.NoError(t, err)
	return a, key
}

func TestAddress(t *testing.T) {
	a, key := newAdapter(t, nil)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)

	hrp, data, err := bech32.Decode(addr)
	require.NoError(t, err)
	assert.Equal(t, "cosmos", hrp)

	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	require.NoError(t, err)
	assert.Len(t, decoded, 20)

	again, err := AddressFromPublicKey("cosmos", ethcrypto.CompressPubkey(&key.PublicKey))
	require.NoError(t, err)
	assert.Equal(t, addr, again)
}

func TestSignMessage_ADR036(t *testing.T) {
	a, key := newAdapter(t, nil)
	ctx := context.Background()

	res, err := a.SignMessage(ctx, []byte("hello cosmos"))
	require.NoError(t, err)
	require.Len(t, res.Normalized, 64)
	require.Len(t, res.Raw, 65)

	addr, err := a.Address(ctx)
	require.NoError(t, err)
	bz, err := arbitrarySignDoc(addr, []byte("hello cosmos")).Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(bz), `"msgs":[{"type":"sign/MsgSignData","value":{"data":"aGVsbG8gY29zbW9z","signer":"`+addr+`"}}]`)
	assert.Contains(t, string(bz), `"fee":{"amount":[],"gas":"0"}`)

	digest := sha256.Sum256(bz)
	assert.True(t, ethcrypto.VerifySignature(ethcrypto.CompressPubkey(&key.PublicKey), digest[:], res.Normalized))
}

func TestSignTransaction_RoundTrip(t *testing.T) {
	net := &fakeNetwork{acc: Account{AccountNumber: 725, Sequence: 3}}
	a, key := newAdapter(t, net)
	ctx := context.Background()

	msg := &MsgSend{
		ToAddress: "cosmos1jv65s3grqf6v6jl3dp4t6c9t9rk99cd88lyufl",
		Amount:    []Coin{{Amount: "1", Denom: "uatom"}},
		Memo:      "gateway",
	}
	raw, err := a.SignTransaction(ctx, msg)
	require.NoError(t, err)

	var tx StdTx
	require.NoError(t, json.Unmarshal(raw, &tx))
	assert.Equal(t, "cosmos-sdk/StdTx", tx.Type)
	assert.Equal(t, "gateway", tx.Value.Memo)
	require.Len(t, tx.Value.Signatures, 1)
	sig := tx.Value.Signatures[0]
	assert.Equal(t, "tendermint/PubKeySecp256k1", sig.PubKey.Type)
	assert.Equal(t, ethcrypto.CompressPubkey(&key.PublicKey), sig.PubKey.Value)

	doc, err := a.SignDoc(ctx, msg)
	require.NoError(t, err)
	assert.Equal(t, "725", doc.AccountNumber)
	assert.Equal(t, "3", doc.Sequence)
	assert.Equal(t, "theta-testnet-001", doc.ChainID)

	bz, err := doc.Bytes()
	require.NoError(t, err)
	digest := sha256.Sum256(bz)
	assert.True(t, ethcrypto.VerifySignature(sig.PubKey.Value, digest[:], sig.Signature))

	var value map[string]interface{}
	msgJSON, err := json.Marshal(tx.Value.Msg[0].Value)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(msgJSON, &value))
	from, _ := a.Address(ctx)
	assert.Equal(t, from, value["from_address"])
	assert.Equal(t, msg.ToAddress, value["to_address"])
}

func TestSignDoc_CallerFieldsWin(t *testing.T) {
	net := &fakeNetwork{acc: Account{AccountNumber: 1, Sequence: 1}}
	a, _ := newAdapter(t, net)

	accNum, seq := uint64(0), uint64(9)
	fee := Fee{Amount: []Coin{{Amount: "5", Denom: "uatom"}}, Gas: "100"}
	doc, err := a.SignDoc(context.Background(), &MsgSend{
		ToAddress:     "cosmos1xyz",
		Amount:        []Coin{{Amount: "1", Denom: "uatom"}},
		AccountNumber: &accNum,
		Sequence:      &seq,
		Fee:           &fee,
	})
	require.NoError(t, err)
	assert.Equal(t, "0", doc.AccountNumber)
	assert.Equal(t, "9", doc.Sequence)
	assert.Equal(t, fee, doc.Fee)
	assert.Zero(t, net.calls)
}

func TestAdapter_Errors(t *testing.T) {
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	_, err = New(Config{}, keySigner{key}, nil)
	assert.ErrorContains(t, err, "prefix is required")

	a, _ := newAdapter(t, nil)
	_, err = a.SignTransaction(context.Background(), &MsgSend{ToAddress: "cosmos1xyz"})
	assert.ErrorContains(t, err, "network client is required")

	_, err = a.SignTransaction(context.Background(), struct{ chain.TransactionRequest }{})
	assert.ErrorIs(t, err, chain.ErrUnsupportedTransaction)
}

func TestLCDClient_Account(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cosmos/auth/v1beta1/accounts/cosmos1abc":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"account":{"@type":"/cosmos.auth.v1beta1.BaseAccount","address":"cosmos1abc","account_number":"725","sequence":"12"}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewLCDClient(srv.URL + "/")
	acc, err := c.Account(context.Background(), "cosmos1abc")
	require.NoError(t, err)
	assert.Equal(t, uint64(725), acc.AccountNumber)
	assert.Equal(t, uint64(12), acc.Sequence)

	_, err = c.Account(context.Background(), "cosmos1missing")
	assert.ErrorContains(t, err, "status 404")
}
