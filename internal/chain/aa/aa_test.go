package aa

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

var (
	chainID    = big.NewInt(11155111)
	entryPoint = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")
	factory    = common.HexToAddress("0x00004EC70002a32400f8ae005A26081065620D20")
	demo       = common.HexToAddress("0x7920b6d8b07f0b9a3b96f238c64e022278db1419")
	account    = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type ownerSigner struct{}

var ownerKey, _ = ethcrypto.GenerateKey()

func (ownerSigner) Scheme() types.Scheme { return types.SchemeSecp256k1 }
func (ownerSigner) PublicKey(ctx context.Context) ([]byte, error) {
	return ethcrypto.FromECDSAPub(&ownerKey.PublicKey), nil
}
func (ownerSigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	return ethcrypto.Sign(digest, ownerKey)
}

type fakeNetwork struct {
	code   []byte
	nonce  *big.Int
	calls  map[string]int
	owners []common.Address
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{nonce: big.NewInt(3), calls: map[string]int{}}
}

func (f *fakeNetwork) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	f.calls["code"]++
	return f.code, nil
}

func (f *fakeNetwork) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	switch {
	case bytes.HasPrefix(msg.Data, factoryABI.Methods["getAddress"].ID):
		f.calls["getAddress"]++
		args, err := factoryABI.Methods["getAddress"].Inputs.Unpack(msg.Data[4:])
		if err != nil {
			return nil, err
		}
		f.owners = append(f.owners, args[0].(common.Address))
		return factoryABI.Methods["getAddress"].Outputs.Pack(account)
	case bytes.HasPrefix(msg.Data, epABI.Methods["getNonce"].ID):
		f.calls["getNonce"]++
		return epABI.Methods["getNonce"].Outputs.Pack(f.nonce)
	}
	return nil, ethereum.NotFound
}

type fakeBundler struct {
	sponsorReqs []*SponsorshipRequest
	sent        []*UserOperation
}

func (b *fakeBundler) RequestGasAndPaymasterAndData(ctx context.Context, req *SponsorshipRequest) (*Sponsorship, error) {
	b.sponsorReqs = append(b.sponsorReqs, req)
	return &Sponsorship{
		PaymasterAndData:     common.FromHex("0xabcdef"),
		CallGasLimit:         big.NewInt(100_000),
		VerificationGasLimit: big.NewInt(200_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(3_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}, nil
}

func (b *fakeBundler) SendUserOperation(ctx context.Context, op *UserOperation, ep common.Address) (common.Hash, error) {
	b.sent = append(b.sent, op)
	return op.Hash(ep, chainID)
}

func newAdapter(t *testing.T, net *fakeNetwork, b *fakeBundler) *Adapter {
	t.Helper()
	a, err := New(Config{
		ChainID:     chainID,
		EntryPoint:  entryPoint,
		Factory:     factory,
		GasPolicyID: "policy-1",
	}, ownerSigner{}, net, b)
	require.NoError(t, err)
	return a
}

func changeXCalls(t *testing.T) []Call {
	t.Helper()
	calls := make([]Call, 0, 5)
	for n := int64(1); n <= 5; n++ {
		c, err := ChangeXCall(demo, n)
		require.NoError(t, err)
		calls = append(calls, c)
	}
	return calls
}

func word(b []byte) []byte { return common.LeftPadBytes(b, 32) }

func TestUserOperationHash_MatchesManualEncoding(t *testing.T) {
	op := &UserOperation{
		Sender:               account,
		Nonce:                big.NewInt(7),
		InitCode:             []byte{1, 2, 3},
		CallData:             []byte{4, 5},
		CallGasLimit:         big.NewInt(10),
		VerificationGasLimit: big.NewInt(11),
		PreVerificationGas:   big.NewInt(12),
		MaxFeePerGas:         big.NewInt(13),
		MaxPriorityFeePerGas: big.NewInt(14),
		PaymasterAndData:     []byte{9},
	}

	var packed []byte
	packed = append(packed, word(account.Bytes())...)
	packed = append(packed, math.U256Bytes(big.NewInt(7))...)
	packed = append(packed, ethcrypto.Keccak256([]byte{1, 2, 3})...)
	packed = append(packed, ethcrypto.Keccak256([]byte{4, 5})...)
	for _, v := range []int64{10, 11, 12, 13, 14} {
		packed = append(packed, math.U256Bytes(big.NewInt(v))...)
	}
	packed = append(packed, ethcrypto.Keccak256([]byte{9})...)

	var outer []byte
	outer = append(outer, ethcrypto.Keccak256(packed)...)
	outer = append(outer, word(entryPoint.Bytes())...)
	outer = append(outer, math.U256Bytes(new(big.Int).Set(chainID))...)

	got, err := op.Hash(entryPoint, chainID)
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.Keccak256Hash(outer), got)
}

func TestUserOperation_JSONRoundTrip(t *testing.T) {
	op := &UserOperation{Sender: account, Nonce: big.NewInt(255), CallData: []byte{0xde, 0xad}}
	raw, err := json.Marshal(op)
	require.NoError(t, err)

	var fields map[string]string
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "0xff", fields["nonce"])
	assert.Equal(t, "0x", fields["initCode"])
	assert.Equal(t, "0xdead", fields["callData"])
	assert.Equal(t, "0x0", fields["callGasLimit"])

	var back UserOperation
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, op.Sender, back.Sender)
	assert.Equal(t, op.Nonce, back.Nonce)
}

func TestSend_BatchedChangeXUndeployedAccount(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	b := &fakeBundler{}
	a := newAdapter(t, net, b)

	res, err := a.Send(ctx, &Request{Calls: changeXCalls(t)})
	require.NoError(t, err)
	require.Len(t, b.sent, 1)

	op := res.Request
	assert.Equal(t, account, op.Sender)
	assert.Equal(t, big.NewInt(3), op.Nonce)
	assert.Equal(t, common.FromHex("0xabcdef"), op.PaymasterAndData)

	owner := ethcrypto.PubkeyToAddress(ownerKey.PublicKey)
	assert.Equal(t, []common.Address{owner}, net.owners)

	wantInit, err := initCode(factory, owner, nil)
	require.NoError(t, err)
	assert.Equal(t, wantInit, op.InitCode)

	method, err := accountABI.MethodById(op.CallData[:4])
	require.NoError(t, err)
	assert.Equal(t, "executeBatch", method.Name)
	args, err := method.Inputs.Unpack(op.CallData[4:])
	require.NoError(t, err)
	dests := args[0].([]common.Address)
	datas := args[1].([][]byte)
	require.Len(t, dests, 5)
	for i, d := range datas {
		assert.Equal(t, demo, dests[i])
		vals, err := demoABI.Methods["changeX"].Inputs.Unpack(d[4:])
		require.NoError(t, err)
		assert.Equal(t, big.NewInt(int64(i+1)), vals[0])
	}

	hash, err := op.Hash(entryPoint, chainID)
	require.NoError(t, err)
	assert.Equal(t, hash, res.Hash)

	require.Len(t, op.Signature, 65)
	assert.Contains(t, []byte{27, 28}, op.Signature[64])
	sig := append([]byte(nil), op.Signature...)
	sig[64] -= 27
	pub, err := ethcrypto.SigToPub(accounts.TextHash(hash.Bytes()), sig)
	require.NoError(t, err)
	assert.Equal(t, owner, ethcrypto.PubkeyToAddress(*pub))

	require.Len(t, b.sponsorReqs, 1)
	assert.Equal(t, "policy-1", b.sponsorReqs[0].PolicyID)
	assert.Equal(t, DummySignature, b.sponsorReqs[0].DummySignature)
}

func TestBuildUserOperation_CallerFieldsWin(t *testing.T) {
	net := newFakeNetwork()
	net.code = []byte{0x60}
	b := &fakeBundler{}
	a := newAdapter(t, net, b)

	c, err := ChangeXCall(demo, 1)
	require.NoError(t, err)

	op, err := a.BuildUserOperation(context.Background(), &Request{
		Calls:                []Call{c},
		Nonce:                big.NewInt(42),
		CallGasLimit:         big.NewInt(1),
		VerificationGasLimit: big.NewInt(2),
		PreVerificationGas:   big.NewInt(3),
		MaxFeePerGas:         big.NewInt(4),
		MaxPriorityFeePerGas: big.NewInt(5),
		PaymasterAndData:     []byte{},
	})
	require.NoError(t, err)

	assert.Equal(t, big.NewInt(42), op.Nonce)
	assert.Equal(t, []byte{}, op.InitCode)
	assert.Equal(t, big.NewInt(1), op.CallGasLimit)
	assert.Zero(t, net.calls["getNonce"])
	assert.Empty(t, b.sponsorReqs)

	method, err := accountABI.MethodById(op.CallData[:4])
	require.NoError(t, err)
	assert.Equal(t, "execute", method.Name)
}

func TestAdapter_Errors(t *testing.T) {
	_, err := New(Config{ChainID: chainID}, ownerSigner{}, nil, nil)
	assert.ErrorContains(t, err, "network client is required")

	a := newAdapter(t, newFakeNetwork(), &fakeBundler{})
	_, err = a.BuildUserOperation(context.Background(), &Request{})
	assert.ErrorContains(t, err, "at least one call")

	_, err = encodeCalls([]Call{{To: demo, Value: big.NewInt(1)}, {To: demo}})
	assert.ErrorContains(t, err, "cannot transfer value")

	noPolicy, err := New(Config{ChainID: chainID, EntryPoint: entryPoint, Factory: factory}, ownerSigner{}, newFakeNetwork(), &fakeBundler{})
	require.NoError(t, err)
	_, err = noPolicy.BuildUserOperation(context.Background(), &Request{Calls: changeXCalls(t)})
	assert.ErrorContains(t, err, "gas policy id is required")
}

func TestSignTransaction_ReturnsSignedJSON(t *testing.T) {
	a := newAdapter(t, newFakeNetwork(), &fakeBundler{})

	raw, err := a.SignTransaction(context.Background(), &Request{Calls: changeXCalls(t)})
	require.NoError(t, err)

	var op UserOperation
	require.NoError(t, json.Unmarshal(raw, &op))
	assert.Len(t, op.Signature, 65)

	addr, err := a.Address(context.Background())
	require.NoError(t, err)
	assert.Equal(t, account.Hex(), addr)

	_, err = a.SignTransaction(context.Background(), otherTx{})
	assert.ErrorIs(t, err, chain.ErrUnsupportedTransaction)
}

type otherTx struct{}

func (otherTx) Family() chain.Family { return chain.FamilyCosmos }

func TestDummySignature_IsOwnerSignatureSized(t *testing.T) {
	require.Len(t, DummySignature, 65)
	assert.Equal(t, byte(0x1c), DummySignature[64])
}
