// Package apptest provides in-memory identities, identity service, key-share
// store and chain networks for exercising the signing pipeline without any
// external service.
package apptest

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/better-wallet/signing-gateway/internal/app"
	"github.com/better-wallet/signing-gateway/internal/chain/aa"
	"github.com/better-wallet/signing-gateway/internal/chain/cosmos"
	"github.com/better-wallet/signing-gateway/internal/chain/sol"
	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// Identity signs with an in-process key
type Identity struct {
	ID    string
	ECDSA *ecdsa.PrivateKey
	Ed    ed25519.PrivateKey
}

// NewSecp256k1 returns a fresh secp256k1 identity
func NewSecp256k1(t testing.TB, walletID string) *Identity {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Identity{ID: walletID, ECDSA: key}
}

// NewEd25519 returns a fresh ed25519 identity
func NewEd25519(t testing.TB, walletID string) *Identity {
	t.Helper()
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &Identity{ID: walletID, Ed: key}
}

func (i *Identity) WalletID() string { return i.ID }

func (i *Identity) Scheme() types.Scheme {
	if i.Ed != nil {
		return types.SchemeEd25519
	}
	return types.SchemeSecp256k1
}

func (i *Identity) PublicKey(ctx context.Context) ([]byte, error) {
	if i.Ed != nil {
		return bytes.Clone(i.Ed.Public().(ed25519.PublicKey)), nil
	}
	return ethcrypto.FromECDSAPub(&i.ECDSA.PublicKey), nil
}

func (i *Identity) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if i.Ed != nil {
		return ed25519.Sign(i.Ed, payload), nil
	}
	return ethcrypto.Sign(payload, i.ECDSA)
}

// Service is an identity.Service backed by maps. Sessions maps tokens to
// identities; Wallets maps user ids to the identity InstallShare returns
// for each scheme.
type Service struct {
	mu       sync.Mutex
	Sessions map[string]identity.Identity
	Wallets  map[string]map[types.Scheme]identity.Identity

	ImportCalls  int
	ExistsCalls  int
	InstallCalls int
}

// NewService creates an empty Service
func NewService() *Service {
	return &Service{
		Sessions: map[string]identity.Identity{},
		Wallets:  map[string]map[types.Scheme]identity.Identity{},
	}
}

// AddWallet registers id as userID's wallet for id's scheme
func (s *Service) AddWallet(userID string, id identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Wallets[userID] == nil {
		s.Wallets[userID] = map[types.Scheme]identity.Identity{}
	}
	s.Wallets[userID][id.Scheme()] = id
}

// Calls returns the total number of service calls
func (s *Service) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ImportCalls + s.ExistsCalls + s.InstallCalls
}

func (s *Service) ImportSession(ctx context.Context, token string) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ImportCalls++
	id, ok := s.Sessions[token]
	if !ok {
		return nil, identity.ErrInvalidSession
	}
	return id, nil
}

func (s *Service) WalletExists(ctx context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ExistsCalls++
	return len(s.Wallets[userID]) > 0, nil
}

func (s *Service) InstallShare(ctx context.Context, rec *types.KeyShareRecord, share []byte) (identity.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.InstallCalls++
	id, ok := s.Wallets[rec.UserID][rec.Scheme]
	if !ok {
		return nil, identity.ErrIdentityBinding
	}
	return id, nil
}

// KeyShares is an identity.KeyShareStore that counts lookups
type KeyShares struct {
	mu      sync.Mutex
	Records map[string][]*types.KeyShareRecord
	Lookups int
}

// NewKeyShares creates an empty KeyShares
func NewKeyShares() *KeyShares {
	return &KeyShares{Records: map[string][]*types.KeyShareRecord{}}
}

// Add stores rec under its user id
func (k *KeyShares) Add(rec *types.KeyShareRecord) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Records[rec.UserID] = append(k.Records[rec.UserID], rec)
}

// LookupCount returns how many times the store was queried
func (k *KeyShares) LookupCount() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.Lookups
}

func (k *KeyShares) ListByUserID(ctx context.Context, userID string) ([]*types.KeyShareRecord, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Lookups++
	return k.Records[userID], nil
}

// PlainDecrypter returns sealed data unchanged
type PlainDecrypter struct{}

func (PlainDecrypter) Decrypt(ctx context.Context, data []byte) ([]byte, error) {
	return bytes.Clone(data), nil
}

var (
	getAddressSelector = ethcrypto.Keccak256([]byte("getAddress(address,uint256)"))[:4]
	getNonceSelector   = ethcrypto.Keccak256([]byte("getNonce(address,uint192)"))[:4]
)

// EVM answers node queries with fixed values
type EVM struct {
	mu       sync.Mutex
	Nonce    uint64
	GasPrice *big.Int
	TipCap   *big.Int
	BaseFeeV *big.Int
	Gas      uint64
	Account  common.Address
	Calls    int
}

// NewEVM returns an EVM fake with London-era fees
func NewEVM() *EVM {
	return &EVM{
		Nonce:    4,
		GasPrice: big.NewInt(2_000_000_000),
		TipCap:   big.NewInt(1_000_000_000),
		BaseFeeV: big.NewInt(7_000_000_000),
		Gas:      21_000,
		Account:  common.HexToAddress("0x2222222222222222222222222222222222222222"),
	}
}

func (e *EVM) count() {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()
}

func (e *EVM) PendingNonce(ctx context.Context, addr common.Address) (uint64, error) {
	e.count()
	return e.Nonce, nil
}

func (e *EVM) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	e.count()
	return new(big.Int).Set(e.GasPrice), nil
}

func (e *EVM) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	e.count()
	return new(big.Int).Set(e.TipCap), nil
}

func (e *EVM) BaseFee(ctx context.Context) (*big.Int, error) {
	e.count()
	return new(big.Int).Set(e.BaseFeeV), nil
}

func (e *EVM) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	e.count()
	return e.Gas, nil
}

func (e *EVM) CodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	e.count()
	return nil, nil
}

func (e *EVM) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	e.count()
	switch {
	case bytes.HasPrefix(msg.Data, getAddressSelector):
		return common.LeftPadBytes(e.Account.Bytes(), 32), nil
	case bytes.HasPrefix(msg.Data, getNonceSelector):
		return common.LeftPadBytes(new(big.Int).SetUint64(e.Nonce).Bytes(), 32), nil
	}
	return nil, errors.New("unexpected contract call")
}

// Bundler records user operations and returns their hash
type Bundler struct {
	mu      sync.Mutex
	ChainID *big.Int
	Sent    []*aa.UserOperation
}

func (b *Bundler) RequestGasAndPaymasterAndData(ctx context.Context, req *aa.SponsorshipRequest) (*aa.Sponsorship, error) {
	return &aa.Sponsorship{
		PaymasterAndData:     common.FromHex("0x4fd9098af9ddcb41da48a1d78f91f1398965addc"),
		CallGasLimit:         big.NewInt(120_000),
		VerificationGasLimit: big.NewInt(300_000),
		PreVerificationGas:   big.NewInt(50_000),
		MaxFeePerGas:         big.NewInt(3_000_000_000),
		MaxPriorityFeePerGas: big.NewInt(1_000_000_000),
	}, nil
}

func (b *Bundler) SendUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error) {
	b.mu.Lock()
	b.Sent = append(b.Sent, op)
	b.mu.Unlock()
	return op.Hash(entryPoint, b.ChainID)
}

// Cosmos returns a fixed account
type Cosmos struct {
	Fixed cosmos.Account
}

func (c *Cosmos) Account(ctx context.Context, address string) (*cosmos.Account, error) {
	acc := c.Fixed
	return &acc, nil
}

// Solana returns a fixed blockhash
type Solana struct {
	Hash solana.Hash
}

func (s *Solana) LatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (solana.Hash, error) {
	return s.Hash, nil
}

// Networks implements app.Networks over the fakes above and counts how many
// collaborators were opened.
type Networks struct {
	EVMNet     *EVM
	BundlerNet *Bundler
	CosmosNet  *Cosmos
	SolanaNet  *Solana

	mu     sync.Mutex
	Opened int
}

var _ app.Networks = (*Networks)(nil)

// NewNetworks creates fakes for every chain
func NewNetworks(chainID *big.Int) *Networks {
	return &Networks{
		EVMNet:     NewEVM(),
		BundlerNet: &Bundler{ChainID: chainID},
		CosmosNet:  &Cosmos{Fixed: cosmos.Account{AccountNumber: 42, Sequence: 7}},
		SolanaNet:  &Solana{Hash: solana.Hash{4, 2}},
	}
}

// OpenCount returns how many collaborators were opened
func (n *Networks) OpenCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.Opened
}

func (n *Networks) open() {
	n.mu.Lock()
	n.Opened++
	n.mu.Unlock()
}

func (n *Networks) EVM(ctx context.Context) (app.EVMNetwork, func(), error) {
	n.open()
	return n.EVMNet, func() {}, nil
}

func (n *Networks) Bundler(ctx context.Context) (aa.Bundler, func(), error) {
	n.open()
	return n.BundlerNet, func() {}, nil
}

func (n *Networks) Cosmos(ctx context.Context) (cosmos.Network, func(), error) {
	n.open()
	return n.CosmosNet, func() {}, nil
}

func (n *Networks) Solana(ctx context.Context) (sol.Network, func(), error) {
	n.open()
	return n.SolanaNet, func() {}, nil
}
