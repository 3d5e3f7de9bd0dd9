package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"

	"github.com/better-wallet/signing-gateway/internal/chain"
	"github.com/better-wallet/signing-gateway/internal/chain/aa"
	"github.com/better-wallet/signing-gateway/internal/chain/cosmos"
	"github.com/better-wallet/signing-gateway/internal/chain/evm"
	"github.com/better-wallet/signing-gateway/internal/chain/sol"
	"github.com/better-wallet/signing-gateway/internal/config"
	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/metrics"
	"github.com/better-wallet/signing-gateway/internal/validation"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

// SessionImporter turns a session token into an identity
type SessionImporter interface {
	ImportSession(ctx context.Context, token string) (identity.Identity, error)
}

// UserResolver builds an identity from a pregenerated wallet's key share
type UserResolver interface {
	ResolveByUserID(ctx context.Context, userID string, scheme types.Scheme) (identity.Identity, error)
}

// SignResult is the response body of every signing route. Which artifact
// fields are set depends on the variant.
type SignResult struct {
	Message             string          `json:"message"`
	SignMessageResult   string          `json:"signMessageResult,omitempty"`
	SignTxResult        json.RawMessage `json:"signTxResult,omitempty"`
	SignedTransaction   string          `json:"signedTransaction,omitempty"`
	UserOperationResult *aa.Result      `json:"userOperationResult,omitempty"`
}

// SigningService runs the signing pipeline: resolve an identity, wrap it in
// a chain adapter, sign, and shape the result. It keeps no per-request state.
type SigningService struct {
	importer SessionImporter
	resolver UserResolver
	networks Networks
	chains   ChainSettings
}

// NewSigningService creates a new SigningService
func NewSigningService(cfg *config.Config, importer SessionImporter, resolver UserResolver, networks Networks) (*SigningService, error) {
	chains, err := NewChainSettings(cfg)
	if err != nil {
		return nil, err
	}
	return &SigningService{
		importer: importer,
		resolver: resolver,
		networks: networks,
		chains:   chains,
	}, nil
}

// SignWithSession imports a session and submits the demo batch of changeX
// calls as one sponsored user operation.
func (s *SigningService) SignWithSession(ctx context.Context, token string) (*SignResult, error) {
	id, err := s.importer.ImportSession(ctx, token)
	metrics.RecordIdentity("session", err == nil)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "session imported", "wallet_id", id.WalletID())

	return s.sendUserOperation(ctx, id)
}

// SignForUser resolves userID's pregenerated wallet for variant and runs
// that variant's demo signing flow.
func (s *SigningService) SignForUser(ctx context.Context, variant chain.Variant, userID string) (*SignResult, error) {
	id, err := s.resolver.ResolveByUserID(ctx, userID, variant.Scheme())
	metrics.RecordIdentity("key_share", err == nil)
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "key share resolved",
		"user", logger.MaskEmail(userID),
		"wallet_id", id.WalletID(),
	)

	switch variant {
	case chain.VariantEVMViem:
		return s.signEVM(ctx, id, evm.DynamicFee)
	case chain.VariantEVMEthers:
		return s.signEVM(ctx, id, evm.Legacy)
	case chain.VariantEVMAA:
		return s.sendUserOperation(ctx, id)
	case chain.VariantCosmos:
		return s.signCosmos(ctx, id)
	case chain.VariantSolana:
		return s.signSolana(ctx, id)
	default:
		return nil, fmt.Errorf("unknown variant %q", variant)
	}
}

func (s *SigningService) signEVM(ctx context.Context, id identity.Identity, txType evm.TxType) (*SignResult, error) {
	net, closeNet, err := s.networks.EVM(ctx)
	if err != nil {
		return nil, err
	}
	defer closeNet()

	adapter, err := evm.New(evm.Config{ChainID: s.chains.EVMChainID, TxType: txType}, id, net)
	if err != nil {
		return nil, fmt.Errorf("evm adapter: %w", err)
	}

	msgSig, err := adapter.SignMessage(ctx, []byte(DemoMessage))
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	tx, err := SelfTransferEVM(ctx, adapter)
	if err != nil {
		return nil, err
	}
	raw, err := adapter.SignTransaction(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	encoded, err := json.Marshal(hexutil.Encode(raw))
	if err != nil {
		return nil, err
	}
	return &SignResult{
		Message:           DemoMessage,
		SignMessageResult: hexutil.Encode(msgSig.Normalized),
		SignTxResult:      encoded,
	}, nil
}

func (s *SigningService) sendUserOperation(ctx context.Context, id identity.Identity) (*SignResult, error) {
	net, closeNet, err := s.networks.EVM(ctx)
	if err != nil {
		return nil, err
	}
	defer closeNet()

	bundler, closeBundler, err := s.networks.Bundler(ctx)
	if err != nil {
		return nil, err
	}
	defer closeBundler()

	adapter, err := aa.New(s.chains.AA, id, net, bundler)
	if err != nil {
		return nil, fmt.Errorf("account abstraction adapter: %w", err)
	}

	calls, err := ChangeXBatch(s.chains.DemoContract)
	if err != nil {
		return nil, err
	}

	res, err := adapter.Send(ctx, &aa.Request{Calls: calls})
	if err != nil {
		return nil, fmt.Errorf("send user operation: %w", err)
	}

	logger.Info(ctx, "user operation submitted", "hash", res.Hash.Hex(), "calls", len(calls))

	return &SignResult{
		Message:             UserOperationMessage,
		UserOperationResult: res,
	}, nil
}

func (s *SigningService) signCosmos(ctx context.Context, id identity.Identity) (*SignResult, error) {
	net, closeNet, err := s.networks.Cosmos(ctx)
	if err != nil {
		return nil, err
	}
	defer closeNet()

	adapter, err := cosmos.New(s.chains.Cosmos, id, net)
	if err != nil {
		return nil, fmt.Errorf("cosmos adapter: %w", err)
	}

	msgSig, err := adapter.SignMessage(ctx, []byte(DemoMessage))
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	msg, err := SelfTransferCosmos(ctx, adapter, s.chains.Cosmos.Denom)
	if err != nil {
		return nil, err
	}
	stdTx, err := adapter.SignTransaction(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return &SignResult{
		Message:           DemoMessage,
		SignMessageResult: base64.StdEncoding.EncodeToString(msgSig.Normalized),
		SignTxResult:      stdTx,
	}, nil
}

func (s *SigningService) signSolana(ctx context.Context, id identity.Identity) (*SignResult, error) {
	net, closeNet, err := s.networks.Solana(ctx)
	if err != nil {
		return nil, err
	}
	defer closeNet()

	adapter, err := sol.New(s.chains.Solana, id, net)
	if err != nil {
		return nil, fmt.Errorf("solana adapter: %w", err)
	}

	msgSig, err := adapter.SignMessage(ctx, []byte(DemoMessage))
	if err != nil {
		return nil, fmt.Errorf("sign message: %w", err)
	}

	transfer, err := SelfTransferSolana(ctx, adapter)
	if err != nil {
		return nil, err
	}
	raw, err := adapter.SignTransaction(ctx, transfer)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	return &SignResult{
		Message:           DemoMessage,
		SignMessageResult: solana.SignatureFromBytes(msgSig.Normalized).String(),
		SignedTransaction: base64.StdEncoding.EncodeToString(raw),
	}, nil
}

// ChainSettings are the per-chain adapter configs, parsed once at startup
type ChainSettings struct {
	EVMChainID   *big.Int
	AA           aa.Config
	DemoContract common.Address
	Cosmos       cosmos.Config
	Solana       sol.Config
}

// NewChainSettings validates and converts the chain section of cfg
func NewChainSettings(cfg *config.Config) (ChainSettings, error) {
	addresses := []struct{ name, value string }{
		{"AA_ENTRY_POINT", cfg.AAEntryPoint},
		{"AA_ACCOUNT_FACTORY", cfg.AAAccountFactory},
		{"AA_DEMO_CONTRACT", cfg.AADemoContract},
	}
	for _, a := range addresses {
		if err := validation.ValidateEthereumAddress(a.value); err != nil {
			return ChainSettings{}, fmt.Errorf("%s: %w", a.name, err)
		}
	}
	if err := validation.ValidateBech32Prefix(cfg.CosmosPrefix); err != nil {
		return ChainSettings{}, fmt.Errorf("COSMOS_PREFIX: %w", err)
	}
	if err := validation.ValidateDenom(cfg.CosmosDenom); err != nil {
		return ChainSettings{}, fmt.Errorf("COSMOS_DENOM: %w", err)
	}

	chainID := big.NewInt(cfg.EVMChainID)
	return ChainSettings{
		EVMChainID: chainID,
		AA: aa.Config{
			ChainID:     chainID,
			EntryPoint:  common.HexToAddress(cfg.AAEntryPoint),
			Factory:     common.HexToAddress(cfg.AAAccountFactory),
			Salt:        new(big.Int),
			GasPolicyID: cfg.AlchemyGasPolicyID,
		},
		DemoContract: common.HexToAddress(cfg.AADemoContract),
		Cosmos: cosmos.Config{
			ChainID: cfg.CosmosChainID,
			Prefix:  cfg.CosmosPrefix,
			Denom:   cfg.CosmosDenom,
			DefaultFee: cosmos.Fee{
				Amount: []cosmos.Coin{{Amount: cosmosFeeAmount, Denom: cfg.CosmosDenom}},
				Gas:    cosmosGasLimit,
			},
		},
		Solana: sol.Config{},
	}, nil
}
