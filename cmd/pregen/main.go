// Command pregen provisions pregenerated wallets for the self-hosted identity
// backend and optionally exports a session token for the new EVM wallet.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/better-wallet/signing-gateway/internal/app"
	"github.com/better-wallet/signing-gateway/internal/config"
	"github.com/better-wallet/signing-gateway/internal/crypto"
	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/storage"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

func main() {
	var (
		email      = flag.String("email", "", "Wallet owner email (required)")
		scheme     = flag.String("scheme", "all", "Key scheme: secp256k1, ed25519 or all")
		sessionTTL = flag.Duration("session-ttl", 0, "Also print a session token valid this long for the secp256k1 wallet")
	)
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}
	schemes, err := parseSchemes(*scheme)
	if err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.IdentityBackend != types.IdentityBackendLocal {
		log.Fatal("pregen only provisions wallets for IDENTITY_BACKEND=local")
	}
	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()
	store, err := storage.New(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	provider, err := keyexec.NewKMSProvider(ctx, &keyexec.KMSConfig{
		Provider:        cfg.KMSProvider,
		LocalMasterKey:  cfg.KMSLocalMasterKey,
		AWSKMSKeyID:     cfg.KMSAWSKeyID,
		AWSKMSRegion:    cfg.KMSAWSRegion,
		VaultAddress:    cfg.KMSVaultAddress,
		VaultToken:      cfg.KMSVaultToken,
		VaultTransitKey: cfg.KMSVaultTransitKey,
	})
	if err != nil {
		slog.Error("failed to initialize KMS provider", "error", err)
		os.Exit(1)
	}
	exec := keyexec.NewExecutor(provider)
	provisioner := app.NewProvisioner(exec, store)

	for _, s := range schemes {
		rec, pub, err := provisioner.Pregenerate(ctx, *email, s)
		if err != nil {
			slog.Error("pregeneration failed", "scheme", s, "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s wallet %s public key %s\n", s, rec.WalletID, hex.EncodeToString(pub))

		if s == types.SchemeSecp256k1 && *sessionTTL > 0 {
			token, err := exportSession(ctx, identity.NewLocalService(exec, storage.NewExecShareRepository(store)), provider, rec, *sessionTTL)
			if err != nil {
				slog.Error("session export failed", "error", err)
				os.Exit(1)
			}
			fmt.Printf("session %s\n", token)
		}
	}
}

func parseSchemes(s string) ([]types.Scheme, error) {
	if s == "all" {
		return []types.Scheme{types.SchemeSecp256k1, types.SchemeEd25519}, nil
	}
	scheme := types.Scheme(s)
	if !scheme.Valid() {
		return nil, fmt.Errorf("unknown scheme %q", s)
	}
	return []types.Scheme{scheme}, nil
}

// exportSession opens rec's user share and seals it into a session token
func exportSession(ctx context.Context, svc *identity.LocalService, dec identity.Decrypter, rec *types.KeyShareRecord, ttl time.Duration) (string, error) {
	share, err := dec.Decrypt(ctx, rec.EncryptedShare)
	if err != nil {
		return "", fmt.Errorf("failed to open user share: %w", err)
	}
	defer crypto.Zero(share)

	return svc.ExportSession(ctx, rec.WalletID, rec.Scheme, share, ttl)
}
