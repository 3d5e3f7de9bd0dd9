package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/better-wallet/signing-gateway/internal/api"
	"github.com/better-wallet/signing-gateway/internal/app"
	"github.com/better-wallet/signing-gateway/internal/config"
	"github.com/better-wallet/signing-gateway/internal/identity"
	"github.com/better-wallet/signing-gateway/internal/keyexec"
	"github.com/better-wallet/signing-gateway/internal/logger"
	"github.com/better-wallet/signing-gateway/internal/middleware"
	"github.com/better-wallet/signing-gateway/internal/storage"
	"github.com/better-wallet/signing-gateway/pkg/types"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	ctx := context.Background()

	// Initialize database
	store, err := storage.New(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	slog.Info("connected to database")

	// Key shares are decrypted with the configured KMS provider
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

	slog.Info("initialized KMS provider", "provider", provider.Provider())

	// Identity backend
	var service identity.Service
	switch cfg.IdentityBackend {
	case types.IdentityBackendRemote:
		service = identity.NewRemoteService(cfg.IdentityBaseURL(), cfg.CapsuleAPIKey)
	default:
		service = identity.NewLocalService(keyexec.NewExecutor(provider), storage.NewExecShareRepository(store))
	}

	slog.Info("initialized identity backend", "backend", cfg.IdentityBackend)

	// Initialize application services
	signingService, err := app.NewSigningService(cfg,
		identity.NewImporter(service),
		identity.NewResolver(service, storage.NewKeyShareRepository(store), provider),
		app.NewRPCNetworks(cfg),
	)
	if err != nil {
		slog.Error("invalid chain configuration", "error", err)
		os.Exit(1)
	}

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthSettings{
		JWKSURI:  cfg.AuthJWKSURI,
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
	})
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitEnabled)
	defer rateLimiter.Close()

	// Initialize API server
	server := api.NewServer(cfg, signingService, authMiddleware, rateLimiter, store)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Wait for either server error or shutdown signal
	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), cfg.ExternalCallTimeout+15*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
			slog.Warn("forcing shutdown")
		}

		slog.Info("server stopped")
	}
}
