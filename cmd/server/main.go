package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/link-wallet/link-wallet/internal/api"
	"github.com/link-wallet/link-wallet/internal/app"
	"github.com/link-wallet/link-wallet/internal/config"
	"github.com/link-wallet/link-wallet/internal/delegation"
	"github.com/link-wallet/link-wallet/internal/eth"
	"github.com/link-wallet/link-wallet/internal/execution"
	"github.com/link-wallet/link-wallet/internal/identity"
	"github.com/link-wallet/link-wallet/internal/logger"
	"github.com/link-wallet/link-wallet/internal/storage"
	"github.com/link-wallet/link-wallet/internal/validation"
	"github.com/link-wallet/link-wallet/internal/walletexec"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if err := logger.Init(); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	store, err := storage.New(cfg.PostgresDSN)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	slog.Info("connected to database")

	registry, err := eth.NewRegistry(cfg.RPCURLs)
	if err != nil {
		slog.Error("failed to dial chain RPC endpoints", "error", err)
		os.Exit(1)
	}
	defer registry.Close()

	if chains := registry.ChainIDs(); len(chains) > 0 {
		slog.Info("connected to chains", "chain_ids", chains)
	} else {
		slog.Warn("no RPC endpoints configured, on-chain operations disabled")
	}

	keystore, err := walletexec.NewKeystore(&walletexec.KeystoreConfig{
		Backend:           cfg.KeystoreBackend,
		LocalMasterKeyHex: cfg.LocalMasterKeyHex,
		AWSKMSKeyID:       cfg.AWSKMSKeyID,
		AWSKMSRegion:      cfg.AWSKMSRegion,
		VaultAddress:      cfg.VaultAddress,
		VaultToken:        cfg.VaultToken,
		VaultTransitKey:   cfg.VaultTransitKey,
	})
	if err != nil {
		slog.Error("failed to initialize keystore", "error", err)
		os.Exit(1)
	}
	slog.Info("initialized session wallet keystore", "backend", keystore.Backend())

	accountRepo := storage.NewAccountRepository(store)
	profileRepo := storage.NewProfileRepository(store)
	linkedRepo := storage.NewLinkedAccountRepository(store)
	linkRepo := storage.NewIdentityLinkRepository(store)
	delegationRepo := storage.NewDelegationRepository(store)
	sessionKeyRepo := storage.NewSessionKeyRepository(store)
	auditRepo := storage.NewAuditLogRepository(store)

	executor := walletexec.NewExecutor(keystore, sessionKeyRepo, linkedRepo, registry)

	accountService := app.NewAccountService(store, accountRepo, profileRepo, sessionKeyRepo, linkedRepo, executor)
	graph := identity.NewGraph(store, accountRepo, linkRepo, profileRepo)
	manager := delegation.NewManager(delegationRepo, linkedRepo, profileRepo, registry, executor)
	validator := validation.NewTransactionValidator(cfg.MaxCalldataBytes)
	router := execution.NewRouter(manager, profileRepo, linkedRepo, executor, validator, registry, auditRepo)

	server := api.NewServer(cfg, accountService, graph, manager, router, auditRepo, store)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		slog.Error("server error", "error", err)
		os.Exit(1)

	case sig := <-shutdown:
		slog.Info("received shutdown signal", "signal", sig.String())

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			slog.Error("error during shutdown", "error", err)
		}

		slog.Info("server stopped")
	}
}
