package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/instabids/scope-engine/migrations"
	"github.com/instabids/scope-engine/pkg/config"
	"github.com/instabids/scope-engine/pkg/database"
	"github.com/instabids/scope-engine/pkg/handlers"
	"github.com/instabids/scope-engine/pkg/logging"
	"github.com/instabids/scope-engine/pkg/mcp"
	"github.com/instabids/scope-engine/pkg/mcp/tools"
	"github.com/instabids/scope-engine/pkg/middleware"
	"github.com/instabids/scope-engine/pkg/repositories"
	"github.com/instabids/scope-engine/pkg/services"
	"github.com/instabids/scope-engine/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath, Version)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("version", cfg.Version),
		zap.String("storage_mode", string(cfg.Storage.Mode)),
		zap.String("conversation_backend", string(cfg.Conversation.Backend)))

	db, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db, migrations.FS, logger); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	redisClient, err := database.NewRedisClient(ctx, &cfg.Redis, logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	store, err := storage.NewGCSStore(ctx, &cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close object storage client", zap.Error(err))
		}
	}()

	conversations, err := newConversations(cfg, db, redisClient, store, logger)
	if err != nil {
		return err
	}

	checks := healthChecks(db, redisClient)

	mcpServer := mcp.NewServer("scope-engine", cfg.Version, logger, mcp.NewAuditLogger(logger))
	mcpServer.RegisterScopeTools(&tools.ToolDeps{
		Conversations: conversations,
		Logger:        logger.Named("mcp-tools"),
	}, cfg.Version, checks...)

	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, checks, logger).RegisterRoutes(mux)
	handlers.NewMCPHandler(mcpServer, logger.Named("mcp"), cfg.MCP).RegisterRoutes(mux)
	handlers.NewConversationHandler(conversations, logger).RegisterRoutes(mux)

	srv := &http.Server{
		Addr:    net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler: middleware.RequestLogger(logger)(mux),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting scope-engine", zap.String("addr", srv.Addr), zap.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down", zap.Duration("timeout", cfg.ShutdownTimeout))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Server stopped")
	return nil
}

func newConversations(cfg *config.Config, db *database.DB, redisClient *redis.Client, store storage.ObjectStore, logger *zap.Logger) (services.Conversations, error) {
	scopeRepo := repositories.NewScopeRepository()
	factRepo := repositories.NewScopeFactRepository()
	imageRepo := repositories.NewImageRepository()

	ledger := services.NewScopeLedger(db, scopeRepo, factRepo, imageRepo, cfg.Storage.Timeout, logger)
	intake := services.NewImageIntake(store, db, imageRepo, &cfg.Storage, logger)

	var convStore services.ConversationStore
	switch cfg.Conversation.Backend {
	case config.ConversationBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("conversation backend %q requires redis", cfg.Conversation.Backend)
		}
		convStore = services.NewRedisConversationStore(redisClient, cfg.Conversation.TTL)
	default:
		convStore = services.NewPostgresConversationStore(db, repositories.NewConversationRepository())
	}

	conversations, err := services.NewConversations(ledger, intake, convStore, cfg.Conversation.LockCacheSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation service: %w", err)
	}
	return conversations, nil
}

func healthChecks(db *database.DB, redisClient *redis.Client) []tools.HealthCheck {
	checks := []tools.HealthCheck{
		{Name: "postgres", Check: db.Ping},
	}
	if redisClient != nil {
		checks = append(checks, tools.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	return checks
}
