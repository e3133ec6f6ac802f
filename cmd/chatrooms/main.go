package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/example/chatrooms/internal/application"
	"github.com/example/chatrooms/internal/chatclient"
	"github.com/example/chatrooms/internal/config"
	"github.com/example/chatrooms/internal/createguard"
	httptransport "github.com/example/chatrooms/internal/http"
	"github.com/example/chatrooms/internal/logging"
	"github.com/example/chatrooms/internal/objecttype"
	"github.com/example/chatrooms/internal/persistence/postgres"
	"github.com/example/chatrooms/internal/persistence/sqlite"
	"github.com/example/chatrooms/internal/persistence/sqlstore"
)

func main() {
	bootstrap := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// A missing .env file is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		bootstrap.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		bootstrap.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, err := logging.NewJSON(os.Stdout, cfg.LogLevel)
	if err != nil {
		bootstrap.Error("invalid log level", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("chatrooms API stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Error("failed to close storage", "error", cerr)
		}
	}()

	remote, err := chatclient.NewClient(remoteClientConfig(cfg, logger))
	if err != nil {
		return fmt.Errorf("configure chat client: %w", err)
	}
	defer remote.Close()

	guard, closeGuard, err := newCreateGuard(cfg, logger)
	if err != nil {
		return err
	}
	defer closeGuard()

	registry := objecttype.NewRegistry(logger)
	if cfg.ObjectTypesFile != "" {
		if err := registry.RegisterFile(cfg.ObjectTypesFile, store.DB(), objecttype.WithRebind(store.Dialect().Rebind)); err != nil {
			return fmt.Errorf("load object types: %w", err)
		}
		logger.Info("object types registered", "types", registry.Types())
	}

	router := newHandler(store, remote, guard, registry, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Remote calls may retry up to MaxRetries times within Timeout each.
		WriteTimeout: cfg.Timeout*time.Duration(cfg.MaxRetries+1) + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("chatrooms API listening", "addr", server.Addr, "db_driver", cfg.DBDriver, "remote", cfg.APIBaseURL)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// remoteClientConfig maps CHAT_* settings onto the client; CHAT_MAX_RETRIES=0
// turns connection retries off.
func remoteClientConfig(cfg config.Config, logger *slog.Logger) chatclient.Config {
	retries := cfg.MaxRetries
	if retries == 0 {
		retries = chatclient.NoRetries
	}
	return chatclient.Config{
		BaseURL:           cfg.APIBaseURL,
		OrganisationToken: cfg.OrganisationToken,
		Timeout:           cfg.Timeout,
		MaxRetries:        retries,
		Logger:            logger,
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*sqlstore.Store, error) {
	opts := []sqlstore.Option{sqlstore.WithIDGenerator(uuid.NewString)}
	switch cfg.DBDriver {
	case config.DriverPostgres:
		return postgres.Open(ctx, postgres.DefaultConfig(cfg.DBDSN), logger, opts...)
	case config.DriverSQLite:
		return sqlite.Open(ctx, sqlite.DefaultConfig(cfg.DBDSN), logger, opts...)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}
}

// newCreateGuard returns a Redis lease guard when CHAT_REDIS_URL is set so
// replicas share creation locks, and an in-process guard otherwise.
func newCreateGuard(cfg config.Config, logger *slog.Logger) (application.CreateGuard, func(), error) {
	if cfg.RedisURL == "" {
		return createguard.NewLocal(), func() {}, nil
	}
	guard, client, err := createguard.NewRedisFromURL(cfg.RedisURL, cfg.CreateGuardTTL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("configure create guard: %w", err)
	}
	return guard, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis client", "error", err)
		}
	}, nil
}

// newHandler wires the chat room service and HTTP facade over store and
// the remote chat client.
func newHandler(store *sqlstore.Store, remote *chatclient.Client, guard application.CreateGuard, registry *objecttype.Registry, logger *slog.Logger) http.Handler {
	opts := []application.ChatRoomServiceOption{application.WithCreateGuard(guard)}
	// Without registered types every object reference is accepted.
	if len(registry.Types()) > 0 {
		opts = append(opts, application.WithObjectResolver(registry))
	}
	rooms := application.NewChatRoomServiceWithLogger(
		newChatRoomRepositoryAdapter(store, store),
		remote,
		uuid.NewString,
		time.Now,
		logger,
		opts...,
	)

	return httptransport.NewRouter(httptransport.RouterConfig{
		Rooms:        httptransport.NewRoomHandler(rooms, remote, logger),
		Chats:        httptransport.NewChatHandler(rooms, remote, logger),
		Participants: httptransport.NewParticipantHandler(rooms, remote, rooms, logger),
		Attachments:  httptransport.NewAttachmentHandler(rooms, remote, logger),
		ObjectTypes:  httptransport.NewObjectTypeHandler(registry, logger),
		Health:       store.Ping,
		Identity:     httptransport.RequirePrincipal(logger),
		Middleware:   []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}
