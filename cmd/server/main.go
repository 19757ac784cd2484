package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"teamchat/internal/api"
	"teamchat/internal/auth"
	"teamchat/internal/chat"
	"teamchat/internal/config"
	"teamchat/internal/logging"
	"teamchat/internal/manager"
	"teamchat/internal/messaging"
	"teamchat/internal/metrics"
	"teamchat/internal/notify"
	"teamchat/internal/storage"
)

// @title Team Chat API
// @version 1.0
// @description Message routing, unseen ledger, inbox previews and history for team chat
// @host localhost:8080
// @BasePath /
// @schemes http

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name Authorization
func main() {
	configPath := flag.String("config", os.Getenv("TEAMCHAT_CONFIG"), "path to YAML config file")
	flag.Parse()

	// Init Metrics
	metrics.Init()

	// Load Configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		bootLogger := logging.New("info", "json")
		bootLogger.Fatal().Err(err).Msg("failed to load config")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	logger.Info().Str("notify_backend", cfg.Notify.Backend).Msg("configuration loaded")

	authn, err := auth.NewAuthenticator(cfg.Auth.JWTSecret, 0)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init authenticator")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Init storage
	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init storage")
	}
	defer store.Close()

	// Init notification transport
	var (
		pub    notify.Publisher
		queues manager.QueueDeclarer
		rabbit *messaging.RabbitClient
	)
	switch cfg.Notify.Backend {
	case "rabbitmq":
		rabbit, err = messaging.NewRabbitClient(cfg.RabbitMQ.URL, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rabbit.Close()
		pub, queues = rabbit, rabbit
		logger.Info().Msg("RabbitMQ connected")
	case "redis":
		redisPub, err := messaging.NewRedisPublisher(ctx, cfg.Redis.URL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer redisPub.Close()
		pub = redisPub
		logger.Info().Msg("Redis connected")
	}

	var (
		notifier   notify.Notifier = notify.Discard
		dispatcher *notify.Dispatcher
	)
	if pub != nil {
		dispatcher = notify.NewDispatcher(pub, cfg.Notify.Workers, cfg.Notify.Buffer, cfg.Notify.Timeout, logger)
		dispatcher.Start()
		notifier = dispatcher
	}

	// Init TeamManager
	tm, err := manager.NewTeamManager(store, queues, manager.Options{
		CensorCacheSize: cfg.Censor.CacheSize,
		CensorTTL:       cfg.Censor.CacheTTL,
		Mask:            cfg.MaskRune(),
	}, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init team manager")
	}

	// Start background loop for updating queue depth metrics
	if rabbit != nil {
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					for _, teamID := range tm.ListTeamIDs() {
						rabbit.UpdateQueueDepth(teamID)
					}
				}
			}
		}()
	}

	svc := chat.NewService(store, tm, chat.Options{
		PageSize: cfg.History.PageSize,
		Notifier: notifier,
	}, logger)

	// Init API
	apiHandler := api.NewAPI(svc, store, authn, logger)
	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Server.Addr).Msg("starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done() // Wait for interrupt signal
	logger.Info().Msg("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop HTTP server
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP shutdown error")
	}

	// Drain queued notifications
	if dispatcher != nil {
		dispatcher.Stop(shutdownCtx)
	}

	logger.Info().Msg("graceful shutdown complete")
}

// openStore connects to PostgreSQL when a database URL is configured and
// falls back to SQLite otherwise. The seed file, if any, is
// applied to whichever store is used.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.Store, error) {
	var (
		store storage.Store
		dir   storage.Directory
	)
	if cfg.Database.URL != "" {
		db, err := storage.NewStorage(cfg.Database.URL)
		if err != nil {
			return nil, err
		}
		db.DB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, err
		}
		store, dir = db, db
		logger.Info().Msg("PostgreSQL connected")
	} else {
		db, err := storage.NewSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, dir = db, db
		logger.Warn().Str("path", cfg.Database.SQLitePath).Msg("no database URL configured, using SQLite")
	}

	if cfg.SeedFile != "" {
		seed, err := storage.LoadSeed(cfg.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		if err := seed.Apply(ctx, dir); err != nil {
			store.Close()
			return nil, err
		}
		logger.Info().Str("file", cfg.SeedFile).Msg("seed applied")
	}
	return store, nil
}
