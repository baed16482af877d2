package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aluoptimize/aluoptimize/internal/config"
	"github.com/aluoptimize/aluoptimize/internal/handlers"
	"github.com/aluoptimize/aluoptimize/internal/logging"
	"github.com/aluoptimize/aluoptimize/internal/middleware"
	"github.com/aluoptimize/aluoptimize/internal/repository"
	"github.com/aluoptimize/aluoptimize/internal/services/auth"
	"github.com/aluoptimize/aluoptimize/internal/services/notification"
	"github.com/aluoptimize/aluoptimize/internal/services/prediction"
	"github.com/aluoptimize/aluoptimize/internal/services/reports"
	"github.com/aluoptimize/aluoptimize/internal/services/storage"
	"github.com/aluoptimize/aluoptimize/pkg/crypto"
	"github.com/aluoptimize/aluoptimize/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	thresholds, err := cfg.Thresholds()
	if err != nil {
		fatal(logger, "invalid scoring configuration", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		fatal(logger, "failed to connect to database", err)
	}
	defer db.Close()
	if err := repository.Migrate(ctx, db); err != nil {
		fatal(logger, "failed to apply schema", err)
	}

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			fatal(logger, "invalid REDIS_URL", err)
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal(logger, "failed to connect to redis", err)
		}
	} else {
		logger.Warn("REDIS_URL not set, notifications are kept in memory")
	}

	var publisher events.Publisher = events.Nop{}
	if cfg.NatsURL != "" {
		nc, err := events.NewNatsPublisher(events.NatsConfig{URL: cfg.NatsURL, Name: "aluoptimize"}, logger)
		if err != nil {
			fatal(logger, "failed to connect to nats", err)
		}
		publisher = nc
	}
	defer publisher.Close()

	var archive reports.Archive
	store, err := storage.NewService(storage.Options{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	})
	if err == nil {
		err = store.EnsureBucket(ctx)
	}
	if err != nil {
		logger.Warn("report archive unavailable, reports can only be downloaded", "error", err)
	} else {
		archive = store
	}

	var cipher reports.Cipher
	if cfg.EncryptionKey != "" {
		enc, err := crypto.NewEncryptor(cfg.EncryptionKey)
		if err != nil {
			fatal(logger, "invalid ENCRYPTION_KEY", err)
		}
		cipher = enc
	}

	users := repository.NewUserRepository(db)
	production := repository.NewProductionRepository(db)
	waste := repository.NewWasteRepository(db)
	stats := repository.NewStatsRepository(db)

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	notifications := notification.NewService(rdb, logger)
	accounts := auth.NewService(users, tokens, logger)
	predictions := prediction.NewService(production, notifications, publisher, thresholds, logger)
	reporter := reports.NewService(reports.Sources{Users: users, Production: production, Waste: waste},
		archive, cipher, notifications, publisher, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS)
	limiter.StartCleanup(ctx)

	engine := gin.Default()
	router := &handlers.Router{
		Tokens:         tokens,
		Active:         accounts,
		Limiter:        limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		Health:         stats,
		Auth:           handlers.NewAuthHandler(accounts, notifications, publisher, logger),
		Production:     handlers.NewProductionHandler(predictions, logger),
		Waste:          handlers.NewWasteHandler(waste, logger),
		Manage:         handlers.NewManageHandler(stats, reporter, logger),
		Notifications:  handlers.NewNotificationHandler(notifications, logger),
	}
	router.Register(engine)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr, "strategy", thresholds.Strategy)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "listen failed", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server exiting")
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
