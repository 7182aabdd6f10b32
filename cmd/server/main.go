package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Clark-Hu/rating-disputes/internal/auth"
	"github.com/Clark-Hu/rating-disputes/internal/config"
	"github.com/Clark-Hu/rating-disputes/internal/dispute"
	"github.com/Clark-Hu/rating-disputes/internal/fanout"
	httpserver "github.com/Clark-Hu/rating-disputes/internal/http"
	"github.com/Clark-Hu/rating-disputes/internal/logging"
	"github.com/Clark-Hu/rating-disputes/internal/repository"
	"github.com/Clark-Hu/rating-disputes/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	if err := st.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	if cfg.MigrateOnStart {
		if err := st.Migrate(dbCtx, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	moderators := fanout.ChainModerators{}
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		moderators = append(moderators, fanout.RedisModerators{Client: rdb, Key: cfg.ModeratorSetKey})
	}
	moderators = append(moderators, fanout.StaticModerators(cfg.ModeratorIDs))

	repo := repository.New(st)
	fan := fanout.New(repo.Notifications, moderators, fanout.Options{
		Logger:         logger,
		Timeout:        time.Duration(cfg.FanoutTimeoutSecs) * time.Second,
		SupportContact: cfg.SupportContact,
	})
	disputes := dispute.NewManager(repo.Disputes, repo.Ratings, fan, dispute.Options{Logger: logger})
	verifier := auth.NewVerifier(cfg.JWTSecret, 0)

	server := httpserver.New(cfg, st, repo, disputes, fan, verifier, logger)
	logger.Info("listening", zap.String("port", cfg.Port))
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("graceful shutdown error", zap.Error(err))
	}
	return nil
}
