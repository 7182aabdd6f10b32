// Command aggregator runs one recipient's notification session: it polls
// both notification streams, keeps the merged feed, and emails fresh items.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Clark-Hu/rating-disputes/internal/aggregator"
	"github.com/Clark-Hu/rating-disputes/internal/apiclient"
	"github.com/Clark-Hu/rating-disputes/internal/config"
	"github.com/Clark-Hu/rating-disputes/internal/logging"
	"github.com/Clark-Hu/rating-disputes/internal/mailer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "dotenv: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadAggregator()
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

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("aggregator exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.AggregatorConfig, logger *zap.Logger) error {
	client, err := apiclient.New(cfg.APIURL, cfg.APIToken, time.Duration(cfg.APITimeoutSecs)*time.Second, logger)
	if err != nil {
		return fmt.Errorf("api client: %w", err)
	}

	var ledger aggregator.EmailLedger = aggregator.NewMemoryLedger()
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		ledger = aggregator.NewRedisLedger(rdb, "notif-email:"+cfg.EmailTo+":", time.Duration(cfg.LedgerTTLHours)*time.Hour)
	}

	var sender aggregator.Mailer = mailer.NewLog(logger)
	if cfg.SMTPHost != "" {
		sender = mailer.NewSMTP(mailer.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			From:     cfg.SMTPFrom,
		})
	}

	interval := time.Duration(cfg.PollIntervalSecs) * time.Second
	agg := aggregator.New(client, client, aggregator.Options{
		Logger:      logger,
		Interval:    interval,
		Window:      time.Duration(cfg.EmailWindowSecs) * time.Second,
		PollTimeout: time.Duration(cfg.PollTimeoutSecs) * time.Second,
		EmailTo:     cfg.EmailTo,
		EmailRate:   rate.Limit(cfg.EmailRatePerSec),
		EmailBurst:  cfg.EmailBurst,
		Ledger:      ledger,
		Mailer:      sender,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return agg.Run(gctx) })
	g.Go(func() error { return report(gctx, agg, interval, logger) })
	return g.Wait()
}

// report logs the unread count whenever it changes.
func report(ctx context.Context, agg *aggregator.Aggregator, every time.Duration, logger *zap.Logger) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	last := -1
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !agg.Ready() {
				continue
			}
			if n := agg.UnreadCount(); n != last {
				last = n
				logger.Info("feed updated", zap.Int("unread", n), zap.Int("items", len(agg.Feed())))
			}
		}
	}
}
