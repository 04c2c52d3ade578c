// cmd/historian/main.go drains the sync record queue into PostgreSQL.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jason-s-yu/tablesync/internal/cache"
	"github.com/jason-s-yu/tablesync/internal/config"
	"github.com/jason-s-yu/tablesync/internal/historian"
	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	logger.SetLevel(cfg.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisAddr := cfg.RedisAddr
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	rdb, err := cache.ConnectAddr(ctx, redisAddr, cfg.RedisDB)
	if err != nil {
		logger.WithError(err).Fatal("redis unavailable")
	}
	defer rdb.Close()

	pool, err := historian.Connect(ctx, cfg.Postgres.URL())
	if err != nil {
		logger.WithError(err).Fatal("postgres unavailable")
	}
	defer pool.Close()

	sink := historian.NewPostgresSink(pool)
	if err := sink.EnsureSchema(ctx); err != nil {
		logger.WithError(err).Fatal("failed to create sync_records")
	}

	svc := historian.New(rdb, sink, historian.Config{
		Queue:      cfg.HistorianQueue,
		BatchSize:  cfg.HistorianBatchSize,
		FlushDelay: cfg.HistorianFlush,
		Logger:     logrus.NewEntry(logger),
	})
	if err := svc.Run(ctx); err != nil {
		logger.WithError(err).Error("final flush failed")
		os.Exit(1)
	}
}
