package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/questland/heimdall/adapters/events"
	"github.com/questland/heimdall/adapters/ledger"
	"github.com/questland/heimdall/adapters/queue"
	"github.com/questland/heimdall/adapters/secrets"
	"github.com/questland/heimdall/adapters/store"
	"github.com/questland/heimdall/config"
	"github.com/questland/heimdall/service"
	"github.com/questland/heimdall/transport/http"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("failed to parse redis url", zap.Error(err))
	}
	redisClient := redis.NewClient(opts)
	defer redisClient.Close()

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		logger.Fatal("failed to create event publisher", zap.Error(err))
	}
	defer publisher.Close()

	jobQueue, err := queue.NewAMQPQueue(cfg.AMQPURL, logger)
	if err != nil {
		logger.Fatal("failed to connect to job queue", zap.Error(err))
	}
	defer jobQueue.Close()

	nonceStore := store.NewRedisStore(redisClient)
	keypair := secrets.NewEnvKeypairSource(cfg.ServerPublicKey, cfg.ServerSecretKey)

	authService := service.NewAuthService(nonceStore, keypair, logger, service.AuthConfig{
		NonceTTL: cfg.NonceTTL,
		ClaimTTL: cfg.ClaimTTL,
	})

	confirmService := service.NewConfirmService(
		jobQueue,
		ledger.NewSolanaLedger(cfg.SolanaRPCURL),
		events.NewWatermillPublisher(publisher),
		nonceStore,
		logger,
		service.ConfirmConfig{
			RetryMax:      cfg.RetryMax,
			PollDelay:     cfg.PollDelay,
			LedgerTimeout: cfg.LedgerTimeout,
		},
	)

	go func() {
		if err := jobQueue.Consume(ctx, confirmService.HandleDelivery); err != nil && ctx.Err() == nil {
			logger.Error("job consumer stopped", zap.Error(err))
			stop()
		}
	}()

	router := http.SetupRouter(authService, confirmService, nonceStore)

	logger.Info("listening", zap.String("addr", cfg.ListenAddr))
	if err := router.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}
