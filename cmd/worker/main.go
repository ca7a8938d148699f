// Package main is the entry point for the stockledger ingestion worker.
// It consumes movement and reset events from Kafka and appends them to the ledger.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockledger/internal/app"
	"stockledger/internal/infrastructure/config"
	"stockledger/internal/infrastructure/messaging"
	"stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development || cfg.App.Env == "development",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if cfg.UseMemory() {
		log.Fatal("worker requires database.url: events appended to an in-memory store would be lost")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to build application", "error", err)
	}
	defer func() { _ = application.Close() }()

	mcfg := messaging.Config{
		Brokers:        cfg.Kafka.Brokers,
		GroupID:        cfg.Kafka.GroupID,
		MovementsTopic: cfg.Kafka.MovementsTopic,
		ResetsTopic:    cfg.Kafka.ResetsTopic,
		MinBytes:       cfg.Kafka.MinBytes,
		MaxBytes:       cfg.Kafka.MaxBytes,
		MaxWait:        cfg.Kafka.MaxWait,
	}
	consumer := messaging.NewConsumer(messaging.NewReader(mcfg), application.Movements, application.Resets, mcfg, log)
	defer func() { _ = consumer.Close() }()

	log.Infow("starting stockledger worker",
		"brokers", mcfg.Brokers,
		"group", mcfg.GroupID,
		"topics", []string{mcfg.MovementsTopic, mcfg.ResetsTopic},
	)

	if err := consumer.Run(ctx); err != nil {
		log.Errorw("consumer stopped", "error", err)
	}
	log.Info("worker stopped")
}
