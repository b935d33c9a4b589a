package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"studyreg/internal/notifications"
	"studyreg/pkg/config"
	"studyreg/pkg/kafka"
	kafka_config "studyreg/pkg/kafka/config"
	kafkamw "studyreg/pkg/kafka/middleware"
	"studyreg/pkg/logger"
)

const (
	ServiceName     = "notifier"
	metricsInterval = time.Minute
)

func main() {
	cfg := config.Load(ServiceName)

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log.Info)

	sender := notifications.NewSender(cfg, cfg.Log)
	handler := notifications.NewEventHandler(sender, cfg.NotificationTimeout, cfg.Log)

	consumer, err := kafka.NewConsumer(kcfg, handler, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka consumer", "error", err)
	}
	metrics := kafkamw.NewMetrics()
	consumer.Use(kafkamw.LoggingConsumerMiddleware(cfg.Log))
	consumer.Use(metrics.ConsumerMiddleware())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go reportMetrics(ctx, metrics, cfg.Log)

	cfg.Log.Info("Starting Notifier service", "topic", kcfg.Topic, "group_id", kcfg.GroupID, "email_demo_mode", cfg.EmailDemoMode())
	if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		cfg.Log.Error("Consumer stopped", "error", err)
	}

	if err := consumer.Close(); err != nil {
		cfg.Log.Error("Failed to close consumer", "error", err)
	}
	cfg.Log.Info("Notifier stopped", metrics.Snapshot().LogValues()...)
}

func reportMetrics(ctx context.Context, metrics *kafkamw.Metrics, log *logger.Logger) {
	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Info("Notifier metrics", metrics.Snapshot().LogValues()...)
		}
	}
}
