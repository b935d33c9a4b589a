package main

import (
	"context"

	"studyreg/internal/notifications"
	"studyreg/internal/server"
	"studyreg/pkg/config"
	"studyreg/pkg/kafka"
	kafka_config "studyreg/pkg/kafka/config"
	kafkamw "studyreg/pkg/kafka/middleware"
)

const ServiceName = "registration"

func main() {
	cfg := config.Load(ServiceName)
	cfg.Log.Info("Starting Registration service")

	st := server.OpenStore(cfg)
	dispatcher := initDispatcher(cfg)

	serverApp, _, err := server.New(context.Background(), cfg, st, dispatcher)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize services", "error", err)
	}
	serverApp.OnShutdown("mongo", func(context.Context) error {
		cfg.GracefulShutdown()
		return nil
	})
	serverApp.Run()
}

// initDispatcher delivers in-process unless Kafka is enabled, in which case
// events go to the notifier service and are delivered in-process only when
// publishing fails.
func initDispatcher(cfg *config.Config) notifications.Dispatcher {
	local := notifications.NewLocalDispatcher(notifications.NewSender(cfg, cfg.Log), cfg.NotificationTimeout, cfg.Log)
	if !cfg.KafkaEnabled {
		return local
	}

	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log.Info)

	producer, err := kafka.NewProducer(kcfg, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create Kafka producer", "error", err)
	}
	producer.Use(kafkamw.LoggingProducerMiddleware(cfg.Log))

	return &producerDispatcher{
		KafkaDispatcher: notifications.NewKafkaDispatcher(producer, local, cfg.NotificationTimeout, cfg.Log),
		producer:        producer,
	}
}

// producerDispatcher closes the producer once pending publishes drain.
type producerDispatcher struct {
	*notifications.KafkaDispatcher
	producer *kafka.Producer
}

func (d *producerDispatcher) Close(ctx context.Context) error {
	err := d.KafkaDispatcher.Close(ctx)
	if closeErr := d.producer.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
