package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigpay/internal/messaging/kafka"
	"gigpay/internal/messaging/kafka/producer"
	"gigpay/internal/shared/connection"

	"go.uber.org/zap"
)

// RunWorker hosts the outbox publisher: it polls outbox_events and pushes
// pending rows to kafka until the process is signalled.
func RunWorker() error {
	logger := zap.L().Named("app.worker")

	_, sqlDB, err := openDatabase()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	kafkaBroker, err := requireEnv("KAFKA_BROKER")
	if err != nil {
		return err
	}
	kafkaWriter, err := connection.ConnectKafkaWithRetry(kafkaBroker, connectRetries)
	if err != nil {
		return err
	}
	defer kafkaWriter.Close()

	pollInterval := envSeconds("OUTBOX_POLL_SECONDS", 3*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go producer.ProcessOutboxEvents(ctx, kafka.NewOutboxRepository(sqlDB), kafkaWriter, logger, pollInterval)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("worker shutting down")
	cancel()

	return nil
}
