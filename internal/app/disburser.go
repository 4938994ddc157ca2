package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gigpay/internal/audit"
	"gigpay/internal/directory"
	"gigpay/internal/events"
	"gigpay/internal/gateway"
	"gigpay/internal/messaging/kafka"
	"gigpay/internal/messaging/kafka/consumer"
	"gigpay/internal/paycycle"
	"gigpay/internal/payrun"
	"gigpay/internal/shared/connection"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// RunDisburser hosts the execution side of payroll runs: it consumes process
// requests and moves the money.
func RunDisburser() error {
	logger := zap.L().Named("app.disburser")

	gormDB, sqlDB, err := openDatabase()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	redisClient, err := connection.ConnectRedisWithRetry(os.Getenv("REDIS_ADDR"), connectRetries)
	if err != nil {
		return err
	}

	kafkaBroker, err := requireEnv("KAFKA_BROKER")
	if err != nil {
		return err
	}
	gatewayURL, err := requireEnv("PAYOUT_GATEWAY_URL")
	if err != nil {
		return err
	}
	gatewayTimeout := envSeconds("PAYOUT_GATEWAY_TIMEOUT_SECONDS", 15*time.Second)

	payrunRepo := payrun.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(sqlDB)
	directoryService := directory.NewService(directory.NewRepository(gormDB), redisClient, logger)
	gw := gateway.NewHTTPGateway(gatewayURL, os.Getenv("PAYOUT_GATEWAY_API_KEY"), gatewayTimeout, logger)

	exec := payrun.NewExecutor(
		payrunRepo,
		gw,
		directoryService,
		paycycle.NewEnvProvider(),
		outboxRepo,
		audit.NewZapSink(logger),
		logger,
		payrun.WithGatewayTimeout(gatewayTimeout),
	)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        []string{kafkaBroker},
		Topic:          events.PayrollRunProcessRequestTopic,
		GroupID:        "gigpay-disburser",
		CommitInterval: 0,
		StartOffset:    kafkago.FirstOffset,
	})
	defer reader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go consumer.ConsumePayrollRunProcessRequested(ctx, reader, exec, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("disburser shutting down")
	cancel()

	return nil
}
