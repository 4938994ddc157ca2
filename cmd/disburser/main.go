package main

import (
	"gigpay/internal/app"
	"gigpay/internal/bootstrap"
	"gigpay/internal/shared/apperror"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	apperror.Init()

	if err := app.RunDisburser(); err != nil {
		logger.Fatal("run disburser failed", zap.Error(err))
	}
}
