package main

import (
	"os"
	"time"

	"gigpay/internal/app"
	"gigpay/internal/audit"
	"gigpay/internal/bootstrap"
	"gigpay/internal/shared/apperror"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()
	logger := bootstrap.NewLogger()
	defer logger.Sync()

	apperror.Init()

	r := gin.Default()
	if err := app.BuildApp(r); err != nil {
		logger.Fatal("build app failed", zap.Error(err))
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "3000"
	}

	bootstrap.StartHTTPServer(r, bootstrap.ServerConfig{
		Port:         port,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, audit.NewZapSink(logger))
}
