package bootstrap

import (
	"os"

	"go.uber.org/zap"
)

// NewLogger builds the process logger: JSON in production, console encoding
// everywhere else. It also installs the zap global used by packages that log
// without an injected logger.
func NewLogger() *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if os.Getenv("APP_ENV") == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(logger)
	return logger
}
