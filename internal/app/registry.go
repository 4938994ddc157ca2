package app

import (
	"context"
	"database/sql"

	"gigpay/internal/audit"
	"gigpay/internal/directory"
	"gigpay/internal/messaging/kafka"
	"gigpay/internal/middleware"
	"gigpay/internal/paycycle"
	"gigpay/internal/payrun"
	"gigpay/internal/shared/counter"
	"gigpay/internal/workentry"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// workerNameResolver adapts the directory to the slim lookup the summary
// view needs. Resolution failures degrade to a bare worker id, never an
// error: a missing name must not break a financial summary.
type workerNameResolver struct {
	dir directory.Service
}

func (r workerNameResolver) ResolveName(ctx context.Context, companyID, workerID string) string {
	identity, err := r.dir.Resolve(ctx, companyID, workerID)
	if err != nil {
		return ""
	}
	return identity.FullName
}

func registerModules(
	router *gin.Engine,
	db *sql.DB,
	gormDB *gorm.DB,
	rdb *redis.Client,
) error {
	logger := zap.L()

	// --- Repositories ---
	counterRepo := counter.NewRepository(gormDB)
	directoryRepo := directory.NewRepository(gormDB)
	outboxRepo := kafka.NewOutboxRepository(db)
	payrunRepo := payrun.NewRepository(gormDB)
	workRepo := workentry.NewRepository(gormDB)

	// --- Services ---
	sink := audit.NewZapSink(logger)
	cycles := paycycle.NewEnvProvider()
	directoryService := directory.NewService(directoryRepo, rdb, logger)
	payrunService := payrun.NewServiceWithOutbox(
		db,
		payrunRepo,
		workRepo,
		cycles,
		counterRepo,
		outboxRepo,
		sink,
		workerNameResolver{dir: directoryService},
		logger,
	)

	// --- Handlers ---
	payrunHandler := payrun.NewHandlerWithRedis(payrunService, rdb)

	// --- Routes ---
	router.Use(middleware.RequestID())
	router.Use(middleware.ContextLogger(logger))
	router.Use(middleware.RateLimitByIP(rate.Limit(50), 100))

	api := router.Group("/api/v1")
	{
		payrun.RegisterRoutes(api, payrunHandler, rdb)
	}

	return nil
}
