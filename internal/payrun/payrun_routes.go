package payrun

import (
	"gigpay/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

func RegisterRoutes(
	r *gin.RouterGroup,
	handler *Handler,
	rdb ...*redis.Client,
) {
	var redisClient *redis.Client
	if len(rdb) > 0 {
		redisClient = rdb[0]
	}

	runs := r.Group("/payroll-runs")
	runs.Use(middleware.AuthMiddleware(), middleware.RateLimitByUser(rate.Limit(20), 40))
	{
		runs.POST("", handler.Create)
		runs.GET("", handler.GetAll)
		runs.GET("/:id", handler.GetById)
		runs.DELETE("/:id", handler.Delete)

		runs.GET("/:id/items", handler.GetItems)
		runs.POST("/:id/items", handler.AddItem)
		runs.DELETE("/:id/items/:itemId", handler.RemoveItem)
		runs.POST("/:id/generate-items", handler.GenerateItems)

		runs.POST("/:id/submit", handler.Submit)

		// Approval and money movement are finance-only actions.
		finance := middleware.RoleMiddleware("finance_admin", "owner")
		runs.POST("/:id/approve", finance, handler.Approve)
		runs.POST("/:id/reject", finance, handler.Reject)
		if redisClient != nil {
			runs.POST("/:id/process", finance, middleware.Idempotency(redisClient), handler.Process)
		} else {
			runs.POST("/:id/process", finance, handler.Process)
		}
		runs.POST("/:id/retry", finance, handler.Retry)
		runs.POST("/:id/stop", finance, handler.Stop)

		runs.GET("/:id/progress", handler.GetProgress)
		runs.GET("/:id/summary", handler.GetSummary)
	}
}
