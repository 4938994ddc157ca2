package middleware

import (
	"gigpay/internal/shared/contextutil"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ContextLogger attaches a request-scoped logger carrying the request id and
// the authenticated actor, so service and repo layers can log without
// knowing about gin. Runs after RequestID; generates an id itself only when
// mounted without it.
func ContextLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetString("request_id")
		if rid == "" {
			rid = uuid.NewString()
			c.Header(headerRequestID, rid)
		}
		actorID := c.GetString("user_id_validated")

		ctx := c.Request.Context()
		ctx = contextutil.WithRequestID(ctx, rid)
		ctx = contextutil.WithActorID(ctx, actorID)
		ctx = contextutil.WithLogger(ctx, logger.With(
			zap.String("request_id", rid),
			zap.String("actor_id", actorID),
		))
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
