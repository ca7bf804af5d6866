package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"trustguard/engine/pkg/response"
)

// AdminAuth lets through moderators on the configured allow list.
// Must be used after JWTAuth middleware.
func AdminAuth(adminUserIDs []string, logger *zap.Logger) gin.HandlerFunc {
	allowed := make(map[uuid.UUID]struct{}, len(adminUserIDs))
	for _, raw := range adminUserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			logger.Warn("ignoring malformed admin user id", zap.String("value", raw))
			continue
		}
		allowed[id] = struct{}{}
	}

	return func(c *gin.Context) {
		userID, err := UserIDFromContext(c)
		if err != nil {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}

		if _, isAdmin := allowed[userID]; !isAdmin {
			response.Forbidden(c, "admin access required")
			c.Abort()
			return
		}

		c.Next()
	}
}
