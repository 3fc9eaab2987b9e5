package middleware

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/college-attendance-api/internal/models"
	appErrors "github.com/noah-isme/college-attendance-api/pkg/errors"
	"github.com/noah-isme/college-attendance-api/pkg/response"
)

// RequireCapability lets the request through only when the caller's role grants capability.
func RequireCapability(capability models.Capability, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		result := models.Authorize(claims.Role, capability)
		if !result.Allowed {
			logger.Debug("capability denied",
				zap.String("user_id", claims.UserID),
				zap.String("role", string(result.Role)),
				zap.String("capability", string(result.Capability)),
				zap.String("reason", result.Reason),
			)
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role does not allow this action"))
			c.Abort()
			return
		}
		c.Next()
	}
}
