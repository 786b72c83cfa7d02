package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/bloktest/session-backend/internal/response"
	"github.com/bloktest/session-backend/internal/service"
)

// CheckSingleDeviceSession validates the JWT's JTI against the active
// session record in Redis and stashes the upstream gateway token in the
// context. A token from a device that was superseded by a newer login is
// rejected here.
func CheckSingleDeviceSession(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		gatewayToken, err := authService.ValidateSession(c.Request.Context(), claims.UserID, claims.ID)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			return
		}

		c.Set(ContextKeyGatewayToken, gatewayToken)
		c.Next()
	}
}
