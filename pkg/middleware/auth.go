package middleware

import (
	"strings"

	"llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/jwt"
	"llm-arena/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

const claimsKey = "claims"

// JWTAuthMiddleware requires a valid bearer token and stores its claims.
// Browsers cannot set headers on websocket upgrades, so an access_token
// query parameter is accepted as well.
func JWTAuthMiddleware(jwtService *jwt.Service, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && c.Query("access_token") != "" {
			header = "Bearer " + c.Query("access_token")
		}
		if header == "" {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authorization header is required"))
			c.Abort()
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			log.Warn("Invalid JWT token", "error", err.Error())
			c.Error(errors.NewUnauthorizedError("INVALID_TOKEN", "Invalid or expired token"))
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Set("userId", claims.UserID)
		c.Set("userRole", claims.Role)

		ctx := WithUserID(c.Request.Context(), claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole rejects requests whose claims do not grant role
func RequireRole(role jwt.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			c.Error(errors.NewUnauthorizedError("AUTH_REQUIRED", "Authentication required"))
			c.Abort()
			return
		}

		if !claims.HasRole(role) {
			c.Error(errors.NewForbiddenError("INSUFFICIENT_ROLE", "Your role does not allow this operation"))
			c.Abort()
			return
		}

		c.Next()
	}
}

// Claims returns the claims stored by JWTAuthMiddleware
func Claims(c *gin.Context) (*jwt.JWTClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*jwt.JWTClaims)
	return claims, ok
}

// CurrentUserID returns the authenticated user id or ""
func CurrentUserID(c *gin.Context) string {
	if claims, ok := Claims(c); ok {
		return claims.UserID
	}
	return ""
}
