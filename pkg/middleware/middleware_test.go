package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"llm-arena/backend/pkg/errors"
	"llm-arena/backend/pkg/jwt"
	"llm-arena/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(handlers...)
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentUserID(c), "request_id": GetRequestID(c.Request.Context())})
	})
	return r
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(logger.Discard(), RateLimiterOptions{
		Limit:          1,
		Burst:          1,
		ExpiryDuration: time.Minute,
	})
	defer limiter.Stop()

	r := newEngine(limiter.Middleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestJWTAuthMiddleware(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	r := newEngine(RequestIDMiddleware(), JWTAuthMiddleware(svc, logger.Discard()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := svc.GenerateToken("user-7", jwt.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-7")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequireRole(t *testing.T) {
	svc := jwt.NewService("secret", time.Hour)
	r := newEngine(JWTAuthMiddleware(svc, logger.Discard()), RequireRole(jwt.RoleAdmin))

	token, err := svc.GenerateToken("user-7", jwt.RoleUser)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
