package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	v, err := NewOpenAPIValidator()
	require.NoError(t, err)

	r := gin.New()
	r.Use(v.Middleware())
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.POST("/api/v1/sessions", ok)
	r.GET("/api/v1/leaderboard", ok)
	r.GET("/api/v1/undocumented", ok)
	return r
}

func TestValidatorRejectsInvalidBodies(t *testing.T) {
	r := newEngine(t)

	cases := []struct {
		body string
		code int
	}{
		{`{"mode":"compare","model_a_id":"a","model_b_id":"b"}`, http.StatusOK},
		{`{"mode":"tournament"}`, http.StatusBadRequest},
		{`{"title":"no mode"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions", strings.NewReader(tc.body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.code, w.Code, tc.body)
	}
}

func TestValidatorChecksQueryParameters(t *testing.T) {
	r := newEngine(t)

	for path, code := range map[string]int{
		"/api/v1/leaderboard?period=weekly&limit=5": http.StatusOK,
		"/api/v1/leaderboard?period=yearly":         http.StatusBadRequest,
		"/api/v1/leaderboard?limit=500":             http.StatusBadRequest,
		"/api/v1/undocumented?anything=1":           http.StatusOK,
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, code, w.Code, path)
	}
}
