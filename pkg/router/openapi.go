package router

import (
	"llm-arena/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// AddOpenAPIValidation validates documented requests against the bundled
// schema and serves the schema at /api/docs/openapi.yaml.
func (r *Router) AddOpenAPIValidation() {
	v, err := validator.NewOpenAPIValidator()
	if err != nil {
		r.Logger.LogError(err, "Failed to initialize OpenAPI validator")
		return
	}

	r.Engine.Use(v.Middleware())
	r.Engine.GET("/api/docs/openapi.yaml", func(c *gin.Context) {
		c.Data(200, "application/yaml", validator.Schema())
	})
	r.Logger.Info("OpenAPI validation enabled", "url", "/api/docs/openapi.yaml")
}
