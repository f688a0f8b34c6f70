package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/simp-lee/crudkit/internal/config"
	"github.com/simp-lee/crudkit/internal/pkg"
)

const healthPingTimeout = time.Second

var errNoDatabase = errors.New("database is not configured")

// RouteDeps is what RegisterRoutes mounts. DB backs the health check.
type RouteDeps struct {
	Modules []Module
	DB      *gorm.DB
}

type healthReport struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// RegisterRoutes mounts GET /health, each module under /api/v1 and JSON
// replies for unknown paths (404) and unsupported methods (405).
func RegisterRoutes(r *gin.Engine, deps *RouteDeps) error {
	switch {
	case r == nil:
		return errors.New("router is nil")
	case deps == nil:
		return errors.New("route dependencies are nil")
	case len(deps.Modules) == 0:
		return errors.New("at least one module is required")
	}
	for i, m := range deps.Modules {
		if m == nil {
			return fmt.Errorf("module at index %d is nil", i)
		}
	}

	r.GET("/health", healthHandler(deps.DB))
	api := r.Group("/api/v1")
	for _, m := range deps.Modules {
		m.RegisterRoutes(api)
	}

	r.HandleMethodNotAllowed = true
	r.NoRoute(statusHandler(http.StatusNotFound, "not found"))
	r.NoMethod(statusHandler(http.StatusMethodNotAllowed, "method not allowed"))
	return nil
}

// healthHandler answers 200 when the database responds within a second of
// the request's own deadline and 503 otherwise.
func healthHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := pingWithin(c.Request.Context(), db); err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusServiceUnavailable, healthReport{
				Status:     "degraded",
				Components: map[string]string{"database": "error"},
			})
			return
		}
		c.JSON(http.StatusOK, healthReport{
			Status:     "ok",
			Components: map[string]string{"database": "ok"},
		})
	}
}

func pingWithin(ctx context.Context, db *gorm.DB) error {
	if db == nil {
		return errNoDatabase
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return config.Ping(ctx, db)
}

func statusHandler(code int, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(code, pkg.Response{Code: code, Message: message})
	}
}
