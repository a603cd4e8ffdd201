// Package handlers provides HTTP request handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"crudschema/internal/infrastructure/storage/postgres"
)

// Pinger checks the database connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SchemaStats reports the loaded schema snapshot.
type SchemaStats interface {
	Models() []string
	Version() uint64
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	db      Pinger
	schemas SchemaStats
	pool    *postgres.Pool
}

// NewHealthHandler creates a new health handler. pool may be nil.
func NewHealthHandler(db Pinger, schemas SchemaStats, pool *postgres.Pool) *HealthHandler {
	return &HealthHandler{db: db, schemas: schemas, pool: pool}
}

// Live handles liveness check (is the process alive?).
// GET /health/live
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Ready handles readiness check: the database answers and schemas are loaded.
// GET /health/ready
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := map[string]string{"database": "healthy", "schemas": "loaded"}
	status := http.StatusOK

	if err := h.db.Ping(c.Request.Context()); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	if len(h.schemas.Models()) == 0 {
		checks["schemas"] = "empty"
		status = http.StatusServiceUnavailable
	}

	state := "ok"
	if status != http.StatusOK {
		state = "error"
	}
	c.JSON(status, gin.H{"status": state, "checks": checks})
}

// Info returns application information.
// GET /health/info
func (h *HealthHandler) Info(c *gin.Context) {
	body := gin.H{
		"app":     "crudschema",
		"version": "0.1.0",
		"schemas": map[string]any{
			"models":  len(h.schemas.Models()),
			"version": h.schemas.Version(),
		},
	}
	if h.pool != nil {
		body["database"] = h.pool.Stats()
	}
	c.JSON(http.StatusOK, body)
}
