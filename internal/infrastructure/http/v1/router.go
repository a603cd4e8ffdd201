package v1

import (
	"github.com/gin-gonic/gin"

	"crudschema/internal/infrastructure/http/v1/handlers"
	"crudschema/internal/infrastructure/http/v1/middleware"
	"crudschema/internal/infrastructure/storage/postgres"
	"crudschema/pkg/logger"
)

// ManageSchemasPermission guards the admin endpoints.
const ManageSchemasPermission = "manage_schemas"

// RouterConfig holds router configuration.
type RouterConfig struct {
	// Engine serves every model route
	Engine handlers.Engine

	// Schemas reports the loaded snapshot for health checks
	Schemas handlers.SchemaStats

	// DB is pinged by the readiness check
	DB handlers.Pinger

	// Pool is optional and only used for pool stats
	Pool *postgres.Pool

	// Logger for request logging
	Logger *logger.Logger

	// JWTValidator for token validation
	JWTValidator middleware.JWTValidator

	// DefaultPageSize applies when a listing omits size
	DefaultPageSize int
}

// NewRouter creates and configures the Gin router.
func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Global middleware (order matters!)
	router.Use(middleware.Recovery())
	router.Use(middleware.Trace())
	router.Use(middleware.Logger(cfg.Logger))
	router.Use(middleware.ErrorHandler())

	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Schemas, cfg.Pool)
	health := router.Group("/health")
	{
		health.GET("/live", healthHandler.Live)
		health.GET("/ready", healthHandler.Ready)
		health.GET("/info", healthHandler.Info)
	}

	baseHandler := handlers.NewBaseHandler()

	v1 := router.Group("/api/v1")
	// Anonymous callers get an empty permission set; the engine decides.
	v1.Use(middleware.OptionalAuth(cfg.JWTValidator))
	{
		crud := handlers.NewCrudHandler(baseHandler, cfg.Engine, cfg.DefaultPageSize)
		RegisterCrudRoutes(v1.Group("/crud"), crud)

		schemas := handlers.NewSchemaHandler(baseHandler, cfg.Engine)
		v1.GET("/schema", schemas.Models)
		v1.GET("/schema/:model", schemas.Get)

		admin := handlers.NewAdminHandler(baseHandler, cfg.Engine)
		adminGroup := v1.Group("/admin")
		adminGroup.Use(middleware.Auth(cfg.JWTValidator))
		adminGroup.Use(middleware.RequirePermission(ManageSchemasPermission))
		adminGroup.POST("/schemas/reload", admin.Reload)
	}

	return router
}
