// Package server assembles the HTTP router from services and middleware.
package server

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/auth"
	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/internal/middleware"
	"github.com/evolnow/backend/internal/opportunities"
	"github.com/evolnow/backend/internal/organizations"
	"github.com/evolnow/backend/internal/policy"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/users"
	"github.com/evolnow/backend/pkg/response"
)

// Deps is everything the router needs. Metrics and Audit may be nil.
type Deps struct {
	Store       store.Store
	JWT         *auth.JWTService
	Audit       audit.Recorder
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	CORSOrigins string
	MetricsPath string
}

// NewRouter wires handlers onto a gin engine.
func NewRouter(d Deps) *gin.Engine {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	rec := d.Audit
	if rec == nil {
		rec = audit.NewLogRecorder(logger)
	}
	engine := policy.NewEngine(d.Store, d.Metrics, logger)

	authHandler := auth.NewHandler(d.Store, d.JWT, logger)
	oppHandler := opportunities.NewHandler(opportunities.NewService(d.Store, engine, rec, logger))
	orgHandler := organizations.NewHandler(organizations.NewService(d.Store, engine, rec, logger))
	userHandler := users.NewHandler(users.NewService(d.Store, engine, rec, logger))

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics(d.Metrics))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	if d.Metrics != nil && d.MetricsPath != "" {
		router.GET(d.MetricsPath, gin.WrapH(d.Metrics.Handler()))
	}

	// Public
	router.POST("/login", authHandler.Login)
	router.GET("/opportunities", oppHandler.Search)
	router.POST("/opportunities/search", oppHandler.Search)

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(d.JWT, d.Store, logger))
	{
		api.GET("/me", userHandler.Me)

		opps := api.Group("/admin/opportunities")
		opps.GET("", oppHandler.List)
		opps.POST("", oppHandler.Create)
		opps.GET("/:id", oppHandler.Show)
		opps.PUT("/:id", oppHandler.Update)
		opps.DELETE("/:id", oppHandler.Delete)
		opps.POST("/:id/restore", oppHandler.Restore)
		opps.POST("/:id/organizations/:organizationId", oppHandler.AttachOrganization)
		opps.DELETE("/:id/organizations/:organizationId", oppHandler.DetachOrganization)
		opps.POST("/:id/tags", oppHandler.AddTag)
		opps.DELETE("/:id/tags", oppHandler.RemoveTag)

		orgs := api.Group("/admin/organizations")
		orgs.GET("", orgHandler.List)
		orgs.POST("", orgHandler.Create)
		orgs.GET("/:id", orgHandler.Show)
		orgs.PUT("/:id", orgHandler.Update)
		orgs.DELETE("/:id", orgHandler.Delete)
		orgs.POST("/:id/restore", orgHandler.Restore)
		orgs.POST("/:id/users/:userId", orgHandler.AttachUser)
		orgs.DELETE("/:id/users/:userId", orgHandler.DetachUser)

		usrs := api.Group("/admin/users")
		usrs.GET("", userHandler.List)
		usrs.POST("", userHandler.Create)
		usrs.GET("/:id", userHandler.Show)
		usrs.PUT("/:id", userHandler.Update)
		usrs.DELETE("/:id", userHandler.Delete)
		usrs.POST("/:id/organizations/:organizationId", userHandler.AttachOrganization)
		usrs.DELETE("/:id/organizations/:organizationId", userHandler.DetachOrganization)
	}
	return router
}
