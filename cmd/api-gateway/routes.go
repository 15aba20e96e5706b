package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/cyberguard-api/internal/handler"
	"github.com/noah-isme/cyberguard-api/internal/middleware"
	"github.com/noah-isme/cyberguard-api/internal/models"
	"github.com/noah-isme/cyberguard-api/pkg/config"
	"github.com/noah-isme/cyberguard-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/cyberguard-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/cyberguard-api/pkg/middleware/requestid"
)

type routeDeps struct {
	auth       *handler.AuthHandler
	reports    *handler.ReportHandler
	areas      *handler.CriticalAreaHandler
	metrics    *handler.MetricsHandler
	tokens     middleware.TokenValidator
	audit      middleware.AuditWriter
	observer   middleware.RequestObserver
	enableDocs bool
}

func newRouter(cfg *config.Config, logr *zap.Logger, d routeDeps) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(corsmiddleware.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedHeaders: cfg.CORS.AllowedHeaders,
		MaxAge:         cfg.CORS.MaxAge,
	}))
	r.Use(middleware.Metrics(d.observer))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", d.metrics.Health)
	r.GET("/ready", d.metrics.Ready)
	if cfg.Metrics.Enabled {
		r.GET("/metrics", d.metrics.Prometheus)
	}
	if d.enableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authn := middleware.JWT(d.tokens)
	reviewer := middleware.RequireReviewer()

	auth := api.Group("/auth")
	auth.POST("/signup", d.auth.Signup)
	auth.POST("/login", d.auth.Login)
	auth.POST("/refresh", d.auth.Refresh)
	auth.POST("/logout", authn, d.auth.Logout)
	auth.GET("/me", authn, d.auth.Me)

	reports := api.Group("/reports")
	reports.POST("", middleware.OptionalJWT(d.tokens), middleware.Audit(d.audit, logr, models.AuditActionReportCreate, "report"), d.reports.Create)
	reports.GET("", authn, d.reports.List)
	reports.GET("/stats", authn, reviewer, d.reports.Stats)
	reports.GET("/map", authn, d.reports.Map)
	reports.GET("/:id", authn, d.reports.Get)
	reports.PATCH("/:id/status", authn, reviewer, middleware.Audit(d.audit, logr, models.AuditActionStatusChange, "report"), d.reports.UpdateStatus)

	areas := api.Group("/critical-areas", authn)
	areas.GET("", d.areas.List)
	areas.GET("/export", reviewer, d.areas.Export)
	areas.POST("/escalate", reviewer, middleware.Audit(d.audit, logr, models.AuditActionEscalate, "critical_area"), d.areas.Escalate)

	return r
}
