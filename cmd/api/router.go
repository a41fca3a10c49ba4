package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/driving-school-api/internal/handler"
	internalmiddleware "github.com/noah-isme/driving-school-api/internal/middleware"
	"github.com/noah-isme/driving-school-api/internal/service"
	"github.com/noah-isme/driving-school-api/pkg/config"
	"github.com/noah-isme/driving-school-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/driving-school-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/driving-school-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, logr *zap.Logger, metrics *service.MetricsService, metricsHandler *handler.MetricsHandler, sessions *handler.ScheduleSessionHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics, "/metrics"))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/snapshot", metricsHandler.Snapshot)
	sessions.RegisterRoutes(api)

	return r
}
