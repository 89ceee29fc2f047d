package server

import (
	"net/http"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/analytics"
	"github.com/nulzo/capability-router/internal/config"
	"github.com/nulzo/capability-router/internal/gateway"
	"github.com/nulzo/capability-router/internal/health"
	"github.com/nulzo/capability-router/internal/platform/metrics"
	"github.com/nulzo/capability-router/internal/policy"
	"github.com/nulzo/capability-router/internal/server/middleware"
	"github.com/nulzo/capability-router/internal/server/validator"
	v1 "github.com/nulzo/capability-router/internal/server/v1"
	"go.uber.org/zap"
)

// Services are the components the HTTP surface exposes.
type Services struct {
	Engine      v1.Router
	Registry    *gateway.Registry
	Policies    *policy.Store
	Catalog     *policy.Catalog
	Provisioner *policy.Provisioner
	Attempts    analytics.Service
	Prober      *health.Prober
	Metrics     *metrics.Metrics
}

type Server struct {
	router   *gin.Engine
	config   *config.Config
	logger   *zap.Logger
	services Services
}

func New(cfg *config.Config, logger *zap.Logger, services Services) *Server {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	validator.InitValidator()

	engine := gin.New()
	engine.Use(ginzap.RecoveryWithZap(logger, true))
	engine.Use(middleware.RequestID())
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}
	engine.Use(middleware.Logger(logger))

	s := &Server{
		router:   engine,
		services: services,
		logger:   logger,
		config:   cfg,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer wraps the handler with the timeouts used in production.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              ":" + s.config.Server.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
