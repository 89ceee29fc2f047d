package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/capability-router/internal/server/middleware"
	v1 "github.com/nulzo/capability-router/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	s.router.Use(middleware.CORS())
	s.router.Use(middleware.ErrorHandler(s.logger))

	healthHandler := v1.NewHealthHandler(s.services.Prober)
	s.router.GET("/health", healthHandler.Liveness)
	if s.services.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.services.Metrics.Handler()))
	}

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.config.Server.APIKeys))
	{
		routeHandler := v1.NewRouteHandler(s.services.Engine)
		api.POST("/route/:capability", routeHandler.Route)
	}

	admin := s.router.Group("/v1/admin")
	if rl := s.config.RateLimit; rl.RequestsPerSecond > 0 {
		admin.Use(middleware.NewRateLimiter(rl.RequestsPerSecond, rl.Burst, s.logger).Middleware())
	}
	admin.Use(middleware.Auth(s.config.Server.AdminKeys))
	{
		providers := v1.NewProviderHandler(s.services.Registry)
		admin.GET("/providers", providers.List)
		admin.POST("/providers", providers.Create)
		admin.GET("/providers/:id", providers.Get)
		admin.PUT("/providers/:id", providers.Update)
		admin.DELETE("/providers/:id", providers.Delete)

		policies := v1.NewPolicyHandler(s.services.Policies, s.services.Provisioner,
			s.config.Routing.DefaultsFor, s.config.Routing.MaxTimeoutMS)
		admin.GET("/policies", policies.List)
		admin.GET("/policies/:capability", policies.Get)
		admin.PUT("/policies/:capability", policies.Put)
		admin.DELETE("/policies/:capability", policies.Delete)
		admin.GET("/policies/:capability/defaults", policies.Defaults)
		admin.POST("/policies/:capability/apply-template", policies.ApplyTemplate)

		templates := v1.NewTemplateHandler(s.services.Catalog, s.services.Provisioner)
		admin.GET("/templates", templates.List)
		admin.GET("/templates/:capability/:id/preview", templates.Preview)

		attempts := v1.NewAttemptHandler(s.services.Attempts)
		admin.GET("/attempts", attempts.List)
		admin.GET("/attempts/export", attempts.Export)
		admin.GET("/attempts/stats", attempts.Stats)

		admin.POST("/health/providers", healthHandler.ProbeAll)
		admin.POST("/health/providers/:id", healthHandler.ProbeOne)
		admin.GET("/health/providers/latest", healthHandler.Latest)
	}
}
