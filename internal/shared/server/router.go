package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gfwpro-workflow/internal/runs"
	"gfwpro-workflow/internal/services/health"
	"gfwpro-workflow/internal/shared/config"
	"gfwpro-workflow/internal/shared/metrics"
	"gfwpro-workflow/internal/shared/server/middleware"
	"gfwpro-workflow/internal/shared/server/respond"
)

// RouterDeps holds what the status API serves.
type RouterDeps struct {
	Config config.Config
	Runs   runs.Repo
	Health *health.Service
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "dev" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowedOrigins),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		status := deps.Health.Status(c.Request.Context())
		code := http.StatusOK
		if ok, _ := status["ok"].(bool); !ok {
			code = http.StatusServiceUnavailable
		}
		respond.JSON(c, code, status)
	})
	if deps.Runs != nil {
		protected := api.Group("",
			middleware.BearerToken(deps.Config.StatusAPIToken),
			middleware.RateLimit(middleware.RateLimitConfig{
				GroupFor: rateLimitGroup,
				Rules: map[string]middleware.RateLimitRule{
					"DEFAULT": {Rate: deps.Config.RateLimitRPS, Burst: deps.Config.RateLimitBurst},
					"LIST":    {Rate: deps.Config.RateLimitRPS / 5, Burst: max(deps.Config.RateLimitBurst/5, 1)},
				},
			}),
		)
		runs.NewHandler(deps.Runs).RegisterRoutes(protected)
	}
	return r
}

// rateLimitGroup gives run listings a tighter budget than single lookups.
func rateLimitGroup(c *gin.Context) string {
	if c.FullPath() == "/api/v1/runs" {
		return "LIST"
	}
	return "DEFAULT"
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
