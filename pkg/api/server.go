// Package api is the HTTP adapter over the tool router.
package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/holdersav20001/enterprise-tool-router/pkg/audit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/cache"
	"github.com/holdersav20001/enterprise-tool-router/pkg/database"
	"github.com/holdersav20001/enterprise-tool-router/pkg/history"
	"github.com/holdersav20001/enterprise-tool-router/pkg/ratelimit"
	"github.com/holdersav20001/enterprise-tool-router/pkg/resilience"
	"github.com/holdersav20001/enterprise-tool-router/pkg/tools"
	"github.com/holdersav20001/enterprise-tool-router/pkg/version"
)

// Server wires the router and its supporting services to HTTP.
type Server struct {
	router  *tools.Router
	db      *database.Client
	cache   *cache.Manager
	limiter *ratelimit.Limiter
	breaker *resilience.Breaker
	audit   *audit.Sink
	history *history.Store
	logger  *slog.Logger
}

// Deps bundles the server's collaborators.
type Deps struct {
	Router  *tools.Router
	DB      *database.Client
	Cache   *cache.Manager
	Limiter *ratelimit.Limiter
	Breaker *resilience.Breaker
	Audit   *audit.Sink
	History *history.Store
	Logger  *slog.Logger
}

// NewServer creates the HTTP server.
func NewServer(deps Deps) *Server {
	return &Server{
		router:  deps.Router,
		db:      deps.DB,
		cache:   deps.Cache,
		limiter: deps.Limiter,
		breaker: deps.Breaker,
		audit:   deps.Audit,
		history: deps.History,
		logger:  deps.Logger.With("component", "api"),
	}
}

// Routes builds the gin engine with all middleware and handlers attached.
func (s *Server) Routes() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(CorrelationID())
	engine.Use(RequestLogger(s.logger))
	engine.Use(Metrics())

	engine.GET("/health", s.HandleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.POST("/query", s.HandleQuery)
	engine.GET("/audit", s.HandleAuditRecords)
	engine.GET("/history", s.HandleHistory)
	engine.GET("/stats", s.HandleStats)

	return engine
}

// HandleHealth reports database connectivity and pool statistics.
func (s *Server) HandleHealth(c *gin.Context) {
	health, err := s.db.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"version":  version.Full(),
			"database": health,
			"error":    err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"version":  version.Full(),
		"database": health,
	})
}

// HandleStats exposes the resilience and cache counters for operators.
func (s *Server) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"cache":      s.cache.Stats(),
		"rate_limit": s.limiter.Stats(),
		"breaker":    s.breaker.Stats(),
	})
}
