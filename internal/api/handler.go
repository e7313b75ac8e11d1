package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/seokjunHwang/Quant/internal/engine"
	"github.com/seokjunHwang/Quant/internal/events"
	"github.com/seokjunHwang/Quant/internal/monitor"
)

// Server wires HTTP endpoints around the auto-trader.
type Server struct {
	Router  *gin.Engine
	Engine  engine.Service
	Bus     *events.Bus
	Metrics *monitor.Metrics

	auth     *operatorAuth
	limiters *ipLimiters
	log      zerolog.Logger
}

// Auth holds the credentials of the single operator account. An empty
// AdminPasswordHash disables login.
type Auth struct {
	JWTSecret         string
	AdminPasswordHash string // bcrypt
}

func NewServer(svc engine.Service, bus *events.Bus, metrics *monitor.Metrics, auth Auth, log zerolog.Logger) *Server {
	r := gin.New()
	s := &Server{
		Router:   r,
		Engine:   svc,
		Bus:      bus,
		Metrics:  metrics,
		auth:     newOperatorAuth(auth),
		limiters: newIPLimiters(20, 50),
		log:      log.With().Str("component", "api").Logger(),
	}

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())               // Panic recovery (first)
	r.Use(RequestIDMiddleware())        // Request ID tracking
	r.Use(RequestLogger(s.log))         // Request logging (after ID is set)
	r.Use(s.limiters.Middleware(s.log)) // Rate limiting
	r.Use(CORSMiddleware())             // CORS (last before routes)

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)
	if s.Metrics != nil {
		s.Router.GET("/metrics", gin.WrapH(s.Metrics.Handler()))
	}

	api := s.Router.Group("/api")
	{
		// Auth endpoints (no auth required)
		api.POST("/auth/login", s.login)

		// Protected API
		protected := api.Group("")
		protected.Use(s.auth.require())
		{
			protected.GET("/status", s.getStatus)
			protected.GET("/positions", s.getPositions)
			protected.GET("/trades", s.getTrades)
			protected.GET("/audit", s.getAudit)
			protected.GET("/overrides", s.getOverrides)
			protected.DELETE("/overrides/:symbol", s.deleteOverride)
			protected.GET("/params", s.getParams)
			protected.PUT("/params", s.updateParams)
			protected.POST("/params/capital/sync", s.syncCapital)

			// Actions
			protected.POST("/autotrade/start", s.startAutoTrade)
			protected.POST("/autotrade/stop", s.stopAutoTrade)
			protected.POST("/reconcile", s.reconcile)
			protected.POST("/signals/latest", s.executeLatestSignal)
			protected.POST("/positions/:symbol/close", s.closePosition)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler {
	return s.Router
}
