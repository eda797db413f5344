package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-live/internal/auth"
	"github.com/vovakirdan/wirechat-live/internal/config"
	"github.com/vovakirdan/wirechat-live/internal/service/meetings"
)

// NewServer builds the meeting broker HTTP server.
func NewServer(svc *meetings.Service, jwtConfig *auth.JWTConfig, cfg config.BrokerConfig, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handlers := NewMeetingHandlers(svc, logger)

	meeting := router.Group("/api/spaces/:space_id/discussions/:discussion_id/meeting")
	meeting.Use(AuthMiddleware(jwtConfig, logger))
	meeting.Use(RateLimitMiddleware(cfg.RateLimit, logger))
	{
		meeting.POST("/start", handlers.Start)
		meeting.POST("/register", handlers.Register)
		meeting.POST("/join", handlers.Join)
		meeting.POST("/exit", handlers.Exit)
		meeting.GET("/participants", handlers.Participants)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
