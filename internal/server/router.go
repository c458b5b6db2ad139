package server

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"site-gateway/internal/config"
	"site-gateway/internal/handler"
	"site-gateway/internal/middleware"
)

type Handlers struct {
	Chat   *handler.ChatHandler
	Config *handler.ConfigHandler
}

// NewRouter wires the relay and runtime-config endpoints. limiter may be nil
// to disable rate limiting. Client IPs come from forwarding headers only
// when the peer is one of cfg.Server.TrustedProxies.
func NewRouter(cfg *config.Config, h Handlers, limiter *middleware.RateLimiter) (*gin.Engine, error) {
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, errors.Wrap(err, "server.trusted_proxies")
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog())

	corsConfig := cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", h.Config.Health)

	api := router.Group("/api")
	api.Use(middleware.NoCache())
	{
		chat := []gin.HandlerFunc{}
		if limiter != nil {
			chat = append(chat, limiter.Middleware())
		}
		chat = append(chat, h.Chat.Relay)
		api.POST("/chat", chat...)

		api.GET("/runtime-config", h.Config.RuntimeConfig)
		api.GET("/health/upstream", h.Config.UpstreamHealth)
	}

	return router, nil
}
