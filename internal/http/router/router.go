package router

import (
	"net/http"

	"regvil_tracker_backend/internal/webhook"
	"regvil_tracker_backend/platform/config"
	"regvil_tracker_backend/platform/httpkit"
	"regvil_tracker_backend/platform/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// New builds the gin engine for the webhook server: health probe plus
// the event front door.
func New(cfg config.HTTPConfig, handler *webhook.Handler, log *logger.Logger) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(httpkit.RequestLogger(log))
	engine.Use(httpkit.SecurityHeaders())
	engine.Use(corsMiddleware(cfg))

	// The events platform retries on failure; the limiter only guards
	// against runaway redelivery loops.
	limiter := httpkit.NewIPRateLimiter(rate.Limit(50), 100, log)
	engine.Use(limiter.RateLimit())

	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handler.RegisterRoutes(engine)

	return engine
}

func corsMiddleware(cfg config.HTTPConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization"},
	}

	if cfg.GetCORSAllowAll() {
		corsCfg.AllowAllOrigins = true
	} else if origins := cfg.GetCORSOrigins(); len(origins) > 0 {
		corsCfg.AllowOrigins = origins
		corsCfg.AllowCredentials = cfg.GetCORSAllowCreds()
	} else {
		// No origins configured: the webhook is called server-to-server,
		// browsers have no business here.
		corsCfg.AllowOrigins = []string{"https://localhost"}
	}

	return cors.New(corsCfg)
}
