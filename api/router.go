package api

import (
	"net/http"
	"time"

	"github.com/BinLe1988/moderation-gateway/api/handlers"
	"github.com/BinLe1988/moderation-gateway/api/middleware"
	"github.com/BinLe1988/moderation-gateway/configs"
	"github.com/BinLe1988/moderation-gateway/models"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with middleware and all routes mounted.
func NewRouter(cfg *configs.Config, svc handlers.Moderator, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(
		middleware.RequestID(),
		middleware.Logger(log),
		middleware.Recovery(log),
		cors.New(corsConfig(cfg.CORS)),
	)

	SetupRouter(router, svc, log)
	return router
}

// SetupRouter registers the gateway routes on router.
func SetupRouter(router *gin.Engine, svc handlers.Moderator, log *zap.Logger) {
	router.GET("/", handlers.Index)
	handlers.NewHealthHandler(svc).RegisterRoutes(router)
	handlers.NewModerationHandler(svc, log).RegisterRoutes(router)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error: models.ErrorInfo{Kind: "validation", Message: "route not found"},
		})
	})
}

func corsConfig(c configs.CORS) cors.Config {
	cfg := cors.Config{
		AllowMethods:  c.Methods(),
		AllowHeaders:  c.Headers(),
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	origins := c.Origins()
	if len(origins) == 0 || contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}

	// "*" is sent as-is; browsers honor it for requests without credentials.
	if len(cfg.AllowMethods) == 0 || contains(cfg.AllowMethods, "*") {
		cfg.AllowMethods = []string{"*"}
	}
	if len(cfg.AllowHeaders) == 0 || contains(cfg.AllowHeaders, "*") {
		cfg.AllowHeaders = []string{"*"}
	}
	return cfg
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
