package server

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/edushare/edushare-backend/internal/handlers"
	"github.com/edushare/edushare-backend/internal/middleware"
)

type RouterConfig struct {
	AuthHandler       *handlers.AuthHandler
	ResourceHandler   *handlers.ResourceHandler
	ModerationHandler *handlers.ModerationHandler
	StatsHandler      *handlers.StatsHandler
	AuthMiddleware    *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:3000",
			"http://localhost:5173",
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")

	// Public
	api.POST("/auth/register", cfg.AuthHandler.Register)
	api.POST("/auth/login", cfg.AuthHandler.Login)
	api.POST("/auth/refresh", cfg.AuthHandler.Refresh)

	// Authenticated
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/resources", cfg.ResourceHandler.Upload)
	protected.GET("/resources", cfg.ResourceHandler.List)
	protected.GET("/resources/:id", cfg.ResourceHandler.Get)
	protected.GET("/resources/:id/related", cfg.ResourceHandler.Related)
	protected.PUT("/resources/:id", cfg.ResourceHandler.Update)
	protected.DELETE("/resources/:id", cfg.ResourceHandler.Delete)
	protected.GET("/resources/:id/download", cfg.ResourceHandler.Download)

	protected.GET("/schools/:id/stats", cfg.StatsHandler.SchoolStats)
	protected.GET("/stats", cfg.StatsHandler.PlatformStats)

	// Admin
	admin := api.Group("/admin")
	admin.Use(cfg.AuthMiddleware.RequireAuth(), cfg.AuthMiddleware.RequireAdmin())

	admin.GET("/moderation/pending", cfg.ModerationHandler.Pending)
	admin.GET("/moderation/activity", cfg.ModerationHandler.Activity)
	admin.POST("/resources/:id/approve", cfg.ModerationHandler.Approve)
	admin.POST("/resources/:id/reject", cfg.ModerationHandler.Reject)
	admin.GET("/resources/:id/history", cfg.ModerationHandler.History)

	// Local-mode byte handoff. Token travels as a query parameter because the
	// link is opened directly by the browser.
	files := router.Group("/files")
	files.Use(cfg.AuthMiddleware.RequireAuth())
	files.GET("/*key", cfg.ResourceHandler.ServeFile)

	return router
}
