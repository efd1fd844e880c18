// Package api assembles the panel server's HTTP surface.
package api

import (
	"database/sql"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/luchaneitor/tecnoacceso-web/internal/bridge"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/api/handlers"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/api/middleware"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/config"
	"github.com/luchaneitor/tecnoacceso-web/internal/server/crypto"
)

// NewRouter builds the gin engine with every route mounted. The bridge
// simulator is optional; when nil the /v1/bridge endpoint is not served.
func NewRouter(cfg *config.Config, db *sql.DB, jwtManager *crypto.JWTManager, sim *bridge.Simulator) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"*"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))
	router.Use(middleware.LoggingMiddleware())

	// Root endpoint returns plain text for client reachability checks.
	router.GET("/", func(c *gin.Context) {
		c.String(200, "TecnoAcceso panel server")
	})

	authHandler := handlers.NewAuthHandler(db, jwtManager)
	activityHandler := handlers.NewActivityHandler(db)
	logHandler := handlers.NewLogHandler(db)
	alertHandler := handlers.NewAlertHandler(db)

	v1 := router.Group("/v1")
	{
		v1.POST("/auth/login", authHandler.PostLogin)
	}

	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(jwtManager))
	{
		protected.POST("/activities", activityHandler.PostActivity)
		protected.GET("/activities", activityHandler.GetActivities)

		protected.POST("/logs", logHandler.PostLog)
		protected.GET("/logs", logHandler.GetLogs)

		protected.POST("/alerts", alertHandler.PostAlert)
		protected.GET("/alerts", alertHandler.GetUnreadAlerts)
		protected.POST("/alerts/:id/read", alertHandler.PostAlertRead)
	}

	if sim != nil {
		// The bridge handshake carries no bearer token; pairing consent is
		// the bridge's own concern.
		router.GET("/v1/bridge", sim.Handle)
	}

	return router
}
