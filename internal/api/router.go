// Package api wires the gin router: health check, status snapshots, and
// command enqueue endpoints over the control and settings queues.
package api

import (
	"github.com/gin-gonic/gin"

	"hil-scheduler/internal/api/handlers"
	"hil-scheduler/internal/api/middleware"
	"hil-scheduler/internal/control"
	"hil-scheduler/internal/state"
)

// NewRouter builds the gin engine for the scheduler's HTTP API.
func NewRouter(store *state.Store, controlQueue, settingsQueue *control.CommandQueue, allowedOrigins []string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.ErrorHandler())

	statusHandler := handlers.NewStatusHandler(store, controlQueue, settingsQueue)
	controlHandler := handlers.NewCommandHandler(controlQueue)
	settingsHandler := handlers.NewCommandHandler(settingsQueue)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", statusHandler.Overview)
		v1.GET("/plants/:id", statusHandler.Plant)
		v1.GET("/manual-series/:key", statusHandler.ManualSeries)

		v1.POST("/control/commands", controlHandler.Enqueue)
		v1.GET("/control/commands/:id", controlHandler.Status)

		v1.POST("/settings/commands", settingsHandler.Enqueue)
		v1.GET("/settings/commands/:id", settingsHandler.Status)
	}

	return router
}
