package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AoWangg/mrra/internal/config"
	"github.com/AoWangg/mrra/internal/handler"
	"github.com/AoWangg/mrra/internal/middleware"
	"github.com/AoWangg/mrra/internal/service"
)

// SetupRouter wires the HTTP surface around the prediction pipeline.
func SetupRouter(cfg *config.Config, svc *service.PredictionService, loc *time.Location) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.RateLimit(cfg.RateLimit, time.Minute))

	// CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "MRRA API is running",
		})
	})

	h := handler.NewPredictionHandler(svc, loc)

	api := r.Group("/api/v1")
	if cfg.JWTSecret != "" {
		api.Use(middleware.Auth(cfg.JWTSecret))
	}
	{
		api.POST("/trajectories", h.IngestTrajectories)
		api.GET("/activities/:user", h.GetActivities)
		api.GET("/graph/summary", h.GetGraphSummary)
		api.POST("/retrieve", h.Retrieve)
		api.POST("/predict", h.Predict)
		api.GET("/patterns/:user", h.GetPatterns)
	}

	return r
}
