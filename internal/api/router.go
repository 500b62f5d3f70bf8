package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/blog-comment-api/internal/config"
	"github.com/blog-comment-api/internal/database"
	"github.com/blog-comment-api/internal/models"
	"github.com/blog-comment-api/internal/service"
)

// NewRouter creates and configures the Gin router
func NewRouter(services *service.Services, db *database.DB, cfg *config.Config, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(corsMiddleware())

	// Handlers
	commentHandler := NewCommentHandler(services, cfg, log)
	oauthHandler := NewOAuthHandler(services, log)

	// Health check
	router.GET("/health", healthCheck(db))

	// API v1
	v1 := router.Group("/api/v1")
	{
		comments := v1.Group("/comments")
		{
			comments.GET("", commentHandler.ListComments)
			comments.GET("/:id", commentHandler.GetComment)
			comments.POST("/begin", commentHandler.BeginCreate)
			comments.POST("/submit", commentHandler.SubmitCreate)
			comments.POST("/:id/edit", commentHandler.BeginEdit)
			comments.POST("/:id/delete", commentHandler.BeginDelete)
			comments.POST("/:id/submit", commentHandler.SubmitEdit)
		}

		oauth := v1.Group("/oauth")
		{
			oauth.GET("/callback", oauthHandler.Callback)
		}
	}

	return router
}

// healthCheck returns the health status including database reachability
func healthCheck(db *database.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"timestamp": time.Now().Format(time.RFC3339),
				"service":   "blog-comment-api",
			})
			return
		}

		stats := db.Stats()
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   "blog-comment-api",
			"database": gin.H{
				"open_connections": stats.OpenConnections,
				"in_use":           stats.InUse,
			},
		})
	}
}

// respondError maps a service error to the wire taxonomy. Internal kinds log
// the cause server-side and return only a generic message.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	var appErr *models.Error
	if !errors.As(err, &appErr) {
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Unclassified error")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "internal error",
			"kind":  string(models.KindStoreFailure),
		})
		return
	}

	message := appErr.Message
	if appErr.Internal() {
		log.Error().Err(appErr).Str("path", c.Request.URL.Path).Msg("Request failed")
		message = "internal error"
		if appErr.Kind == models.KindUpstreamFailure {
			message = "identity provider request failed"
		}
	}

	c.JSON(appErr.HTTPStatus(), gin.H{
		"error": message,
		"kind":  string(appErr.Kind),
	})
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Msg("Panic recovered")
				c.JSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
				c.Abort()
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}

// corsMiddleware handles CORS for the embedded widget
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
