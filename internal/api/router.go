package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/versehub/community-api/internal/auth"
	"github.com/versehub/community-api/internal/config"
	"github.com/versehub/community-api/internal/metrics"
	"github.com/versehub/community-api/internal/service"
)

// NewRouter creates and configures the Gin router. m may be nil.
func NewRouter(services *service.Services, cfg *config.Config, verifier *auth.Verifier, m *metrics.Metrics, log zerolog.Logger) *gin.Engine {
	// Set Gin mode
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(metricsMiddleware(m))
	router.Use(corsMiddleware())
	router.Use(authMiddleware(verifier, log))

	// Handlers
	accessHandler := NewAccessHandler(services, log)
	directoryHandler := NewDirectoryHandler(services, log)
	invitationHandler := NewInvitationHandler(services, cfg, log)
	roleHandler := NewRoleHandler(services, log)
	verseHandler := NewVerseHandler(services, log)

	// Health check
	router.GET("/health", healthCheck)
	router.GET("/metrics", metricsHandler(services))
	if m != nil {
		router.GET("/metrics/prometheus", gin.WrapH(m.Handler()))
	}

	// API v1
	v1 := router.Group("/v1")
	{
		access := v1.Group("/access")
		{
			access.GET("/admin", accessHandler.HasAdminAccess)
			access.GET("/permissions", accessHandler.CheckPermission)
		}

		verses := v1.Group("/verses")
		{
			verses.GET("", verseHandler.ListVerses)
			verses.GET("/daily", verseHandler.GetDailyVerse)
		}

		v1.POST("/invitations/verify", invitationHandler.VerifyEmail)

		admin := v1.Group("/admin")
		{
			admin.GET("/users", directoryHandler.GetUsers)
			admin.GET("/users/export", directoryHandler.StreamExport)
			admin.POST("/users/bulk", invitationHandler.BulkCreateUsers)
			admin.POST("/invitations", invitationHandler.InviteUsers)
			admin.POST("/directory/refresh", directoryHandler.Refresh)

			admin.POST("/users/:user_id/role", roleHandler.AssignRole)
			admin.GET("/users/:user_id/assignments", roleHandler.ListAssignments)
			admin.POST("/users/:user_id/assignments", roleHandler.GrantRole)
			admin.DELETE("/users/:user_id/assignments/:role_id", roleHandler.RevokeRole)
			admin.GET("/users/:user_id/transitions", roleHandler.ListTransitions)

			admin.GET("/roles", roleHandler.ListRoles)
			admin.GET("/roles/:role_id", roleHandler.GetRole)
			admin.PATCH("/roles/:role_id", roleHandler.UpdateRole)
			admin.GET("/roles/:role_id/permissions", roleHandler.ListPermissions)
			admin.POST("/roles/:role_id/permissions", roleHandler.CreatePermission)
			admin.DELETE("/permissions/:permission_id", roleHandler.DeletePermission)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"service":   "community-api",
	})
}

// metricsHandler returns table sizes
func metricsHandler(services *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		usersCount, _ := services.Export.GetCount(ctx, "users")
		versesCount, _ := services.Export.GetCount(ctx, "verses")
		directoryCount, _ := services.Export.GetCount(ctx, "directory")

		c.JSON(http.StatusOK, gin.H{
			"database": gin.H{
				"users":     usersCount,
				"verses":    versesCount,
				"directory": directoryCount,
			},
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
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

		if userID, ok := auth.UserIDFromContext(c.Request.Context()); ok {
			event = event.Str("user_id", userID)
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

// metricsMiddleware records request counts and latency by route template
func metricsMiddleware(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		m.ObserveRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}

// corsMiddleware handles CORS
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// authMiddleware resolves the caller from a bearer token. Requests without
// a token continue anonymously; a bad token is rejected.
func authMiddleware(verifier *auth.Verifier, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || verifier == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := verifier.Parse(strings.TrimSpace(token))
		if err != nil {
			log.Debug().Err(err).Msg("Rejected bearer token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Request = c.Request.WithContext(auth.ContextWithUser(c.Request.Context(), claims.Subject))
		c.Next()
	}
}
