package api

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/Kamar-Folarin/repo-ingest/internal/errors"
)

// ActorHeader carries the authenticated actor id set by the upstream proxy.
const ActorHeader = "X-Actor-ID"

const actorKey = "actorID"

// @title Repository Ingest API
// @version 1.0
// @description Imports repositories, drives them through the ingestion pipeline and keeps them in sync
// @contact.name API Support
// @contact.url http://github.com/Kamar-Folarin
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey ActorAuth
// @in header
// @name X-Actor-ID

// SetupRouter configures the API routes
func SetupRouter(h *Handler, logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	// API documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group("/api/v1")
	v1.GET("/health", h.Health)

	authed := v1.Group("", requireActor(h))
	{
		authed.POST("/import", h.ImportRepository)
		authed.POST("/scan/:id", h.StartScan)
		authed.POST("/sync-now/:id", h.SyncNow)
		authed.POST("/cancel/:id", h.CancelRun)
		authed.PUT("/sync-settings/:id", h.UpdateSyncSettings)
		authed.PUT("/namespaces/:id", h.UpdateNamespaces)
		authed.GET("/namespaces/:id/repositories", h.ListNamespaceRepositories)
		authed.GET("/status/:id", h.GetStatus)
		authed.GET("/audit/:id", h.GetAuditLog)
	}

	return r
}

// requireActor rejects requests without an actor id.
func requireActor(h *Handler) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := strings.TrimSpace(c.GetHeader(ActorHeader))
		if actor == "" {
			h.respondWithError(c, errors.NewUnauthorizedError("missing "+ActorHeader+" header", nil))
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return c.GetString(actorKey)
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"latency":  time.Since(start).String(),
			"actor_id": actorID(c),
		})
		if c.Writer.Status() >= 500 {
			entry.Warn("Request completed with server error")
			return
		}
		entry.Debug("Request completed")
	}
}
