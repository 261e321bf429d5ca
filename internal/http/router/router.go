// Package router wires the HTTP surface: auth, message history and ingest,
// conversations, the live channel endpoint, health and metrics.
package router

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/aryamantandon18/connectly/internal/config"
	"github.com/aryamantandon18/connectly/internal/http/handlers"
	"github.com/aryamantandon18/connectly/internal/http/middleware"
	"github.com/aryamantandon18/connectly/internal/ingest"
	"github.com/aryamantandon18/connectly/internal/store"
	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

type Deps struct {
	Config config.Config
	DB     *gorm.DB
	Store  *store.Store
	Hub    *ws.Hub
	Ingest *ingest.Service
}

func New(d Deps) (*gin.Engine, error) {
	cfg := d.Config

	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	authH := &handlers.AuthHandler{Store: d.Store, JWTSecret: cfg.JWTSecret}
	r.POST("/api/auth/register", authH.Register)
	r.POST("/api/auth/login", authH.Login)

	healthH := &handlers.HealthHandler{DB: d.DB, Hub: d.Hub}
	r.GET("/health", healthH.Handle)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if !cfg.Cloudinary.Configured() && cfg.UploadDir != "" {
		files := r.Group("/uploads", uploadHeaders)
		files.StaticFS("", http.Dir(cfg.UploadDir))
	}

	wsH := &handlers.WSHandler{
		Hub:                  d.Hub,
		JWTSecret:            cfg.JWTSecret,
		WSInsecureSkipVerify: cfg.WSInsecureSkipVerify,
		OriginPatterns:       cfg.WSOriginPatterns,
	}
	if err := d.Hub.Attach(r, wsH.Handle); err != nil {
		return nil, fmt.Errorf("attach live channel: %w", err)
	}

	authed := r.Group("/api")
	authed.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	msgH := &handlers.MessageHandler{Store: d.Store, Ingest: d.Ingest, MaxUploadBytes: cfg.MaxUploadBytes}
	authed.GET("/messages", msgH.ListChannelMessages)
	authed.GET("/direct-messages", msgH.ListDirectMessages)

	ingestRoutes := authed.Group("/socket")
	ingestRoutes.Use(middleware.RateLimit(cfg.IngestRate, cfg.IngestBurst))
	ingestRoutes.POST("/messages", msgH.SendChannelMessage)
	ingestRoutes.POST("/direct-messages", msgH.SendDirectMessage)

	convH := &handlers.ConversationHandler{Store: d.Store}
	authed.POST("/conversations", convH.GetOrCreate)
	authed.GET("/conversations", convH.List)

	return r, nil
}

// uploadHeaders keeps browsers from rendering stored files as pages. Opaque
// .bin files get a fixed type, since the file server would otherwise sniff
// one from their content.
func uploadHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	if strings.HasSuffix(c.Request.URL.Path, ".bin") {
		c.Header("Content-Type", "application/octet-stream")
		c.Header("Content-Disposition", "attachment")
	}
	c.Next()
}
