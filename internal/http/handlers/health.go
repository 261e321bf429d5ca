package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	DB  *gorm.DB
	Hub *ws.Hub
}

func (h *HealthHandler) Handle(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status, code := "ok", http.StatusOK
	if sqlDB, err := h.DB.DB(); err != nil || sqlDB.PingContext(ctx) != nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	// counts only: this route is unauthenticated
	c.JSON(code, gin.H{
		"status":      status,
		"live":        h.Hub.Path(),
		"clients":     h.Hub.ClientCount(ctx),
		"onlineUsers": len(h.Hub.OnlineUsers(ctx)),
	})
}
