package handlers

import (
	"errors"
	"net/http"

	"github.com/aryamantandon18/connectly/internal/http/middleware"
	"github.com/aryamantandon18/connectly/internal/logging"
	"github.com/aryamantandon18/connectly/internal/ws"

	"github.com/gin-gonic/gin"
	"nhooyr.io/websocket"
)

type WSHandler struct {
	Hub                  *ws.Hub
	JWTSecret            string
	WSInsecureSkipVerify bool
	OriginPatterns       []string
}

// Handle upgrades an authenticated request to a live channel connection and
// blocks until it closes.
func (h *WSHandler) Handle(c *gin.Context) {
	tokenStr, err := middleware.TokenFromRequest(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
		return
	}
	profileID, err := middleware.ParseToken(h.JWTSecret, tokenStr)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
		return
	}

	// Accept rejects cross-origin upgrades unless the origin matches a
	// pattern. InsecureSkipVerify disables the check and is for dev only.
	opts := &websocket.AcceptOptions{
		InsecureSkipVerify: h.WSInsecureSkipVerify,
		OriginPatterns:     h.OriginPatterns,
	}
	conn, err := websocket.Accept(c.Writer, c.Request, opts)
	if err != nil {
		return // Accept already wrote the response
	}

	if err := h.Hub.Serve(c.Request.Context(), conn, profileID); err != nil {
		if errors.Is(err, ws.ErrHubClosed) {
			_ = conn.Close(websocket.StatusTryAgainLater, "live channel unavailable")
			return
		}
		logging.Debug().Err(err).Str("profile", profileID).Msg("live connection ended")
		_ = conn.Close(websocket.StatusInternalError, "")
	}
}
