package handlers

import (
	"net/http"

	"github.com/aryamantandon18/connectly/internal/http/middleware"
	"github.com/aryamantandon18/connectly/internal/store"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	Store *store.Store
}

type createConversationReq struct {
	ServerID string `json:"serverId" binding:"required"`
	MemberID string `json:"memberId" binding:"required"`
}

// GetOrCreate returns the direct conversation between the requester and
// another member of the same server, creating it on first use.
func (h *ConversationHandler) GetOrCreate(c *gin.Context) {
	var req createConversationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid body", "error": err.Error()})
		return
	}

	conv, err := h.Store.FindOrCreateConversation(c.Request.Context(), req.ServerID, middleware.ProfileID(c), req.MemberID)
	if err != nil {
		respondError(c, fromStore(err, "Member"))
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (h *ConversationHandler) List(c *gin.Context) {
	convs, err := h.Store.ListConversations(c.Request.Context(), middleware.ProfileID(c))
	if err != nil {
		respondError(c, fromStore(err, "Conversation"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": convs})
}
